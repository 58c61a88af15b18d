package dictionary

import "strings"

// lemmatize applies a small set of English suffix rules so a lookup
// miss on an inflected form ("dictionaries", "jumped", "running") can
// retry against its likely base form before giving up. It is
// deliberately simple: a real stemmer belongs in the corpus data, not
// the server.
func lemmatize(word string) string {
	w := strings.ToLower(strings.TrimSpace(word))
	switch {
	case strings.HasSuffix(w, "ies") && len(w) > 4:
		return w[:len(w)-3] + "y"
	case strings.HasSuffix(w, "s") && len(w) > 3 && !strings.HasSuffix(w, "ss"):
		return w[:len(w)-1]
	case strings.HasSuffix(w, "ed") && len(w) > 3:
		return w[:len(w)-2]
	case strings.HasSuffix(w, "ing") && len(w) > 4:
		return w[:len(w)-3]
	default:
		return w
	}
}
