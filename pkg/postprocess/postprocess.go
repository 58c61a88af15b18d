// Package postprocess turns raw MDX record bytes into servable HTML:
// resolving @@@LINK= redirections against the owning dictionary,
// substituting `N` stylesheet tokens, and appending any injected
// resource HTML.
package postprocess

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// ErrLinkTooDeep is returned when a chain of @@@LINK= redirections
// exceeds a Processor's MaxLinkDepth, which guards against a cyclic or
// pathological dictionary hanging a lookup.
var ErrLinkTooDeep = errors.New("postprocess: link redirection exceeded maximum depth")

// defaultMaxLinkDepth bounds @@@LINK= redirection chains when a
// Processor doesn't set MaxLinkDepth explicitly.
const defaultMaxLinkDepth = 8

var linkPattern = regexp.MustCompile(`^@@@LINK=([\w\s]*)`)

// Lookup resolves a headword to zero or more raw definition strings,
// matching the signature an index.Store-backed dictionary lookup
// naturally has.
type Lookup func(ctx context.Context, word string) ([]string, error)

// Processor holds the per-dictionary state (stylesheet, injected
// resource HTML) needed to turn raw records into final HTML.
type Processor struct {
	Stylesheet map[string][2]string
	// InjectionHTML is appended to every definition. Callers compute
	// it once (see LoadInjectionHTML) since it never changes for the
	// lifetime of a dictionary.
	InjectionHTML string
	// MaxLinkDepth bounds @@@LINK= redirection chains. Zero means use
	// defaultMaxLinkDepth.
	MaxLinkDepth int
}

func (p *Processor) maxDepth() int {
	if p.MaxLinkDepth <= 0 {
		return defaultMaxLinkDepth
	}
	return p.MaxLinkDepth
}

// ResolveLinks expands a list of raw lookup results, following any
// leading "@@@LINK=<word>" redirection to the linked headword's own
// definitions. A chain of redirections recurses up to MaxLinkDepth;
// exceeding it returns ErrLinkTooDeep rather than looping forever on a
// dictionary with a redirection cycle.
func (p *Processor) ResolveLinks(ctx context.Context, results []string, lookup Lookup) ([]string, error) {
	return p.resolveLinks(ctx, results, lookup, 0)
}

func (p *Processor) resolveLinks(ctx context.Context, results []string, lookup Lookup, depth int) ([]string, error) {
	if depth > p.maxDepth() {
		return nil, ErrLinkTooDeep
	}

	out := make([]string, 0, len(results))
	for _, item := range results {
		m := linkPattern.FindStringSubmatch(item)
		if m == nil {
			out = append(out, item)
			continue
		}
		link := strings.TrimSpace(m[1])
		linked, err := lookup(ctx, link)
		if err != nil {
			return nil, fmt.Errorf("postprocess: following link %q: %w", link, err)
		}
		resolved, err := p.resolveLinks(ctx, linked, lookup, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved...)
	}
	return out, nil
}

var styleTagPattern = regexp.MustCompile("`\\d+`")

// SubstituteStylesheet replaces `N` tokens in txt with the
// corresponding stylesheet (prefix, suffix) pair. A wrapped fragment
// ending in "\n" has the newline stripped before the suffix is applied
// and a literal "\r\n" appended after it, matching how the original
// renderer preserved paragraph breaks around styled blocks.
func (p *Processor) SubstituteStylesheet(txt string) string {
	if len(p.Stylesheet) == 0 {
		return txt
	}
	parts := styleTagPattern.Split(txt, -1)
	tags := styleTagPattern.FindAllString(txt, -1)

	var sb strings.Builder
	sb.WriteString(parts[0])
	for j, part := range parts[1:] {
		number := tags[j][1 : len(tags[j])-1]
		style, ok := p.Stylesheet[number]
		if !ok {
			sb.WriteString(part)
			continue
		}
		if strings.HasSuffix(part, "\n") {
			sb.WriteString(style[0])
			sb.WriteString(strings.TrimRightFunc(part, unicode.IsSpace))
			sb.WriteString(style[1])
			sb.WriteString("\r\n")
		} else {
			sb.WriteString(style[0])
			sb.WriteString(part)
			sb.WriteString(style[1])
		}
	}
	return sb.String()
}

// Combine joins resolved definition fragments, strips "\r\n" and
// "entry:/" artifacts left over from the source format, and appends
// the dictionary's injected resource HTML.
func (p *Processor) Combine(parts []string) string {
	joined := strings.Join(parts, "")
	joined = strings.ReplaceAll(joined, "\r\n", "")
	joined = strings.ReplaceAll(joined, "entry:/", "")
	return joined + p.InjectionHTML
}
