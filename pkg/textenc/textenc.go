// Package textenc normalizes and decodes the text encodings that appear
// in MDX/MDD containers: UTF-8, UTF-16LE, GB18030 (with GBK/GB2312
// aliased to it) and BIG5.
package textenc

import (
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
)

// Normalize upper-cases enc and collapses GBK/GB2312 onto GB18030, the
// superset encoding recommended by the MDX file spec.
func Normalize(enc string) string {
	enc = strings.ToUpper(strings.TrimSpace(enc))
	switch enc {
	case "GBK", "GB2312":
		return "GB18030"
	case "":
		return "UTF-8"
	default:
		return enc
	}
}

// decoderFor returns the golang.org/x/text decoder for a normalized
// encoding name. MDD containers are always UTF-16LE regardless of what
// the header claims.
func decoderFor(enc string) *encoding.Decoder {
	switch Normalize(enc) {
	case "UTF-16", "UTF-16LE":
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	case "GB18030":
		return simplifiedchinese.GB18030.NewDecoder()
	case "BIG5":
		return traditionalchinese.Big5.NewDecoder()
	default:
		return nil // UTF-8 or unknown: treated as already UTF-8
	}
}

// Decode converts raw bytes in the given encoding to a UTF-8 string.
// Decode errors are not fatal: undecodable bytes are dropped, mirroring
// the original reader's errors="ignore" policy, since headwords and
// record bodies must never fail a lookup over a single bad byte.
func Decode(b []byte, enc string) string {
	dec := decoderFor(enc)
	if dec == nil {
		return string(b)
	}
	out, err := dec.Bytes(b)
	if err != nil && len(out) == 0 {
		// Best effort: fall back to a lossy pass rather than returning nothing.
		return lossyDecode(b, dec)
	}
	return string(out)
}

// lossyDecode decodes as far as the decoder accepts, keeping that
// prefix and skipping the first offending byte, repeating until the
// input is exhausted. This never allocates more than O(len(b)) and
// guarantees termination.
func lossyDecode(b []byte, dec *encoding.Decoder) string {
	var sb strings.Builder
	dst := make([]byte, 4*len(b)+4)
	for len(b) > 0 {
		dec.Reset()
		nDst, nSrc, err := dec.Transform(dst, b, true)
		sb.Write(dst[:nDst])
		b = b[nSrc:]
		if err == nil {
			break
		}
		if len(b) > 0 {
			b = b[1:]
		}
	}
	return sb.String()
}

// UTF16TermLen returns the byte width of one character of key text,
// terminator and text-head/tail span under the given encoding: 2 for UTF-16 (every
// codepoint spans two bytes, including the NUL terminator), 1 otherwise.
func UTF16TermLen(enc string) int {
	switch Normalize(enc) {
	case "UTF-16", "UTF-16LE":
		return 2
	default:
		return 1
	}
}
