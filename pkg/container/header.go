package container

import (
	"encoding/binary"
	"fmt"
	"hash/adler32"
	"io"
	"regexp"
	"strconv"
	"strings"

	"mdictd.org/pkg/textenc"
)

// Header is the parsed <Dict .../> header block common to MDX and MDD
// containers.
type Header struct {
	EngineVersion float64
	Encoding      string
	Title         string
	Description   string
	// Stylesheet maps a numeric tag id (as it appears in `N` tokens in
	// records) to its (prefix, suffix) wrapper.
	Stylesheet map[string][2]string
}

// NumberWidth returns the byte width used for block-catalog counts and
// offsets: 4 for engine versions before 2.0, 8 otherwise.
func (h Header) NumberWidth() int {
	if h.EngineVersion < 2.0 {
		return 4
	}
	return 8
}

var attrPattern = regexp.MustCompile(`(?s)(\w+)="(.*?)"`)

var entityUnescaper = strings.NewReplacer(
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&amp;", "&",
)

// readHeader reads the length-prefixed, Adler-32-checked, UTF-16LE
// header block starting at the current position of r, and returns the
// parsed Header plus the number of bytes consumed (the offset of the
// following key-block catalog, relative to wherever r started).
func readHeader(r io.Reader) (Header, int64, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Header{}, 0, fmt.Errorf("%w: reading header length: %v", ErrCorruptHeader, err)
	}
	headerLen := binary.BigEndian.Uint32(lenBuf[:])

	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return Header{}, 0, fmt.Errorf("%w: reading header body: %v", ErrCorruptHeader, err)
	}

	var adlerBuf [4]byte
	if _, err := io.ReadFull(r, adlerBuf[:]); err != nil {
		return Header{}, 0, fmt.Errorf("%w: reading header checksum: %v", ErrCorruptHeader, err)
	}
	wantAdler := binary.LittleEndian.Uint32(adlerBuf[:])
	gotAdler := adler32.Checksum(headerBytes)
	if wantAdler != gotAdler {
		return Header{}, 0, fmt.Errorf("%w: adler32 mismatch (want %x, got %x)", ErrCorruptHeader, wantAdler, gotAdler)
	}

	// Header text is UTF-16LE terminated with \x00\x00; drop the
	// terminator before decoding.
	text := headerBytes
	if len(text) >= 2 {
		text = text[:len(text)-2]
	}
	decoded := textenc.Decode(text, "UTF-16LE")

	attrs := parseAttrs(decoded)

	h := Header{Stylesheet: map[string][2]string{}}
	encoding, ok := attrs["Encoding"]
	if !ok {
		return Header{}, 0, fmt.Errorf("%w: missing required Encoding attribute", ErrCorruptHeader)
	}
	h.Encoding = textenc.Normalize(encoding)

	versionStr, ok := attrs["GeneratedByEngineVersion"]
	if !ok {
		return Header{}, 0, fmt.Errorf("%w: missing required GeneratedByEngineVersion attribute", ErrCorruptHeader)
	}
	version, err := strconv.ParseFloat(strings.TrimSpace(versionStr), 64)
	if err != nil {
		return Header{}, 0, fmt.Errorf("%w: invalid GeneratedByEngineVersion %q: %v", ErrCorruptHeader, versionStr, err)
	}
	h.EngineVersion = version

	h.Title = attrs["Title"]
	h.Description = attrs["Description"]

	if ss := attrs["StyleSheet"]; ss != "" {
		lines := strings.Split(strings.ReplaceAll(ss, "\r\n", "\n"), "\n")
		for i := 0; i+2 < len(lines); i += 3 {
			number, begin, end := lines[i], lines[i+1], lines[i+2]
			h.Stylesheet[number] = [2]string{begin, end}
		}
	}

	return h, int64(4 + headerLen + 4), nil
}

func parseAttrs(text string) map[string]string {
	out := map[string]string{}
	for _, m := range attrPattern.FindAllStringSubmatch(text, -1) {
		key := m[1]
		val := entityUnescaper.Replace(m[2])
		out[key] = val
	}
	return out
}
