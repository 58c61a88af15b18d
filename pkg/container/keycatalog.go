package container

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"mdictd.org/pkg/textenc"
)

// KeyEntry is one (record offset, headword) pair decoded from the key
// blocks, before it is matched up against record-block boundaries.
type KeyEntry struct {
	RecordStart int64
	KeyText     string
}

type keyBlockSlab struct {
	compressedSize   int64
	decompressedSize int64
}

// readKeyCatalog reads the key-block catalog starting at the current
// position of r (immediately after the header) and returns the fully
// decoded, ordered key list plus the number of entries declared by the
// catalog (used as a cross-check against the record catalog).
//
// It first attempts the strict parse; numeric fields in the leading
// summary block are meaningless garbage in a small number of malformed
// files, so on any failure it falls back to a brutal-force scan that
// locates the key-block-info section purely by its zlib magic and
// reconstructs entries from there.
func readKeyCatalog(r io.ReadSeeker, h Header) ([]KeyEntry, int64, error) {
	start, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, 0, err
	}

	entries, numEntries, err := readKeyCatalogStrict(r, h)
	if err == nil {
		return entries, numEntries, nil
	}

	if _, serr := r.Seek(start, io.SeekStart); serr != nil {
		return nil, 0, serr
	}
	return readKeyCatalogBrutal(r, h)
}

func readKeyCatalogStrict(r io.Reader, h Header) ([]KeyEntry, int64, error) {
	width := h.NumberWidth()
	summaryLen := width * 4
	if h.EngineVersion >= 2.0 {
		summaryLen = width * 5
	}
	summary := make([]byte, summaryLen)
	if _, err := io.ReadFull(r, summary); err != nil {
		return nil, 0, fmt.Errorf("%w: reading key catalog summary: %v", ErrCorruptCatalog, err)
	}

	cursor := summary
	numKeyBlocks, err := readNumberFrom(cursor, width)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrCorruptCatalog, err)
	}
	cursor = cursor[width:]
	numEntries, err := readNumberFrom(cursor, width)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrCorruptCatalog, err)
	}
	cursor = cursor[width:]
	if h.EngineVersion >= 2.0 {
		cursor = cursor[width:] // key_block_info_decomp_size, unused
	}
	infoSize, err := readNumberFrom(cursor, width)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrCorruptCatalog, err)
	}
	cursor = cursor[width:]
	blockSize, err := readNumberFrom(cursor, width)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrCorruptCatalog, err)
	}

	if h.EngineVersion >= 2.0 {
		var adlerBuf [4]byte
		if _, err := io.ReadFull(r, adlerBuf[:]); err != nil {
			return nil, 0, fmt.Errorf("%w: reading key catalog summary checksum: %v", ErrCorruptCatalog, err)
		}
		want := uint32(adlerBuf[0])<<24 | uint32(adlerBuf[1])<<16 | uint32(adlerBuf[2])<<8 | uint32(adlerBuf[3])
		if err := verifyAdler32(summary, want); err != nil {
			return nil, 0, err
		}
	}

	infoBytes := make([]byte, infoSize)
	if _, err := io.ReadFull(r, infoBytes); err != nil {
		return nil, 0, fmt.Errorf("%w: reading key block info: %v", ErrCorruptCatalog, err)
	}
	slabs, gotEntries, err := decodeKeyBlockInfo(infoBytes, h)
	if err != nil {
		return nil, 0, err
	}
	if uint64(len(slabs)) != numKeyBlocks {
		return nil, 0, fmt.Errorf("%w: key block count mismatch (header %d, info %d)", ErrCorruptCatalog, numKeyBlocks, len(slabs))
	}
	if gotEntries != numEntries {
		return nil, 0, fmt.Errorf("%w: entry count mismatch (header %d, info %d)", ErrCorruptCatalog, numEntries, gotEntries)
	}

	blockBytes := make([]byte, blockSize)
	if _, err := io.ReadFull(r, blockBytes); err != nil {
		return nil, 0, fmt.Errorf("%w: reading key blocks: %v", ErrCorruptCatalog, err)
	}
	entries, err := decodeKeyBlocks(blockBytes, slabs, h)
	if err != nil {
		return nil, 0, err
	}
	return entries, int64(numEntries), nil
}

// readKeyCatalogBrutal reconstructs the key-block-info section by
// scanning for its leading zlib magic (version >= 2.0) or the
// LZO-block tag (version < 2.0, a historical artifact of the original
// reader's heuristic) rather than trusting the declared sizes, which
// may be meaningless in malformed files. The resulting entry count
// becomes authoritative since no header field can be trusted here.
func readKeyCatalogBrutal(r io.ReadSeeker, h Header) ([]KeyEntry, int64, error) {
	width := h.NumberWidth()
	skip := width * 4
	if h.EngineVersion >= 2.0 {
		skip = width*5 + 4
	}
	if _, err := io.CopyN(io.Discard, r, int64(skip)); err != nil {
		return nil, 0, fmt.Errorf("%w: brutal-force scan past summary: %v", ErrCorruptCatalog, err)
	}

	var marker [4]byte
	if h.EngineVersion >= 2.0 {
		marker = [4]byte{2, 0, 0, 0}
	} else {
		marker = [4]byte{1, 0, 0, 0}
	}

	var info bytes.Buffer
	head := make([]byte, 8)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, 0, fmt.Errorf("%w: brutal-force scan: %v", ErrCorruptCatalog, err)
	}
	info.Write(head)

	chunk := make([]byte, 1024)
	for {
		fpos, err := r.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, 0, err
		}
		n, rerr := r.Read(chunk)
		if n > 0 {
			if idx := bytes.Index(chunk[:n], marker[:]); idx != -1 {
				info.Write(chunk[:idx])
				// Rewind so the key-block read below starts at the marker.
				if _, err := r.Seek(fpos+int64(idx), io.SeekStart); err != nil {
					return nil, 0, err
				}
				break
			}
			info.Write(chunk[:n])
		}
		if rerr != nil {
			return nil, 0, fmt.Errorf("%w: brutal-force scan ran off end of file: %v", ErrCorruptCatalog, rerr)
		}
	}

	slabs, _, err := decodeKeyBlockInfo(info.Bytes(), h)
	if err != nil {
		return nil, 0, err
	}

	var blockSize int64
	for _, s := range slabs {
		blockSize += s.compressedSize
	}
	blockBytes := make([]byte, blockSize)
	if _, err := io.ReadFull(r, blockBytes); err != nil {
		return nil, 0, fmt.Errorf("%w: reading key blocks (brutal force): %v", ErrCorruptCatalog, err)
	}
	entries, err := decodeKeyBlocks(blockBytes, slabs, h)
	if err != nil {
		return nil, 0, err
	}
	return entries, int64(len(entries)), nil
}

// decodeKeyBlockInfo parses the (possibly zlib-compressed) key-block-
// info section into a list of per-block (compressed, decompressed)
// sizes, returning the total entry count it declares.
func decodeKeyBlockInfo(raw []byte, h Header) ([]keyBlockSlab, uint64, error) {
	data := raw
	if h.EngineVersion >= 2.0 {
		if len(raw) < 8 || raw[0] != 2 || raw[1] != 0 || raw[2] != 0 || raw[3] != 0 {
			return nil, 0, fmt.Errorf("%w: key block info missing zlib marker", ErrCorruptCatalog)
		}
		checksum := uint32(raw[4])<<24 | uint32(raw[5])<<16 | uint32(raw[6])<<8 | uint32(raw[7])
		decoded, err := inflate(raw[8:])
		if err != nil {
			return nil, 0, err
		}
		if err := verifyAdler32(decoded, checksum); err != nil {
			return nil, 0, err
		}
		data = decoded
	}

	width := h.NumberWidth()
	byteWidth := 1
	textTerm := 0
	if h.EngineVersion >= 2.0 {
		byteWidth = 2
		textTerm = 1
	}
	term := textenc.UTF16TermLen(h.Encoding)

	var slabs []keyBlockSlab
	var numEntries uint64
	i := 0
	for i < len(data) {
		entries, err := readNumberFrom(data[i:], width)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrCorruptCatalog, err)
		}
		numEntries += entries
		i += width

		headSize, err := readFixedWidth(data, i, byteWidth)
		if err != nil {
			return nil, 0, err
		}
		i += byteWidth
		i += headSizeBytes(int(headSize), textTerm, term)

		tailSize, err := readFixedWidth(data, i, byteWidth)
		if err != nil {
			return nil, 0, err
		}
		i += byteWidth
		i += headSizeBytes(int(tailSize), textTerm, term)

		compSize, err := readNumberFrom(data[i:], width)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrCorruptCatalog, err)
		}
		i += width
		decompSize, err := readNumberFrom(data[i:], width)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrCorruptCatalog, err)
		}
		i += width

		slabs = append(slabs, keyBlockSlab{compressedSize: int64(compSize), decompressedSize: int64(decompSize)})
	}
	return slabs, numEntries, nil
}

func readFixedWidth(data []byte, i, width int) (uint64, error) {
	if i < 0 || i+width > len(data) {
		return 0, fmt.Errorf("%w: truncated text-size field", ErrCorruptCatalog)
	}
	var v uint64
	for _, b := range data[i : i+width] {
		v = v<<8 | uint64(b)
	}
	return v, nil
}

// headSizeBytes computes the byte span of a text-head/tail field given
// its declared character count, the terminator width in characters
// (0 for version < 2.0, 1 otherwise), and the per-character byte width
// of the catalog's encoding (1 normally, 2 for UTF-16).
func headSizeBytes(size, textTerm, charWidth int) int {
	return (size + textTerm) * charWidth
}

// decodeKeyBlocks walks the concatenated compressed key-block slabs,
// decompressing and splitting each into (record offset, headword)
// pairs.
func decodeKeyBlocks(raw []byte, slabs []keyBlockSlab, h Header) ([]KeyEntry, error) {
	var out []KeyEntry
	pos := 0
	for _, s := range slabs {
		end := pos + int(s.compressedSize)
		if end > len(raw) {
			return nil, fmt.Errorf("%w: key block slab runs past buffer", ErrCorruptCatalog)
		}
		decoded, _, err := decompressBlock(raw[pos:end])
		if err != nil {
			return nil, err
		}
		entries, err := splitKeyBlock(decoded, h)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
		pos = end
	}
	return out, nil
}

// splitKeyBlock splits one decompressed key block into its
// (record offset, headword) entries. Each entry begins with a
// fixed-width record offset, followed by the headword text terminated
// by a NUL (or double-NUL under UTF-16).
func splitKeyBlock(block []byte, h Header) ([]KeyEntry, error) {
	width := h.NumberWidth()
	termWidth := textenc.UTF16TermLen(h.Encoding)

	var out []KeyEntry
	i := 0
	for i < len(block) {
		recordStart, err := readNumberFrom(block[i:], width)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptCatalog, err)
		}
		i += width

		textStart := i
		found := false
		for i < len(block) {
			if isTerminator(block[i:], termWidth) {
				found = true
				break
			}
			i += termWidth
		}
		if !found {
			return nil, fmt.Errorf("%w: unterminated key text", ErrCorruptCatalog)
		}
		keyText := strings.TrimSpace(textenc.Decode(block[textStart:i], h.Encoding))
		i += termWidth

		out = append(out, KeyEntry{RecordStart: int64(recordStart), KeyText: keyText})
	}
	return out, nil
}

func isTerminator(b []byte, width int) bool {
	if len(b) < width {
		return false
	}
	for _, c := range b[:width] {
		if c != 0 {
			return false
		}
	}
	return true
}
