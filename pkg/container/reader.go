package container

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Entry is one fully resolved key/record pairing: a headword plus
// everything needed to seek to, decompress, and slice its record bytes
// out of the record-block catalog without re-walking the file.
type Entry struct {
	KeyText          string
	FilePos          int64
	CompressedSize   int64
	DecompressedSize int64
	RecordBlockType  BlockType
	RecordStart      int64
	RecordEnd        int64
	Offset           int64
}

// Reader is an open MDX or MDD container. It holds the file open for
// the lifetime of random-access record reads; callers should Close it
// when done.
type Reader struct {
	f      *os.File
	Header Header
	// Entries is ordered by RecordStart, the order keys appear in the
	// key blocks, which is also file/record order.
	Entries []Entry
}

// Open parses the header and both catalogs of the MDX/MDD file at
// path. It does not read or decompress record bodies; use WalkRecords
// or ReadRecord for that.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	mdd := strings.EqualFold(filepath.Ext(path), ".mdd")
	r, err := newReader(f, mdd)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func newReader(f *os.File, mdd bool) (*Reader, error) {
	h, _, err := readHeader(f)
	if err != nil {
		return nil, err
	}
	// MDD resource keys and records are UTF-16LE regardless of what the
	// header declares.
	if mdd {
		h.Encoding = "UTF-16LE"
	}

	keys, numEntries, err := readKeyCatalog(f, h)
	if err != nil {
		return nil, err
	}
	// Key entries must be in ascending RecordStart order for the
	// offset/record-end bookkeeping below; the format guarantees this
	// but a brutal-force recovery is not bound by it.
	sort.SliceStable(keys, func(i, j int) bool { return keys[i].RecordStart < keys[j].RecordStart })

	cat, err := readRecordCatalog(f, h, numEntries)
	if err != nil {
		return nil, err
	}

	entries, err := resolveEntries(keys, cat)
	if err != nil {
		return nil, err
	}

	return &Reader{f: f, Header: h, Entries: entries}, nil
}

// resolveEntries walks the record-block catalog alongside the ordered
// key list, assigning each key its containing slab's file position,
// sizes and compression type, and deriving RecordEnd from the next
// key's RecordStart (or the final slab's end, for the last key).
func resolveEntries(keys []KeyEntry, cat recordCatalog) ([]Entry, error) {
	entries := make([]Entry, 0, len(keys))
	filePos := cat.dataOffset
	var cumOffset int64

	slabIdx := 0
	for ki, key := range keys {
		for slabIdx < len(cat.slabs) && key.RecordStart-cumOffset >= cat.slabs[slabIdx].decompressedSize {
			filePos += cat.slabs[slabIdx].compressedSize
			cumOffset += cat.slabs[slabIdx].decompressedSize
			slabIdx++
		}
		if slabIdx >= len(cat.slabs) {
			return nil, fmt.Errorf("%w: key %q has no containing record block", ErrCorruptCatalog, key.KeyText)
		}
		slab := cat.slabs[slabIdx]

		var recordEnd int64
		if ki < len(keys)-1 {
			recordEnd = keys[ki+1].RecordStart
		} else {
			recordEnd = cumOffset + slab.decompressedSize
		}

		entries = append(entries, Entry{
			KeyText:          key.KeyText,
			FilePos:          filePos,
			CompressedSize:   slab.compressedSize,
			DecompressedSize: slab.decompressedSize,
			RecordBlockType:  0, // filled in from the block tag by WalkRecords
			RecordStart:      key.RecordStart,
			RecordEnd:        recordEnd,
			Offset:           cumOffset,
		})
	}
	return entries, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	return r.f.Close()
}

// ReadRecord reads, decompresses and slices out the record bytes for
// one entry with a positioned read at the entry's block offset. It
// does not move the file cursor, so concurrent calls on the same
// Reader are safe.
func (r *Reader) ReadRecord(e Entry) ([]byte, error) {
	raw := make([]byte, e.CompressedSize)
	if _, err := r.f.ReadAt(raw, e.FilePos); err != nil {
		return nil, fmt.Errorf("%w: reading record block at %d: %v", ErrCorruptBlock, e.FilePos, err)
	}
	decoded, _, err := decompressBlock(raw)
	if err != nil {
		return nil, err
	}
	if int64(len(decoded)) != e.DecompressedSize {
		return nil, fmt.Errorf("%w: record block size mismatch (declared %d, got %d)", ErrCorruptBlock, e.DecompressedSize, len(decoded))
	}
	lo := e.RecordStart - e.Offset
	hi := e.RecordEnd - e.Offset
	if hi > int64(len(decoded)) {
		hi = int64(len(decoded)) // a key whose successor starts in a later block may end past its own block
	}
	if lo < 0 || lo > hi {
		return nil, fmt.Errorf("%w: record slice [%d:%d] out of bounds (block size %d)", ErrCorruptBlock, lo, hi, len(decoded))
	}
	return decoded[lo:hi], nil
}

// WalkRecords visits every entry in file order, decompressing each
// underlying record block at most once and handing every entry that
// falls inside it to fn along with its sliced record bytes. Building a
// persistent index should use this instead of repeated ReadRecord
// calls, which would redecompress shared blocks once per key.
func (r *Reader) WalkRecords(fn func(Entry, []byte) error) error {
	if len(r.Entries) == 0 {
		return nil
	}
	if _, err := r.f.Seek(r.Entries[0].FilePos, 0); err != nil {
		return err
	}

	i := 0
	for i < len(r.Entries) {
		blockFilePos := r.Entries[i].FilePos
		blockCompSize := r.Entries[i].CompressedSize
		blockDecompSize := r.Entries[i].DecompressedSize

		if _, err := r.f.Seek(blockFilePos, 0); err != nil {
			return err
		}
		raw := make([]byte, blockCompSize)
		if _, err := io.ReadFull(r.f, raw); err != nil {
			return fmt.Errorf("%w: reading record block at %d: %v", ErrCorruptBlock, blockFilePos, err)
		}
		decoded, typ, err := decompressBlock(raw)
		if err != nil {
			return err
		}
		if int64(len(decoded)) != blockDecompSize {
			return fmt.Errorf("%w: record block size mismatch (declared %d, got %d)", ErrCorruptBlock, blockDecompSize, len(decoded))
		}

		for i < len(r.Entries) && r.Entries[i].FilePos == blockFilePos {
			e := r.Entries[i]
			e.RecordBlockType = typ
			lo := e.RecordStart - e.Offset
			hi := e.RecordEnd - e.Offset
			if hi > int64(len(decoded)) {
				hi = int64(len(decoded))
			}
			if lo < 0 || lo > hi {
				return fmt.Errorf("%w: record slice [%d:%d] out of bounds (block size %d)", ErrCorruptBlock, lo, hi, len(decoded))
			}
			if err := fn(e, decoded[lo:hi]); err != nil {
				return err
			}
			i++
		}
	}
	return nil
}
