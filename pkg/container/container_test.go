package container

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"hash/adler32"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// mdxEntry is one headword/record pair used to build a synthetic MDX
// file for tests.
type mdxEntry struct {
	Key    string
	Record string
}

// buildMDX assembles a minimal but bit-exact engine-version-2.0,
// UTF-8, single-key-block, single-record-block MDX file, close enough
// to the real format to exercise the real parser end to end without
// needing a real MDX fixture on disk.
func buildMDX(t *testing.T, entries []mdxEntry) []byte {
	t.Helper()

	var buf bytes.Buffer

	headerText := `<Dict GeneratedByEngineVersion="2.0" Encoding="UTF-8" Title="Test" Description="A test dictionary"/>`
	headerBytes := utf16leBytes(headerText + "\x00")
	binary.Write(&buf, binary.BigEndian, uint32(len(headerBytes)))
	buf.Write(headerBytes)
	var adlerBuf [4]byte
	binary.LittleEndian.PutUint32(adlerBuf[:], adler32.Checksum(headerBytes))
	buf.Write(adlerBuf[:])

	// Build the decompressed key block: one (recordStart, keyText)
	// entry per input, NUL-terminated, record offsets equal to the
	// cumulative byte offset of each record within the concatenated
	// record stream.
	var keyBlockDecompressed bytes.Buffer
	var recordStream bytes.Buffer
	for _, e := range entries {
		var off [8]byte
		binary.BigEndian.PutUint64(off[:], uint64(recordStream.Len()))
		keyBlockDecompressed.Write(off[:])
		keyBlockDecompressed.WriteString(e.Key)
		keyBlockDecompressed.WriteByte(0)
		recordStream.WriteString(e.Record)
	}

	keyBlockSlab := storedSlab(keyBlockDecompressed.Bytes())

	// Key-block-info section: one slab descriptor for our single key
	// block, wrapped in the version>=2.0 zlib envelope.
	var info bytes.Buffer
	var n8 [8]byte
	binary.BigEndian.PutUint64(n8[:], uint64(len(entries)))
	info.Write(n8[:]) // entries in this block

	var n2 [2]byte
	binary.BigEndian.PutUint16(n2[:], 0)
	info.Write(n2[:]) // head text size
	info.WriteByte(0) // head terminator (UTF-8: 1 byte)
	info.Write(n2[:]) // tail text size
	info.WriteByte(0) // tail terminator

	binary.BigEndian.PutUint64(n8[:], uint64(len(keyBlockSlab)))
	info.Write(n8[:]) // compressed size
	binary.BigEndian.PutUint64(n8[:], uint64(keyBlockDecompressed.Len()))
	info.Write(n8[:]) // decompressed size

	infoCompressed := zlibCompress(info.Bytes())
	var infoSection bytes.Buffer
	infoSection.Write([]byte{2, 0, 0, 0})
	var infoAdler [4]byte
	binary.BigEndian.PutUint32(infoAdler[:], adler32.Checksum(info.Bytes()))
	infoSection.Write(infoAdler[:])
	infoSection.Write(infoCompressed)

	// Key catalog summary: numKeyBlocks, numEntries, decompSize(unused),
	// infoSize, blockSize, then its own adler32.
	var summary bytes.Buffer
	binary.Write(&summary, binary.BigEndian, uint64(1))
	binary.Write(&summary, binary.BigEndian, uint64(len(entries)))
	binary.Write(&summary, binary.BigEndian, uint64(info.Len()))
	binary.Write(&summary, binary.BigEndian, uint64(infoSection.Len()))
	binary.Write(&summary, binary.BigEndian, uint64(len(keyBlockSlab)))
	buf.Write(summary.Bytes())
	var summaryAdler [4]byte
	binary.BigEndian.PutUint32(summaryAdler[:], adler32.Checksum(summary.Bytes()))
	buf.Write(summaryAdler[:])

	buf.Write(infoSection.Bytes())
	buf.Write(keyBlockSlab)

	// Record catalog: one record block holding the whole concatenated
	// record stream.
	recordSlab := storedSlab(recordStream.Bytes())
	binary.Write(&buf, binary.BigEndian, uint64(1))             // num record blocks
	binary.Write(&buf, binary.BigEndian, uint64(len(entries)))  // num entries
	binary.Write(&buf, binary.BigEndian, uint64(16))            // record info size (one 8+8 pair)
	binary.Write(&buf, binary.BigEndian, uint64(len(recordSlab))) // total record block size
	binary.Write(&buf, binary.BigEndian, uint64(len(recordSlab)))
	binary.Write(&buf, binary.BigEndian, uint64(recordStream.Len()))
	buf.Write(recordSlab)

	return buf.Bytes()
}

func storedSlab(payload []byte) []byte {
	var b bytes.Buffer
	b.Write([]byte{0, 0, 0, 0})
	var a [4]byte
	binary.BigEndian.PutUint32(a[:], adler32.Checksum(payload))
	b.Write(a[:])
	b.Write(payload)
	return b.Bytes()
}

func zlibCompress(b []byte) []byte {
	var out bytes.Buffer
	w := zlib.NewWriter(&out)
	w.Write(b)
	w.Close()
	return out.Bytes()
}

func utf16leBytes(s string) []byte {
	var out []byte
	for _, r := range s {
		if r > 0xFFFF {
			r = '?'
		}
		out = append(out, byte(r), byte(r>>8))
	}
	return out
}

func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.mdx")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestOpenAndReadSingleEntry(t *testing.T) {
	data := buildMDX(t, []mdxEntry{{Key: "dedication", Record: "abc"}})
	path := writeTempFile(t, data)

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, "UTF-8", r.Header.Encoding)
	require.Equal(t, "Test", r.Header.Title)
	require.Len(t, r.Entries, 1)
	require.Equal(t, "dedication", r.Entries[0].KeyText)

	got, err := r.ReadRecord(r.Entries[0])
	require.NoError(t, err)
	require.Equal(t, "abc", string(got))
}

func TestOpenMultipleEntriesAndMonotonicOffsets(t *testing.T) {
	data := buildMDX(t, []mdxEntry{
		{Key: "apple", Record: "a fruit"},
		{Key: "banana", Record: "a yellow fruit"},
		{Key: "cherry", Record: "a small fruit"},
	})
	path := writeTempFile(t, data)

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	require.Len(t, r.Entries, 3)
	for i := 1; i < len(r.Entries); i++ {
		require.Less(t, r.Entries[i-1].RecordStart, r.Entries[i].RecordStart)
	}
	for _, e := range r.Entries {
		require.LessOrEqual(t, e.Offset, e.RecordStart)
		require.Less(t, e.RecordStart, e.RecordEnd)
		require.LessOrEqual(t, e.RecordEnd, e.Offset+e.DecompressedSize)
	}

	want := map[string]string{"apple": "a fruit", "banana": "a yellow fruit", "cherry": "a small fruit"}
	for _, e := range r.Entries {
		got, err := r.ReadRecord(e)
		require.NoError(t, err)
		require.Equal(t, want[e.KeyText], string(got))
	}
}

func TestEntryCountMatchesKeyList(t *testing.T) {
	entries := []mdxEntry{{Key: "one", Record: "1"}, {Key: "two", Record: "2"}}
	data := buildMDX(t, entries)
	path := writeTempFile(t, data)

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, len(entries), len(r.Entries))
}

func TestWalkRecordsVisitsEveryEntryOnce(t *testing.T) {
	data := buildMDX(t, []mdxEntry{
		{Key: "x", Record: "first"},
		{Key: "y", Record: "second"},
	})
	path := writeTempFile(t, data)

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	seen := map[string]string{}
	err = r.WalkRecords(func(e Entry, rec []byte) error {
		seen[e.KeyText] = string(rec)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"x": "first", "y": "second"}, seen)
}

func TestHeaderChecksumMismatchFails(t *testing.T) {
	data := buildMDX(t, []mdxEntry{{Key: "a", Record: "b"}})
	// Flip a byte inside the header's adler32 field.
	headerLen := binary.BigEndian.Uint32(data[:4])
	adlerOffset := 4 + int(headerLen)
	data[adlerOffset] ^= 0xFF

	path := writeTempFile(t, data)
	_, err := Open(path)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrCorruptHeader)
}

func TestLZOBlockTypeRejected(t *testing.T) {
	raw := append([]byte{1, 0, 0, 0, 0, 0, 0, 0}, []byte("whatever")...)
	_, _, err := decompressBlock(raw)
	require.ErrorIs(t, err, ErrLZOUnsupported)
}

func TestUnknownCompressionTagRejected(t *testing.T) {
	raw := append([]byte{9, 0, 0, 0, 0, 0, 0, 0}, []byte("whatever")...)
	_, _, err := decompressBlock(raw)
	require.ErrorIs(t, err, ErrUnsupportedCompression)
}

func TestRecordBlockAdlerMismatchFails(t *testing.T) {
	data := buildMDX(t, []mdxEntry{{Key: "only", Record: "payload"}})
	// Corrupt the last byte of the record payload so its checksum no
	// longer matches the embedded Adler-32.
	data[len(data)-1] ^= 0xFF

	path := writeTempFile(t, data)
	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.ReadRecord(r.Entries[0])
	require.ErrorIs(t, err, ErrCorruptBlock)
}
