package dictionary

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/binary"
	"fmt"
	"hash/adler32"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type mdxEntry struct {
	Key    string
	Record string
}

// buildMDX assembles a minimal engine-version-2.0, UTF-8,
// single-key-block, single-record-block MDX file with the given
// header attributes and entries, mirroring pkg/container's own test
// fixture builder so dictionary-level behavior (link resolution,
// stylesheet substitution, lemma fallback) can be exercised against a
// real container.Reader without a fixture file on disk.
func buildMDX(t *testing.T, headerAttrs string, entries []mdxEntry) []byte {
	t.Helper()

	var buf bytes.Buffer

	headerText := `<Dict GeneratedByEngineVersion="2.0" Encoding="UTF-8" Title="Test"` + headerAttrs + `/>`
	headerBytes := utf16leBytes(headerText + "\x00")
	binary.Write(&buf, binary.BigEndian, uint32(len(headerBytes)))
	buf.Write(headerBytes)
	var adlerBuf [4]byte
	binary.LittleEndian.PutUint32(adlerBuf[:], adler32.Checksum(headerBytes))
	buf.Write(adlerBuf[:])

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

	var info bytes.Buffer
	var n8 [8]byte
	binary.BigEndian.PutUint64(n8[:], uint64(len(entries)))
	info.Write(n8[:])
	var n2 [2]byte
	info.Write(n2[:])
	info.WriteByte(0)
	info.Write(n2[:])
	info.WriteByte(0)
	binary.BigEndian.PutUint64(n8[:], uint64(len(keyBlockSlab)))
	info.Write(n8[:])
	binary.BigEndian.PutUint64(n8[:], uint64(keyBlockDecompressed.Len()))
	info.Write(n8[:])

	infoCompressed := zlibCompress(info.Bytes())
	var infoSection bytes.Buffer
	infoSection.Write([]byte{2, 0, 0, 0})
	var infoAdler [4]byte
	binary.BigEndian.PutUint32(infoAdler[:], adler32.Checksum(info.Bytes()))
	infoSection.Write(infoAdler[:])
	infoSection.Write(infoCompressed)

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

	recordSlab := storedSlab(recordStream.Bytes())
	binary.Write(&buf, binary.BigEndian, uint64(1))
	binary.Write(&buf, binary.BigEndian, uint64(len(entries)))
	binary.Write(&buf, binary.BigEndian, uint64(16))
	binary.Write(&buf, binary.BigEndian, uint64(len(recordSlab)))
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

func writeMDX(t *testing.T, headerAttrs string, entries []mdxEntry) string {
	t.Helper()
	data := buildMDX(t, headerAttrs, entries)
	path := filepath.Join(t.TempDir(), "test.mdx")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLookupTextBasic(t *testing.T) {
	path := writeMDX(t, "", []mdxEntry{{Key: "dedication", Record: "an act of devotion"}})

	d, err := Open("test", "Test", path, Options{})
	require.NoError(t, err)
	defer d.Close()

	html, err := d.LookupText(context.Background(), "dedication")
	require.NoError(t, err)
	require.Equal(t, "an act of devotion", html)
}

func TestLookupTextSubstitutesStylesheet(t *testing.T) {
	// StyleSheet attribute format: number\nprefix\nsuffix, repeated.
	headerAttrs := " StyleSheet=\"1\n<b>\n</b>\""
	path := writeMDX(t, headerAttrs, []mdxEntry{{Key: "hello", Record: "hello `1`world`1`\n"}})

	d, err := Open("test", "Test", path, Options{})
	require.NoError(t, err)
	defer d.Close()

	html, err := d.LookupText(context.Background(), "hello")
	require.NoError(t, err)
	// The trailing `1` tag re-applies style 1 to the record's final
	// "\n", producing an empty wrapped fragment; style tags mark "from
	// here to the next tag", not open/close pairs.
	require.Equal(t, "hello <b>world</b><b></b>", html)
}

func TestLookupTextResolvesRedirectLink(t *testing.T) {
	path := writeMDX(t, "", []mdxEntry{
		{Key: "color", Record: "@@@LINK=colour"},
		{Key: "colour", Record: "a hue"},
	})

	d, err := Open("test", "Test", path, Options{})
	require.NoError(t, err)
	defer d.Close()

	html, err := d.LookupText(context.Background(), "color")
	require.NoError(t, err)
	require.Equal(t, "a hue", html)
}

func TestLookupTextLemmaFallback(t *testing.T) {
	path := writeMDX(t, "", []mdxEntry{{Key: "jump", Record: "move upward suddenly"}})

	d, err := Open("test", "Test", path, Options{})
	require.NoError(t, err)
	defer d.Close()

	html, err := d.LookupText(context.Background(), "jumped")
	require.NoError(t, err)
	require.Equal(t, "move upward suddenly", html)
}

func TestLookupTextNotFound(t *testing.T) {
	path := writeMDX(t, "", []mdxEntry{{Key: "only", Record: "x"}})

	d, err := Open("test", "Test", path, Options{})
	require.NoError(t, err)
	defer d.Close()

	_, err = d.LookupText(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFilesystemFallbackRejectsPathEscape(t *testing.T) {
	path := writeMDX(t, "", []mdxEntry{{Key: "a", Record: "b"}})

	d, err := Open("test", "Test", path, Options{})
	require.NoError(t, err)
	defer d.Close()

	_, err = d.FilesystemFallback("../../etc/passwd")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLinkChainExceedingDepthFails(t *testing.T) {
	const chainLen = 9
	entries := make([]mdxEntry, 0, chainLen+1)
	for i := 0; i < chainLen; i++ {
		entries = append(entries, mdxEntry{
			Key:    fmt.Sprintf("a%d", i),
			Record: fmt.Sprintf("@@@LINK=a%d", i+1),
		})
	}
	entries = append(entries, mdxEntry{Key: fmt.Sprintf("a%d", chainLen), Record: "final"})

	path := writeMDX(t, "", entries)
	d, err := Open("test", "Test", path, Options{MaxLinkDepth: 3})
	require.NoError(t, err)
	defer d.Close()

	_, err = d.LookupText(context.Background(), "a0")
	require.Error(t, err)
}
