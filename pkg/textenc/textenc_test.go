package textenc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	require.Equal(t, "UTF-8", Normalize(""))
	require.Equal(t, "GB18030", Normalize("gbk"))
	require.Equal(t, "GB18030", Normalize("GB2312"))
	require.Equal(t, "UTF-16LE", Normalize(" utf-16le "))
	require.Equal(t, "BIG5", Normalize("big5"))
}

func TestUTF16TermLen(t *testing.T) {
	require.Equal(t, 2, UTF16TermLen("UTF-16LE"))
	require.Equal(t, 1, UTF16TermLen("UTF-8"))
	require.Equal(t, 1, UTF16TermLen("GBK"))
}

func TestDecodeUTF8Passthrough(t *testing.T) {
	require.Equal(t, "hello", Decode([]byte("hello"), "UTF-8"))
}

func TestDecodeUTF16LE(t *testing.T) {
	// "hi" encoded as UTF-16LE.
	b := []byte{'h', 0, 'i', 0}
	require.Equal(t, "hi", Decode(b, "UTF-16LE"))
}

func TestDecodeUnknownEncodingFallsBackToRawBytes(t *testing.T) {
	require.Equal(t, "raw", Decode([]byte("raw"), "WEIRD-ENCODING"))
}
