package container

import (
	"bytes"
	"fmt"
	"hash/adler32"
	"io"

	"github.com/klauspost/compress/zlib"
)

// inflate decompresses a zlib stream in its entirety.
func inflate(b []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: zlib header: %v", ErrCorruptBlock, err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: zlib stream: %v", ErrCorruptBlock, err)
	}
	return out, nil
}

// verifyAdler32 checks that want matches the Adler-32 checksum of data,
// returning ErrCorruptBlock on mismatch.
func verifyAdler32(data []byte, want uint32) error {
	if got := adler32.Checksum(data); got != want {
		return fmt.Errorf("%w: adler32 mismatch (want %x, got %x)", ErrCorruptBlock, want, got)
	}
	return nil
}

// decompressBlock strips the 4-byte type tag + 4-byte Adler-32 header
// shared by key and record blocks and returns the decompressed payload,
// verifying the Adler-32 checksum against it (for stored blocks the
// payload is the raw bytes after the header).
func decompressBlock(raw []byte) ([]byte, BlockType, error) {
	if len(raw) < 8 {
		return nil, 0, fmt.Errorf("%w: block shorter than header", ErrCorruptBlock)
	}
	var tag [4]byte
	copy(tag[:], raw[:4])
	typ, err := blockTypeFromTag(tag)
	if err != nil {
		return nil, typ, err
	}
	checksum := uint32(raw[4])<<24 | uint32(raw[5])<<16 | uint32(raw[6])<<8 | uint32(raw[7])
	payload := raw[8:]

	switch typ {
	case BlockStored:
		if err := verifyAdler32(payload, checksum); err != nil {
			return nil, typ, err
		}
		return payload, typ, nil
	case BlockLZO:
		return nil, typ, fmt.Errorf("%w", ErrLZOUnsupported)
	case BlockZlib:
		decoded, err := inflate(payload)
		if err != nil {
			return nil, typ, err
		}
		if err := verifyAdler32(decoded, checksum); err != nil {
			return nil, typ, err
		}
		return decoded, typ, nil
	default:
		return nil, typ, fmt.Errorf("%w: tag %x", ErrUnsupportedCompression, tag)
	}
}
