package container

import (
	"encoding/binary"
	"fmt"
	"io"
)

// readNumber reads a big-endian unsigned integer of the given width (4
// or 8 bytes, per Header.NumberWidth) from r.
func readNumber(r io.Reader, width int) (uint64, error) {
	switch width {
	case 4:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		return uint64(binary.BigEndian.Uint32(buf[:])), nil
	case 8:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		return binary.BigEndian.Uint64(buf[:]), nil
	default:
		return 0, fmt.Errorf("container: unsupported number width %d", width)
	}
}

// readNumberFrom decodes a big-endian unsigned integer of the given
// width from the head of b. The caller advances past the width bytes
// itself.
func readNumberFrom(b []byte, width int) (uint64, error) {
	if len(b) < width {
		return 0, io.ErrUnexpectedEOF
	}
	switch width {
	case 4:
		return uint64(binary.BigEndian.Uint32(b[:4])), nil
	case 8:
		return binary.BigEndian.Uint64(b[:8]), nil
	default:
		return 0, fmt.Errorf("container: unsupported number width %d", width)
	}
}
