package container

import "errors"

// Sentinel errors for container-format failures. Callers use
// errors.Is against these to distinguish a truncated/corrupt file from
// an explicitly unsupported compression scheme.
var (
	ErrCorruptHeader          = errors.New("mdict: corrupt header")
	ErrCorruptCatalog         = errors.New("mdict: corrupt key or record catalog")
	ErrCorruptBlock           = errors.New("mdict: corrupt compressed block")
	ErrUnsupportedCompression = errors.New("mdict: unsupported compression type")
	ErrLZOUnsupported         = errors.New("mdict: LZO-compressed blocks are not supported")
)
