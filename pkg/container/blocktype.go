package container

import "fmt"

// BlockType identifies the compression scheme of a key or record block,
// taken from the 4-byte tag at the start of its compressed form.
type BlockType uint32

const (
	BlockStored BlockType = 0
	BlockLZO    BlockType = 1
	BlockZlib   BlockType = 2
)

func blockTypeFromTag(tag [4]byte) (BlockType, error) {
	switch tag {
	case [4]byte{0, 0, 0, 0}:
		return BlockStored, nil
	case [4]byte{1, 0, 0, 0}:
		return BlockLZO, nil
	case [4]byte{2, 0, 0, 0}:
		return BlockZlib, nil
	default:
		return 0, fmt.Errorf("%w: tag %x", ErrUnsupportedCompression, tag)
	}
}

func (t BlockType) String() string {
	switch t {
	case BlockStored:
		return "stored"
	case BlockLZO:
		return "lzo"
	case BlockZlib:
		return "zlib"
	default:
		return fmt.Sprintf("blocktype(%d)", uint32(t))
	}
}
