package container

import (
	"fmt"
	"io"
)

// recordSlab is one entry of the record-block catalog: the compressed
// and decompressed size of one record block, in file order.
type recordSlab struct {
	compressedSize   int64
	decompressedSize int64
}

// recordCatalog is the parsed record-block catalog: the ordered list
// of slabs plus the file offset at which the first slab begins.
type recordCatalog struct {
	slabs      []recordSlab
	dataOffset int64
}

// readRecordCatalog reads the record-block catalog starting at the
// current position of r (immediately after the key blocks) and
// cross-checks its declared entry count against numEntries, the count
// already established by the key catalog.
func readRecordCatalog(r io.ReadSeeker, h Header, numEntries int64) (recordCatalog, error) {
	width := h.NumberWidth()

	numRecordBlocks, err := readNumber(r, width)
	if err != nil {
		return recordCatalog{}, fmt.Errorf("%w: reading record catalog summary: %v", ErrCorruptCatalog, err)
	}
	gotEntries, err := readNumber(r, width)
	if err != nil {
		return recordCatalog{}, fmt.Errorf("%w: reading record catalog summary: %v", ErrCorruptCatalog, err)
	}
	if int64(gotEntries) != numEntries {
		return recordCatalog{}, fmt.Errorf("%w: record catalog entry count %d does not match key catalog count %d", ErrCorruptCatalog, gotEntries, numEntries)
	}
	infoSize, err := readNumber(r, width)
	if err != nil {
		return recordCatalog{}, fmt.Errorf("%w: reading record catalog summary: %v", ErrCorruptCatalog, err)
	}
	if _, err := readNumber(r, width); err != nil { // total record block size, unused
		return recordCatalog{}, fmt.Errorf("%w: reading record catalog summary: %v", ErrCorruptCatalog, err)
	}

	slabs := make([]recordSlab, 0, numRecordBlocks)
	var sizeCounter int64
	for i := uint64(0); i < numRecordBlocks; i++ {
		comp, err := readNumber(r, width)
		if err != nil {
			return recordCatalog{}, fmt.Errorf("%w: reading record slab %d: %v", ErrCorruptCatalog, i, err)
		}
		decomp, err := readNumber(r, width)
		if err != nil {
			return recordCatalog{}, fmt.Errorf("%w: reading record slab %d: %v", ErrCorruptCatalog, i, err)
		}
		slabs = append(slabs, recordSlab{compressedSize: int64(comp), decompressedSize: int64(decomp)})
		sizeCounter += int64(width) * 2
	}
	if sizeCounter != int64(infoSize) {
		return recordCatalog{}, fmt.Errorf("%w: record catalog info size mismatch (declared %d, computed %d)", ErrCorruptCatalog, infoSize, sizeCounter)
	}

	dataOffset, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return recordCatalog{}, err
	}

	return recordCatalog{slabs: slabs, dataOffset: dataOffset}, nil
}
