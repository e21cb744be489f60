package storage

import (
	"errors"
)

const (
	OneB  = 1 << 0  // 1
	OneKB = 1 << 10 // 1,024
	OneMB = 1 << 20 // 1,048,576
	OneGB = 1 << 30 // 1,073,741,824

	SegmentSize       = 1 << 30                // 1 GiB
	PageSize          = 1 << 13                // 8 KiB
	MaxPagePerSegment = SegmentSize / PageSize // 131,072 pages/segment
	HeaderSize        = 12                     // flags, pageID, lower, upper, special
	SlotSize          = 6                      // 3 * uint16: offset, length, flags

	// MaxInlineTuple is the largest tuple stored directly on a page.
	MaxInlineTuple = PageSize - HeaderSize - SlotSize
)

const (
	FileMode0644 = 0o644
	FileMode0755 = 0o755
)

var (
	ErrStorageIO     = errors.New("storage: I/O error")
	ErrPageCorrupted = errors.New("storage: page is corrupted")
)
