package storage

import (
	"errors"
	"fmt"
	"io"

	"github.com/tuannm99/novaloop/internal/alias/util"
)

// StorageManager maps a logical pageID -> (segment, offset).
type StorageManager struct{}

func NewStorageManager() *StorageManager {
	return &StorageManager{}
}

func (sm *StorageManager) locate(pageID uint32) (segNo int32, offset int64) {
	segNo = int32(pageID / MaxPagePerSegment)
	offset = int64(pageID%MaxPagePerSegment) * PageSize
	return segNo, offset
}

// ReadPage reads exactly one page into dst. Bytes past the end of the
// segment read as zero, so pages can be created lazily. An in-memory
// segment reports a read past its end as io.ErrUnexpectedEOF.
func (sm *StorageManager) ReadPage(fs FileSet, pageID uint32, dst []byte) error {
	if len(dst) != PageSize {
		return fmt.Errorf("%w: dst must be exactly %d bytes", ErrStorageIO, PageSize)
	}
	segNo, off := sm.locate(pageID)
	f, err := fs.OpenSegment(segNo)
	if err != nil {
		return err
	}
	defer util.CloseQuietly(f, "segment")

	n, err := f.ReadAt(dst, off)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return err
	}
	clear(dst[n:])
	return nil
}

// WritePage writes exactly one page at the location of pageID.
func (sm *StorageManager) WritePage(fs FileSet, pageID uint32, src []byte) error {
	if len(src) != PageSize {
		return fmt.Errorf("%w: src must be exactly %d bytes", ErrStorageIO, PageSize)
	}
	segNo, off := sm.locate(pageID)
	f, err := fs.OpenSegment(segNo)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	n, err := f.WriteAt(src, off)
	if err != nil {
		return err
	}
	if n != PageSize {
		return io.ErrShortWrite
	}
	return nil
}

// LoadPage reads a page; an all-zero page is initialized with pageID.
func (sm *StorageManager) LoadPage(fs FileSet, pageID uint32) (*Page, error) {
	buf := make([]byte, PageSize)
	if err := sm.ReadPage(fs, pageID, buf); err != nil {
		return nil, err
	}
	p := &Page{Buf: buf}
	if p.IsUninitialized() {
		p.init(pageID)
	}
	return p, nil
}

func (sm *StorageManager) SavePage(fs FileSet, p *Page) error {
	return sm.WritePage(fs, p.PageID(), p.Buf)
}

// CountPages sums the pages of all consecutive segments. It stats files
// instead of opening them, so counting never creates a segment.
func (sm *StorageManager) CountPages(fs FileSet) (uint32, error) {
	var total uint32
	for segNo := int32(0); ; segNo++ {
		size, ok, err := fs.StatSegment(segNo)
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		total += uint32(size / PageSize)
	}
	return total, nil
}
