package heap

import (
	"errors"

	"github.com/tuannm99/novaloop/internal/storage"
)

// HeapPage wraps a Page with the table's overflow manager, so callers see
// whole tuples whether they are stored inline or in an overflow chain.
type HeapPage struct {
	Page     *storage.Page
	Overflow *storage.OverflowManager
}

// InsertTuple stores data inline when it fits the page, otherwise writes an
// overflow chain and stores its reference. ErrNoSpace means "try the next
// page".
func (hp HeapPage) InsertTuple(data []byte) (int, error) {
	if len(data) <= storage.MaxInlineTuple {
		slot, err := hp.Page.InsertTuple(data, storage.SlotFlagNormal)
		if !errors.Is(err, storage.ErrTupleTooLarge) {
			return slot, err
		}
	}
	if hp.Overflow == nil {
		return -1, storage.ErrTupleTooLarge
	}
	if hp.Page.FreeSpace() < storage.OverflowRefSize+storage.SlotSize {
		return -1, storage.ErrNoSpace
	}
	ref, err := hp.Overflow.Write(data)
	if err != nil {
		return -1, err
	}
	return hp.Page.InsertTuple(ref.Encode(), storage.SlotFlagOverflow)
}

// ReadTuple returns the tuple bytes of slot. Inline tuples alias the page
// buffer and are only valid while the page is pinned.
func (hp HeapPage) ReadTuple(slot int) ([]byte, error) {
	data, flags, err := hp.Page.ReadTuple(slot)
	if err != nil {
		return nil, err
	}
	if flags&storage.SlotFlagOverflow == 0 {
		return data, nil
	}
	ref, err := storage.DecodeOverflowRef(data)
	if err != nil {
		return nil, err
	}
	if hp.Overflow == nil {
		return nil, storage.ErrBadOverflowRef
	}
	return hp.Overflow.Read(ref)
}

// TupleSize is the logical size of slot, without reading overflow chains.
func (hp HeapPage) TupleSize(slot int) (int, error) {
	data, flags, err := hp.Page.ReadTuple(slot)
	if err != nil {
		return 0, err
	}
	if flags&storage.SlotFlagOverflow == 0 {
		return len(data), nil
	}
	ref, err := storage.DecodeOverflowRef(data)
	if err != nil {
		return 0, err
	}
	return int(ref.RawLength), nil
}
