package storage

import (
	"errors"

	"github.com/tuannm99/novaloop/internal/alias/bx"
)

// Header offsets
const (
	offFlags   = 0
	offPageID  = 2
	offLower   = 6
	offUpper   = 8
	offSpecial = 10
)

// Slot flags
const (
	SlotFlagNormal uint16 = 0
	// SlotFlagOverflow: the tuple bytes are an encoded OverflowRef.
	SlotFlagOverflow uint16 = 1 << 0
)

var (
	ErrTupleTooLarge = errors.New("page: tuple too large for inline")
	ErrNoSpace       = errors.New("page: not enough free space")
	ErrBadSlot       = errors.New("page: invalid slot")
	ErrCorruption    = errors.New("page: corrupt slot or tuple bounds")
	ErrWrongSize     = errors.New("page: buffer size != PageSize")
)

type Slot struct {
	Offset uint16
	Length uint16
	Flags  uint16
}

// Page is an append-only slotted page.
//
// +------------------+ 0
// | header           |
// | slots[]          | <-- lower
// +------------------+
// |   free space     |
// +------------------+ <-- upper
// |  tuple data      |
// |  (grows down)    |
// +------------------+ PageSize
type Page struct {
	Buf []byte
}

func NewPage(buf []byte, pageID uint32) (*Page, error) {
	if len(buf) != PageSize {
		return nil, ErrWrongSize
	}
	p := &Page{Buf: buf}
	p.init(pageID)
	return p, nil
}

func (p *Page) PageID() uint32      { return bx.U32At(p.Buf, offPageID) }
func (p *Page) lower() uint16       { return bx.U16At(p.Buf, offLower) }
func (p *Page) upper() uint16       { return bx.U16At(p.Buf, offUpper) }
func (p *Page) setLower(v uint16)   { bx.PutU16At(p.Buf, offLower, v) }
func (p *Page) setUpper(v uint16)   { bx.PutU16At(p.Buf, offUpper, v) }
func (p *Page) setPageID(v uint32)  { bx.PutU32At(p.Buf, offPageID, v) }
func (p *Page) setSpecial(v uint16) { bx.PutU16At(p.Buf, offSpecial, v) }

func (p *Page) init(pageID uint32) {
	clear(p.Buf)
	p.setPageID(pageID)
	p.setLower(HeaderSize)
	p.setUpper(PageSize)
	p.setSpecial(PageSize) // unused
}

func (p *Page) FreeSpace() int {
	return int(p.upper()) - int(p.lower())
}

func (p *Page) NumSlots() int {
	return (int(p.lower()) - HeaderSize) / SlotSize
}

// IsUninitialized reports an all-zero header, as read past the end of a
// segment.
func (p *Page) IsUninitialized() bool {
	return p.lower() == 0
}

func (p *Page) slotOff(idx int) int {
	return HeaderSize + idx*SlotSize
}

func (p *Page) Slot(i int) (Slot, error) {
	if i < 0 || i >= p.NumSlots() {
		return Slot{}, ErrBadSlot
	}
	o := p.slotOff(i)
	if o+SlotSize > int(p.lower()) {
		return Slot{}, ErrCorruption
	}
	return Slot{
		Offset: bx.U16At(p.Buf, o),
		Length: bx.U16At(p.Buf, o+2),
		Flags:  bx.U16At(p.Buf, o+4),
	}, nil
}

// InsertTuple copies tup into the page and returns its slot.
func (p *Page) InsertTuple(tup []byte, flags uint16) (int, error) {
	if len(tup) == 0 {
		return -1, ErrCorruption
	}
	if len(tup) > MaxInlineTuple {
		return -1, ErrTupleTooLarge
	}
	if p.FreeSpace() < len(tup)+SlotSize {
		return -1, ErrNoSpace
	}
	u := int(p.upper()) - len(tup)
	copy(p.Buf[u:], tup)
	p.setUpper(uint16(u))

	i := p.NumSlots()
	o := p.slotOff(i)
	bx.PutU16At(p.Buf, o, uint16(u))
	bx.PutU16At(p.Buf, o+2, uint16(len(tup)))
	bx.PutU16At(p.Buf, o+4, flags)
	p.setLower(p.lower() + SlotSize)
	return i, nil
}

// ReadTuple returns the bytes of slot and its flags. The slice aliases the
// page buffer.
func (p *Page) ReadTuple(slot int) ([]byte, uint16, error) {
	s, err := p.Slot(slot)
	if err != nil {
		return nil, 0, err
	}
	start, end := int(s.Offset), int(s.Offset)+int(s.Length)
	if s.Length == 0 || start < int(p.upper()) || end > PageSize {
		return nil, 0, ErrCorruption
	}
	return p.Buf[start:end], s.Flags, nil
}
