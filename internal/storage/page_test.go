package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	slot1Data = []byte("data string of slot 1")
	slot2Data = []byte("data string of slot 2")
)

func newPage(t *testing.T) *Page {
	t.Helper()
	p, err := NewPage(make([]byte, PageSize), 7)
	require.NoError(t, err)

	assert.Equal(t, uint16(PageSize), p.upper())
	assert.Equal(t, uint16(HeaderSize), p.lower())
	assert.Equal(t, 0, p.NumSlots())
	assert.Equal(t, uint32(7), p.PageID())

	slot, err := p.InsertTuple(slot1Data, SlotFlagNormal)
	require.NoError(t, err)
	assert.Equal(t, 0, slot)

	slot, err = p.InsertTuple(slot2Data, SlotFlagOverflow)
	require.NoError(t, err)
	assert.Equal(t, 1, slot)

	assert.Equal(t, uint16(0x1fd6), p.upper())
	assert.Equal(t, uint16(0x18), p.lower())
	assert.Equal(t, 2, p.NumSlots())
	return p
}

func TestPage_InsertRead(t *testing.T) {
	p := newPage(t)

	data, flags, err := p.ReadTuple(0)
	require.NoError(t, err)
	assert.Equal(t, slot1Data, data)
	assert.Equal(t, SlotFlagNormal, flags)

	data, flags, err = p.ReadTuple(1)
	require.NoError(t, err)
	assert.Equal(t, slot2Data, data)
	assert.Equal(t, SlotFlagOverflow, flags)

	_, _, err = p.ReadTuple(-1)
	require.ErrorIs(t, err, ErrBadSlot)
	_, _, err = p.ReadTuple(2)
	require.ErrorIs(t, err, ErrBadSlot)
}

func TestPage_Limits(t *testing.T) {
	p, err := NewPage(make([]byte, PageSize), 0)
	require.NoError(t, err)

	_, err = p.InsertTuple(make([]byte, MaxInlineTuple+1), SlotFlagNormal)
	require.ErrorIs(t, err, ErrTupleTooLarge)
	_, err = p.InsertTuple(nil, SlotFlagNormal)
	require.ErrorIs(t, err, ErrCorruption)

	_, err = p.InsertTuple(make([]byte, MaxInlineTuple), SlotFlagNormal)
	require.NoError(t, err)
	assert.Equal(t, 0, p.FreeSpace())
	_, err = p.InsertTuple([]byte{1}, SlotFlagNormal)
	require.ErrorIs(t, err, ErrNoSpace)

	_, err = NewPage(make([]byte, 10), 0)
	require.ErrorIs(t, err, ErrWrongSize)
}
