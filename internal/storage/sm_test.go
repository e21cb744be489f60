package storage

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageManager_SaveLoadCount(t *testing.T) {
	fs := NewMemFileSet("segment")
	sm := NewStorageManager()

	n, err := sm.CountPages(fs)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), n)
	_, exists, err := fs.StatSegment(0)
	require.NoError(t, err)
	assert.False(t, exists, "counting must not create segments")

	// a page past EOF loads initialized
	pg, err := sm.LoadPage(fs, 3)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), pg.PageID())
	assert.Equal(t, 0, pg.NumSlots())

	_, err = pg.InsertTuple([]byte("hello"), SlotFlagNormal)
	require.NoError(t, err)
	require.NoError(t, sm.SavePage(fs, pg))

	n, err = sm.CountPages(fs)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), n)

	again, err := sm.LoadPage(fs, 3)
	require.NoError(t, err)
	data, _, err := again.ReadTuple(0)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	require.Error(t, sm.WritePage(fs, 0, make([]byte, 5)))
	require.Error(t, sm.ReadPage(fs, 0, make([]byte, 5)))
}

func TestLocalFileSet_Segments(t *testing.T) {
	mem := afero.NewMemMapFs()
	lfs := LocalFileSet{FS: mem, Dir: "/data", Base: "events"}

	for _, seg := range []int32{0, 2, 1} {
		f, err := lfs.OpenSegment(seg)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}
	// unrelated files are ignored
	require.NoError(t, afero.WriteFile(mem, "/data/events.meta.json", []byte("{}"), FileMode0644))
	require.NoError(t, afero.WriteFile(mem, "/data/other", nil, FileMode0644))

	segs, err := lfs.ListSegments()
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 1, 2}, segs)
	assert.Equal(t, "events.2", SegFileName("events", 2))

	require.NoError(t, lfs.RemoveAllSegments())
	segs, err = lfs.ListSegments()
	require.NoError(t, err)
	assert.Empty(t, segs)

	ok, err := afero.Exists(mem, "/data/other")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStorageManager_ReadPastEndOfMemSegment(t *testing.T) {
	fs := NewMemFileSet("segment")
	sm := NewStorageManager()

	pg, err := sm.LoadPage(fs, 0)
	require.NoError(t, err)
	_, err = pg.InsertTuple([]byte("first"), SlotFlagNormal)
	require.NoError(t, err)
	require.NoError(t, sm.SavePage(fs, pg))

	// page 2 starts past the end of a one-page segment
	dst := make([]byte, PageSize)
	for i := range dst {
		dst[i] = 0xff
	}
	require.NoError(t, sm.ReadPage(fs, 2, dst))
	assert.Equal(t, make([]byte, PageSize), dst)

	far, err := sm.LoadPage(fs, 2)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), far.PageID())
	assert.Equal(t, 0, far.NumSlots())
}
