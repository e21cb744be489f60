package storage

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func newOverflow(t *testing.T) *OverflowManager {
	t.Helper()
	ovf, err := NewOverflowManager(NewMemFileSet("ovf_test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ovf.Close() })
	return ovf
}

func TestOverflow_WriteRead_MultiPage(t *testing.T) {
	ovf := newOverflow(t)

	// random bytes barely compress, forcing a chain of several pages
	payload := make([]byte, 3*PageSize)
	rand.New(rand.NewSource(1)).Read(payload)

	ref, err := ovf.Write(payload)
	require.NoError(t, err)
	require.Equal(t, uint32(len(payload)), ref.RawLength)
	require.Greater(t, ref.Length, uint32(2*overflowPayloadSize))

	out, err := ovf.Read(ref)
	require.NoError(t, err)
	require.Equal(t, payload, out)
}

func TestOverflow_Compresses(t *testing.T) {
	ovf := newOverflow(t)

	first, err := ovf.Write(bytes.Repeat([]byte("X"), 12012))
	require.NoError(t, err)
	require.Less(t, first.Length, first.RawLength)

	second, err := ovf.Write(bytes.Repeat([]byte("ab"), 5000))
	require.NoError(t, err)
	require.Equal(t, first.FirstPageID+1, second.FirstPageID)

	out, err := ovf.Read(first)
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat([]byte("X"), 12012), out)

	out, err = ovf.Read(second)
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat([]byte("ab"), 5000), out)
}

func TestOverflowRef_Encoding(t *testing.T) {
	ref := OverflowRef{FirstPageID: 9, Length: 100, RawLength: 4000}
	got, err := DecodeOverflowRef(ref.Encode())
	require.NoError(t, err)
	require.Equal(t, ref, got)

	_, err = DecodeOverflowRef([]byte{1, 2})
	require.ErrorIs(t, err, ErrBadOverflowRef)

	_, err = newOverflow(t).Write(nil)
	require.Error(t, err)
}
