package locking

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRefCount_LastRelease(t *testing.T) {
	r := NewRefCount()
	r.Inc()
	require.Equal(t, int32(2), r.Get())
	require.False(t, r.Dec())
	require.True(t, r.Dec())
	require.Panics(t, func() { r.Dec() })
	require.Equal(t, "RefCount: -1", r.String())
}

func TestRefCount_Concurrent(t *testing.T) {
	r := NewRefCount()
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Inc()
		}()
	}
	wg.Wait()
	require.Equal(t, int32(65), r.Get())
}
