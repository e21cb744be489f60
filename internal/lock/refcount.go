package locking

import (
	"fmt"
	"sync/atomic"
)

// RefCount tracks holders of a shared resource: compiled record layouts in
// the generator, pinned frames in the buffer pool. The creator holds the
// first reference.
type RefCount struct {
	count int32
}

func NewRefCount() *RefCount {
	return &RefCount{count: 1}
}

func (r *RefCount) Inc() {
	atomic.AddInt32(&r.count, 1)
}

// Dec drops one reference and reports whether it was the last.
func (r *RefCount) Dec() bool {
	n := atomic.AddInt32(&r.count, -1)
	if n < 0 {
		panic("refcount dropped below zero")
	}
	return n == 0
}

func (r *RefCount) Get() int32 {
	return atomic.LoadInt32(&r.count)
}

func (r *RefCount) String() string {
	return fmt.Sprintf("RefCount: %d", r.Get())
}
