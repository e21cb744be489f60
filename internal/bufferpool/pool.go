package bufferpool

import (
	"errors"
	"sync"

	locking "github.com/tuannm99/novaloop/internal/lock"
	"github.com/tuannm99/novaloop/internal/storage"
)

var (
	DefaultCapacity = 128

	ErrNoFreeFrame = errors.New("bufferpool: no free frame available (all pinned)")
)

type Replacer interface {
	RecordAccess(frameID int)
	SetEvictable(frameID int, evictable bool)
	Evict() (frameID int, ok bool)
	Remove(frameID int)
	Size() int
}

// Manager is what a heap table needs from a page cache.
type Manager interface {
	GetPage(pageID uint32) (*storage.Page, error)
	Unpin(page *storage.Page, dirty bool) error
	FlushAll() error
}

// Frame holds one cached page. Pin is nil while the frame is unpinned.
type Frame struct {
	PageID uint32
	Page   *storage.Page
	Dirty  bool
	Pin    *locking.RefCount
}

func (f *Frame) pinned() bool { return f.Pin != nil && f.Pin.Get() > 0 }

// Stats counts cache activity since the pool was created.
type Stats struct {
	Hits      int
	Misses    int
	Evictions int
}

var _ Manager = (*Pool)(nil)

// Pool caches pages of one FileSet.
type Pool struct {
	sm *storage.StorageManager
	fs storage.FileSet

	mu        sync.Mutex
	frames    []*Frame       // len == capacity, nil == free slot
	pageTable map[uint32]int // PageID -> frame index
	replacer  Replacer
	stats     Stats
}

func NewPool(sm *storage.StorageManager, fs storage.FileSet, capacity int) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Pool{
		sm:        sm,
		fs:        fs,
		frames:    make([]*Frame, capacity),
		pageTable: make(map[uint32]int),
		replacer:  newClock(capacity),
	}
}

// GetPage returns the page pinned; callers Unpin it when done.
func (p *Pool) GetPage(pageID uint32) (*storage.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if idx, ok := p.pageTable[pageID]; ok {
		f := p.frames[idx]
		p.stats.Hits++
		if f.Pin == nil {
			f.Pin = locking.NewRefCount()
			p.replacer.SetEvictable(idx, false)
		} else {
			f.Pin.Inc()
		}
		p.replacer.RecordAccess(idx)
		return f.Page, nil
	}
	p.stats.Misses++

	idx := -1
	for i, f := range p.frames {
		if f == nil {
			idx = i
			break
		}
	}
	if idx == -1 {
		victim, err := p.evictLocked()
		if err != nil {
			return nil, err
		}
		idx = victim
	}

	page, err := p.sm.LoadPage(p.fs, pageID)
	if err != nil {
		return nil, err
	}
	p.frames[idx] = &Frame{PageID: pageID, Page: page, Pin: locking.NewRefCount()}
	p.pageTable[pageID] = idx
	p.replacer.RecordAccess(idx)
	p.replacer.SetEvictable(idx, false)
	return page, nil
}

// evictLocked frees one frame, writing it back when dirty.
func (p *Pool) evictLocked() (int, error) {
	idx, ok := p.replacer.Evict()
	if !ok {
		return -1, ErrNoFreeFrame
	}
	victim := p.frames[idx]
	if victim == nil {
		return idx, nil
	}
	if victim.pinned() {
		// the replacer should never return a pinned frame; keep it tracked
		p.replacer.RecordAccess(idx)
		return -1, ErrNoFreeFrame
	}
	if victim.Dirty {
		if err := p.sm.SavePage(p.fs, victim.Page); err != nil {
			p.replacer.RecordAccess(idx)
			p.replacer.SetEvictable(idx, true)
			return -1, err
		}
	}
	delete(p.pageTable, victim.PageID)
	p.frames[idx] = nil
	p.stats.Evictions++
	return idx, nil
}

func (p *Pool) Unpin(page *storage.Page, dirty bool) error {
	if page == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.pageTable[page.PageID()]
	if !ok {
		return nil
	}
	f := p.frames[idx]
	if dirty {
		f.Dirty = true
	}
	if f.Pin != nil && f.Pin.Dec() {
		f.Pin = nil
		p.replacer.SetEvictable(idx, true)
	}
	return nil
}

func (p *Pool) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, f := range p.frames {
		if f == nil || !f.Dirty {
			continue
		}
		if err := p.sm.SavePage(p.fs, f.Page); err != nil {
			return err
		}
		f.Dirty = false
	}
	return nil
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
