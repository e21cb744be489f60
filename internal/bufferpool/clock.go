package bufferpool

// clockSlot is the replacer state of one frame.
type clockSlot struct {
	present   bool
	ref       bool
	evictable bool
}

// clock is a CLOCK (second-chance) Replacer over frame ids [0..capacity).
type clock struct {
	slots []clockSlot
	hand  int
	size  int // evictable frames
}

var _ Replacer = (*clock)(nil)

func newClock(capacity int) *clock {
	return &clock{slots: make([]clockSlot, max(capacity, 1))}
}

func (c *clock) valid(id int) bool { return id >= 0 && id < len(c.slots) }

func (c *clock) RecordAccess(id int) {
	if !c.valid(id) {
		return
	}
	c.slots[id].present = true
	c.slots[id].ref = true
}

// SetEvictable is ignored for frames never accessed.
func (c *clock) SetEvictable(id int, evictable bool) {
	if !c.valid(id) || !c.slots[id].present || c.slots[id].evictable == evictable {
		return
	}
	c.slots[id].evictable = evictable
	if evictable {
		c.size++
	} else {
		c.size--
	}
}

// Evict sweeps at most twice around the clock, clearing ref bits, and
// forgets the victim it returns.
func (c *clock) Evict() (int, bool) {
	n := len(c.slots)
	if c.size == 0 {
		return -1, false
	}
	for range 2 * n {
		idx := c.hand
		c.hand = (c.hand + 1) % n
		s := &c.slots[idx]
		if !s.present || !s.evictable {
			continue
		}
		if s.ref {
			s.ref = false
			continue
		}
		*s = clockSlot{}
		c.size--
		return idx, true
	}
	return -1, false
}

func (c *clock) Remove(id int) {
	if !c.valid(id) || !c.slots[id].present {
		return
	}
	if c.slots[id].evictable {
		c.size--
	}
	c.slots[id] = clockSlot{}
}

func (c *clock) Size() int { return c.size }
