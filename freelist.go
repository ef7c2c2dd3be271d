package splatter

import (
	"sync/atomic"
)

// Freelist is a stack of unused slot indices with an atomic top counter.
// Allocate and Free are lock-free and safe to call from many goroutines at
// once; the same shape is mirrored by the GPU freelist (a storage array plus
// an atomic<i32> counter) so host and device code share one allocation
// discipline.
//
// Invariant: every slot index is present in exactly one of
// {allocated, free}, never both and never duplicated.
type Freelist struct {
	slots []uint32
	top   atomic.Int64
}

// NewFreelist returns a freelist with all capacity slot indices pushed.
func NewFreelist(capacity int) *Freelist {
	if capacity < 1 {
		capacity = 1
	}
	f := &Freelist{slots: make([]uint32, capacity)}
	f.Reset()
	return f
}

// Reset repopulates the freelist with every slot index. Callers must ensure
// no concurrent Allocate/Free is in flight.
func (f *Freelist) Reset() {
	for i := range f.slots {
		f.slots[i] = uint32(i)
	}
	f.top.Store(int64(len(f.slots)))
}

// Allocate pops a slot index. Exhaustion is back-pressure, not an error:
// the second return is false and the caller simply stops spawning.
func (f *Freelist) Allocate() (uint32, bool) {
	n := f.top.Add(-1)
	if n < 0 {
		// Lost the race against exhaustion; restore the counter.
		f.top.Add(1)
		return 0, false
	}
	return f.slots[n], true
}

// Free pushes a slot index back. Must be called at most once per death;
// the particle record's InFreelist flag is the guard.
func (f *Freelist) Free(slot uint32) {
	n := f.top.Add(1)
	f.slots[n-1] = slot
}

// Count returns the number of free slots. Under concurrent allocation the
// counter can transiently dip below zero; clamp for observers.
func (f *Freelist) Count() int {
	n := f.top.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

// Capacity returns the total number of slots managed by the freelist.
func (f *Freelist) Capacity() int {
	return len(f.slots)
}
