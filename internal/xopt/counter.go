package xopt

import "sync/atomic"

// indexCounter hands out row indices. Indices are strictly increasing and
// never reused; the next index is always Last()+1.
//
// Only the orchestrator's control loop advances it, but reads are atomic so
// observers may call Last from other goroutines.
type indexCounter struct {
	last atomic.Int64
}

// newIndexCounter creates a counter whose first index is last+1.
func newIndexCounter(last int64) *indexCounter {
	c := &indexCounter{}
	c.last.Store(last)
	return c
}

// Last returns the most recently assigned index, or -1 before any.
func (c *indexCounter) Last() int64 {
	return c.last.Load()
}

// Peek returns the index the next assignment will start at.
func (c *indexCounter) Peek() int64 {
	return c.last.Load() + 1
}

// Advance marks n more indices as assigned.
func (c *indexCounter) Advance(n int) {
	c.last.Add(int64(n))
}
