package store

import "sync/atomic"

// Clock is a monotonic logical clock for commit ordering.
//
// Every reduced action is stamped with a strictly increasing seq number.
// The seq orders the journal and the trace, and replay reproduces the same
// order without relying on wall-clock time.
//
// Clock is safe for concurrent use, though only the store's owner
// goroutine calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific sequence number.
// Used to resume numbering after the last journaled commit.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
