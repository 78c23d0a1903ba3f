package engine

import "sync/atomic"

// Sequencer issues the seq numbers stamped on entries. Implementations must
// be safe for concurrent use and never return the same value twice.
type Sequencer interface {
	Next() int64
	Current() int64
}

// Clock is a monotonic logical clock. Every appended entry is stamped with
// Next(), giving a total order across concurrent requests that does not
// depend on wall time.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock that continues from start, e.g. after the
// audit store's highest recorded seq.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
