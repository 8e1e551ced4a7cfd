package eventlog

import "sync/atomic"

// Clock is the logical clock for event ordering.
//
// All events are stamped with a strictly increasing seq number from this
// clock. Ordering never depends on wall time.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// Log.Commit is the only caller of Next in practice.
type Clock struct {
	seq atomic.Int64
}

// NewClockAt creates a clock positioned at start. The next call to Next
// returns start+1.
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

// Reset moves the clock to seq. Used when another writer advanced the
// store past this clock.
func (c *Clock) Reset(seq int64) {
	c.seq.Store(seq)
}
