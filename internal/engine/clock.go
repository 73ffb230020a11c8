package engine

import (
	"sync/atomic"
	"time"
)

// Clock stamps events. Its logical counter gives every enqueued event a
// strictly increasing Seq; its wall source timestamps URL variables.
//
// Thread-safety: Next and Last are atomic. The wall source is fixed
// before the engine starts.
type Clock struct {
	seq  atomic.Int64
	wall func() time.Time
}

// NewClock creates a clock whose counter starts at 0. A nil wall source
// means time.Now.
func NewClock(wall func() time.Time) *Clock {
	if wall == nil {
		wall = time.Now
	}
	return &Clock{wall: wall}
}

// Next advances the counter and returns the new Seq.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Last returns the most recently issued Seq, 0 before the first event.
func (c *Clock) Last() int64 {
	return c.seq.Load()
}

// Now reads the wall source.
func (c *Clock) Now() time.Time {
	return c.wall()
}
