// Package clock supplies the logical time the cooldown window is measured against.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock returns the current time unit. It must never go backwards.
type Clock interface {
	Now() uint64
}

// SystemClock counts unix seconds.
type SystemClock struct{}

func (SystemClock) Now() uint64 {
	return uint64(time.Now().Unix())
}

// ManualClock only moves when told to.
type ManualClock struct {
	now atomic.Uint64
}

func NewManualClock(start uint64) *ManualClock {
	c := &ManualClock{}
	c.now.Store(start)
	return c
}

func (c *ManualClock) Now() uint64 {
	return c.now.Load()
}

func (c *ManualClock) Advance(d uint64) uint64 {
	return c.now.Add(d)
}

// Set moves the clock to t; earlier values are ignored.
func (c *ManualClock) Set(t uint64) {
	for {
		cur := c.now.Load()
		if t <= cur || c.now.CompareAndSwap(cur, t) {
			return
		}
	}
}
