package counters

import (
	"go.uber.org/atomic"
)

// StrictMonotonicCounter is a helper struct which implements a strictly
// increasing counter. It is used to track the latest processed index with
// guaranteed ordering even under concurrent updates.
type StrictMonotonicCounter struct {
	atomicCounter *atomic.Uint64
}

// NewMonotonicCounter creates a new counter with the initial value.
func NewMonotonicCounter(initial uint64) StrictMonotonicCounter {
	return StrictMonotonicCounter{
		atomicCounter: atomic.NewUint64(initial),
	}
}

// Set updates the value of the counter if and only if the new value is
// strictly greater than the current one. Returns true if the update was
// applied.
func (c StrictMonotonicCounter) Set(processing uint64) bool {
	for {
		current := c.atomicCounter.Load()
		if processing <= current {
			return false
		}
		if c.atomicCounter.CAS(current, processing) {
			return true
		}
	}
}

// Value returns the current value of the counter.
func (c StrictMonotonicCounter) Value() uint64 {
	return c.atomicCounter.Load()
}
