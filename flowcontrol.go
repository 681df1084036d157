package riptide

import "math"

// Capacity is the single flow-control knob of a channel, fixed for its
// lifetime. It tunes both directions at once:
//
//   - Unbounded: every write is followed by a flush, and inbound reads are
//     never paused (auto-read stays on).
//   - Finite N: up to N writes are batched before a flush is forced, and
//     inbound reads pause once N items have been dispatched to the handler
//     without being consumed, resuming below N.
//
// A zero or negative capacity falls back to Unbounded.
type Capacity int64

const Unbounded Capacity = math.MaxInt64

func (c Capacity) normalize() Capacity {
	if c <= 0 {
		return Unbounded
	}
	return c
}

// IsUnbounded reports whether the write-on-flush / auto-read policy is in
// effect.
func (c Capacity) IsUnbounded() bool {
	return c.normalize() == Unbounded
}

// FlushBatch is the number of writes batched between forced flushes.
func (c Capacity) FlushBatch() int64 {
	if c.IsUnbounded() {
		return 1
	}
	return int64(c)
}

// ReadBudget is the number of inbound items that may sit dispatched but
// unconsumed before reads pause. Zero means no budget is enforced.
func (c Capacity) ReadBudget() int64 {
	if c.IsUnbounded() {
		return 0
	}
	return int64(c)
}
