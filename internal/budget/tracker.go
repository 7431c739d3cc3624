// Package budget tracks context-window consumption for the active session
// and signals when the checkpoint threshold is crossed.
package budget

import "sync/atomic"

// DefaultThreshold is the fraction of capacity at which a checkpoint
// is triggered.
const DefaultThreshold = 0.80

// Tracker maintains a monotonic estimate of consumed context capacity.
// It has no knowledge of what consumes context: callers feed it opaque
// cost measurements from implementer and scorer calls.
//
// The threshold latch is the only cell shared with a potentially
// concurrent cost-accounting path, so it is managed with atomic
// compare-and-swap: the signal fires exactly once per crossing, stays
// latched until the checkpoint manager consumes it, and never re-fires
// within the same session.
type Tracker struct {
	capacity  int64
	threshold float64

	used     atomic.Int64
	latch    atomic.Bool
	signaled atomic.Bool
}

// NewTracker creates a tracker for a session with the given capacity
// (an opaque cost unit, typically tokens) and the default 80% threshold.
func NewTracker(capacity int64) *Tracker {
	return NewTrackerWithThreshold(capacity, DefaultThreshold)
}

// NewTrackerWithThreshold creates a tracker with an explicit threshold
// fraction. Out-of-range thresholds are clamped to (0, 1].
func NewTrackerWithThreshold(capacity int64, threshold float64) *Tracker {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Tracker{capacity: capacity, threshold: threshold}
}

// Record adds a usage delta to the session's consumption estimate.
// Usage is monotonic: negative deltas are ignored. If the recorded
// total crosses the threshold, the one-shot signal latches.
func (t *Tracker) Record(delta int64) {
	if delta <= 0 {
		return
	}
	used := t.used.Add(delta)
	if t.capacity <= 0 {
		return
	}
	if float64(used)/float64(t.capacity) >= t.threshold {
		// Latch at most once per session, even if Consume has already
		// cleared the signal.
		if t.signaled.CompareAndSwap(false, true) {
			t.latch.Store(true)
		}
	}
}

// Used returns the total recorded usage.
func (t *Tracker) Used() int64 {
	return t.used.Load()
}

// Capacity returns the session capacity.
func (t *Tracker) Capacity() int64 {
	return t.capacity
}

// PercentUsed returns the consumption estimate as a percentage (0-100).
func (t *Tracker) PercentUsed() float64 {
	if t.capacity <= 0 {
		return 0
	}
	return float64(t.used.Load()) / float64(t.capacity) * 100
}

// ThresholdCrossed reports whether the threshold signal is currently
// latched. It does not clear the latch; only Consume does.
func (t *Tracker) ThresholdCrossed() bool {
	return t.latch.Load()
}

// Consume atomically clears the threshold signal and reports whether it
// was set. The checkpoint manager calls this so that many rapid Record
// calls near the boundary trigger exactly one checkpoint.
func (t *Tracker) Consume() bool {
	return t.latch.Swap(false)
}
