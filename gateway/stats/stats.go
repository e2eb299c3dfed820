// Package stats maintains per-provider request counters with lock-free
// reads and writes. Reads are wait-free; the EWMA write is a bounded
// CompareAndSwap loop that drops the sample on exhaustion.
package stats

import (
	"sync/atomic"
	"time"
)

// maxEWMARetries bounds the CAS loop used to update the latency EWMA. On
// exhaustion the sample is dropped; stats are advisory, never authoritative.
const maxEWMARetries = 8

// saturatingCap is the ceiling consecutive_errors saturates at, well short of
// the u64 range, so repeated overflow checks never matter in practice.
const saturatingCap = ^uint64(0) / 2

// Tracker holds the four counters for a single provider. The zero value is
// ready to use. A Tracker must not be copied after first use.
type Tracker struct {
	requests          atomic.Uint64
	errors            atomic.Uint64
	consecutiveErrors atomic.Uint64
	ewmaLatencyUs     atomic.Uint64
	lastErrorUnixNano atomic.Int64
}

// View is a plain snapshot of a Tracker's counters, read via four
// independent relaxed loads. There is no happens-before relation across the
// fields of a View, so callers must tolerate torn reads.
type View struct {
	Requests          uint64
	Errors            uint64
	ConsecutiveErrors uint64
	EWMALatencyUs     uint64
}

// RecordSuccess increments requests, resets the consecutive-error streak,
// and folds latencyUs into the exponentially-weighted moving average with
// alpha = 1/8 via a bounded-retry compare-and-swap loop.
func (t *Tracker) RecordSuccess(latencyUs uint64) {
	t.requests.Add(1)
	t.consecutiveErrors.Store(0)

	for i := 0; i < maxEWMARetries; i++ {
		old := t.ewmaLatencyUs.Load()
		var next uint64
		if old == 0 {
			next = latencyUs
		} else {
			next = (old*7 + latencyUs) / 8
		}
		if t.ewmaLatencyUs.CompareAndSwap(old, next) {
			return
		}
	}
	// Bounded retries exhausted: drop the sample. A future update will
	// reconcile the average, and routing only ever treats it as advisory.
}

// RecordError increments requests, errors, and the consecutive-error streak
// (saturating well below the uint64 range). It never touches the EWMA.
func (t *Tracker) RecordError() {
	t.requests.Add(1)
	t.errors.Add(1)

	for {
		old := t.consecutiveErrors.Load()
		if old >= saturatingCap {
			break
		}
		if t.consecutiveErrors.CompareAndSwap(old, old+1) {
			break
		}
	}
	t.lastErrorUnixNano.Store(time.Now().UnixNano())
}

// Snapshot returns a View built from four independent relaxed loads.
func (t *Tracker) Snapshot() View {
	return View{
		Requests:          t.requests.Load(),
		Errors:            t.errors.Load(),
		ConsecutiveErrors: t.consecutiveErrors.Load(),
		EWMALatencyUs:     t.ewmaLatencyUs.Load(),
	}
}

// LastErrorUnixNano returns the wall-clock time of the most recent recorded
// error, or 0 if none has been recorded yet. Neither the router nor
// breaker.StateMachine (which tracks its own last failure time) reads it.
func (t *Tracker) LastErrorUnixNano() int64 {
	return t.lastErrorUnixNano.Load()
}
