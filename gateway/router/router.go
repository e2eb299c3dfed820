// Package router selects the best provider for a request in a single pass
// over an atomically-swapped snapshot: filter by model support, filter by
// health, then pick the lowest integer cost/latency score. Selection is
// deterministic and performs no writes, so concurrent requests never
// contend on the router itself.
package router

import (
	"errors"
	"math"
	"sync/atomic"

	"github.com/BaSui01/agentflow-gateway/gateway/breaker"
	"github.com/BaSui01/agentflow-gateway/gateway/stats"
	"github.com/BaSui01/agentflow-gateway/gateway/types"
)

// ErrNoProviderAvailable is returned when no entry in the snapshot supports
// the requested model.
var ErrNoProviderAvailable = errors.New("router: no provider available")

// costWeight converts cost-per-1k-micro-units into the same scale as
// millisecond latency for scoring purposes.
const costWeight = 100

// Entry pairs an immutable provider descriptor with its stats handle. The
// router never writes to an Entry's Stats; only the pipeline does, after a
// call completes.
type Entry struct {
	Descriptor types.ProviderDescriptor
	Stats      *stats.Tracker
}

// Snapshot is the immutable, atomically-swapped list of provider entries a
// Router selects over.
type Snapshot struct {
	Entries []Entry
}

// Router holds the current snapshot behind an atomic pointer so that
// readers never block on a configuration reload, and reload never blocks on
// in-flight readers (old snapshots are simply dropped once unreferenced).
type Router struct {
	threshold uint64
	current   atomic.Pointer[Snapshot]
}

// New builds a Router with an initial snapshot and the consecutive-error
// threshold at which a provider is considered unhealthy. A zero threshold
// selects breaker.DefaultThreshold.
func New(initial Snapshot, threshold uint64) *Router {
	if threshold == 0 {
		threshold = breaker.DefaultThreshold
	}
	r := &Router{threshold: threshold}
	r.current.Store(&initial)
	return r
}

// Reload atomically replaces the snapshot the Router selects over.
// Readers holding the old pointer are unaffected; the old Snapshot is freed
// once the last reader drops it.
func (r *Router) Reload(next Snapshot) {
	r.current.Store(&next)
}

// Snapshot returns the currently active Snapshot via a single atomic load.
func (r *Router) Snapshot() Snapshot {
	return *r.current.Load()
}

// Select returns the provider entry with the lowest score among healthy
// candidates that support the request's model, or ErrNoProviderAvailable
// when no entry supports the model at all.
func (r *Router) Select(req types.Request) (Entry, error) {
	snap := r.current.Load()

	byModel := filterByModel(snap.Entries, req.Model)
	if len(byModel) == 0 {
		return Entry{}, ErrNoProviderAvailable
	}

	candidates := filterByHealth(byModel, r.threshold)
	if len(candidates) == 0 {
		// No healthy provider supports this model: fall back to the
		// post-model-filter set, ignoring health, rather than a total
		// outage.
		candidates = byModel
	}

	return pickLowestScore(candidates), nil
}

func filterByModel(entries []Entry, model string) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Descriptor.SupportsModel(model) {
			out = append(out, e)
		}
	}
	return out
}

func filterByHealth(entries []Entry, threshold uint64) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if breaker.Healthy(e.Stats.Snapshot(), threshold) {
			out = append(out, e)
		}
	}
	return out
}

// score is EWMA latency in milliseconds plus cost-per-1k-micro-units
// weighted by costWeight. An uninitialized (zero-latency) provider scores
// its cost term alone, biasing routing toward cheap, untried providers
// until one sample is taken.
//
// Both the cost*costWeight multiply and the final add saturate at
// math.MaxUint64 instead of wrapping, so a pathologically expensive
// provider always scores at least as high as one whose arithmetic stayed
// in range, never lower.
func score(e Entry) uint64 {
	v := e.Stats.Snapshot()
	return saturatingAdd(v.EWMALatencyUs/1000, saturatingMul(e.Descriptor.CostPer1kMicro, costWeight))
}

func saturatingMul(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	product := a * b
	if product/a != b {
		return math.MaxUint64
	}
	return product
}

func saturatingAdd(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return math.MaxUint64
	}
	return sum
}

// pickLowestScore returns the candidate with the minimum score, breaking
// ties first by fewer total requests (favoring unexplored providers), then
// by lexicographically smaller provider id for determinism.
func pickLowestScore(candidates []Entry) Entry {
	best := candidates[0]
	bestScore := score(best)
	bestRequests := best.Stats.Snapshot().Requests

	for _, e := range candidates[1:] {
		s := score(e)
		reqs := e.Stats.Snapshot().Requests

		switch {
		case s < bestScore:
			best, bestScore, bestRequests = e, s, reqs
		case s == bestScore && reqs < bestRequests:
			best, bestScore, bestRequests = e, s, reqs
		case s == bestScore && reqs == bestRequests && e.Descriptor.ID < best.Descriptor.ID:
			best, bestScore, bestRequests = e, s, reqs
		}
	}
	return best
}
