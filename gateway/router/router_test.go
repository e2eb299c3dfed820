package router

import (
	"math"
	"testing"

	"github.com/BaSui01/agentflow-gateway/gateway/stats"
	"github.com/BaSui01/agentflow-gateway/gateway/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(id string, models []string, cost uint64) Entry {
	return Entry{
		Descriptor: types.ProviderDescriptor{ID: id, SupportedModels: models, CostPer1kMicro: cost},
		Stats:      &stats.Tracker{},
	}
}

func TestSelect_EmptyProviderList(t *testing.T) {
	r := New(Snapshot{}, 5)
	_, err := r.Select(types.Request{Model: "m"})
	assert.ErrorIs(t, err, ErrNoProviderAvailable)
}

func TestSelect_NoModelSupport(t *testing.T) {
	e := entry("p1", []string{"other"}, 1)
	r := New(Snapshot{Entries: []Entry{e}}, 5)
	_, err := r.Select(types.Request{Model: "m2"})
	assert.ErrorIs(t, err, ErrNoProviderAvailable)
}

func TestSelect_PrefersLowerScore(t *testing.T) {
	p1 := entry("p1", []string{"m"}, 1)
	p2 := entry("p2", []string{"m"}, 10)
	p1.Stats.RecordSuccess(50_000)
	p2.Stats.RecordSuccess(50_000)

	r := New(Snapshot{Entries: []Entry{p1, p2}}, 5)
	got, err := r.Select(types.Request{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "p1", got.Descriptor.ID)
}

func TestSelect_UnhealthyExcluded(t *testing.T) {
	p1 := entry("p1", []string{"m"}, 1)
	p2 := entry("p2", []string{"m"}, 10)
	for i := 0; i < 5; i++ {
		p1.Stats.RecordError()
	}

	r := New(Snapshot{Entries: []Entry{p1, p2}}, 5)
	got, err := r.Select(types.Request{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "p2", got.Descriptor.ID)
}

func TestSelect_AllUnhealthyFallsBack(t *testing.T) {
	p1 := entry("p1", []string{"m"}, 1)
	for i := 0; i < 5; i++ {
		p1.Stats.RecordError()
	}

	r := New(Snapshot{Entries: []Entry{p1}}, 5)
	got, err := r.Select(types.Request{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "p1", got.Descriptor.ID)
}

func TestSelect_RecoversAfterSuccess(t *testing.T) {
	p1 := entry("p1", []string{"m"}, 1)
	p2 := entry("p2", []string{"m"}, 1)
	for i := 0; i < 5; i++ {
		p1.Stats.RecordError()
	}
	r := New(Snapshot{Entries: []Entry{p1, p2}}, 5)

	got, err := r.Select(types.Request{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "p2", got.Descriptor.ID)

	p1.Stats.RecordSuccess(10_000)
	got, err = r.Select(types.Request{Model: "m"})
	require.NoError(t, err)
	assert.Contains(t, []string{"p1", "p2"}, got.Descriptor.ID)
	assert.Len(t, filterByHealth(r.Snapshot().Entries, 5), 2)
}

func TestSelect_TieBreakByFewerRequests(t *testing.T) {
	p1 := entry("p1", []string{"m"}, 1)
	p2 := entry("p2", []string{"m"}, 1)
	p1.Stats.RecordSuccess(500)
	p1.Stats.RecordSuccess(500)

	r := New(Snapshot{Entries: []Entry{p1, p2}}, 5)
	got, err := r.Select(types.Request{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "p2", got.Descriptor.ID)
}

func TestSelect_Deterministic(t *testing.T) {
	p1 := entry("p1", []string{"m"}, 5)
	p2 := entry("p2", []string{"m"}, 5)
	r := New(Snapshot{Entries: []Entry{p1, p2}}, 5)

	first, err := r.Select(types.Request{Model: "m"})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := r.Select(types.Request{Model: "m"})
		require.NoError(t, err)
		assert.Equal(t, first.Descriptor.ID, again.Descriptor.ID)
	}
}

// TestSelect_CostOverflowSafe sets up two candidates: an astronomically expensive provider whose
// cost*costWeight would wrap a naive uint64 multiply back down to a tiny
// number (2^62 * 100 wraps to exactly 0), and a modestly priced one. If score() let that wrap through, the
// astronomically expensive provider would come out cheaper than the modest
// one and win selection. The saturating arithmetic must prevent that.
func TestSelect_CostOverflowSafe(t *testing.T) {
	cheap := entry("cheap", []string{"m"}, 5)
	pathological := entry("pathological", []string{"m"}, 1<<62)
	r := New(Snapshot{Entries: []Entry{cheap, pathological}}, 5)

	got, err := r.Select(types.Request{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "cheap", got.Descriptor.ID)
}

func TestSaturatingMul_ClampsOnOverflow(t *testing.T) {
	assert.Equal(t, uint64(200), saturatingMul(2, 100))
	assert.Equal(t, uint64(0), saturatingMul(0, 100))
	assert.Equal(t, uint64(math.MaxUint64), saturatingMul(math.MaxUint64, 100))
	assert.Equal(t, uint64(math.MaxUint64), saturatingMul(1<<60, 1<<60))
}

func TestSaturatingAdd_ClampsOnOverflow(t *testing.T) {
	assert.Equal(t, uint64(30), saturatingAdd(10, 20))
	assert.Equal(t, uint64(math.MaxUint64), saturatingAdd(math.MaxUint64, 1))
	assert.Equal(t, uint64(math.MaxUint64), saturatingAdd(math.MaxUint64-5, 10))
}

func TestReload_SwapsSnapshotAtomically(t *testing.T) {
	p1 := entry("p1", []string{"m"}, 1)
	r := New(Snapshot{Entries: []Entry{p1}}, 5)

	p2 := entry("p2", []string{"m2"}, 1)
	r.Reload(Snapshot{Entries: []Entry{p2}})

	_, err := r.Select(types.Request{Model: "m"})
	assert.ErrorIs(t, err, ErrNoProviderAvailable)

	got, err := r.Select(types.Request{Model: "m2"})
	require.NoError(t, err)
	assert.Equal(t, "p2", got.Descriptor.ID)
}
