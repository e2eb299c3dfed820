package stats

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSuccess_ResetsConsecutiveErrors(t *testing.T) {
	var tr Tracker
	tr.RecordError()
	tr.RecordError()
	require.Equal(t, uint64(2), tr.Snapshot().ConsecutiveErrors)

	tr.RecordSuccess(1000)
	assert.Equal(t, uint64(0), tr.Snapshot().ConsecutiveErrors)
}

func TestRecordError_RequestsIncludesErrors(t *testing.T) {
	var tr Tracker
	tr.RecordError()
	tr.RecordError()
	tr.RecordSuccess(500)

	v := tr.Snapshot()
	assert.LessOrEqual(t, v.Errors, v.Requests)
	assert.Equal(t, uint64(3), v.Requests)
	assert.Equal(t, uint64(2), v.Errors)
}

func TestEWMA_ConvergesWithinOne(t *testing.T) {
	var tr Tracker
	const latency = uint64(1000)
	for i := 0; i < 40; i++ {
		tr.RecordSuccess(latency)
	}
	got := int64(tr.Snapshot().EWMALatencyUs)
	diff := got - int64(latency)
	if diff < 0 {
		diff = -diff
	}
	assert.Less(t, diff, int64(2))
}

func TestEWMA_FirstSampleNoDivisionIssue(t *testing.T) {
	var tr Tracker
	tr.RecordSuccess(0)
	assert.Equal(t, uint64(0), tr.Snapshot().EWMALatencyUs)

	tr.RecordSuccess(800)
	assert.Equal(t, uint64(800), tr.Snapshot().EWMALatencyUs)
}

func TestTracker_ConcurrentAccess(t *testing.T) {
	var tr Tracker
	var wg sync.WaitGroup
	const goroutines = 64
	const iterations = 200

	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(id int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				if (id+i)%3 == 0 {
					tr.RecordError()
				} else {
					tr.RecordSuccess(uint64(100 + i))
				}
				_ = tr.Snapshot()
			}
		}(g)
	}
	wg.Wait()

	v := tr.Snapshot()
	assert.LessOrEqual(t, v.Errors, v.Requests)
	assert.Equal(t, uint64(goroutines*iterations), v.Requests)
}
