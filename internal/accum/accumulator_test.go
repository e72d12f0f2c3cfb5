package accum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heaptrack-analyze/heaptrack-print/internal/trace"
)

func TestAccumulator_HandleAllocation_TracksPeak(t *testing.T) {
	a := NewAccumulator()
	tr := trace.TraceIndex(1)

	a.HandleAllocation(tr, 100)
	a.HandleAllocation(tr, 50)
	a.HandleFree(tr, 50)

	snap := a.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, int64(2), snap[0].Allocations)
	assert.Equal(t, int64(100), snap[0].Leaked)
	assert.Equal(t, int64(150), snap[0].Peak)
	assert.GreaterOrEqual(t, snap[0].Peak, snap[0].Leaked)
}

func TestAccumulator_HandleFree_NeverDropsBelowZeroInvariant(t *testing.T) {
	a := NewAccumulator()
	tr := trace.TraceIndex(1)

	a.HandleAllocation(tr, 10)
	a.HandleFree(tr, 10)

	snap := a.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, int64(0), snap[0].Leaked)
	assert.Equal(t, int64(10), snap[0].Peak)
}

func TestAccumulator_HandleTemporary_LeavesOtherCountersIntact(t *testing.T) {
	a := NewAccumulator()
	tr := trace.TraceIndex(1)

	a.HandleAllocation(tr, 10)
	a.HandleFree(tr, 10)
	a.HandleTemporary(tr)

	snap := a.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, int64(1), snap[0].Temporary)
	assert.Equal(t, int64(1), snap[0].Allocations)
	assert.Equal(t, int64(0), snap[0].Leaked)
}

func TestAccumulator_DistinctTraces_GetSeparateEntries(t *testing.T) {
	a := NewAccumulator()
	a.HandleAllocation(trace.TraceIndex(1), 10)
	a.HandleAllocation(trace.TraceIndex(2), 20)

	assert.Equal(t, 2, a.Len())
	assert.Equal(t, int64(30), a.TotalLeaked())
}

func TestAccumulator_PeakCCase(t *testing.T) {
	// Mirrors the peak.c scenario in its actual execution order:
	// foo->allocate_something(100) called twice, bar->allocate_something(25)
	// called three times, all freed. The moment of peak is right after b2
	// is allocated, while f1 is still live: 100 + 25 = 125.
	a := NewAccumulator()
	foo := trace.TraceIndex(1)
	bar := trace.TraceIndex(2)

	a.HandleAllocation(foo, 100) // f1 allocated
	a.HandleAllocation(bar, 25)  // b2 allocated, coexists with f1: 100+25 = 125 is the true peak
	a.HandleFree(foo, 100)       // f1 freed
	a.HandleAllocation(bar, 25)  // b3 allocated
	a.HandleAllocation(bar, 25)  // b4 allocated
	a.HandleFree(bar, 25)        // b2 freed
	a.HandleFree(bar, 25)        // b3 freed
	a.HandleFree(bar, 25)        // b4 freed
	a.HandleTemporary(bar)       // b4 was temporary
	a.HandleAllocation(foo, 100) // f2 allocated
	a.HandleFree(foo, 100)       // f2 freed
	a.HandleTemporary(foo)       // f2 was temporary

	snap := a.Snapshot()
	var allocations, leaked, temporary int64
	for _, e := range snap {
		allocations += e.Allocations
		leaked += e.Leaked
		temporary += e.Temporary
		assert.GreaterOrEqual(t, e.Peak, e.Leaked)
	}
	assert.Equal(t, int64(5), allocations)
	assert.Equal(t, int64(0), leaked)
	assert.Equal(t, int64(2), temporary)

	// The global interval peak (125: f1 + b2 coexisting) is a property
	// of the snapshot writer, which tracks total live bytes across all
	// traces, not of any single trace's own peak here.
}
