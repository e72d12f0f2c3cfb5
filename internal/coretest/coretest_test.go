package coretest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_Trace_ReusesCallSiteAcrossRepeatedFrameNames(t *testing.T) {
	b := New()
	t1 := b.Trace("main", "foo")
	t2 := b.Trace("main", "foo")
	assert.Equal(t, t1, t2)
}

func TestPeakCScenario_MatchesRecordedAllocationCounts(t *testing.T) {
	b := PeakCScenario()

	var totalAllocations, totalLeaked, totalTemporary int64
	for _, a := range b.Core.Finalize() {
		totalAllocations += a.Allocations
		totalLeaked += a.Leaked
		totalTemporary += a.Temporary
	}

	assert.Equal(t, int64(5), totalAllocations)
	assert.Equal(t, int64(0), totalLeaked)
	assert.Equal(t, int64(2), totalTemporary)
}

func TestPeakCScenario_PerTracePeakNeverBelowLeaked(t *testing.T) {
	b := PeakCScenario()

	allocations := b.Core.Finalize()
	require.NotEmpty(t, allocations)
	for _, a := range allocations {
		assert.GreaterOrEqual(t, a.Peak, a.Leaked)
	}
}
