package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heaptrack-analyze/heaptrack-print/internal/accum"
	"github.com/heaptrack-analyze/heaptrack-print/internal/trace"
)

func buildTwoCallerScenario(t *testing.T) (*trace.Interner, *trace.IpTable, *trace.TraceTable, trace.TraceIndex, trace.TraceIndex) {
	t.Helper()
	in := trace.NewInterner()
	ips := trace.NewIpTable()
	tt := trace.NewTraceTable()

	allocFn := in.Intern("allocate_something")
	fooFn := in.Intern("foo")
	barFn := in.Intern("bar")

	// foo -> allocate_something, and bar -> allocate_something, sharing
	// the same leaf function name but at different addresses: merging by
	// coarse IP should still collapse them into one MergedAllocation.
	fooIp := ips.InternIp(0x10, trace.Frame{FunctionIndex: fooFn}, nil, trace.NoString)
	barIp := ips.InternIp(0x20, trace.Frame{FunctionIndex: barFn}, nil, trace.NoString)
	allocIpAtFoo := ips.InternIp(0x100, trace.Frame{FunctionIndex: allocFn}, nil, trace.NoString)
	allocIpAtBar := ips.InternIp(0x200, trace.Frame{FunctionIndex: allocFn}, nil, trace.NoString)

	fooTrace := tt.InternTrace(fooIp, trace.NoTrace)
	barTrace := tt.InternTrace(barIp, trace.NoTrace)
	fromFoo := tt.InternTrace(allocIpAtFoo, fooTrace)
	fromBar := tt.InternTrace(allocIpAtBar, barTrace)

	return in, ips, tt, fromFoo, fromBar
}

func TestMerge_CollapsesCoarsEqualLeafIPs(t *testing.T) {
	_, ips, tt, fromFoo, fromBar := buildTwoCallerScenario(t)

	allocations := []accum.Allocation{
		{TraceIndex: fromFoo, AllocationData: accum.AllocationData{Allocations: 2, Peak: 100}},
		{TraceIndex: fromBar, AllocationData: accum.AllocationData{Allocations: 3, Peak: 75}},
	}

	merged := Merge(allocations, tt, ips)

	require.Len(t, merged, 1)
	assert.Equal(t, int64(5), merged[0].Allocations)
	assert.Equal(t, int64(175), merged[0].Peak)
	assert.Len(t, merged[0].Traces, 2)
}

func TestMerge_ShallowGroupingKeepsDistinctPrefixesSeparate(t *testing.T) {
	in := trace.NewInterner()
	ips := trace.NewIpTable()
	tt := trace.NewTraceTable()

	a := in.Intern("A")
	b := in.Intern("B")
	c := in.Intern("C")
	dFn := in.Intern("D")
	fFn := in.Intern("F")

	aIp := ips.InternIp(1, trace.Frame{FunctionIndex: a}, nil, trace.NoString)
	bIp := ips.InternIp(2, trace.Frame{FunctionIndex: b}, nil, trace.NoString)
	cIp := ips.InternIp(3, trace.Frame{FunctionIndex: c}, nil, trace.NoString)
	dIp := ips.InternIp(4, trace.Frame{FunctionIndex: dFn}, nil, trace.NoString)
	fIp := ips.InternIp(5, trace.Frame{FunctionIndex: fFn}, nil, trace.NoString)

	aTrace := tt.InternTrace(aIp, trace.NoTrace)
	bTrace := tt.InternTrace(bIp, aTrace)
	cTrace := tt.InternTrace(cIp, bTrace)
	traceD := tt.InternTrace(dIp, cTrace)
	traceF := tt.InternTrace(fIp, cTrace)

	allocations := []accum.Allocation{
		{TraceIndex: traceD, AllocationData: accum.AllocationData{Allocations: 1}},
		{TraceIndex: traceF, AllocationData: accum.AllocationData{Allocations: 1}},
	}
	merged := Merge(allocations, tt, ips)
	assert.Len(t, merged, 2)
}

func TestCostField_OfAndParse(t *testing.T) {
	d := accum.AllocationData{Allocations: 1, Temporary: 2, Leaked: 3, Peak: 4}
	assert.Equal(t, int64(1), CostAllocations.Of(d))
	assert.Equal(t, int64(4), CostPeak.Of(d))

	f, ok := ParseCostField("leaked")
	require.True(t, ok)
	assert.Equal(t, CostLeaked, f)

	_, ok = ParseCostField("bogus")
	assert.False(t, ok)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "0B", FormatBytes(0))
	assert.Equal(t, "512B", FormatBytes(512))
	assert.Equal(t, "1.50KB", FormatBytes(1500))
	assert.Equal(t, "2.00MB", FormatBytes(2_000_000))
}

func TestWriteFlamegraph_FoldedStackFormat(t *testing.T) {
	in, ips, tt, fromFoo, _ := buildTwoCallerScenario(t)
	allocations := []accum.Allocation{
		{TraceIndex: fromFoo, AllocationData: accum.AllocationData{Allocations: 3}},
	}
	lookup := func(idx trace.StringIndex) string { return in.Lookup(idx) }

	var buf bytes.Buffer
	err := WriteFlamegraph(&buf, allocations, tt, ips, lookup, CostAllocations)
	require.NoError(t, err)
	assert.Equal(t, "foo;allocate_something; 3\n", buf.String())
}

func TestWriteFlamegraph_EmptyTraceEmitsPlaceholder(t *testing.T) {
	_, ips, tt, _, _ := buildTwoCallerScenario(t)
	allocations := []accum.Allocation{
		{TraceIndex: trace.NoTrace, AllocationData: accum.AllocationData{Allocations: 1, Leaked: 64}},
	}
	lookup := func(idx trace.StringIndex) string { return "" }

	var buf bytes.Buffer
	err := WriteFlamegraph(&buf, allocations, tt, ips, lookup, CostLeaked)
	require.NoError(t, err)
	assert.Equal(t, "?? 64\n", buf.String())
}

func TestWriteHistogram_SortedBySizeAscending(t *testing.T) {
	h := NewHistogram()
	h.Record(64)
	h.Record(16)
	h.Record(64)

	var buf bytes.Buffer
	require.NoError(t, WriteHistogram(&buf, h))
	assert.Equal(t, "16\t1\n64\t2\n", buf.String())
}
