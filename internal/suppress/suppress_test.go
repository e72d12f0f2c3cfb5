package suppress

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heaptrack-analyze/heaptrack-print/internal/accum"
	"github.com/heaptrack-analyze/heaptrack-print/internal/trace"
)

func buildLeakyTrace(t *testing.T) (*trace.Interner, *trace.IpTable, *trace.TraceTable, trace.TraceIndex) {
	t.Helper()
	in := trace.NewInterner()
	ips := trace.NewIpTable()
	tt := trace.NewTraceTable()

	leakyFn := in.Intern("leaky_allocator")
	ip := ips.InternIp(0x1000, trace.Frame{FunctionIndex: leakyFn}, nil, trace.NoString)
	root := tt.InternTrace(ip, trace.NoTrace)
	return in, ips, tt, root
}

func TestEngine_Apply_MatchRedirectsLeaked(t *testing.T) {
	in, ips, tt, tr := buildLeakyTrace(t)
	e := NewEngine(WithEmbedded([]string{"leaky_allocator"}))

	allocations := []accum.Allocation{
		{TraceIndex: tr, AllocationData: accum.AllocationData{Allocations: 1, Leaked: 42, Peak: 42}},
	}
	names := func(idx trace.StringIndex) string { return in.Lookup(idx) }

	out := e.Apply(allocations, tt, ips, names, nil, nil)

	require.Len(t, out, 1)
	assert.Equal(t, int64(0), out[0].Leaked)
	assert.Equal(t, int64(1), out[0].Allocations)
	assert.Equal(t, int64(42), out[0].Peak)

	sups := e.Suppressions()
	require.Len(t, sups, 1)
	assert.Equal(t, int64(1), sups[0].Matches)
	assert.Equal(t, int64(42), sups[0].Leaked)
}

func TestEngine_Apply_NoMatchPassesThrough(t *testing.T) {
	in, ips, tt, tr := buildLeakyTrace(t)
	e := NewEngine(WithEmbedded([]string{"unrelated_pattern"}))

	allocations := []accum.Allocation{
		{TraceIndex: tr, AllocationData: accum.AllocationData{Leaked: 10}},
	}
	names := func(idx trace.StringIndex) string { return in.Lookup(idx) }

	out := e.Apply(allocations, tt, ips, names, nil, nil)
	assert.Equal(t, int64(10), out[0].Leaked)
	assert.Equal(t, int64(0), e.Suppressions()[0].Matches)
}

func TestEngine_Apply_EmptyTracePassesThrough(t *testing.T) {
	e := NewEngine(WithEmbedded([]string{"anything"}))
	allocations := []accum.Allocation{
		{TraceIndex: trace.NoTrace, AllocationData: accum.AllocationData{Leaked: 5}},
	}
	tt := trace.NewTraceTable()
	ips := trace.NewIpTable()
	out := e.Apply(allocations, tt, ips, func(trace.StringIndex) string { return "" }, nil, nil)
	assert.Equal(t, int64(5), out[0].Leaked)
}

func TestWithUserFile_ParsesLeakPrefixAndSkipsComments(t *testing.T) {
	r := strings.NewReader("# comment\nleak:foo_bar\n\nleak: baz_qux \n")
	e := NewEngine(WithUserFile(r))
	require.Len(t, e.suppressions, 2)
	assert.Equal(t, "foo_bar", e.suppressions[0].Pattern)
	assert.Equal(t, "baz_qux", e.suppressions[1].Pattern)
}

func TestWithBuiltin_Disabled(t *testing.T) {
	e := NewEngine(WithBuiltin(false))
	assert.Equal(t, 0, e.Len())
}

func TestWithBuiltin_Enabled(t *testing.T) {
	e := NewEngine(WithBuiltin(true))
	assert.Greater(t, e.Len(), 0)
}
