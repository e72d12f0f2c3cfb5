// Package accum holds the per-trace running allocation counters and the
// accumulator that keeps them up to date as allocation and free events
// arrive from the reader.
package accum

import "github.com/heaptrack-analyze/heaptrack-print/internal/trace"

// AllocationData is the set of running costs tracked for a single trace
// (or, after merging, for a group of traces). All four fields are signed
// so that diff mode can hold a negative delta.
type AllocationData struct {
	Allocations int64
	Temporary   int64
	Leaked      int64
	Peak        int64
}

// Add returns the element-wise sum of d and o.
func (d AllocationData) Add(o AllocationData) AllocationData {
	return AllocationData{
		Allocations: d.Allocations + o.Allocations,
		Temporary:   d.Temporary + o.Temporary,
		Leaked:      d.Leaked + o.Leaked,
		Peak:        d.Peak + o.Peak,
	}
}

// Sub returns the element-wise difference d - o, used by diff mode.
func (d AllocationData) Sub(o AllocationData) AllocationData {
	return AllocationData{
		Allocations: d.Allocations - o.Allocations,
		Temporary:   d.Temporary - o.Temporary,
		Leaked:      d.Leaked - o.Leaked,
		Peak:        d.Peak - o.Peak,
	}
}

// IsEmpty reports whether every field is zero.
func (d AllocationData) IsEmpty() bool {
	return d == AllocationData{}
}

// Allocation binds a trace identity to its running costs. It is keyed
// uniquely by TraceIndex within an Accumulator.
type Allocation struct {
	TraceIndex trace.TraceIndex
	AllocationData
}

// Accumulator owns the per-trace Allocation set and mutates it in place
// as the reader fires allocation and free events. It never removes an
// entry: once a trace has allocated, it keeps a slot for the life of
// the run, even once its live size returns to zero.
type Accumulator struct {
	allocations []Allocation
	byTrace     map[trace.TraceIndex]int // trace -> index into allocations
	totalLeaked int64
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		byTrace: make(map[trace.TraceIndex]int),
	}
}

// entry returns the Allocation slot for traceIndex, creating one with
// zeroed counters on first sight.
func (a *Accumulator) entry(traceIndex trace.TraceIndex) *Allocation {
	if i, ok := a.byTrace[traceIndex]; ok {
		return &a.allocations[i]
	}
	a.allocations = append(a.allocations, Allocation{TraceIndex: traceIndex})
	i := len(a.allocations) - 1
	a.byTrace[traceIndex] = i
	return &a.allocations[i]
}

// HandleAllocation records a new live allocation of size bytes at
// traceIndex: allocations and leaked both grow by size, and peak grows
// to match if the trace's live size now exceeds its previous peak.
func (a *Accumulator) HandleAllocation(traceIndex trace.TraceIndex, size int64) {
	e := a.entry(traceIndex)
	e.Allocations++
	e.Leaked += size
	if e.Leaked > e.Peak {
		e.Peak = e.Leaked
	}
	a.totalLeaked += size
}

// HandleFree retires size bytes of a previous allocation at traceIndex.
// It only ever reduces leaked; whether the freed allocation was
// temporary is recorded separately by a HandleTemporary call for the
// same trace.
func (a *Accumulator) HandleFree(traceIndex trace.TraceIndex, size int64) {
	e := a.entry(traceIndex)
	e.Leaked -= size
	a.totalLeaked -= size
}

// HandleTemporary marks the most recent allocation at traceIndex as
// temporary: it was freed before any other allocation event was
// observed, i.e. it never contributed to a widening of the live set.
func (a *Accumulator) HandleTemporary(traceIndex trace.TraceIndex) {
	a.entry(traceIndex).Temporary++
}

// TotalLeaked returns the sum of Leaked across every known trace,
// maintained incrementally as allocations and frees arrive so the hot
// per-event path never rescans the full trace set. It is the running
// total the snapshot writer compares against lastPeak.
func (a *Accumulator) TotalLeaked() int64 {
	return a.totalLeaked
}

// Snapshot returns a copy of the current Allocation set. Allocation
// holds no pointers into the accumulator's tables, so the copy is cheap
// and safe for the caller to sort or filter freely.
func (a *Accumulator) Snapshot() []Allocation {
	out := make([]Allocation, len(a.allocations))
	copy(out, a.allocations)
	return out
}

// Len returns the number of distinct traces with a recorded Allocation.
func (a *Accumulator) Len() int {
	return len(a.allocations)
}
