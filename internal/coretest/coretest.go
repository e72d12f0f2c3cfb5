// Package coretest builds core.Core instances by firing the Event
// Interface directly, the way a real reader would, without decoding any
// on-disk record format. It exists so both unit tests and example
// fixtures can construct a populated Core without depending on a
// concrete file format.
package coretest

import (
	"github.com/heaptrack-analyze/heaptrack-print/internal/core"
	"github.com/heaptrack-analyze/heaptrack-print/internal/trace"
)

// Builder accumulates calls against a Core under construction, caching
// interned frames by name so a scenario can refer to the same call site
// repeatedly without re-specifying its address.
type Builder struct {
	Core *core.Core

	frames map[string]trace.IpIndex
}

// New wraps a freshly-created Core (with opts applied) in a Builder.
func New(opts ...core.Option) *Builder {
	return &Builder{
		Core:   core.New(opts...),
		frames: make(map[string]trace.IpIndex),
	}
}

// frame interns fnName as a one-frame instruction pointer, reusing the
// same IpIndex on repeated calls with the same name so that traces
// sharing a call site actually share an IpIndex, not just a coarsely
// equal one.
func (b *Builder) frame(fnName string) trace.IpIndex {
	if idx, ok := b.frames[fnName]; ok {
		return idx
	}
	fn := b.Core.Strings.Intern(fnName)
	idx := b.Core.Ips.InternIp(uint64(len(b.frames))+1, trace.Frame{FunctionIndex: fn}, nil, trace.NoString)
	b.frames[fnName] = idx
	return idx
}

// Trace interns a backtrace from root to leaf: Trace("main", "foo",
// "malloc") builds main -> foo -> malloc and returns the TraceIndex of
// the leaf node.
func (b *Builder) Trace(frames ...string) trace.TraceIndex {
	parent := trace.NoTrace
	for _, name := range frames {
		parent = b.Core.Traces.InternTrace(b.frame(name), parent)
	}
	return parent
}

// Allocate fires handleAllocation for size bytes at the trace built from
// frames (root to leaf).
func (b *Builder) Allocate(size int64, frames ...string) trace.TraceIndex {
	tr := b.Trace(frames...)
	b.Core.HandleAllocation(tr, size)
	return tr
}

// Free fires handleFree for size bytes at traceIndex.
func (b *Builder) Free(traceIndex trace.TraceIndex, size int64) {
	b.Core.HandleFree(traceIndex, size)
}

// Temporary fires handleTemporary at traceIndex.
func (b *Builder) Temporary(traceIndex trace.TraceIndex) {
	b.Core.HandleTemporary(traceIndex)
}

// PeakCScenario replays the canonical peak.c allocation pattern: two
// call sites (foo, bar) both reachable from main, in the exact order
// peak.c's main executes them, so the true memory peak (125 bytes: f1's
// 100 plus b2's 25, live together right after b2 is allocated and
// before f1 is freed) occurs mid-run rather than at either the first or
// the final tally. b4 and f2 are each freed immediately with no other
// allocation intervening, so both are marked temporary. Returns the
// populated Builder so callers can inspect Core directly.
func PeakCScenario() *Builder {
	b := New()

	foo := b.Allocate(100, "main", "foo", "allocate_something") // f1
	bar := b.Allocate(25, "main", "bar", "allocate_something")  // b2, coexists with f1: 100+25 = 125 is the true peak
	b.Free(foo, 100)                                             // f1 freed
	b.Allocate(25, "main", "bar", "allocate_something") // b3
	b.Allocate(25, "main", "bar", "allocate_something") // b4
	b.Free(bar, 25)                                     // b2 freed
	b.Free(bar, 25)                                     // b3 freed
	b.Free(bar, 25)                                     // b4 freed
	b.Temporary(bar)                                    // b4 was temporary
	b.Allocate(100, "main", "foo", "allocate_something") // f2
	b.Free(foo, 100)                                     // f2 freed
	b.Temporary(foo)                                     // f2 was temporary

	return b
}
