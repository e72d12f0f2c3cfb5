// Package core implements the Event Interface: the contract through
// which an external reader drives the allocation aggregation engine by
// firing callbacks in file order, and the finalize step that turns the
// accumulated state into reports.
package core

import (
	"io"

	"fmt"

	"github.com/heaptrack-analyze/heaptrack-print/internal/accum"
	"github.com/heaptrack-analyze/heaptrack-print/internal/massif"
	"github.com/heaptrack-analyze/heaptrack-print/internal/report"
	"github.com/heaptrack-analyze/heaptrack-print/internal/suppress"
	"github.com/heaptrack-analyze/heaptrack-print/internal/trace"
	"github.com/heaptrack-analyze/heaptrack-print/pkg/utils"
)

// defaultStopFunctions names the functions at which a backtrace walk
// considers itself at the root, even if the reader recorded further
// parent frames. "main" covers the overwhelming majority of traced
// programs; callers may replace the set via WithStopFunctions.
var defaultStopFunctions = map[string]bool{
	"main": true,
}

// Core holds every table and accumulator that make up one analyzed run.
// A second, independent Core is created per file in diff mode; nothing
// here is safe for concurrent use by design — a single analyzer
// processes a single file, serially.
type Core struct {
	Strings *trace.Interner
	Ips     *trace.IpTable
	Traces  *trace.TraceTable
	Accum   *accum.Accumulator

	stopFunctions map[string]bool
	log           utils.Logger

	debuggeeCommand string
	systemInfo      SystemInfo

	histogram    *report.Histogram
	recordSizes  bool
	massifWriter *massif.Writer
	massifOpened bool
}

// SystemInfo mirrors the small amount of environment data the reader
// surfaces before the event stream proper: page size and peak RSS, used
// only for the final run summary.
type SystemInfo struct {
	PageSize uint64
	PeakRSS  uint64
}

// Option configures a Core at construction time.
type Option func(*Core)

// WithLogger attaches a diagnostic logger; data-integrity warnings
// (recursion detected, unknown records forwarded by the reader) are
// reported through it. Defaults to a discarding NullLogger when
// omitted.
func WithLogger(l utils.Logger) Option {
	return func(c *Core) { c.log = l }
}

// WithStopFunctions replaces the default stop-function set ("main")
// with names.
func WithStopFunctions(names ...string) Option {
	return func(c *Core) {
		m := make(map[string]bool, len(names))
		for _, n := range names {
			m[n] = true
		}
		c.stopFunctions = m
	}
}

// WithHistogram enables per-size allocation counting.
func WithHistogram() Option {
	return func(c *Core) {
		c.histogram = report.NewHistogram()
		c.recordSizes = true
	}
}

// WithMassifWriter attaches a snapshot/massif writer. HandleDebuggee
// writes its header; HandleAllocation and HandleTimeStamp drive it.
func WithMassifWriter(w *massif.Writer) Option {
	return func(c *Core) {
		c.massifWriter = w
		c.massifOpened = true
	}
}

// New creates an empty Core ready to receive events.
func New(opts ...Option) *Core {
	c := &Core{
		Strings:       trace.NewInterner(),
		Ips:           trace.NewIpTable(),
		Traces:        trace.NewTraceTable(),
		Accum:         accum.NewAccumulator(),
		stopFunctions: defaultStopFunctions,
		log:           &utils.NullLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StopPredicate returns the trace.StopPredicate bound to this Core's
// configured stop-function set.
func (c *Core) StopPredicate() trace.StopPredicate {
	return func(ips *trace.IpTable, ipIndex trace.IpIndex) bool {
		ip := ips.Find(ipIndex)
		return c.stopFunctions[c.Strings.Lookup(ip.Frame.FunctionIndex)]
	}
}

// NameLookup returns the string-lookup function used throughout the
// report and massif packages.
func (c *Core) NameLookup() func(trace.StringIndex) string {
	return c.Strings.Lookup
}

// Logger returns the diagnostic logger a driving reader should use for
// its own data-integrity warnings (e.g. an unknown record type), so
// those warnings go through the same sink as onRecursion's.
func (c *Core) Logger() utils.Logger {
	return c.log
}

// HandleAllocation records a new live allocation of size bytes at
// traceIndex: updates the accumulator, the optional size histogram, and
// feeds the massif writer's peak tracker.
func (c *Core) HandleAllocation(traceIndex trace.TraceIndex, size int64) {
	c.Accum.HandleAllocation(traceIndex, size)
	if c.recordSizes {
		c.histogram.Record(uint64(size))
	}
	if c.massifOpened {
		c.massifWriter.TrackAllocation(c.Accum.TotalLeaked(), c.Accum.Snapshot)
	}
}

// HandleFree retires size bytes previously allocated at traceIndex.
func (c *Core) HandleFree(traceIndex trace.TraceIndex, size int64) {
	c.Accum.HandleFree(traceIndex, size)
}

// HandleTemporary marks the most recent allocation at traceIndex as
// temporary.
func (c *Core) HandleTemporary(traceIndex trace.TraceIndex) {
	c.Accum.HandleTemporary(traceIndex)
}

// HandleTimeStamp is called at each time advance observed by the
// reader. Only the first pass is acted upon: a second pass over the
// same data (used by some readers to resolve forward references) must
// not double-emit a snapshot.
func (c *Core) HandleTimeStamp(newStamp int64, isFinal bool, firstPass bool) error {
	if !firstPass || !c.massifOpened {
		return nil
	}
	return c.massifWriter.WriteSnapshot(newStamp, isFinal, c.Accum.TotalLeaked(), c.Accum.Snapshot())
}

// HandleDebuggee records the profiled command and, if a massif writer
// is attached, writes its header.
func (c *Core) HandleDebuggee(command string) error {
	c.debuggeeCommand = command
	c.log.Info("Debuggee command was: " + command)
	if c.massifOpened {
		return c.massifWriter.WriteHeader(command)
	}
	return nil
}

// HandleSystemInfo records the page size and peak RSS the reader
// observed, used only in the final run summary.
func (c *Core) HandleSystemInfo(info SystemInfo) {
	c.systemInfo = info
}

// DebuggeeCommand returns the command recorded by HandleDebuggee, or ""
// if none was ever reported.
func (c *Core) DebuggeeCommand() string {
	return c.debuggeeCommand
}

// SystemInfoSnapshot returns the system info recorded by
// HandleSystemInfo.
func (c *Core) SystemInfoSnapshot() SystemInfo {
	return c.systemInfo
}

// Histogram returns the size histogram, or nil if WithHistogram was not
// used.
func (c *Core) Histogram() *report.Histogram {
	return c.histogram
}

// WriteHistogram writes the configured size histogram to w. It is a
// no-op returning nil if WithHistogram was never requested.
func (c *Core) WriteHistogram(w io.Writer) error {
	if c.histogram == nil {
		return nil
	}
	return report.WriteHistogram(w, c.histogram)
}

// Finalize freezes the Accumulator's current state. The returned
// allocations are ready to be passed through ApplySuppressions and then
// report.Merge, in that order.
func (c *Core) Finalize() []accum.Allocation {
	return c.Accum.Snapshot()
}

// onRecursion logs one diagnostic warning per corrupted trace
// encountered while walking backtraces; the offending record is
// skipped and the run continues rather than aborting.
func (c *Core) onRecursion(traceIndex trace.TraceIndex) {
	c.log.Warn(fmt.Sprintf("recursive trace detected, aborting walk at trace %d", traceIndex))
}

// ApplySuppressions runs engine over allocations, logging a diagnostic
// for any trace whose parent chain loops back on itself.
func (c *Core) ApplySuppressions(engine *suppress.Engine, allocations []accum.Allocation) []accum.Allocation {
	return engine.Apply(allocations, c.Traces, c.Ips, c.NameLookup(), c.StopPredicate(), c.onRecursion)
}

// FilterByFunctionSubstring keeps only the allocations whose backtrace
// contains a frame matching pattern, logging a diagnostic for any trace
// whose parent chain loops back on itself.
func (c *Core) FilterByFunctionSubstring(allocations []accum.Allocation, pattern string) []accum.Allocation {
	return report.FilterByFunctionSubstring(allocations, c.Traces, c.Ips, c.NameLookup(), c.StopPredicate(), pattern, c.onRecursion)
}
