// Package massif reconstructs a hierarchical heap-usage snapshot file in
// the legacy "massif" format: one block per observed timestamp, with an
// optional detailed call-tree beneath the ones that fall on the
// configured detail frequency.
package massif

import (
	"fmt"
	"io"
	"sort"

	"github.com/heaptrack-analyze/heaptrack-print/internal/accum"
	"github.com/heaptrack-analyze/heaptrack-print/internal/report"
	"github.com/heaptrack-analyze/heaptrack-print/internal/trace"
)

// Writer accumulates the state needed to emit massif-format snapshots:
// the running peak observed since the last snapshot, and the Allocation
// set captured at that peak.
type Writer struct {
	out io.Writer

	tt    *trace.TraceTable
	ips   *trace.IpTable
	names func(trace.StringIndex) string
	stop  trace.StopPredicate

	snapshotID   int64
	lastPeak     int64
	atPeak       []accum.Allocation
	threshold    float64
	detailedFreq int64
}

// Option configures a Writer at construction time.
type Option func(*Writer)

// WithThreshold sets the percentage of current peak memory below which
// a subtree is aggregated into a single "below threshold" line. The
// original profiler's default is 1.0 (percent).
func WithThreshold(percent float64) Option {
	return func(w *Writer) { w.threshold = percent }
}

// WithDetailedFrequency sets how often (every N snapshots) a detailed
// tree is written; 0 disables detailed trees entirely (every snapshot
// is written as "heap_tree=empty").
func WithDetailedFrequency(n int64) Option {
	return func(w *Writer) { w.detailedFreq = n }
}

// NewWriter creates a massif Writer that appends to out.
func NewWriter(out io.Writer, tt *trace.TraceTable, ips *trace.IpTable, names func(trace.StringIndex) string, stop trace.StopPredicate, opts ...Option) *Writer {
	w := &Writer{
		out:          out,
		tt:           tt,
		ips:          ips,
		names:        names,
		stop:         stop,
		threshold:    1.0,
		detailedFreq: 1,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteHeader writes the massif file's fixed preamble, recording the
// profiled command.
func (w *Writer) WriteHeader(command string) error {
	_, err := fmt.Fprintf(w.out, "desc: heaptrack\ncmd: %s\ntime_unit: s\n", command)
	return err
}

// TrackAllocation updates the running interval peak: if totalLeaked now
// exceeds the peak observed since the last snapshot, the peak is
// recorded and liveSnapshot is called to capture the live Allocation set
// at this instant. This must be called after every allocation event so
// the detailed tree eventually written reflects the true peak of the
// interval, not just its endpoint; liveSnapshot is only invoked when a
// new peak is actually confirmed, so the O(n) live-set copy doesn't run
// on every allocation.
func (w *Writer) TrackAllocation(totalLeaked int64, liveSnapshot func() []accum.Allocation) {
	if totalLeaked > 0 && totalLeaked > w.lastPeak {
		w.lastPeak = totalLeaked
		w.atPeak = append([]accum.Allocation(nil), liveSnapshot()...)
	}
}

// WriteSnapshot emits one snapshot block for the current interval and
// advances to the next: snapshot id, timestamp (newStamp in
// milliseconds, rendered in seconds), and either a detailed tree or an
// empty placeholder depending on the detail frequency. If no allocation
// event raised the interval peak since the previous snapshot, the peak
// is seeded from the caller's current totals so the snapshot still
// reports something.
func (w *Writer) WriteSnapshot(newStamp int64, isFinal bool, currentTotalLeaked int64, currentLive []accum.Allocation) error {
	if w.lastPeak == 0 {
		w.lastPeak = currentTotalLeaked
		w.atPeak = append([]accum.Allocation(nil), currentLive...)
	}

	fmt.Fprintf(w.out, "#-----------\nsnapshot=%d\n#-----------\n", w.snapshotID)
	fmt.Fprintf(w.out, "time=%g\n", float64(newStamp)*0.001)
	fmt.Fprintf(w.out, "mem_heap_B=%d\n", w.lastPeak)
	fmt.Fprint(w.out, "mem_heap_extra_B=0\nmem_stacks_B=0\n")

	detailed := w.detailedFreq > 0 && (isFinal || w.snapshotID%w.detailedFreq == 0)
	if detailed {
		fmt.Fprint(w.out, "heap_tree=detailed\n")
		threshold := int64(float64(w.lastPeak) * w.threshold * 0.01)
		w.writeBacktrace(w.atPeak, w.lastPeak, threshold, trace.NoIp, 0)
	} else {
		fmt.Fprint(w.out, "heap_tree=empty\n")
	}

	w.snapshotID++
	w.lastPeak = 0
	return nil
}

// writeBacktrace recursively renders one node of the heap tree: it
// merges allocations by coarse call site, sorts descending by leaked,
// and emits either a child node (if its leaked share is at or above
// threshold) or folds it into a single aggregate "below threshold" line.
func (w *Writer) writeBacktrace(allocations []accum.Allocation, heapSize int64, threshold int64, location trace.IpIndex, depth int) {
	merged := report.Merge(allocations, w.tt, w.ips)
	sortMergedByLeakedDesc(merged)

	ip := w.ips.Find(location)
	shouldStop := w.stop != nil && w.stop(w.ips, location)

	var numAllocs, skipped int
	var skippedLeaked int64

	if !shouldStop {
		for i := range merged {
			if merged[i].Leaked < 0 {
				break
			}
			if merged[i].Leaked >= threshold {
				numAllocs++
				advanceToParent(merged[i].Traces, w.tt)
			} else {
				skipped++
				skippedLeaked += merged[i].Leaked
			}
		}
	}

	w.printIndent(depth)
	n := numAllocs
	if skipped > 0 {
		n++
	}
	fmt.Fprintf(w.out, "n%d: %d", n, heapSize)
	if depth == 0 {
		fmt.Fprint(w.out, " (heap allocation functions) malloc/new/new[], --alloc-fns, etc.\n")
	} else {
		fmt.Fprintf(w.out, " 0x%x: ", ip.Address)
		if ip.Frame.FunctionIndex != trace.NoString {
			fmt.Fprint(w.out, w.names(ip.Frame.FunctionIndex))
		} else {
			fmt.Fprint(w.out, "???")
		}
		fmt.Fprint(w.out, " (")
		switch {
		case ip.Frame.FileIndex != trace.NoString:
			fmt.Fprintf(w.out, "%s:%d", w.names(ip.Frame.FileIndex), ip.Frame.Line)
		case ip.ModuleIndex != trace.NoString:
			fmt.Fprint(w.out, w.names(ip.ModuleIndex))
		default:
			fmt.Fprint(w.out, "???")
		}
		fmt.Fprint(w.out, ")\n")
	}

	flushSkipped := func() {
		if skipped == 0 {
			return
		}
		w.printIndent(depth)
		fmt.Fprintf(w.out, " n0: %d in %d places, all below massif's threshold (%g)\n", skippedLeaked, skipped, w.threshold)
		skipped = 0
	}

	if shouldStop {
		return
	}
	for i := range merged {
		if merged[i].Leaked > 0 && merged[i].Leaked >= threshold {
			if skippedLeaked > merged[i].Leaked {
				flushSkipped()
			}
			w.writeBacktrace(merged[i].Traces, merged[i].Leaked, threshold, merged[i].IpIndex, depth+1)
		}
	}
	flushSkipped()
}

func (w *Writer) printIndent(depth int) {
	for i := 0; i < depth; i++ {
		fmt.Fprint(w.out, " ")
	}
}

// advanceToParent replaces each Allocation's trace index with its
// parent's, in place, so a recursive call one level deeper does not
// endlessly re-encounter the frame just rendered.
func advanceToParent(allocations []accum.Allocation, tt *trace.TraceTable) {
	for i := range allocations {
		allocations[i].TraceIndex = tt.Find(allocations[i].TraceIndex).ParentIndex
	}
}

func sortMergedByLeakedDesc(merged []report.MergedAllocation) {
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Leaked > merged[j].Leaked })
}
