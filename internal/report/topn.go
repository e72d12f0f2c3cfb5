package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/heaptrack-analyze/heaptrack-print/internal/accum"
	"github.com/heaptrack-analyze/heaptrack-print/internal/trace"
)

// Limits caps the size of a top-N report: at most PeakLimit top-level
// entries, and within each, at most SubPeakLimit nested source traces.
type Limits struct {
	PeakLimit    int
	SubPeakLimit int
}

// DefaultLimits matches the original profiler's defaults.
func DefaultLimits() Limits {
	return Limits{PeakLimit: 10, SubPeakLimit: 5}
}

// abs64 returns the absolute value of a signed 64-bit cost, used because
// diff mode reports signed deltas that must still sort by magnitude.
func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// LabelFunc renders the header line for one top-level MergedAllocation.
type LabelFunc func(w io.Writer, data accum.AllocationData)

// SubLabelFunc renders the header line for one nested source Allocation.
type SubLabelFunc func(w io.Writer, data accum.AllocationData)

// Printer renders top-N reports against a fixed trace/ip table pair so
// that backtraces can be resolved to function/file/module names.
type Printer struct {
	tt    *trace.TraceTable
	ips   *trace.IpTable
	names func(trace.StringIndex) string
}

// NewPrinter creates a Printer bound to the given tables and string
// lookup function.
func NewPrinter(tt *trace.TraceTable, ips *trace.IpTable, names func(trace.StringIndex) string) *Printer {
	return &Printer{tt: tt, ips: ips, names: names}
}

// PrintMerged prints the merged top-N report for field, sorted
// descending by |field|, stopping at the first zero or after limits.PeakLimit
// entries, whichever comes first. Each entry's nested traces are sorted
// and capped the same way via limits.SubPeakLimit, with an overflow
// summary line when more remain.
func (p *Printer) PrintMerged(w io.Writer, merged []MergedAllocation, field CostField, limits Limits, label LabelFunc, sublabel SubLabelFunc) {
	sorted := append([]MergedAllocation(nil), merged...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return abs64(field.Of(sorted[i].AllocationData)) > abs64(field.Of(sorted[j].AllocationData))
	})

	n := limits.PeakLimit
	if n > len(sorted) {
		n = len(sorted)
	}
	for i := 0; i < n; i++ {
		entry := sorted[i]
		value := field.Of(entry.AllocationData)
		if value == 0 {
			break
		}
		label(w, entry.AllocationData)
		p.printIp(w, entry.IpIndex, 0)
		if entry.IpIndex == trace.NoIp {
			continue
		}

		traces := append([]accum.Allocation(nil), entry.Traces...)
		sort.SliceStable(traces, func(a, b int) bool {
			return abs64(field.Of(traces[a].AllocationData)) > abs64(field.Of(traces[b].AllocationData))
		})

		sub := limits.SubPeakLimit
		if sub > len(traces) {
			sub = len(traces)
		}
		var handled int64
		for j := 0; j < sub; j++ {
			t := traces[j]
			tv := field.Of(t.AllocationData)
			if tv == 0 {
				break
			}
			sublabel(w, t.AllocationData)
			handled += tv
			p.printBacktrace(w, t.TraceIndex, 2, true)
		}
		if len(traces) > limits.SubPeakLimit {
			remaining := field.Of(entry.AllocationData) - handled
			if field == CostAllocations {
				fmt.Fprintf(w, "  and %d from %d other places\n", remaining, len(traces)-limits.SubPeakLimit)
			} else {
				fmt.Fprintf(w, "  and %s from %d other places\n", FormatBytes(remaining), len(traces)-limits.SubPeakLimit)
			}
		}
		fmt.Fprintln(w)
	}
}

func (p *Printer) printIp(w io.Writer, idx trace.IpIndex, indent int) {
	ip := p.ips.Find(idx)
	p.printIndent(w, indent)

	if ip.Frame.FunctionIndex != trace.NoString {
		fmt.Fprint(w, p.names(ip.Frame.FunctionIndex))
	} else {
		fmt.Fprintf(w, "0x%x", ip.Address)
	}

	fmt.Fprintln(w)
	p.printIndent(w, indent+1)
	if ip.Frame.FileIndex != trace.NoString {
		fmt.Fprintf(w, "at %s:%d\n", p.names(ip.Frame.FileIndex), ip.Frame.Line)
		p.printIndent(w, indent+1)
	}
	if ip.ModuleIndex != trace.NoString {
		fmt.Fprintf(w, "in %s", p.names(ip.ModuleIndex))
	} else {
		fmt.Fprint(w, "in ??")
	}
	fmt.Fprintln(w)

	for _, inlined := range ip.Inlined {
		p.printIndent(w, indent)
		fmt.Fprintln(w, p.names(inlined.FunctionIndex))
		p.printIndent(w, indent+1)
		fmt.Fprintf(w, "at %s:%d\n", p.names(inlined.FileIndex), inlined.Line)
	}
}

func (p *Printer) printIndent(w io.Writer, indent int) {
	for i := 0; i < indent; i++ {
		fmt.Fprint(w, " ")
	}
}

// printBacktrace prints the full leaf-to-root backtrace for traceIndex,
// one frame per line, optionally skipping the leaf (already printed as
// the entry's label) and halting on a corrupted parent chain.
func (p *Printer) printBacktrace(w io.Writer, traceIndex trace.TraceIndex, indent int, skipFirst bool) {
	if traceIndex == trace.NoTrace {
		fmt.Fprintln(w, "  ??")
		return
	}
	guard := trace.NewRecursionGuard(p.tt.Len() + 1)
	first := true
	p.tt.Walk(traceIndex, p.ips, nil, guard, func(ipIndex trace.IpIndex) bool {
		if !(first && skipFirst) {
			p.printIp(w, ipIndex, indent)
		}
		first = false
		return true
	})
}
