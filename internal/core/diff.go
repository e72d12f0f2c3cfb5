package core

import (
	"github.com/heaptrack-analyze/heaptrack-print/internal/accum"
	"github.com/heaptrack-analyze/heaptrack-print/internal/report"
	"github.com/heaptrack-analyze/heaptrack-print/internal/trace"
)

// DiffEntry is one reconciled trace in diff mode: the allocation data
// is the element-wise subtraction after-minus-before, and may be
// negative in any field now that both sides have been combined.
type DiffEntry struct {
	// TraceIndex refers into the "after" Core's TraceTable, or NoTrace
	// when the trace only exists on the "before" side.
	TraceIndex trace.TraceIndex
	accum.AllocationData
}

type diffSlot struct {
	traceIndex trace.TraceIndex
	data       accum.AllocationData
}

// keyedBySide reconciles c's finalized Allocation vector into one slot
// per distinct ChainKey, summing costs for any traces that happen to
// share a key (possible once coarse, address-ignoring comparison is in
// play).
func keyedBySide(c *Core, allocations []accum.Allocation) map[string]diffSlot {
	out := make(map[string]diffSlot, len(allocations))
	guard := trace.NewRecursionGuard(c.Traces.Len() + 1)
	stop := c.StopPredicate()

	for _, a := range allocations {
		key, recursed := report.ChainKey(a.TraceIndex, c.Traces, c.Ips, c.NameLookup(), stop, guard)
		if recursed {
			c.onRecursion(a.TraceIndex)
		}
		slot := out[key]
		slot.traceIndex = a.TraceIndex
		slot.data = slot.data.Add(a.AllocationData)
		out[key] = slot
	}
	return out
}

// Diff reconciles two independently parsed Cores and returns one
// DiffEntry per distinct trace identity seen on either side, with costs
// subtracted after-minus-before. A trace identity absent from one side
// contributes zero on that side, producing a signed delta. Reconciliation
// keys traces by ChainKey, since the two Cores intern strings, IPs, and
// traces into entirely independent tables.
func Diff(before, after *Core) []DiffEntry {
	beforeByKey := keyedBySide(before, before.Finalize())
	afterByKey := keyedBySide(after, after.Finalize())

	seen := make(map[string]bool, len(beforeByKey)+len(afterByKey))
	var order []string
	for key := range afterByKey {
		seen[key] = true
		order = append(order, key)
	}
	for key := range beforeByKey {
		if !seen[key] {
			seen[key] = true
			order = append(order, key)
		}
	}

	result := make([]DiffEntry, 0, len(order))
	for _, key := range order {
		result = append(result, DiffEntry{
			TraceIndex:     afterByKey[key].traceIndex,
			AllocationData: afterByKey[key].data.Sub(beforeByKey[key].data),
		})
	}
	return result
}
