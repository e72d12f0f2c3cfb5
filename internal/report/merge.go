// Package report builds call-site-merged allocations from a finalized
// Allocation vector and renders them as top-N listings, a folded-stack
// flamegraph, and a size histogram.
package report

import (
	"strings"

	"github.com/heaptrack-analyze/heaptrack-print/internal/accum"
	"github.com/heaptrack-analyze/heaptrack-print/internal/trace"
)

// MergedAllocation groups every source Allocation whose trace's deepest
// (leaf) instruction pointer compares equal under
// trace.CompareWithoutAddress. The grouping is intentionally shallow:
// only the leaf frame is used as the key, so traces that share a deep
// common prefix but differ at the call site remain separate entries.
type MergedAllocation struct {
	IpIndex trace.IpIndex
	accum.AllocationData
	Traces []accum.Allocation
}

// leafIp returns the deepest IpIndex of traceIndex's backtrace: the call
// site that directly invoked the allocation function.
func leafIp(traceIndex trace.TraceIndex, tt *trace.TraceTable) trace.IpIndex {
	node := tt.Find(traceIndex)
	return node.IpIndex
}

// Merge groups allocations by the coarse identity of their leaf IP. The
// result is ordered by first occurrence of each distinct leaf IP; within
// that, source Allocations are kept in their original relative order.
func Merge(allocations []accum.Allocation, tt *trace.TraceTable, ips *trace.IpTable) []MergedAllocation {
	// merged holds one representative IpIndex per distinct coarse group,
	// in first-seen order, so that the coarse search in findGroup is a
	// linear scan over a small set of representatives rather than the full
	// input; keyIndex caches every IpIndex already assigned to a group.
	var merged []MergedAllocation
	keyIndex := make(map[trace.IpIndex]int)

	for _, a := range allocations {
		leaf := leafIp(a.TraceIndex, tt)
		group, ok := findGroup(merged, keyIndex, leaf, ips)
		if !ok {
			merged = append(merged, MergedAllocation{IpIndex: leaf})
			group = len(merged) - 1
			keyIndex[leaf] = group
		}
		merged[group].AllocationData = merged[group].AllocationData.Add(a.AllocationData)
		merged[group].Traces = append(merged[group].Traces, a)
	}

	return merged
}

// findGroup looks up the merged-allocation slot for leaf. It first tries
// the exact-IpIndex fast path (keyIndex), then falls back to a coarse
// scan against every existing group's representative IP, since two
// distinct IpIndex values can still be coarsely equal.
func findGroup(merged []MergedAllocation, keyIndex map[trace.IpIndex]int, leaf trace.IpIndex, ips *trace.IpTable) (int, bool) {
	if i, ok := keyIndex[leaf]; ok {
		return i, true
	}
	leafRecord := ips.Find(leaf)
	for i := range merged {
		if trace.EqualWithoutAddress(ips.Find(merged[i].IpIndex), leafRecord) {
			keyIndex[leaf] = i
			return i, true
		}
	}
	return 0, false
}

// FilterByFunctionSubstring keeps only the Allocations whose trace, when
// walked from leaf toward root (stopping at a stop function), contains a
// frame (primary or any inlined) whose function name contains pattern.
// onRecursion, if non-nil, is called once per Allocation whose parent
// chain loops back on itself instead of terminating.
func FilterByFunctionSubstring(allocations []accum.Allocation, tt *trace.TraceTable, ips *trace.IpTable, names func(trace.StringIndex) string, stop trace.StopPredicate, pattern string, onRecursion func(trace.TraceIndex)) []accum.Allocation {
	if pattern == "" {
		return allocations
	}
	guard := trace.NewRecursionGuard(tt.Len() + 1)
	out := make([]accum.Allocation, 0, len(allocations))
	for _, a := range allocations {
		found := false
		recursed := tt.Walk(a.TraceIndex, ips, stop, guard, func(ipIndex trace.IpIndex) bool {
			ip := ips.Find(ipIndex)
			if strings.Contains(names(ip.Frame.FunctionIndex), pattern) {
				found = true
				return false
			}
			for _, f := range ip.Inlined {
				if strings.Contains(names(f.FunctionIndex), pattern) {
					found = true
					return false
				}
			}
			return true
		})
		if recursed && onRecursion != nil {
			onRecursion(a.TraceIndex)
		}
		if found {
			out = append(out, a)
		}
	}
	return out
}
