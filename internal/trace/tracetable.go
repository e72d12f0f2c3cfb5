package trace

import "github.com/heaptrack-analyze/heaptrack-print/pkg/collections"

// TraceTable interns parent-linked backtrace nodes. The forest is built
// incrementally as the reader emits trace events; indices are dense and
// assigned in first-seen order.
type TraceTable struct {
	nodes []TraceNode // index 0 unused (NoTrace)
	index map[TraceNode]TraceIndex
}

// NewTraceTable creates an empty trace table.
func NewTraceTable() *TraceTable {
	return &TraceTable{
		nodes: make([]TraceNode, 1),
		index: make(map[TraceNode]TraceIndex),
	}
}

// InternTrace returns the TraceIndex for (ipIndex, parentIndex), reusing
// an existing index for a duplicate pair.
func (t *TraceTable) InternTrace(ipIndex IpIndex, parentIndex TraceIndex) TraceIndex {
	key := TraceNode{IpIndex: ipIndex, ParentIndex: parentIndex}
	if idx, ok := t.index[key]; ok {
		return idx
	}
	idx := TraceIndex(len(t.nodes))
	t.nodes = append(t.nodes, key)
	t.index[key] = idx
	return idx
}

// Find returns the TraceNode for idx. Looking up NoTrace returns the
// zero value (IpIndex == NoIp), which callers use as the walk terminator.
func (t *TraceTable) Find(idx TraceIndex) TraceNode {
	if int(idx) <= 0 || int(idx) >= len(t.nodes) {
		return TraceNode{}
	}
	return t.nodes[idx]
}

// Len returns the number of distinct trace nodes interned.
func (t *TraceTable) Len() int {
	return len(t.nodes) - 1
}

// StopPredicate reports whether the function named by an IP's frame
// terminates upward traversal (e.g. "main").
type StopPredicate func(ips *IpTable, ipIndex IpIndex) bool

// WalkFunc is called once per frame while walking a trace from leaf
// toward root, in that order. Returning false stops the walk early.
type WalkFunc func(ipIndex IpIndex) bool

// RecursionGuard lets Walk detect and halt on a trace whose parent chain
// loops back on itself instead of terminating at NoTrace or a stop
// function; Walk reports this through its return value and the caller
// logs any diagnostic. It is cheap to allocate per walk since it is backed
// by a bit-per-node VersionedBitset sized to the table, reused across
// calls via Reset.
type RecursionGuard struct {
	seen *collections.VersionedBitset
}

// NewRecursionGuard creates a guard sized for a table with the given
// current length.
func NewRecursionGuard(size int) *RecursionGuard {
	if size < 1 {
		size = 1
	}
	return &RecursionGuard{seen: collections.NewVersionedBitset(size)}
}

// Walk walks the backtrace starting at startIndex from leaf toward root,
// calling fn for each frame's IpIndex, stopping when fn returns false, the
// walk reaches NoTrace, or stop reports true for the current frame (after
// fn is invoked for it). It returns true if recursion was detected,
// meaning the walk was aborted early due to a corrupted parent chain.
func (t *TraceTable) Walk(startIndex TraceIndex, ips *IpTable, stop StopPredicate, guard *RecursionGuard, fn WalkFunc) (recursed bool) {
	guard.seen.Reset()
	idx := startIndex
	for idx != NoTrace {
		node := t.Find(idx)
		if node.IpIndex == NoIp {
			break
		}
		if !fn(node.IpIndex) {
			return false
		}
		if stop != nil && stop(ips, node.IpIndex) {
			return false
		}
		if guard.seen.Test(int(node.ParentIndex)) {
			return true
		}
		guard.seen.Set(int(node.ParentIndex))
		idx = node.ParentIndex
	}
	return false
}

// Frames returns the full leaf-to-root sequence of IpIndex values for a
// trace, honoring the same stop-function and recursion rules as Walk.
func (t *TraceTable) Frames(startIndex TraceIndex, ips *IpTable, stop StopPredicate, guard *RecursionGuard) []IpIndex {
	frames := make([]IpIndex, 0, 8)
	t.Walk(startIndex, ips, stop, guard, func(ipIndex IpIndex) bool {
		frames = append(frames, ipIndex)
		return true
	})
	return frames
}
