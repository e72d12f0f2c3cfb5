package report

import (
	"strings"

	"github.com/heaptrack-analyze/heaptrack-print/internal/trace"
)

// ChainKey renders traceIndex's full leaf-to-root backtrace as a string
// built from resolved names rather than table indices, using the same
// per-frame rendering as the flamegraph: function name, file basename,
// and inlined frames. Two traces recorded by independent Cores (distinct
// Interner/IpTable/TraceTable instances, as in diff mode) produce equal
// keys when their frames render to the same names. A frame with no
// function name is rendered by its numeric address, so such frames only
// match at the same address; line numbers and modules are not part of
// the key, so frames differing only in those produce equal keys. The
// second return value reports whether the walk detected a corrupted
// (looping) parent chain.
func ChainKey(traceIndex trace.TraceIndex, tt *trace.TraceTable, ips *trace.IpTable, names func(trace.StringIndex) string, stop trace.StopPredicate, guard *trace.RecursionGuard) (string, bool) {
	var key strings.Builder
	recursed := tt.Walk(traceIndex, ips, stop, guard, func(ipIndex trace.IpIndex) bool {
		writeFoldedFrame(&key, ips.Find(ipIndex), names)
		return true
	})
	return key.String(), recursed
}
