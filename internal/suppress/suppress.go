// Package suppress implements the leak-suppression filter: patterns that
// redirect a matched Allocation's leaked bytes into a suppression bucket
// instead of counting them as a reported leak.
package suppress

import (
	"bufio"
	"io"
	"strings"

	"github.com/heaptrack-analyze/heaptrack-print/internal/accum"
	"github.com/heaptrack-analyze/heaptrack-print/internal/trace"
)

// Suppression is one leak-suppression rule together with its running
// counters. Matches and Leaked are monotonically non-decreasing.
type Suppression struct {
	Pattern string
	Matches int64
	Leaked  int64
}

// builtinPatterns mirrors the small built-in set shipped by the original
// profiler: allocator-internal call sites that are almost never what the
// user wants reported as an application leak.
var builtinPatterns = []string{
	"__static_initialization_and_destruction",
	"::__cxa_atexit",
	"start_thread",
}

// Engine holds the combined suppression set (user-supplied, embedded,
// built-in) and applies it to a finalized Allocation vector.
type Engine struct {
	suppressions []Suppression
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithUserFile parses one "leak:<pattern>" rule per non-blank,
// non-comment line from r and adds each as a suppression, in file order.
func WithUserFile(r io.Reader) Option {
	return func(e *Engine) {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			pattern := strings.TrimPrefix(line, "leak:")
			pattern = strings.TrimSpace(pattern)
			if pattern == "" {
				continue
			}
			e.suppressions = append(e.suppressions, Suppression{Pattern: pattern})
		}
	}
}

// WithEmbedded adds suppression patterns copied out of the data file's
// own embedded suppression section, in the order they were recorded.
func WithEmbedded(patterns []string) Option {
	return func(e *Engine) {
		for _, p := range patterns {
			e.suppressions = append(e.suppressions, Suppression{Pattern: p})
		}
	}
}

// WithBuiltin adds the built-in suppression set when enabled is true.
// WithBuiltin(false) adds nothing, which is the same as omitting the
// option; it does not remove built-ins added by an earlier option.
func WithBuiltin(enabled bool) Option {
	return func(e *Engine) {
		if !enabled {
			return
		}
		for _, p := range builtinPatterns {
			e.suppressions = append(e.suppressions, Suppression{Pattern: p})
		}
	}
}

// NewEngine builds a suppression Engine from the given options, applied
// in order; suppression-order tiebreaks follow that same order.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Len returns the number of configured suppressions.
func (e *Engine) Len() int {
	return len(e.suppressions)
}

// Suppressions returns the current suppression set, including running
// match/leaked totals accumulated by prior Apply calls.
func (e *Engine) Suppressions() []Suppression {
	out := make([]Suppression, len(e.suppressions))
	copy(out, e.suppressions)
	return out
}

// FunctionNameLookup resolves the function name for a frame's
// FunctionIndex, used to test a suppression pattern against a trace.
type FunctionNameLookup func(trace.StringIndex) string

// Apply tests each Allocation's trace against every configured
// suppression in order, first match wins. For the first suppression
// whose pattern is a substring of any frame's function name anywhere in
// the trace (primary or inlined, walked from leaf toward root), the
// Allocation's Leaked is moved into that suppression's Leaked bucket,
// the suppression's Matches is incremented, and the Allocation's Leaked
// becomes 0. Allocations, Temporary, and Peak are left untouched. An
// Allocation with no trace (TraceIndex == trace.NoTrace) cannot match
// and passes through unchanged.
//
// onRecursion, if non-nil, is called once per Allocation whose parent
// chain loops back on itself instead of terminating; the walk for that
// Allocation is then abandoned with whatever match (if any) was found
// before the loop was detected.
func (e *Engine) Apply(allocations []accum.Allocation, tt *trace.TraceTable, ips *trace.IpTable, names FunctionNameLookup, stop trace.StopPredicate, onRecursion func(trace.TraceIndex)) []accum.Allocation {
	if len(e.suppressions) == 0 {
		return allocations
	}

	guard := trace.NewRecursionGuard(tt.Len() + 1)
	out := make([]accum.Allocation, len(allocations))

	for i, a := range allocations {
		out[i] = a
		if a.TraceIndex == trace.NoTrace {
			continue
		}
		if a.Leaked == 0 {
			continue
		}

		matchIdx := -1
		recursed := tt.Walk(a.TraceIndex, ips, stop, guard, func(ipIndex trace.IpIndex) bool {
			ip := ips.Find(ipIndex)
			if idx := e.matchFrame(ip.Frame, names); idx >= 0 {
				matchIdx = idx
				return false
			}
			for _, f := range ip.Inlined {
				if idx := e.matchFrame(f, names); idx >= 0 {
					matchIdx = idx
					return false
				}
			}
			return true
		})
		if recursed && onRecursion != nil {
			onRecursion(a.TraceIndex)
		}

		if matchIdx < 0 {
			continue
		}
		e.suppressions[matchIdx].Matches++
		e.suppressions[matchIdx].Leaked += a.Leaked
		out[i].Leaked = 0
	}

	return out
}

func (e *Engine) matchFrame(f trace.Frame, names FunctionNameLookup) int {
	fn := names(f.FunctionIndex)
	if fn == "" {
		return -1
	}
	for i := range e.suppressions {
		if strings.Contains(fn, e.suppressions[i].Pattern) {
			return i
		}
	}
	return -1
}
