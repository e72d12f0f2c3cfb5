// Package runner wires the Event Interface, Suppression Engine,
// Merger & Reporter, and Snapshot Writer into the single batch pass the
// CLI drives: decode one (or, in diff mode, two) input files, apply
// suppressions and the optional backtrace filter, then emit whichever
// reports were requested.
package runner

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/heaptrack-analyze/heaptrack-print/internal/accum"
	"github.com/heaptrack-analyze/heaptrack-print/internal/core"
	"github.com/heaptrack-analyze/heaptrack-print/internal/massif"
	"github.com/heaptrack-analyze/heaptrack-print/internal/reader"
	"github.com/heaptrack-analyze/heaptrack-print/internal/report"
	"github.com/heaptrack-analyze/heaptrack-print/internal/suppress"
	"github.com/heaptrack-analyze/heaptrack-print/internal/trace"
	apperrors "github.com/heaptrack-analyze/heaptrack-print/pkg/errors"
	"github.com/heaptrack-analyze/heaptrack-print/pkg/utils"
)

// Config mirrors the CLI flag surface one-to-one; cmd/heaptrack-print
// does nothing but parse flags into this struct and call Run.
type Config struct {
	File string
	Diff string

	// ShortenTemplates is accepted for CLI compatibility but has no
	// effect: template-name demangling/shortening is an external
	// collaborator's concern, never invoked by the core.
	ShortenTemplates bool

	MergeBacktraces bool

	PrintAllocators bool
	PrintPeaks      bool
	PrintLeaks      bool
	PrintTemporary  bool

	PeakLimit    int
	SubPeakLimit int

	PrintHistogram string

	PrintFlamegraph string
	FlamegraphCost  string
	GzipFlamegraph  bool

	PrintMassif        string
	MassifThreshold    float64
	MassifDetailedFreq int64

	FilterBtFunction string

	SuppressionsFile            string
	DisableEmbeddedSuppressions bool
	DisableBuiltinSuppressions  bool
	PrintSuppressions           bool
}

// Summary holds the end-of-run statistics printed after every report
// section, grounded in the original's closing cout block.
type Summary struct {
	TotalAllocations int64
	TotalTemporary   int64
	TotalLeaked      int64
	TotalPeak        int64
	PeakRSS          uint64
	SuppressedLeaked int64
}

// side is one fully-processed input file: its Core plus the finalized,
// suppressed, filtered allocation vector ready for merging.
type side struct {
	core         *core.Core
	allocations  []accum.Allocation
	suppressed   int64
	suppressions *suppress.Engine
}

// debugOutput routes a Timer's phase summary through a Logger at debug
// level, so it only surfaces when --verbose is set.
type debugOutput struct {
	log utils.Logger
}

func (d debugOutput) Output(format string, args ...interface{}) {
	d.log.Debug(format, args...)
}

// Run executes one batch pass per cfg and writes every requested report
// to out. log receives data-integrity warnings and the debuggee-command
// announcement.
func Run(cfg Config, out io.Writer, log utils.Logger) (*Summary, error) {
	if cfg.File == "" {
		return nil, apperrors.New(apperrors.CodeConfigError, "--file is required")
	}

	timer := utils.NewTimer("print", utils.WithOutput(debugOutput{log}))
	defer timer.PrintSummary()

	var before *side
	var after *side
	var loadErr error

	loadPhase := timer.Start("load")
	if cfg.Diff != "" {
		before, after, loadErr = loadBothSides(cfg, log)
	} else {
		after, loadErr = loadSide(cfg.File, cfg, log)
	}
	loadPhase.Stop()
	// A side is nil only when its file couldn't be opened or decoded;
	// a non-nil side with a non-nil loadErr means an independent
	// per-file output (massif) failed but the core pipeline still ran,
	// so that error is carried to the end instead of aborting here.
	if after == nil || (cfg.Diff != "" && before == nil) {
		return nil, loadErr
	}

	var allocations []accum.Allocation
	var summary Summary
	var activeCore *core.Core

	if before != nil {
		allocations = diffAllocations(before, after)
		activeCore = after.core
		summary.SuppressedLeaked = after.suppressed - before.suppressed
	} else {
		allocations = after.allocations
		activeCore = after.core
		summary.SuppressedLeaked = after.suppressed
	}

	for _, a := range allocations {
		summary.TotalAllocations += a.Allocations
		summary.TotalTemporary += a.Temporary
		summary.TotalLeaked += a.Leaked
		summary.TotalPeak += a.Peak
	}
	summary.PeakRSS = activeCore.SystemInfoSnapshot().PeakRSS

	mergePhase := timer.Start("merge")
	var merged []report.MergedAllocation
	if cfg.MergeBacktraces {
		merged = report.Merge(allocations, activeCore.Traces, activeCore.Ips)
	} else {
		merged = unmerged(allocations, activeCore.Traces)
	}
	mergePhase.Stop()

	reportPhase := timer.Start("report")
	printer := report.NewPrinter(activeCore.Traces, activeCore.Ips, activeCore.NameLookup())
	limits := report.Limits{PeakLimit: cfg.PeakLimit, SubPeakLimit: cfg.SubPeakLimit}

	if cfg.PrintAllocators {
		fmt.Fprintln(out, "MOST CALLS TO ALLOCATION FUNCTIONS")
		printer.PrintMerged(out, merged, report.CostAllocations, limits,
			func(w io.Writer, d accum.AllocationData) {
				fmt.Fprintf(w, "%d calls to allocation functions with %s peak consumption from\n", d.Allocations, report.FormatBytes(d.Peak))
			},
			func(w io.Writer, d accum.AllocationData) {
				fmt.Fprintf(w, "%d calls with %s peak consumption from:\n", d.Allocations, report.FormatBytes(d.Peak))
			})
		fmt.Fprintln(out)
	}
	if cfg.PrintPeaks {
		fmt.Fprintln(out, "PEAK MEMORY CONSUMERS")
		printer.PrintMerged(out, merged, report.CostPeak, limits,
			func(w io.Writer, d accum.AllocationData) {
				fmt.Fprintf(w, "%s peak memory consumed over %d calls from\n", report.FormatBytes(d.Peak), d.Allocations)
			},
			func(w io.Writer, d accum.AllocationData) {
				fmt.Fprintf(w, "%s consumed over %d calls from:\n", report.FormatBytes(d.Peak), d.Allocations)
			})
		fmt.Fprintln(out)
	}
	if cfg.PrintLeaks {
		fmt.Fprintln(out, "MEMORY LEAKS")
		printer.PrintMerged(out, merged, report.CostLeaked, limits,
			func(w io.Writer, d accum.AllocationData) {
				fmt.Fprintf(w, "%s leaked over %d calls from\n", report.FormatBytes(d.Leaked), d.Allocations)
			},
			func(w io.Writer, d accum.AllocationData) {
				fmt.Fprintf(w, "%s leaked over %d calls from:\n", report.FormatBytes(d.Leaked), d.Allocations)
			})
		fmt.Fprintln(out)
	}
	if cfg.PrintTemporary {
		fmt.Fprintln(out, "MOST TEMPORARY ALLOCATIONS")
		printer.PrintMerged(out, merged, report.CostTemporary, limits,
			func(w io.Writer, d accum.AllocationData) {
				fmt.Fprintf(w, "%d temporary allocations of %d allocations in total (%.2f%%) from\n", d.Temporary, d.Allocations, temporaryPercent(d))
			},
			func(w io.Writer, d accum.AllocationData) {
				fmt.Fprintf(w, "%d temporary allocations of %d allocations in total (%.2f%%) from:\n", d.Temporary, d.Allocations, temporaryPercent(d))
			})
		fmt.Fprintln(out)
	}

	fmt.Fprintf(out, "calls to allocation functions: %d\n", summary.TotalAllocations)
	fmt.Fprintf(out, "temporary memory allocations: %d\n", summary.TotalTemporary)
	fmt.Fprintf(out, "peak heap memory consumption: %s\n", report.FormatBytes(summary.TotalPeak))
	fmt.Fprintf(out, "peak RSS (including analysis overhead): %s\n", report.FormatBytes(int64(summary.PeakRSS)))
	fmt.Fprintf(out, "total memory leaked: %s\n", report.FormatBytes(summary.TotalLeaked))

	if summary.SuppressedLeaked != 0 {
		fmt.Fprintf(out, "suppressed leaks: %s\n", report.FormatBytes(summary.SuppressedLeaked))
		if cfg.PrintSuppressions {
			printSuppressionsTable(out, after.suppressions)
		}
	}
	reportPhase.Stop()

	writePhase := timer.Start("write-outputs")
	writeErr := writeSideFiles(cfg, allocations, activeCore)
	writePhase.Stop()

	return &summary, errors.Join(loadErr, writeErr)
}

func temporaryPercent(d accum.AllocationData) float64 {
	if d.Allocations == 0 {
		return 0
	}
	return float64(d.Temporary) * 100 / float64(d.Allocations)
}

// unmerged wraps each Allocation as its own single-trace group, used
// when --merge-backtraces is disabled: every allocation gets its own
// top-level entry instead of being grouped by coarse leaf-IP identity.
func unmerged(allocations []accum.Allocation, tt *trace.TraceTable) []report.MergedAllocation {
	out := make([]report.MergedAllocation, len(allocations))
	for i, a := range allocations {
		ipIndex := trace.NoIp
		if a.TraceIndex != trace.NoTrace {
			ipIndex = tt.Find(a.TraceIndex).IpIndex
		}
		out[i] = report.MergedAllocation{
			IpIndex:        ipIndex,
			AllocationData: a.AllocationData,
			Traces:         []accum.Allocation{a},
		}
	}
	return out
}

func printSuppressionsTable(w io.Writer, engine *suppress.Engine) {
	if engine == nil {
		return
	}
	fmt.Fprintln(w, "Suppressions used:")
	fmt.Fprintf(w, "%16s %16s pattern\n", "matches", "leaked")
	for _, s := range engine.Suppressions() {
		if s.Matches == 0 {
			continue
		}
		fmt.Fprintf(w, "%16d %16s %s\n", s.Matches, report.FormatBytes(s.Leaked), s.Pattern)
	}
}

func loadBothSides(cfg Config, log utils.Logger) (*side, *side, error) {
	var before, after *side
	var beforeErr, afterErr error
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		before, beforeErr = loadSide(cfg.Diff, cfg, log)
	}()
	go func() {
		defer wg.Done()
		after, afterErr = loadSide(cfg.File, cfg, log)
	}()
	wg.Wait()

	return before, after, errors.Join(beforeErr, afterErr)
}

func loadSide(path string, cfg Config, log utils.Logger) (*side, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInputError, "opening "+path, err)
	}
	defer f.Close()

	var opts []core.Option
	opts = append(opts, core.WithLogger(log))
	if cfg.PrintHistogram != "" {
		opts = append(opts, core.WithHistogram())
	}
	c := core.New(opts...)

	// A failure to open the massif output is independent of the core
	// decode/report pipeline below: it's recorded and joined into the
	// final error rather than aborting --print-peaks/-leaks/-allocators,
	// none of which depend on massif at all.
	var massifErr error
	if cfg.PrintMassif != "" && cfg.Diff == "" {
		massifFile, err := os.Create(cfg.PrintMassif)
		if err != nil {
			massifErr = apperrors.Wrap(apperrors.CodeOutputError, "opening massif output", err)
		} else {
			defer massifFile.Close()
			massifWriter := massif.NewWriter(massifFile, c.Traces, c.Ips, c.NameLookup(), c.StopPredicate(),
				massif.WithThreshold(cfg.MassifThreshold), massif.WithDetailedFrequency(cfg.MassifDetailedFreq))
			core.WithMassifWriter(massifWriter)(c)
		}
	}

	result, err := reader.Decode(f, c)
	if err != nil {
		return nil, errors.Join(massifErr, err)
	}

	allocations := c.Finalize()

	engine, err := buildSuppressionEngine(cfg, result.EmbeddedSuppressions)
	if err != nil {
		return nil, errors.Join(massifErr, err)
	}
	allocations = c.ApplySuppressions(engine, allocations)

	var suppressed int64
	for _, s := range engine.Suppressions() {
		suppressed += s.Leaked
	}

	if cfg.FilterBtFunction != "" {
		allocations = c.FilterByFunctionSubstring(allocations, cfg.FilterBtFunction)
	}

	return &side{core: c, allocations: allocations, suppressed: suppressed, suppressions: engine}, massifErr
}

func buildSuppressionEngine(cfg Config, embedded []string) (*suppress.Engine, error) {
	var opts []suppress.Option
	if cfg.SuppressionsFile != "" {
		f, err := os.Open(cfg.SuppressionsFile)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeSuppressionError, "opening suppressions file", err)
		}
		defer f.Close()
		opts = append(opts, suppress.WithUserFile(f))
	}
	if !cfg.DisableEmbeddedSuppressions {
		opts = append(opts, suppress.WithEmbedded(embedded))
	}
	opts = append(opts, suppress.WithBuiltin(!cfg.DisableBuiltinSuppressions))
	return suppress.NewEngine(opts...), nil
}

// diffAllocations reconciles before and after by ChainKey and returns
// the result as plain accum.Allocation values (signed deltas), ready for
// report.Merge exactly like a single-file allocation vector.
func diffAllocations(before, after *side) []accum.Allocation {
	entries := core.Diff(before.core, after.core)
	out := make([]accum.Allocation, len(entries))
	for i, e := range entries {
		out[i] = accum.Allocation{TraceIndex: e.TraceIndex, AllocationData: e.AllocationData}
	}
	return out
}

// writeSideFiles emits the histogram and flamegraph outputs, if
// requested. The two are independent of each other, so a failure
// writing one does not stop the other from being attempted; their
// errors are joined rather than short-circuited. Massif output is
// written incrementally during decode (see loadSide) since it depends
// on per-timestamp snapshots, not the final allocation vector.
func writeSideFiles(cfg Config, allocations []accum.Allocation, c *core.Core) error {
	var histErr, flameErr error

	if cfg.PrintHistogram != "" {
		histErr = writeHistogramFile(cfg.PrintHistogram, c)
	}

	if cfg.PrintFlamegraph != "" {
		flameErr = writeFlamegraphFile(cfg, allocations, c)
	}

	return errors.Join(histErr, flameErr)
}

func writeHistogramFile(path string, c *core.Core) error {
	f, err := os.Create(path)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeOutputError, "opening histogram output", err)
	}
	err = c.WriteHistogram(f)
	f.Close()
	if err != nil {
		return apperrors.Wrap(apperrors.CodeOutputError, "writing histogram", err)
	}
	return nil
}

func writeFlamegraphFile(cfg Config, allocations []accum.Allocation, c *core.Core) error {
	field, ok := report.ParseCostField(cfg.FlamegraphCost)
	if !ok {
		return apperrors.New(apperrors.CodeConfigError, "invalid --flamegraph-cost-type: "+cfg.FlamegraphCost)
	}
	f, err := os.Create(cfg.PrintFlamegraph)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeOutputError, "opening flamegraph output", err)
	}
	var dest io.Writer = f
	var gz *gzip.Writer
	if cfg.GzipFlamegraph {
		gz = gzip.NewWriter(f)
		dest = gz
	}
	err = report.WriteFlamegraph(dest, allocations, c.Traces, c.Ips, c.NameLookup(), field)
	if gz != nil {
		if closeErr := gz.Close(); err == nil {
			err = closeErr
		}
	}
	f.Close()
	if err != nil {
		return apperrors.Wrap(apperrors.CodeOutputError, "writing flamegraph", err)
	}
	return nil
}
