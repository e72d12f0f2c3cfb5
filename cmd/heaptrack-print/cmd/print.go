package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/heaptrack-analyze/heaptrack-print/internal/runner"
)

var printCfg runner.Config

// printCmd is the only analysis command: print reports
// for a single trace file, or diff two of them.
var printCmd = &cobra.Command{
	Use:   "print",
	Short: "Print reports for a recorded allocation trace",
	Example: `  heaptrack-print print --file trace.log --print-peaks --print-leaks

  heaptrack-print print --file after.log --diff before.log --print-leaks

  heaptrack-print print --file trace.log --print-flamegraph out.folded \
    --flamegraph-cost-type peak`,
	RunE: runPrint,
}

func init() {
	rootCmd.AddCommand(printCmd)

	flags := printCmd.Flags()
	flags.StringVar(&printCfg.File, "file", "", "Input data file (required)")
	flags.StringVar(&printCfg.Diff, "diff", "", "Second input data file; enables diff mode")
	flags.BoolVar(&printCfg.ShortenTemplates, "shorten-templates", false, "Enable template-name compaction (accepted, currently a no-op)")
	flags.BoolVar(&printCfg.MergeBacktraces, "merge-backtraces", true, "Merge allocations by coarse call-site identity")

	flags.BoolVar(&printCfg.PrintAllocators, "print-allocators", false, "Print the most-calls-to-allocation-functions report")
	flags.BoolVar(&printCfg.PrintPeaks, "print-peaks", false, "Print the peak-memory-consumers report")
	flags.BoolVar(&printCfg.PrintLeaks, "print-leaks", false, "Print the memory-leaks report")
	flags.BoolVar(&printCfg.PrintTemporary, "print-temporary", false, "Print the most-temporary-allocations report")

	flags.IntVar(&printCfg.PeakLimit, "peak-limit", 0, "Top-level entries per report (0: use config/default)")
	flags.IntVar(&printCfg.SubPeakLimit, "sub-peak-limit", 0, "Nested entries per top-level entry (0: use config/default)")

	flags.StringVar(&printCfg.PrintHistogram, "print-histogram", "", "Write a size histogram to PATH")

	flags.StringVar(&printCfg.PrintFlamegraph, "print-flamegraph", "", "Write a folded-stack flamegraph to PATH")
	flags.StringVar(&printCfg.FlamegraphCost, "flamegraph-cost-type", "allocations", "Flamegraph cost field: allocations, temporary, leaked, peak")
	flags.BoolVar(&printCfg.GzipFlamegraph, "gzip-flamegraph", false, "Gzip-compress the flamegraph output file")

	flags.StringVar(&printCfg.PrintMassif, "print-massif", "", "Write a massif-format snapshot file to PATH")
	flags.Float64Var(&printCfg.MassifThreshold, "massif-threshold", 0, "Percent of peak below which a subtree is aggregated (0: use config/default)")
	flags.Int64Var(&printCfg.MassifDetailedFreq, "massif-detailed-freq", 0, "Emit a detailed tree every N snapshots (0: use config/default)")

	flags.StringVar(&printCfg.FilterBtFunction, "filter-bt-function", "", "Keep only allocations whose backtrace contains this substring")

	flags.StringVar(&printCfg.SuppressionsFile, "suppressions", "", "Path to a leak: suppression rules file")
	flags.BoolVar(&printCfg.DisableEmbeddedSuppressions, "disable-embedded-suppressions", false, "Ignore suppressions embedded in the data file")
	flags.BoolVar(&printCfg.DisableBuiltinSuppressions, "disable-builtin-suppressions", false, "Disable the built-in allocator-internal suppressions")
	flags.BoolVar(&printCfg.PrintSuppressions, "print-suppressions", false, "Print a table of suppressions that matched")

	printCmd.MarkFlagRequired("file")
}

func runPrint(cmd *cobra.Command, args []string) error {
	applyConfigDefaults()

	_, err := runner.Run(printCfg, os.Stdout, GetLogger())
	return err
}

// applyConfigDefaults fills in any flag the user left at its pflag zero
// value from the optional .heaptrack-print.yaml defaults, then falls
// back to this package's own hardcoded defaults if the file supplied
// nothing either.
func applyConfigDefaults() {
	if printCfg.PeakLimit == 0 {
		printCfg.PeakLimit = defaults.Report.PeakLimit
	}
	if printCfg.SubPeakLimit == 0 {
		printCfg.SubPeakLimit = defaults.Report.SubPeakLimit
	}
	if printCfg.MassifThreshold == 0 {
		printCfg.MassifThreshold = defaults.Massif.Threshold
	}
	if printCfg.MassifDetailedFreq == 0 {
		printCfg.MassifDetailedFreq = defaults.Massif.DetailedFreq
	}
	if printCfg.SuppressionsFile == "" {
		printCfg.SuppressionsFile = defaults.Suppression.File
	}
	if !printCfg.DisableEmbeddedSuppressions {
		printCfg.DisableEmbeddedSuppressions = defaults.Suppression.DisableEmbedded
	}
	if !printCfg.DisableBuiltinSuppressions {
		printCfg.DisableBuiltinSuppressions = defaults.Suppression.DisableBuiltin
	}
}
