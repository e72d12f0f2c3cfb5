package runner

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heaptrack-analyze/heaptrack-print/pkg/utils"
)

func writeEventLog(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0644))
	return path
}

func defaultCfg(file string) Config {
	return Config{
		File:            file,
		MergeBacktraces: true,
		PeakLimit:       10,
		SubPeakLimit:    5,
	}
}

func TestRun_PrintLeaksReportsUnfreedAllocation(t *testing.T) {
	dir := t.TempDir()
	file := writeEventLog(t, dir, "trace.log",
		"s main",
		"s leaky_fn",
		"i 0x1 1 0 0 0",
		"i 0x2 2 0 0 0",
		"t 1 0",
		"t 2 1",
		"+ 2 512",
	)

	cfg := defaultCfg(file)
	cfg.PrintLeaks = true

	var out bytes.Buffer
	summary, err := Run(cfg, &out, &utils.NullLogger{})
	require.NoError(t, err)

	assert.Equal(t, int64(512), summary.TotalLeaked)
	assert.Contains(t, out.String(), "MEMORY LEAKS")
	assert.Contains(t, out.String(), "leaky_fn")
	assert.Contains(t, out.String(), "total memory leaked: 512B")
}

func TestRun_SuppressionRemovesLeakFromReport(t *testing.T) {
	dir := t.TempDir()
	file := writeEventLog(t, dir, "trace.log",
		"s main",
		"s known_leaky_internal_fn",
		"i 0x1 1 0 0 0",
		"i 0x2 2 0 0 0",
		"t 1 0",
		"t 2 1",
		"+ 2 256",
	)
	suppressions := writeEventLog(t, dir, "suppressions.txt", "leak:known_leaky_internal_fn")

	cfg := defaultCfg(file)
	cfg.PrintLeaks = true
	cfg.SuppressionsFile = suppressions

	var out bytes.Buffer
	summary, err := Run(cfg, &out, &utils.NullLogger{})
	require.NoError(t, err)

	assert.Equal(t, int64(0), summary.TotalLeaked)
	assert.Equal(t, int64(256), summary.SuppressedLeaked)
	assert.Contains(t, out.String(), "suppressed leaks: 256B")
}

func TestRun_FilterByFunctionSubstringExcludesNonMatching(t *testing.T) {
	dir := t.TempDir()
	file := writeEventLog(t, dir, "trace.log",
		"s main",
		"s wanted_fn",
		"s other_fn",
		"i 0x1 1 0 0 0",
		"i 0x2 2 0 0 0",
		"i 0x3 3 0 0 0",
		"t 1 0",
		"t 2 1",
		"t 3 1",
		"+ 2 100",
		"+ 3 200",
	)

	cfg := defaultCfg(file)
	cfg.PrintLeaks = true
	cfg.FilterBtFunction = "wanted_fn"

	var out bytes.Buffer
	summary, err := Run(cfg, &out, &utils.NullLogger{})
	require.NoError(t, err)
	assert.Equal(t, int64(100), summary.TotalLeaked)
}

func TestRun_HistogramWrittenToFile(t *testing.T) {
	dir := t.TempDir()
	file := writeEventLog(t, dir, "trace.log",
		"s main",
		"s alloc_fn",
		"i 0x1 1 0 0 0",
		"i 0x2 2 0 0 0",
		"t 1 0",
		"t 2 1",
		"+ 2 64",
		"+ 2 64",
	)
	histPath := filepath.Join(dir, "out.histogram")

	cfg := defaultCfg(file)
	cfg.PrintHistogram = histPath

	var out bytes.Buffer
	_, err := Run(cfg, &out, &utils.NullLogger{})
	require.NoError(t, err)

	data, err := os.ReadFile(histPath)
	require.NoError(t, err)
	assert.Equal(t, "64\t2\n", string(data))
}

func TestRun_FlamegraphWrittenToFile(t *testing.T) {
	dir := t.TempDir()
	file := writeEventLog(t, dir, "trace.log",
		"s main",
		"s alloc_fn",
		"i 0x1 1 0 0 0",
		"i 0x2 2 0 0 0",
		"t 1 0",
		"t 2 1",
		"+ 2 10",
	)
	flamePath := filepath.Join(dir, "out.folded")

	cfg := defaultCfg(file)
	cfg.PrintFlamegraph = flamePath
	cfg.FlamegraphCost = "leaked"

	var out bytes.Buffer
	_, err := Run(cfg, &out, &utils.NullLogger{})
	require.NoError(t, err)

	data, err := os.ReadFile(flamePath)
	require.NoError(t, err)
	assert.Equal(t, "main;alloc_fn; 10\n", string(data))
}

func TestRun_HistogramFailureDoesNotBlockFlamegraph(t *testing.T) {
	dir := t.TempDir()
	file := writeEventLog(t, dir, "trace.log",
		"s main",
		"s alloc_fn",
		"i 0x1 1 0 0 0",
		"i 0x2 2 0 0 0",
		"t 1 0",
		"t 2 1",
		"+ 2 10",
	)
	flamePath := filepath.Join(dir, "out.folded")

	cfg := defaultCfg(file)
	// A directory can never be opened as the histogram output file,
	// forcing that independent write to fail.
	cfg.PrintHistogram = dir
	cfg.PrintFlamegraph = flamePath
	cfg.FlamegraphCost = "leaked"

	var out bytes.Buffer
	_, err := Run(cfg, &out, &utils.NullLogger{})
	require.Error(t, err)

	data, readErr := os.ReadFile(flamePath)
	require.NoError(t, readErr)
	assert.Equal(t, "main;alloc_fn; 10\n", string(data))
}

func TestRun_MassifFailureDoesNotBlockCorePipeline(t *testing.T) {
	dir := t.TempDir()
	file := writeEventLog(t, dir, "trace.log",
		"s main",
		"s alloc_fn",
		"i 0x1 1 0 0 0",
		"i 0x2 2 0 0 0",
		"t 1 0",
		"t 2 1",
		"+ 2 64",
	)

	cfg := defaultCfg(file)
	// A directory can never be opened as the massif output file,
	// forcing that independent write to fail; -leaks should still run.
	cfg.PrintMassif = dir
	cfg.PrintLeaks = true

	var out bytes.Buffer
	summary, err := Run(cfg, &out, &utils.NullLogger{})
	require.Error(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, int64(64), summary.TotalLeaked)
	assert.Contains(t, out.String(), "MEMORY LEAKS")
}

func TestRun_DiffModeYieldsSignedDelta(t *testing.T) {
	dir := t.TempDir()
	before := writeEventLog(t, dir, "before.log",
		"s main",
		"s leaky_fn",
		"i 0x1 1 0 0 0",
		"i 0x2 2 0 0 0",
		"t 1 0",
		"t 2 1",
	)
	after := writeEventLog(t, dir, "after.log",
		"s main",
		"s leaky_fn",
		"i 0x1 1 0 0 0",
		"i 0x2 2 0 0 0",
		"t 1 0",
		"t 2 1",
		"+ 2 300",
	)

	cfg := defaultCfg(after)
	cfg.Diff = before
	cfg.PrintLeaks = true

	var out bytes.Buffer
	summary, err := Run(cfg, &out, &utils.NullLogger{})
	require.NoError(t, err)
	assert.Equal(t, int64(300), summary.TotalLeaked)
}

func TestRun_MissingFileFails(t *testing.T) {
	cfg := defaultCfg("")
	_, err := Run(cfg, &bytes.Buffer{}, &utils.NullLogger{})
	assert.Error(t, err)
}
