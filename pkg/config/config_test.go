package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenFileAbsent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/.heaptrack-print.yaml")
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Report.PeakLimit)
	assert.Equal(t, 5, cfg.Report.SubPeakLimit)
	assert.Equal(t, 1.0, cfg.Massif.Threshold)
	assert.Equal(t, int64(1), cfg.Massif.DetailedFreq)
}

func TestLoad_CustomValues(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, ".heaptrack-print.yaml")
	content := `
report:
  peak_limit: 20
  sub_peak_limit: 8
massif:
  threshold: 2.5
  detailed_freq: 4
suppression:
  file: ./suppressions.txt
  disable_embedded: true
`
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0644))

	cfg, err := Load(configFile)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Report.PeakLimit)
	assert.Equal(t, 8, cfg.Report.SubPeakLimit)
	assert.Equal(t, 2.5, cfg.Massif.Threshold)
	assert.Equal(t, int64(4), cfg.Massif.DetailedFreq)
	assert.Equal(t, "./suppressions.txt", cfg.Suppression.File)
	assert.True(t, cfg.Suppression.DisableEmbedded)
}

func TestLoadFromReader(t *testing.T) {
	content := []byte(`
report:
  peak_limit: 3
`)
	cfg, err := LoadFromReader("yaml", content)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Report.PeakLimit)
	assert.Equal(t, 5, cfg.Report.SubPeakLimit)
}
