// Package config loads the optional defaults file consulted before CLI
// flags are parsed: a project can pin its own --peak-limit,
// --sub-peak-limit, --massif-threshold, and suppressions path in a
// committed .heaptrack-print.yaml instead of repeating them on every
// invocation.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/viper"
)

// Config holds every default overridable by a .heaptrack-print.yaml
// file. Zero values mean "no override"; cmd/heaptrack-print only
// applies a field when the corresponding flag was left at its pflag
// zero value and this Config supplies something else.
type Config struct {
	Report      ReportConfig      `mapstructure:"report"`
	Massif      MassifConfig      `mapstructure:"massif"`
	Suppression SuppressionConfig `mapstructure:"suppression"`
}

// ReportConfig holds top-N report defaults.
type ReportConfig struct {
	PeakLimit    int `mapstructure:"peak_limit"`
	SubPeakLimit int `mapstructure:"sub_peak_limit"`
}

// MassifConfig holds snapshot-writer defaults.
type MassifConfig struct {
	Threshold    float64 `mapstructure:"threshold"`
	DetailedFreq int64   `mapstructure:"detailed_freq"`
}

// SuppressionConfig holds suppression-engine defaults.
type SuppressionConfig struct {
	File            string `mapstructure:"file"`
	DisableEmbedded bool   `mapstructure:"disable_embedded"`
	DisableBuiltin  bool   `mapstructure:"disable_builtin"`
}

// Load reads .heaptrack-print.yaml from the current directory or $HOME,
// or from configPath if non-empty. A missing file is not an error: the
// returned Config carries this package's own defaults, leaving every
// flag's own pflag default as the effective value.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(".heaptrack-print")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// LoadFromReader loads configuration from raw bytes, useful for tests.
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("report.peak_limit", 10)
	v.SetDefault("report.sub_peak_limit", 5)
	v.SetDefault("massif.threshold", 1.0)
	v.SetDefault("massif.detailed_freq", 1)
}
