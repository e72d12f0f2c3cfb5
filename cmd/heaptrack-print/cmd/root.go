package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/heaptrack-analyze/heaptrack-print/pkg/config"
	"github.com/heaptrack-analyze/heaptrack-print/pkg/utils"
)

var (
	verbose    bool
	configFile string

	logger   utils.Logger
	defaults *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "heaptrack-print",
	Short: "Analyze and report on a heaptrack allocation trace",
	Long: `heaptrack-print reads a recorded heap-allocation trace and prints
top-N reports by allocation count, peak consumption, leaks, and
temporary allocations, and can additionally emit a folded-stack
flamegraph, a size histogram, and a massif-format memory snapshot file.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logLevel := utils.LevelInfo
		if verbose {
			logLevel = utils.LevelDebug
		}
		logger = utils.NewDefaultLogger(logLevel, os.Stdout)

		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		defaults = cfg
		return nil
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose diagnostic output")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a .heaptrack-print.yaml defaults file")
}

// GetLogger returns the configured logger.
func GetLogger() utils.Logger {
	return logger
}

// BinName returns the base name of the current executable.
func BinName() string {
	return filepath.Base(os.Args[0])
}
