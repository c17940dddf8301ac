// Package cmd defines and implements the CLI commands for the arxiv-harvest
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/arxiv-harvest/internal/config"
	"github.com/JakeFAU/arxiv-harvest/internal/logging"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "arxiv-harvest",
		Short: "Harvests arXiv paper sources, version history, and citations.",
		Long: `arxiv-harvest walks a contiguous range of arXiv identifiers and, for each
paper, downloads every version's LaTeX source, resolves per-version
announcement dates, and collects the reference list from Semantic Scholar.
Results land as one directory per paper plus a run-level statistics report.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (searched in the working directory when unset)")

	cmd.AddCommand(newHarvestCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// loadConfig reads configuration and builds the process logger.
func loadConfig() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
