package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/arxiv-harvest/internal/archive"
	"github.com/JakeFAU/arxiv-harvest/internal/artifacts"
	"github.com/JakeFAU/arxiv-harvest/internal/arxiv"
	"github.com/JakeFAU/arxiv-harvest/internal/arxivid"
	"github.com/JakeFAU/arxiv-harvest/internal/auditlog"
	"github.com/JakeFAU/arxiv-harvest/internal/config"
	"github.com/JakeFAU/arxiv-harvest/internal/ledger"
	"github.com/JakeFAU/arxiv-harvest/internal/metrics"
	"github.com/JakeFAU/arxiv-harvest/internal/monitor"
	"github.com/JakeFAU/arxiv-harvest/internal/ops"
	"github.com/JakeFAU/arxiv-harvest/internal/pipeline"
	"github.com/JakeFAU/arxiv-harvest/internal/pool"
	"github.com/JakeFAU/arxiv-harvest/internal/ratelimit"
	"github.com/JakeFAU/arxiv-harvest/internal/semscholar"
	"github.com/JakeFAU/arxiv-harvest/internal/stats"
)

// newHarvestCmd creates the 'harvest' subcommand, which runs one full pass
// over the configured identifier range.
func newHarvestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "harvest",
		Short: "Runs the harvester over the configured identifier range",
		Long: `Walks every identifier from range.start_id through range.end_id, skipping
papers recorded in the progress file, and processes the rest with the
configured worker count. A second interrupt kills the process; the first one
stops new submissions and lets in-flight papers finish.`,
		RunE: runHarvestCommand,
	}
}

func runHarvestCommand(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	metrics.Init()

	discoveryStart := time.Now()
	ids, err := discoverRange(cfg)
	if err != nil {
		return err
	}
	discovery := time.Since(discoveryStart)
	logger.Info("discovered identifier range",
		zap.String("start", cfg.Range.StartID),
		zap.String("end", cfg.Range.EndID),
		zap.Int("papers", len(ids)))

	if !cfg.Workers.Resume {
		if err := os.Remove(cfg.Paths.ProgressFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("clearing progress file: %w", err)
		}
		logger.Info("resume disabled, starting from a clean progress file")
	}
	led, err := ledger.Load(cfg.Paths.ProgressFile)
	if err != nil {
		return err
	}

	store := artifacts.NewStore(cfg.Paths.OutputDir)
	if err := os.MkdirAll(store.Root(), 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	audit, err := auditlog.Open(cfg.Paths.AuditDB)
	if err != nil {
		return err
	}
	defer audit.Close()

	proc := buildPipeline(cfg, store, logger)
	collector := stats.NewCollector()
	workers := pool.New(proc, led, collector, audit, cfg.Workers.Count, logger)

	if cfg.Ops.Enabled {
		opsServer := ops.NewServer(cfg.Ops.Port, workers, logger)
		opsServer.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = opsServer.Shutdown(shutdownCtx)
		}()
	}

	mon := monitor.New(5*time.Second, cfg.Paths.OutputDir, logger)
	mon.Start()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runStart := time.Now()
	runErr := workers.Run(ctx, ids)
	runtime := time.Since(runStart)

	usage := mon.Stop()
	outputMB := float64(store.TotalSize()) / (1024 * 1024)

	collector.SetTiming(runtime, discovery)
	collector.SetResources(usage.MaxRAMMB, usage.AvgRAMMB, usage.MaxCPUPercent, usage.AvgCPUPercent, usage.MaxDiskMB, outputMB)
	if err := collector.Save(cfg.Paths.StatsFile); err != nil {
		return fmt.Errorf("writing statistics: %w", err)
	}

	printRunSummary(cmd, collector.Finalize(), runtime, usage, outputMB)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if errors.Is(runErr, context.Canceled) {
		logger.Warn("run interrupted, partial results saved")
	}
	return nil
}

func discoverRange(cfg config.Config) ([]arxivid.ID, error) {
	start, err := arxivid.Parse(cfg.Range.StartID)
	if err != nil {
		return nil, fmt.Errorf("range.start_id: %w", err)
	}
	end, err := arxivid.Parse(cfg.Range.EndID)
	if err != nil {
		return nil, fmt.Errorf("range.end_id: %w", err)
	}
	return arxivid.Range(start, end)
}

func buildPipeline(cfg config.Config, store *artifacts.Store, logger *zap.Logger) *pipeline.Pipeline {
	pacer := ratelimit.NewPacer("arxiv", time.Duration(cfg.Arxiv.PacingMs)*time.Millisecond)
	search := arxiv.New(arxiv.Config{
		SearchURL:   cfg.Arxiv.SearchURL,
		AbsURL:      cfg.Arxiv.AbsURL,
		PageTimeout: cfg.PageTimeout(),
	}, pacer, logger)

	fetcher := archive.New(archive.Config{
		EPrintURL: cfg.Arxiv.EPrintURL,
		Timeout:   cfg.DownloadTimeout(),
	}, logger)

	gate := ratelimit.NewGate("semantic_scholar", cfg.S2Interval())
	citations := semscholar.New(semscholar.Config{
		BaseURL:     cfg.S2.BaseURL,
		APIKey:      cfg.S2.APIKey,
		MaxRetries:  cfg.S2.MaxRetries,
		Timeout:     time.Duration(cfg.S2.TimeoutSeconds) * time.Second,
		BackoffBase: time.Duration(cfg.S2.BackoffBaseSec) * time.Second,
		BackoffCap:  time.Duration(cfg.S2.BackoffCapSec) * time.Second,
		RetryPause:  time.Duration(cfg.S2.RetryPauseSeconds) * time.Second,
	}, gate, logger)

	return pipeline.New(search, search, fetcher, citations, store, logger)
}

func printRunSummary(cmd *cobra.Command, r stats.Report, runtime time.Duration, usage monitor.Usage, outputMB float64) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "============================================================")
	fmt.Fprintln(out, "HARVEST COMPLETE")
	fmt.Fprintln(out, "============================================================")
	fmt.Fprintf(out, "Total papers: %d\n", r.TotalPapers)
	fmt.Fprintf(out, "Successful: %d\n", r.SuccessfulPapers)
	fmt.Fprintf(out, "Failed: %d\n", r.FailedPapers)
	fmt.Fprintf(out, "Success rate: %.1f%%\n", r.SuccessRatePercent)
	fmt.Fprintf(out, "Total runtime: %.1fs\n", runtime.Seconds())
	fmt.Fprintf(out, "Average time per paper: %.1fs\n", r.AvgTimePerPaperSeconds)
	fmt.Fprintf(out, "Max RAM: %.1f MB\n", usage.MaxRAMMB)
	fmt.Fprintf(out, "Max CPU: %.1f%%\n", usage.MaxCPUPercent)
	fmt.Fprintf(out, "Output size: %.1f MB\n", outputMB)
}
