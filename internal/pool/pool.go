// Package pool fans a fixed range of paper identifiers out to a bounded set
// of pipeline workers and feeds every terminal outcome to the run's
// bookkeeping sinks.
package pool

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/arxiv-harvest/internal/arxivid"
	"github.com/JakeFAU/arxiv-harvest/internal/ledger"
	"github.com/JakeFAU/arxiv-harvest/internal/metrics"
	"github.com/JakeFAU/arxiv-harvest/internal/pipeline"
	"github.com/JakeFAU/arxiv-harvest/internal/stats"
)

// Processor runs the full per-paper stage sequence.
type Processor interface {
	Process(ctx context.Context, id arxivid.ID) pipeline.Outcome
}

// Recorder persists one outcome to the audit trail.
type Recorder interface {
	Record(runID string, out pipeline.Outcome) error
}

// Pool coordinates a single harvest run.
type Pool struct {
	proc    Processor
	ledger  *ledger.Ledger
	stats   *stats.Collector
	audit   Recorder
	logger  *zap.Logger
	workers int
	runID   string

	mu        sync.Mutex
	completed int
	total     int
}

// New constructs a Pool. audit may be nil when no audit trail is configured.
func New(proc Processor, led *ledger.Ledger, collector *stats.Collector, audit Recorder, workers int, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		proc:    proc,
		ledger:  led,
		stats:   collector,
		audit:   audit,
		logger:  logger,
		workers: workers,
		runID:   uuid.NewString(),
	}
}

// RunID identifies this run in the audit trail.
func (p *Pool) RunID() string {
	return p.runID
}

// Progress reports completed and total paper counts for the current run.
func (p *Pool) Progress() (completed, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completed, p.total
}

// Run processes every identifier in ids not already in the ledger, with at
// most the configured number of papers in flight. Cancelling ctx stops new
// submissions; papers already in flight run to completion so their artifacts
// and ledger entries stay consistent.
func (p *Pool) Run(ctx context.Context, ids []arxivid.ID) error {
	pending := make([]arxivid.ID, 0, len(ids))
	for _, id := range ids {
		if p.ledger.Contains(id.String()) {
			p.logger.Debug("skipping already processed paper", zap.String("paper_id", id.String()))
			continue
		}
		pending = append(pending, id)
	}

	p.mu.Lock()
	p.total = len(pending)
	p.completed = 0
	p.mu.Unlock()

	p.stats.SetTotal(len(pending))
	p.logger.Info("starting run",
		zap.String("run_id", p.runID),
		zap.Int("papers", len(pending)),
		zap.Int("skipped", len(ids)-len(pending)),
		zap.Int("workers", p.workers))

	g := new(errgroup.Group)
	g.SetLimit(p.workers)

	for _, id := range pending {
		if ctx.Err() != nil {
			p.logger.Warn("run interrupted, draining in-flight papers",
				zap.String("run_id", p.runID))
			break
		}
		id := id
		g.Go(func() error {
			metrics.IncActiveWorkers()
			defer metrics.DecActiveWorkers()

			// In-flight papers finish even after an interrupt.
			out := p.proc.Process(context.WithoutCancel(ctx), id)
			p.record(out)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (p *Pool) record(out pipeline.Outcome) {
	p.stats.Add(out)
	metrics.ObservePaper(string(out.Kind), out.Elapsed)

	if p.audit != nil {
		if err := p.audit.Record(p.runID, out); err != nil {
			p.logger.Error("recording audit entry", zap.String("paper_id", out.ID.String()), zap.Error(err))
		}
	}

	if out.Success() {
		if err := p.ledger.Add(out.ID.String()); err != nil {
			p.logger.Error("persisting ledger", zap.String("paper_id", out.ID.String()), zap.Error(err))
		}
	}

	p.mu.Lock()
	p.completed++
	completed, total := p.completed, p.total
	p.mu.Unlock()

	if out.Success() {
		p.logger.Info("paper succeeded",
			zap.Int("completed", completed), zap.Int("total", total),
			zap.String("paper_id", out.ID.String()))
	} else {
		p.logger.Warn("paper failed",
			zap.Int("completed", completed), zap.Int("total", total),
			zap.String("paper_id", out.ID.String()),
			zap.String("reason", string(out.Kind)))
	}
}
