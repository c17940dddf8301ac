// Package pipeline sequences the per-paper stages: metadata fetch, version
// date resolution, version downloads, citation fetch, and persistence. Every
// stage traps its own transport failures; callers only ever see a terminal
// Outcome, never a raw error.
package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/arxiv-harvest/internal/archive"
	"github.com/JakeFAU/arxiv-harvest/internal/artifacts"
	"github.com/JakeFAU/arxiv-harvest/internal/arxiv"
	"github.com/JakeFAU/arxiv-harvest/internal/arxivid"
	"github.com/JakeFAU/arxiv-harvest/internal/metrics"
	"github.com/JakeFAU/arxiv-harvest/internal/semscholar"
)

// MetadataClient fetches one paper's descriptor.
type MetadataClient interface {
	Fetch(ctx context.Context, id arxivid.ID) (arxiv.Descriptor, error)
}

// DateResolver derives per-version submission dates; nil means unresolved.
type DateResolver interface {
	ResolveVersionDates(ctx context.Context, id arxivid.ID, versionCount int) []string
}

// ArchiveFetcher downloads and extracts one version.
type ArchiveFetcher interface {
	FetchAndExtract(ctx context.Context, id arxivid.ID, version int, destDir string) (archive.Result, error)
}

// CitationClient fetches references and venue.
type CitationClient interface {
	Fetch(ctx context.Context, id arxivid.ID) (semscholar.Result, error)
}

// Pipeline processes one paper at a time. It is safe for concurrent use by
// multiple workers; all mutable state is per-call.
type Pipeline struct {
	meta     MetadataClient
	dates    DateResolver
	archives ArchiveFetcher
	cites    CitationClient
	store    *artifacts.Store
	logger   *zap.Logger

	now func() time.Time // test seam
}

// New constructs a Pipeline.
func New(
	meta MetadataClient,
	dates DateResolver,
	archives ArchiveFetcher,
	cites CitationClient,
	store *artifacts.Store,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		meta:     meta,
		dates:    dates,
		archives: archives,
		cites:    cites,
		store:    store,
		logger:   logger,
		now:      time.Now,
	}
}

// Process runs the full stage sequence for one paper and classifies the
// terminal outcome. Stages run strictly forward; per-version download
// failures are recorded and never abort sibling versions.
func (p *Pipeline) Process(ctx context.Context, id arxivid.ID) Outcome {
	start := p.now()
	log := p.logger.With(zap.String("paper_id", id.String()))
	log.Info("processing paper")

	desc, err := p.meta.Fetch(ctx, id)
	if err != nil {
		log.Warn("metadata fetch failed", zap.Error(err))
		return p.finish(Outcome{ID: id, Kind: KindNotFound, Err: err}, start)
	}
	expected := desc.LatestVersion
	log.Info("resolved metadata", zap.Int("versions", expected))

	dates := p.dates.ResolveVersionDates(ctx, id, expected)
	if len(dates) == 0 {
		// Uniform fallback; misassigning dates would be worse.
		today := p.now().Format("2006-01-02")
		dates = make([]string, expected)
		for i := range dates {
			dates[i] = today
		}
	}

	out := Outcome{ID: id, Kind: KindSuccess, ExpectedVersions: expected}
	for v := 1; v <= expected; v++ {
		res, err := p.archives.FetchAndExtract(ctx, id, v, p.store.VersionDir(id, v))
		if err != nil {
			log.Warn("version download failed", zap.Int("version", v), zap.Error(err))
			continue
		}
		out.Versions++
		out.SizeBefore += res.SizeBefore
		out.SizeAfter += res.SizeAfter
		if peak := res.SizeBefore + res.SizeAfter; peak > out.PeakDisk {
			out.PeakDisk = peak
		}
		metrics.ObserveVersion(res.SizeBefore, res.SizeAfter)
	}

	switch {
	case out.Versions == 0:
		out.Kind = KindNoSource
		return p.finish(out, start)
	case out.Versions < expected:
		out.Kind = KindMissingVersions
		return p.finish(out, start)
	case out.SizeAfter == 0:
		// Downloads succeeded but nothing extractable was retained.
		out.Kind = KindNoSource
		return p.finish(out, start)
	}

	citations, err := p.cites.Fetch(ctx, id)
	if err != nil {
		log.Warn("citation fetch failed", zap.Error(err))
		out.Err = err
		switch {
		case errors.Is(err, semscholar.ErrRateLimited):
			out.Kind = KindRateLimited
		case errors.Is(err, semscholar.ErrService):
			out.Kind = KindCitationError
		default:
			out.Kind = KindUnexpected
		}
		return p.finish(out, start)
	}

	if err := p.persist(id, desc, dates, citations, &out); err != nil {
		log.Error("persist failed", zap.Error(err))
		out.Kind = KindUnexpected
		out.Err = err
		return p.finish(out, start)
	}

	log.Info("paper done",
		zap.Int("versions", out.Versions),
		zap.Int("references", out.References),
		zap.Int64("size_after", out.SizeAfter))
	return p.finish(out, start)
}

func (p *Pipeline) persist(
	id arxivid.ID,
	desc arxiv.Descriptor,
	dates []string,
	citations semscholar.Result,
	out *Outcome,
) error {
	venue := citations.Venue
	if venue == "" {
		venue = desc.JournalRef
	}

	meta := artifacts.Metadata{
		PaperTitle:       desc.Title,
		Authors:          desc.Authors,
		SubmissionDate:   dates[0],
		RevisedDates:     dates,
		PublicationVenue: venue,
	}
	if err := p.store.WriteMetadata(id, meta); err != nil {
		return err
	}

	n, err := p.store.WriteReferences(id, citations.References)
	if err != nil {
		return err
	}
	out.References = n
	metrics.ObserveReferences(n)
	return nil
}

func (p *Pipeline) finish(out Outcome, start time.Time) Outcome {
	out.Elapsed = p.now().Sub(start)
	return out
}
