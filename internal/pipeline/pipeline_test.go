package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/arxiv-harvest/internal/archive"
	"github.com/JakeFAU/arxiv-harvest/internal/artifacts"
	"github.com/JakeFAU/arxiv-harvest/internal/arxiv"
	"github.com/JakeFAU/arxiv-harvest/internal/arxivid"
	"github.com/JakeFAU/arxiv-harvest/internal/metrics"
	"github.com/JakeFAU/arxiv-harvest/internal/semscholar"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

type fakeMeta struct {
	desc arxiv.Descriptor
	err  error
}

func (f *fakeMeta) Fetch(context.Context, arxivid.ID) (arxiv.Descriptor, error) {
	return f.desc, f.err
}

type fakeDates struct {
	dates []string
}

func (f *fakeDates) ResolveVersionDates(context.Context, arxivid.ID, int) []string {
	return f.dates
}

type fakeArchive struct {
	results map[int]archive.Result
	errs    map[int]error
	calls   []int
}

func (f *fakeArchive) FetchAndExtract(_ context.Context, _ arxivid.ID, version int, destDir string) (archive.Result, error) {
	f.calls = append(f.calls, version)
	if err := f.errs[version]; err != nil {
		return archive.Result{}, err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return archive.Result{}, err
	}
	return f.results[version], nil
}

type fakeCites struct {
	result semscholar.Result
	err    error
	calls  int
}

func (f *fakeCites) Fetch(context.Context, arxivid.ID) (semscholar.Result, error) {
	f.calls++
	return f.result, f.err
}

func mustID(t *testing.T, s string) arxivid.ID {
	t.Helper()
	id, err := arxivid.Parse(s)
	require.NoError(t, err)
	return id
}

func testDescriptor(versions int) arxiv.Descriptor {
	return arxiv.Descriptor{
		Title:         "Sparse Attention at Scale",
		Authors:       []string{"A. Author", "B. Author"},
		LatestVersion: versions,
		JournalRef:    "JMLR 2023",
	}
}

func newTestPipeline(t *testing.T, meta MetadataClient, dates DateResolver, arch ArchiveFetcher, cites CitationClient) (*Pipeline, *artifacts.Store) {
	t.Helper()
	store := artifacts.NewStore(t.TempDir())
	return New(meta, dates, arch, cites, store, zaptest.NewLogger(t)), store
}

func TestProcessSuccess(t *testing.T) {
	t.Parallel()
	id := mustID(t, "2311.05222")
	refID := mustID(t, "1706.03762")
	arch := &fakeArchive{results: map[int]archive.Result{
		1: {SizeBefore: 100, SizeAfter: 40},
		2: {SizeBefore: 200, SizeAfter: 90},
	}}
	cites := &fakeCites{result: semscholar.Result{
		Venue: "NeurIPS",
		References: []semscholar.Reference{
			{ArxivID: refID, Title: "Attention Is All You Need", PaperID: "abc123"},
		},
	}}
	p, store := newTestPipeline(t,
		&fakeMeta{desc: testDescriptor(2)},
		&fakeDates{dates: []string{"2023-11-09", "2023-12-01"}},
		arch, cites)

	out := p.Process(context.Background(), id)

	require.True(t, out.Success())
	require.Equal(t, KindSuccess, out.Kind)
	require.Equal(t, 2, out.Versions)
	require.Equal(t, 2, out.ExpectedVersions)
	require.Equal(t, int64(300), out.SizeBefore)
	require.Equal(t, int64(130), out.SizeAfter)
	require.Equal(t, int64(290), out.PeakDisk)
	require.Equal(t, 1, out.References)
	require.Equal(t, []int{1, 2}, arch.calls)

	raw, err := os.ReadFile(filepath.Join(store.Root(), id.Folder(), "metadata.json"))
	require.NoError(t, err)
	var meta artifacts.Metadata
	require.NoError(t, json.Unmarshal(raw, &meta))
	require.Equal(t, "2023-11-09", meta.SubmissionDate)
	require.Equal(t, []string{"2023-11-09", "2023-12-01"}, meta.RevisedDates)
	require.Equal(t, "NeurIPS", meta.PublicationVenue)
}

func TestProcessMetadataFailureIsNotFound(t *testing.T) {
	t.Parallel()
	cites := &fakeCites{}
	p, _ := newTestPipeline(t,
		&fakeMeta{err: arxiv.ErrNotFound},
		&fakeDates{}, &fakeArchive{}, cites)

	out := p.Process(context.Background(), mustID(t, "2311.05222"))

	require.Equal(t, KindNotFound, out.Kind)
	require.False(t, out.Success())
	require.Zero(t, cites.calls)
}

func TestProcessMissingVersionsIsFailure(t *testing.T) {
	t.Parallel()
	arch := &fakeArchive{
		results: map[int]archive.Result{
			1: {SizeBefore: 10, SizeAfter: 5},
			2: {SizeBefore: 10, SizeAfter: 5},
			4: {SizeBefore: 10, SizeAfter: 5},
		},
		errs: map[int]error{3: archive.ErrDownload},
	}
	cites := &fakeCites{}
	p, _ := newTestPipeline(t,
		&fakeMeta{desc: testDescriptor(4)},
		&fakeDates{dates: []string{"2023-01-01", "2023-02-01", "2023-03-01", "2023-04-01"}},
		arch, cites)

	out := p.Process(context.Background(), mustID(t, "2311.05222"))

	require.Equal(t, KindMissingVersions, out.Kind)
	require.False(t, out.Success())
	require.Equal(t, 4, out.ExpectedVersions)
	require.Equal(t, 3, out.Versions)
	require.Equal(t, []int{1, 2, 3, 4}, arch.calls)
	require.Zero(t, cites.calls)
}

func TestProcessAllVersionsFailedIsNoSource(t *testing.T) {
	t.Parallel()
	arch := &fakeArchive{errs: map[int]error{1: archive.ErrDownload}}
	p, _ := newTestPipeline(t,
		&fakeMeta{desc: testDescriptor(1)},
		&fakeDates{dates: []string{"2023-01-01"}},
		arch, &fakeCites{})

	out := p.Process(context.Background(), mustID(t, "2311.05222"))

	require.Equal(t, KindNoSource, out.Kind)
}

func TestProcessEmptyExtractionIsNoSource(t *testing.T) {
	t.Parallel()
	arch := &fakeArchive{results: map[int]archive.Result{1: {SizeBefore: 500, SizeAfter: 0}}}
	p, _ := newTestPipeline(t,
		&fakeMeta{desc: testDescriptor(1)},
		&fakeDates{dates: []string{"2023-01-01"}},
		arch, &fakeCites{})

	out := p.Process(context.Background(), mustID(t, "2311.05222"))

	require.Equal(t, KindNoSource, out.Kind)
}

func TestProcessCitationErrorMapping(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		err  error
		kind Kind
	}{
		{"rate limited", semscholar.ErrRateLimited, KindRateLimited},
		{"service error", semscholar.ErrService, KindCitationError},
		{"unexpected", errors.New("boom"), KindUnexpected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			arch := &fakeArchive{results: map[int]archive.Result{1: {SizeBefore: 10, SizeAfter: 5}}}
			p, _ := newTestPipeline(t,
				&fakeMeta{desc: testDescriptor(1)},
				&fakeDates{dates: []string{"2023-01-01"}},
				arch, &fakeCites{err: tc.err})

			out := p.Process(context.Background(), mustID(t, "2311.05222"))

			require.Equal(t, tc.kind, out.Kind)
			require.ErrorIs(t, out.Err, tc.err)
		})
	}
}

func TestProcessEmptyCitationsStillSucceeds(t *testing.T) {
	t.Parallel()
	arch := &fakeArchive{results: map[int]archive.Result{1: {SizeBefore: 10, SizeAfter: 5}}}
	p, store := newTestPipeline(t,
		&fakeMeta{desc: testDescriptor(1)},
		&fakeDates{dates: []string{"2023-01-01"}},
		arch, &fakeCites{result: semscholar.Result{}})

	id := mustID(t, "2311.05222")
	out := p.Process(context.Background(), id)

	require.True(t, out.Success())
	require.Zero(t, out.References)

	raw, err := os.ReadFile(filepath.Join(store.Root(), id.Folder(), "metadata.json"))
	require.NoError(t, err)
	var meta artifacts.Metadata
	require.NoError(t, json.Unmarshal(raw, &meta))
	require.Equal(t, "JMLR 2023", meta.PublicationVenue)
}

func TestProcessDateFallback(t *testing.T) {
	t.Parallel()
	arch := &fakeArchive{results: map[int]archive.Result{
		1: {SizeBefore: 10, SizeAfter: 5},
		2: {SizeBefore: 10, SizeAfter: 5},
	}}
	p, store := newTestPipeline(t,
		&fakeMeta{desc: testDescriptor(2)},
		&fakeDates{dates: nil},
		arch, &fakeCites{})
	p.now = func() time.Time { return time.Date(2023, 11, 9, 12, 0, 0, 0, time.UTC) }

	id := mustID(t, "2311.05222")
	out := p.Process(context.Background(), id)
	require.True(t, out.Success())

	raw, err := os.ReadFile(filepath.Join(store.Root(), id.Folder(), "metadata.json"))
	require.NoError(t, err)
	var meta artifacts.Metadata
	require.NoError(t, json.Unmarshal(raw, &meta))
	require.Equal(t, "2023-11-09", meta.SubmissionDate)
	require.Equal(t, []string{"2023-11-09", "2023-11-09"}, meta.RevisedDates)
}
