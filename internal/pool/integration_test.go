package pool

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/arxiv-harvest/internal/archive"
	"github.com/JakeFAU/arxiv-harvest/internal/artifacts"
	"github.com/JakeFAU/arxiv-harvest/internal/arxiv"
	"github.com/JakeFAU/arxiv-harvest/internal/pipeline"
	"github.com/JakeFAU/arxiv-harvest/internal/ratelimit"
	"github.com/JakeFAU/arxiv-harvest/internal/semscholar"
	"github.com/JakeFAU/arxiv-harvest/internal/stats"
)

const e2eFeedTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/%sv2</id>
    <title>Gradient Flows on Graphs</title>
    <author><name>Emmy Noether</name></author>
    <author><name>David Hilbert</name></author>
    <published>2023-11-09T18:59:02Z</published>
    <journal_ref>SIAM J. 2024</journal_ref>
  </entry>
</feed>`

const e2eAbsPage = `<html><body>
<strong>[v1]</a></strong> Thu, 9 Nov 2023 18:59:02 UTC (120 KB)<br>
<strong>[v2]</a></strong> Fri, 1 Dec 2023 09:00:00 UTC (121 KB)<br>
</body></html>`

const e2eCitations = `{
  "venue": "NeurIPS",
  "references": [
    {
      "externalIds": {"ArXiv": "2106.01234"},
      "title": "A Cited Paper",
      "authors": [{"name": "Grace Hopper"}],
      "publicationDate": "2021-06-02",
      "paperId": "abc123"
    }
  ]
}`

func e2eTarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

// newStubUpstream serves all four external surfaces: the search API, the
// abstract page, the e-print archive, and the citation graph. Every paper has
// two versions.
func newStubUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	payload := e2eTarGz(t, map[string]string{
		"a.tex": `\documentclass{article}`,
		"b.bib": "@article{x}",
		"c.png": "PNGDATA",
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/api/query", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, e2eFeedTemplate, r.URL.Query().Get("id_list"))
	})
	mux.HandleFunc("/abs/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, e2eAbsPage)
	})
	mux.HandleFunc("/e-print/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(payload)
	})
	mux.HandleFunc("/graph/v1/paper/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, e2eCitations)
	})
	return httptest.NewServer(mux)
}

func TestHarvestRangeEndToEnd(t *testing.T) {
	t.Parallel()
	srv := newStubUpstream(t)
	defer srv.Close()

	logger := zaptest.NewLogger(t)
	store := artifacts.NewStore(t.TempDir())

	search := arxiv.New(arxiv.Config{
		SearchURL: srv.URL + "/api/query",
		AbsURL:    srv.URL + "/abs",
	}, ratelimit.NewPacer("arxiv", 0), logger)

	fetcher := archive.New(archive.Config{
		EPrintURL:  srv.URL + "/e-print",
		ScratchDir: t.TempDir(),
	}, logger)

	citations := semscholar.New(semscholar.Config{
		BaseURL: srv.URL + "/graph/v1",
	}, ratelimit.NewGate("citations", 0), logger)

	proc := pipeline.New(search, search, fetcher, citations, store, logger)

	ids := testRange(t, "2311.05222", "2311.05224")
	led := newTestLedger(t)
	collector := stats.NewCollector()
	rec := &fakeRecorder{}

	p := New(proc, led, collector, rec, 2, logger)
	require.NoError(t, p.Run(context.Background(), ids))

	// Every paper succeeded and is resumable.
	require.Equal(t, 3, led.Len())
	for _, id := range ids {
		require.True(t, led.Contains(id.String()))
	}
	require.Len(t, rec.entries, 3)
	for _, out := range rec.entries {
		require.True(t, out.Success(), "outcome for %s: %s", out.ID, out)
	}

	// The statistics file reports the run the way the summary consumers read it.
	statsPath := filepath.Join(t.TempDir(), "statistics.json")
	require.NoError(t, collector.Save(statsPath))
	raw, err := os.ReadFile(statsPath)
	require.NoError(t, err)
	var report map[string]any
	require.NoError(t, json.Unmarshal(raw, &report))
	require.Equal(t, 3.0, report["total_papers"])
	require.Equal(t, 3.0, report["successful_papers"])
	require.Equal(t, 100.0, report["success_rate_percent"])
	require.Equal(t, 6.0, report["total_versions_scraped"])

	// Extraction kept the source subset and dropped everything else.
	v1 := filepath.Join(store.Root(), "2311-05222", "tex", "2311-05222v1")
	require.FileExists(t, filepath.Join(v1, "a.tex"))
	require.FileExists(t, filepath.Join(v1, "b.bib"))
	require.NoFileExists(t, filepath.Join(v1, "c.png"))
	require.DirExists(t, filepath.Join(store.Root(), "2311-05222", "tex", "2311-05222v2"))

	// Metadata carries the scraped version dates and the citation venue.
	metaRaw, err := os.ReadFile(filepath.Join(store.Root(), "2311-05222", "metadata.json"))
	require.NoError(t, err)
	var meta artifacts.Metadata
	require.NoError(t, json.Unmarshal(metaRaw, &meta))
	require.Equal(t, "2023-11-09", meta.SubmissionDate)
	require.Equal(t, []string{"2023-11-09", "2023-12-01"}, meta.RevisedDates)
	require.Equal(t, "NeurIPS", meta.PublicationVenue)

	refsRaw, err := os.ReadFile(filepath.Join(store.Root(), "2311-05222", "references.json"))
	require.NoError(t, err)
	var refs map[string]artifacts.ReferenceEntry
	require.NoError(t, json.Unmarshal(refsRaw, &refs))
	require.Contains(t, refs, "2106-01234")
}
