package ops

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/arxiv-harvest/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

type fakeProgress struct {
	runID     string
	completed int
	total     int
}

func (f *fakeProgress) RunID() string                    { return f.runID }
func (f *fakeProgress) Progress() (completed, total int) { return f.completed, f.total }

func TestHealthz(t *testing.T) {
	t.Parallel()
	s := NewServer(0, &fakeProgress{}, zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestProgressSnapshot(t *testing.T) {
	t.Parallel()
	s := NewServer(0, &fakeProgress{runID: "run-1", completed: 25, total: 100}, zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/progress", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		RunID     string  `json:"run_id"`
		Completed int     `json:"completed"`
		Total     int     `json:"total"`
		Percent   float64 `json:"percent"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "run-1", resp.RunID)
	require.Equal(t, 25, resp.Completed)
	require.Equal(t, 100, resp.Total)
	require.Equal(t, 25.0, resp.Percent)
}

func TestProgressZeroTotal(t *testing.T) {
	t.Parallel()
	s := NewServer(0, &fakeProgress{runID: "run-1"}, zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/progress", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"percent":0`)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	s := NewServer(0, &fakeProgress{}, zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "harvest_")
}
