// Package ops exposes the operational HTTP surface of a running harvest:
// health, Prometheus metrics, and a live progress snapshot.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/JakeFAU/arxiv-harvest/internal/metrics"
)

// ProgressSource reports completion state for the current run.
type ProgressSource interface {
	RunID() string
	Progress() (completed, total int)
}

// Server serves the operational endpoints on its own port so that scraping
// throughput is never coupled to observers.
type Server struct {
	router chi.Router
	source ProgressSource
	logger *zap.Logger
	http   *http.Server
}

// NewServer constructs a Server bound to port.
func NewServer(port int, source ProgressSource, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{source: source, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/progress", s.progress)
	s.router = r

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router for use in tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		s.logger.Info("ops server listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("ops server failed", zap.Error(err))
		}
	}()
}

// Shutdown drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type progressResponse struct {
	RunID     string  `json:"run_id"`
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
}

func (s *Server) progress(w http.ResponseWriter, _ *http.Request) {
	completed, total := s.source.Progress()
	resp := progressResponse{
		RunID:     s.source.RunID(),
		Completed: completed,
		Total:     total,
	}
	if total > 0 {
		resp.Percent = float64(completed) / float64(total) * 100
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
