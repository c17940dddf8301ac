// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	harvestPapersTotal           *prometheus.CounterVec
	harvestVersionsTotal         prometheus.Counter
	harvestBytesTotal            *prometheus.CounterVec
	harvestReferencesTotal       prometheus.Counter
	harvestPaperDurationSeconds  prometheus.Histogram
	harvestActiveWorkers         prometheus.Gauge
	harvestRateLimitDelaySeconds *prometheus.HistogramVec
	harvestAPIRequestsTotal      *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		harvestPapersTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_papers_total",
				Help: "Total number of papers processed, labeled by outcome kind.",
			},
			[]string{"outcome"},
		)

		harvestVersionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvest_versions_total",
				Help: "Total number of source versions downloaded and extracted.",
			},
		)

		harvestBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_bytes_total",
				Help: "Total bytes handled, labeled by stage (downloaded, extracted).",
			},
			[]string{"stage"},
		)

		harvestReferencesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvest_references_total",
				Help: "Total number of references retained across all papers.",
			},
		)

		harvestPaperDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvest_paper_duration_seconds",
				Help:    "Histogram of end-to-end per-paper processing latency.",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
		)

		harvestActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvest_active_workers",
				Help: "Number of workers currently processing a paper.",
			},
		)

		harvestRateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvest_rate_limit_delay_seconds",
				Help:    "Histogram of rate limit wait durations, labeled by service.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"service"},
		)

		harvestAPIRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_api_requests_total",
				Help: "Total upstream API requests, labeled by service and status class.",
			},
			[]string{"service", "status"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePaper records a finished paper with its outcome kind.
func ObservePaper(outcome string, duration time.Duration) {
	harvestPapersTotal.WithLabelValues(outcome).Inc()
	harvestPaperDurationSeconds.Observe(duration.Seconds())
}

// ObserveVersion records one extracted version with its byte sizes.
func ObserveVersion(sizeBefore, sizeAfter int64) {
	harvestVersionsTotal.Inc()
	harvestBytesTotal.WithLabelValues("downloaded").Add(float64(sizeBefore))
	harvestBytesTotal.WithLabelValues("extracted").Add(float64(sizeAfter))
}

// ObserveReferences adds retained reference counts.
func ObserveReferences(n int) {
	if n > 0 {
		harvestReferencesTotal.Add(float64(n))
	}
}

// ObserveAPIRequest increments the upstream request counter.
func ObserveAPIRequest(service, status string) {
	harvestAPIRequestsTotal.WithLabelValues(service, status).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(service string, duration time.Duration) {
	harvestRateLimitDelaySeconds.WithLabelValues(service).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	harvestActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	harvestActiveWorkers.Dec()
}
