// Package stats aggregates run-level statistics and writes the final
// statistics.json report.
package stats

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/JakeFAU/arxiv-harvest/internal/pipeline"
)

// Report is the serialized form of a finished run.
type Report struct {
	TotalPapers        int     `json:"total_papers"`
	SuccessfulPapers   int     `json:"successful_papers"`
	FailedPapers       int     `json:"failed_papers"`
	SuccessRatePercent float64 `json:"success_rate_percent"`

	ErrorBreakdown map[string]int `json:"error_breakdown"`

	TotalVersionsScraped    int     `json:"total_versions_scraped"`
	AvgVersionsPerPaper     float64 `json:"avg_versions_per_paper"`
	AvgPaperSizeBeforeBytes int64   `json:"avg_paper_size_before_bytes"`
	AvgPaperSizeAfterBytes  int64   `json:"avg_paper_size_after_bytes"`

	TotalReferencesScraped      int     `json:"total_references_scraped"`
	AvgReferencesPerPaper       float64 `json:"avg_references_per_paper"`
	ReferenceSuccessRatePercent float64 `json:"reference_success_rate_percent"`

	TotalRuntimeSeconds       float64 `json:"total_runtime_seconds"`
	EntryDiscoveryTimeSeconds float64 `json:"entry_discovery_time_seconds"`
	AvgTimePerPaperSeconds    float64 `json:"avg_time_per_paper_seconds"`

	MaxRAMMB      float64 `json:"max_ram_mb"`
	AvgRAMMB      float64 `json:"avg_ram_mb"`
	MaxCPUPercent float64 `json:"max_cpu_percent"`
	AvgCPUPercent float64 `json:"avg_cpu_percent"`

	MaxDiskUsageMB    float64 `json:"max_disk_usage_mb"`
	FinalOutputSizeMB float64 `json:"final_output_size_mb"`
}

// breakdownKeys is the full set of reportable failure categories. Categories
// stay in the report at zero even when no paper hit them.
var breakdownKeys = []string{
	string(pipeline.KindNoSource),
	string(pipeline.KindMissingVersions),
	"download_timeout",
	"extraction_error",
	string(pipeline.KindRateLimited),
	string(pipeline.KindNotFound),
	string(pipeline.KindCitationError),
	"invalid_archive",
	string(pipeline.KindUnexpected),
}

// Collector accumulates per-paper outcomes. Safe for concurrent use.
type Collector struct {
	mu     sync.Mutex
	report Report

	times       []time.Duration
	sizesBefore []int64
	sizesAfter  []int64
	versions    []int
	references  []int
	peakDisks   []int64
	withRefs    int
}

// NewCollector returns a Collector with every breakdown category at zero.
func NewCollector() *Collector {
	c := &Collector{}
	c.report.ErrorBreakdown = make(map[string]int, len(breakdownKeys))
	for _, k := range breakdownKeys {
		c.report.ErrorBreakdown[k] = 0
	}
	return c
}

// Add records one finished paper, success or failure.
func (c *Collector) Add(out pipeline.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !out.Success() {
		c.report.FailedPapers++
		if _, ok := c.report.ErrorBreakdown[string(out.Kind)]; ok {
			c.report.ErrorBreakdown[string(out.Kind)]++
		}
		return
	}

	c.report.SuccessfulPapers++
	c.report.TotalVersionsScraped += out.Versions
	c.report.TotalReferencesScraped += out.References

	c.times = append(c.times, out.Elapsed)
	c.sizesBefore = append(c.sizesBefore, out.SizeBefore)
	c.sizesAfter = append(c.sizesAfter, out.SizeAfter)
	c.versions = append(c.versions, out.Versions)
	c.references = append(c.references, out.References)
	c.peakDisks = append(c.peakDisks, out.PeakDisk)
	if out.References > 0 {
		c.withRefs++
	}
}

// SetTotal records the number of papers the run set out to process.
func (c *Collector) SetTotal(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report.TotalPapers = n
}

// SetTiming records whole-run timing.
func (c *Collector) SetTiming(totalRuntime, entryDiscovery time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report.TotalRuntimeSeconds = totalRuntime.Seconds()
	c.report.EntryDiscoveryTimeSeconds = entryDiscovery.Seconds()
}

// SetResources records process resource usage and the final output size.
// maxDiskMB is the monitor's output-directory sample; per-paper peaks, when
// any paper succeeded, override it in Finalize.
func (c *Collector) SetResources(maxRAM, avgRAM, maxCPU, avgCPU, maxDiskMB, outputSizeMB float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report.MaxRAMMB = maxRAM
	c.report.AvgRAMMB = avgRAM
	c.report.MaxCPUPercent = maxCPU
	c.report.AvgCPUPercent = avgCPU
	c.report.MaxDiskUsageMB = maxDiskMB
	c.report.FinalOutputSizeMB = outputSizeMB
}

// Finalize computes derived fields and returns a copy of the report.
func (c *Collector) Finalize() Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := &c.report
	if r.TotalPapers > 0 {
		r.SuccessRatePercent = float64(r.SuccessfulPapers) / float64(r.TotalPapers) * 100
	}
	if n := r.SuccessfulPapers; n > 0 {
		r.AvgVersionsPerPaper = float64(sumInts(c.versions)) / float64(n)
		r.AvgReferencesPerPaper = float64(sumInts(c.references)) / float64(n)
		r.AvgTimePerPaperSeconds = sumDurations(c.times).Seconds() / float64(n)
		r.AvgPaperSizeBeforeBytes = sumInt64s(c.sizesBefore) / int64(n)
		r.AvgPaperSizeAfterBytes = sumInt64s(c.sizesAfter) / int64(n)
		r.ReferenceSuccessRatePercent = float64(c.withRefs) / float64(n) * 100
	}
	if len(c.peakDisks) > 0 {
		r.MaxDiskUsageMB = float64(maxInt64(c.peakDisks)) / (1024 * 1024)
	}

	out := *r
	out.ErrorBreakdown = make(map[string]int, len(r.ErrorBreakdown))
	for k, v := range r.ErrorBreakdown {
		out.ErrorBreakdown[k] = v
	}
	return out
}

// Save finalizes the report and writes it to path.
func (c *Collector) Save(path string) error {
	report := c.Finalize()
	raw, err := json.MarshalIndent(report, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func sumInts(xs []int) int {
	var s int
	for _, x := range xs {
		s += x
	}
	return s
}

func sumInt64s(xs []int64) int64 {
	var s int64
	for _, x := range xs {
		s += x
	}
	return s
}

func sumDurations(xs []time.Duration) time.Duration {
	var s time.Duration
	for _, x := range xs {
		s += x
	}
	return s
}

func maxInt64(xs []int64) int64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}
