// Package monitor samples process resource usage and output directory growth
// in the background while a harvest runs.
package monitor

import (
	"sync"
	"time"

	"github.com/prometheus/procfs"
	"go.uber.org/zap"

	"github.com/JakeFAU/arxiv-harvest/internal/archive"
)

// Usage summarizes a finished sampling session.
type Usage struct {
	MaxRAMMB      float64
	AvgRAMMB      float64
	MaxCPUPercent float64
	AvgCPUPercent float64
	MaxDiskMB     float64
}

// Monitor samples RSS, CPU, and output size on a fixed interval. Samples are
// read from /proc; on systems without procfs the monitor degrades to
// zero-valued usage rather than failing the run.
type Monitor struct {
	interval  time.Duration
	outputDir string
	logger    *zap.Logger

	mu          sync.Mutex
	ramSamples  []float64
	cpuSamples  []float64
	diskSamples []float64

	lastCPUTime float64
	lastSample  time.Time

	stop chan struct{}
	done chan struct{}
}

// New constructs a Monitor watching outputDir.
func New(interval time.Duration, outputDir string, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Monitor{
		interval:  interval,
		outputDir: outputDir,
		logger:    logger,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the sampling loop.
func (m *Monitor) Start() {
	go m.run()
}

// Stop ends sampling and returns the aggregated usage.
func (m *Monitor) Stop() Usage {
	close(m.stop)
	<-m.done
	return m.usage()
}

func (m *Monitor) run() {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.sample()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *Monitor) sample() {
	now := time.Now()

	proc, err := procfs.Self()
	if err != nil {
		m.logger.Debug("procfs unavailable", zap.Error(err))
		return
	}
	stat, err := proc.Stat()
	if err != nil {
		m.logger.Debug("reading proc stat", zap.Error(err))
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ramMB := float64(stat.ResidentMemory()) / (1024 * 1024)
	m.ramSamples = append(m.ramSamples, ramMB)

	cpuTime := stat.CPUTime()
	if !m.lastSample.IsZero() {
		wall := now.Sub(m.lastSample).Seconds()
		if wall > 0 {
			pct := (cpuTime - m.lastCPUTime) / wall * 100
			if pct >= 0 {
				m.cpuSamples = append(m.cpuSamples, pct)
			}
		}
	}
	m.lastCPUTime = cpuTime
	m.lastSample = now

	if size, err := archive.DirSize(m.outputDir); err == nil {
		m.diskSamples = append(m.diskSamples, float64(size)/(1024*1024))
	}
}

func (m *Monitor) usage() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()

	var u Usage
	u.MaxRAMMB, u.AvgRAMMB = maxAvg(m.ramSamples)
	u.MaxCPUPercent, u.AvgCPUPercent = maxAvg(m.cpuSamples)
	u.MaxDiskMB, _ = maxAvg(m.diskSamples)
	return u
}

func maxAvg(xs []float64) (max, avg float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
		if x > max {
			max = x
		}
	}
	return max, sum / float64(len(xs))
}
