// Package ratelimit provides the call pacing used against upstream services.
//
// Gate enforces a minimum interval between successive calls and serializes
// every caller through one critical section, which is what the Semantic
// Scholar quota requires. Pacer is a thin token-bucket wrapper used for the
// politer, burst-tolerant arXiv endpoints.
package ratelimit

import (
	"sync"
	"time"

	"github.com/JakeFAU/arxiv-harvest/internal/metrics"
)

// Gate runs calls one at a time, guaranteeing that at least Interval has
// elapsed since the start of the previously completed call. The mutex is held
// across the whole wait-then-call section, so concurrent callers queue at the
// lock and each waits for its own turn.
type Gate struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	service  string

	// test seams
	now   func() time.Time
	sleep func(time.Duration)
}

// NewGate builds a Gate spacing calls by interval. The service label is only
// used for metrics.
func NewGate(service string, interval time.Duration) *Gate {
	return &Gate{
		interval: interval,
		service:  service,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// Do executes call under the gate. The caller captures any response values in
// the closure; Do returns whatever error the call returned.
func (g *Gate) Do(call func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.last.IsZero() {
		if wait := g.interval - g.now().Sub(g.last); wait > 0 {
			g.sleep(wait)
			metrics.ObserveRateLimitDelay(g.service, wait)
		}
	}

	err := call()
	g.last = g.now()
	return err
}

// Interval reports the configured minimum spacing.
func (g *Gate) Interval() time.Duration {
	return g.interval
}
