package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/arxiv-harvest/internal/metrics"
)

// Pacer spaces requests to a service using a token bucket with burst 1. It
// does not serialize callers; use Gate where the service requires strict
// one-in-flight spacing.
type Pacer struct {
	limiter *rate.Limiter
	service string
}

// NewPacer builds a Pacer allowing one request per interval.
func NewPacer(service string, interval time.Duration) *Pacer {
	if interval <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1), service: service}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(interval), 1), service: service}
}

// Wait blocks until a token is available or the context finishes.
func (p *Pacer) Wait(ctx context.Context) error {
	start := time.Now()
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObserveRateLimitDelay(p.service, d)
	}
	return nil
}
