// Package ratelimit enforces per-adapter minimum inter-call intervals.
// External registries tolerate a bounded request rate; the limiter is
// shared across all concurrent callers of one adapter instance so bursts
// cannot exceed the interval even under parallel ingest.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket parameterized by a minimum interval between
// calls. Wait suspends the caller until the next token is available.
type Limiter struct {
	bucket *rate.Limiter
}

// New creates a limiter that allows one call per interval with no burst.
// A non-positive interval disables limiting.
func New(interval time.Duration) *Limiter {
	if interval <= 0 {
		return &Limiter{bucket: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Limiter{bucket: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.bucket.Wait(ctx)
}

// Allow reports whether a call may proceed right now without waiting.
func (l *Limiter) Allow() bool {
	return l.bucket.Allow()
}
