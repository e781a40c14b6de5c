package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Limiter spaces outbound requests so that consecutive requests through the
// same limiter are at least one interval apart. The first request is free.
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter creates a limiter allowing one request per interval.
// A non-positive interval disables limiting.
func NewLimiter(interval time.Duration) *Limiter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Limiter{limiter: rate.NewLimiter(limit, 1)}
}

// Wait blocks until the next request slot is available or ctx is done
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}
	return nil
}

// Set groups the per-marketplace limiters. Sources never share a limiter.
type Set struct {
	OLX    *Limiter
	Vinted *Limiter
}

// NewSet creates one independent limiter per marketplace source
func NewSet(interval time.Duration) *Set {
	return &Set{
		OLX:    NewLimiter(interval),
		Vinted: NewLimiter(interval),
	}
}
