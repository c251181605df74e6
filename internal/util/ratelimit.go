package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter spaces operations out to at most a fixed number per minute by
// enforcing a minimum interval between calls. Slots are handed out in call
// order.
type RateLimiter struct {
	interval time.Duration

	mu     sync.Mutex
	nextAt time.Time
}

// NewRateLimiter returns a limiter allowing perMinute operations per minute.
// The first call passes immediately.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	return &RateLimiter{interval: time.Minute / time.Duration(perMinute)}
}

// Wait blocks until the caller's slot arrives or ctx is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.Lock()
	now := time.Now()
	at := rl.nextAt
	if at.Before(now) {
		at = now
	}
	rl.nextAt = at.Add(rl.interval)
	rl.mu.Unlock()

	wait := time.Until(at)
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
