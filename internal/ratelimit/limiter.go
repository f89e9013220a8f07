package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ttlBuffer keeps counters alive slightly past their window so a
// request straddling the boundary still sees the old count.
const ttlBuffer = 10 * time.Second

// ErrLimitExceeded reports a blocked request. Callers that need the
// window details unwrap to *LimitExceededError.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// LimitExceededError carries which window was exhausted.
type LimitExceededError struct {
	Window  Window
	Current int64
	Limit   int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d/%d requests per %s", e.Current, e.Limit, e.Window)
}

func (e *LimitExceededError) Unwrap() error {
	return ErrLimitExceeded
}

// RetryAfter returns the advisory wait in seconds.
func (e *LimitExceededError) RetryAfter() int {
	return e.Window.RetryAfter()
}

// Limiter enforces per-minute and per-hour quotas keyed by credential
// secret and client IP.
type Limiter struct {
	store CounterStore
	now   func() time.Time
}

// NewLimiter returns a Limiter over the given counter store.
func NewLimiter(store CounterStore) *Limiter {
	return &Limiter{store: store, now: time.Now}
}

// Allow consumes one slot from both windows. The minute window is
// checked first; a minute breach leaves the hour counter untouched so
// blocked bursts do not eat into the hourly budget. Limits of zero or
// below disable the corresponding window.
func (l *Limiter) Allow(ctx context.Context, secret, clientIP string, perMinute, perHour int) error {
	now := l.now()

	if err := l.consume(ctx, secret, clientIP, PerMinute, perMinute, now); err != nil {
		return err
	}
	return l.consume(ctx, secret, clientIP, PerHour, perHour, now)
}

func (l *Limiter) consume(ctx context.Context, secret, clientIP string, window Window, limit int, now time.Time) error {
	if limit <= 0 {
		return nil
	}

	key := counterKey(secret, clientIP, window, now)
	count, err := l.store.Increment(ctx, key, window.Duration()+ttlBuffer)
	if err != nil {
		return fmt.Errorf("rate limit counter: %w", err)
	}
	if count > int64(limit) {
		return &LimitExceededError{Window: window, Current: count, Limit: limit}
	}
	return nil
}

func counterKey(secret, clientIP string, window Window, now time.Time) string {
	return fmt.Sprintf("rate_limit:%s:%s:%s:%d", secret, clientIP, window, window.Index(now))
}
