package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T) *Limiter {
	t.Helper()

	store := NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	return NewLimiter(store)
}

func TestLimiterAllowsWithinQuota(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Allow(ctx, "secret", "10.0.0.1", 5, 100))
	}
}

func TestLimiterBlocksMinuteWindow(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, "secret", "10.0.0.1", 2, 100))
	require.NoError(t, l.Allow(ctx, "secret", "10.0.0.1", 2, 100))

	err := l.Allow(ctx, "secret", "10.0.0.1", 2, 100)
	require.ErrorIs(t, err, ErrLimitExceeded)

	var limitErr *LimitExceededError
	require.True(t, errors.As(err, &limitErr))
	require.Equal(t, PerMinute, limitErr.Window)
	require.Equal(t, 60, limitErr.RetryAfter())
}

func TestLimiterBlocksHourWindow(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, "secret", "10.0.0.1", 100, 2))
	require.NoError(t, l.Allow(ctx, "secret", "10.0.0.1", 100, 2))

	err := l.Allow(ctx, "secret", "10.0.0.1", 100, 2)
	var limitErr *LimitExceededError
	require.True(t, errors.As(err, &limitErr))
	require.Equal(t, PerHour, limitErr.Window)
	require.Equal(t, 3600, limitErr.RetryAfter())
}

func TestLimiterMinuteBreachSparesHourBudget(t *testing.T) {
	store := NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	l := NewLimiter(store)
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, "secret", "10.0.0.1", 1, 10))
	require.Error(t, l.Allow(ctx, "secret", "10.0.0.1", 1, 10))

	now := l.now()
	hourKey := counterKey("secret", "10.0.0.1", PerHour, now)
	count, err := store.Increment(ctx, hourKey, time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(2), count, "blocked request must not consume the hour budget")
}

func TestLimiterIsolatesClients(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, "secret", "10.0.0.1", 1, 100))
	require.Error(t, l.Allow(ctx, "secret", "10.0.0.1", 1, 100))

	require.NoError(t, l.Allow(ctx, "secret", "10.0.0.2", 1, 100), "different client IP has its own counters")
	require.NoError(t, l.Allow(ctx, "other-secret", "10.0.0.1", 1, 100), "different credential has its own counters")
}

func TestLimiterZeroLimitDisablesWindow(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		require.NoError(t, l.Allow(ctx, "secret", "10.0.0.1", 0, 0))
	}
}

func TestCounterKeyLayout(t *testing.T) {
	now := time.Unix(3600, 0).UTC()
	key := counterKey("abc123", "10.0.0.1", PerMinute, now)
	require.Equal(t, "rate_limit:abc123:10.0.0.1:minute:60", key)

	key = counterKey("abc123", "10.0.0.1", PerHour, now)
	require.Equal(t, "rate_limit:abc123:10.0.0.1:hour:1", key)
}
