package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreIncrement(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close() // nolint:errcheck

	ctx := context.Background()
	for want := int64(1); want <= 3; want++ {
		count, err := s.Increment(ctx, "key", time.Minute)
		require.NoError(t, err)
		require.Equal(t, want, count)
	}

	count, err := s.Increment(ctx, "other", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), count, "counters are independent per key")
}

func TestMemoryStoreConcurrentIncrement(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close() // nolint:errcheck

	const workers = 64
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := s.Increment(ctx, "shared", time.Minute)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	count, err := s.Increment(ctx, "shared", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(workers+1), count, "no increments may be lost under contention")
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close() // nolint:errcheck

	current := time.Now()
	s.now = func() time.Time { return current }

	ctx := context.Background()
	_, err := s.Increment(ctx, "key", time.Minute)
	require.NoError(t, err)
	_, err = s.Increment(ctx, "key", time.Minute)
	require.NoError(t, err)

	current = current.Add(61 * time.Second)
	count, err := s.Increment(ctx, "key", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), count, "expired counter restarts from zero")
}

func TestMemoryStoreSweep(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close() // nolint:errcheck

	current := time.Now()
	s.now = func() time.Time { return current }

	ctx := context.Background()
	_, err := s.Increment(ctx, "stale", time.Minute)
	require.NoError(t, err)
	_, err = s.Increment(ctx, "fresh", time.Hour)
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)
	s.removeExpired()

	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotContains(t, s.counters, "stale")
	require.Contains(t, s.counters, "fresh")
}
