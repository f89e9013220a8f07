package ratelimit

import (
	"context"
	"time"
)

// CounterStore increments named counters that expire on their own. The
// increment and the expiry must be applied atomically so that two
// concurrent requests can never both observe a count below the limit
// when only one slot remains.
type CounterStore interface {
	// Increment adds one to the counter under key, setting ttl when the
	// counter is created, and returns the new value.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Close releases any resources held by the store.
	Close() error
}
