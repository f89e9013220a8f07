package ratelimit

import (
	"context"
	"sync"
	"time"
)

const sweepInterval = time.Minute

type memoryCounter struct {
	count     int64
	expiresAt time.Time
}

// MemoryStore is an in-process CounterStore. Counters are swept after
// expiry by a background goroutine; expired counters are also treated
// as absent on read so sweep latency never extends a window.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*memoryCounter
	stopCh   chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// NewMemoryStore returns a MemoryStore with its sweeper running.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		counters: make(map[string]*memoryCounter),
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}
	go s.sweep()
	return s
}

// Increment implements CounterStore.
func (s *MemoryStore) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	counter, ok := s.counters[key]
	if !ok || now.After(counter.expiresAt) {
		counter = &memoryCounter{expiresAt: now.Add(ttl)}
		s.counters[key] = counter
	}
	counter.count++
	return counter.count, nil
}

// Close stops the sweeper. Safe to call more than once.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	return nil
}

func (s *MemoryStore) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.removeExpired()
		}
	}
}

func (s *MemoryStore) removeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, counter := range s.counters {
		if now.After(counter.expiresAt) {
			delete(s.counters, key)
		}
	}
}
