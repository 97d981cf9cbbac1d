package admission

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/alexisbeaulieu97/jumpgate/internal/ports"
)

// MemoryStore is a process-local CounterStore. Each operation runs under a
// single mutex, which makes it atomic for callers inside one process only.
// It backs one-shot CLI runs and tests; gateways sharing load use Redis.
type MemoryStore struct {
	mu       sync.Mutex
	buckets  map[string]memoryBucket
	counters map[string]memoryCounter
	now      func() time.Time
}

type memoryBucket struct {
	tokens    float64
	timestamp time.Time
	expires   time.Time
}

type memoryCounter struct {
	value   int64
	expires time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets:  make(map[string]memoryBucket),
		counters: make(map[string]memoryCounter),
		now:      time.Now,
	}
}

// TakeToken implements ports.CounterStore.
func (s *MemoryStore) TakeToken(ctx context.Context, key string, capacity, rate float64, now time.Time, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.buckets[key]
	if !ok || (!bucket.expires.IsZero() && !s.now().Before(bucket.expires)) {
		bucket = memoryBucket{tokens: capacity, timestamp: now}
	}

	elapsed := now.Sub(bucket.timestamp).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	tokens := math.Min(capacity, bucket.tokens+elapsed*rate)

	admitted := tokens >= 1
	if admitted {
		tokens--
	}
	bucket = memoryBucket{tokens: tokens, timestamp: now}
	if ttl > 0 {
		bucket.expires = s.now().Add(ttl)
	}
	s.buckets[key] = bucket
	return admitted, nil
}

// Increment implements ports.CounterStore.
func (s *MemoryStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	counter := s.liveCounter(key)
	counter.value++
	if ttl > 0 {
		counter.expires = s.now().Add(ttl)
	}
	s.counters[key] = counter
	return counter.value, nil
}

// Decrement implements ports.CounterStore.
func (s *MemoryStore) Decrement(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	counter := s.liveCounter(key)
	if counter.value > 0 {
		counter.value--
	}
	s.counters[key] = counter
	return counter.value, nil
}

// Ping implements ports.CounterStore.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Value returns the current counter value at key.
func (s *MemoryStore) Value(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveCounter(key).value
}

func (s *MemoryStore) liveCounter(key string) memoryCounter {
	counter, ok := s.counters[key]
	if !ok {
		return memoryCounter{}
	}
	if !counter.expires.IsZero() && !s.now().Before(counter.expires) {
		return memoryCounter{}
	}
	return counter
}

var _ ports.CounterStore = (*MemoryStore)(nil)
