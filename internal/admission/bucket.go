package admission

import (
	"context"
	"time"

	"github.com/alexisbeaulieu97/jumpgate/internal/ports"
)

// TokenBucket smooths the admission rate for one logical resource. The
// refill-and-take is a single atomic store operation so concurrent gateways
// sharing a store never lose updates.
type TokenBucket struct {
	store    ports.CounterStore
	key      string
	capacity float64
	rate     float64
	ttl      time.Duration
	now      func() time.Time
}

// NewTokenBucket builds a bucket of the given capacity refilled at rate
// tokens per second. A missing bucket starts full.
func NewTokenBucket(store ports.CounterStore, key string, capacity, rate float64, ttl time.Duration) *TokenBucket {
	return &TokenBucket{
		store:    store,
		key:      key,
		capacity: capacity,
		rate:     rate,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Take consumes one token when available.
func (b *TokenBucket) Take(ctx context.Context) (bool, error) {
	return b.store.TakeToken(ctx, b.key, b.capacity, b.rate, b.now(), b.ttl)
}

// Key returns the store key backing the bucket.
func (b *TokenBucket) Key() string { return b.key }
