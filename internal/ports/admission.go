package ports

import (
	"context"
	"time"
)

// CounterStore is the shared store backing admission control. Every method
// must be a single atomic operation against the store; implementations must
// not emulate atomicity with client-side locking.
type CounterStore interface {
	// TakeToken refills the bucket at key by elapsed*rate (capped at capacity)
	// and consumes one token when at least one is available. The bucket expires
	// after ttl of inactivity.
	TakeToken(ctx context.Context, key string, capacity, rate float64, now time.Time, ttl time.Duration) (bool, error)

	// Increment adds one to the counter at key, refreshes its ttl and returns
	// the new value.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Decrement subtracts one from the counter at key, never going below zero,
	// and returns the new value.
	Decrement(ctx context.Context, key string) (int64, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}

// Admitter gates inbound requests. On success the caller must invoke release
// exactly once when the guarded work completes; release is safe to call more
// than once and tolerates a cancelled request context.
type Admitter interface {
	Admit(ctx context.Context) (release func(), err error)
}
