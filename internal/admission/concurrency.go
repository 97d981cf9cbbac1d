package admission

import (
	"context"
	"sync"
	"time"

	"github.com/alexisbeaulieu97/jumpgate/internal/ports"
)

const releaseTimeout = 5 * time.Second

// ConcurrencyGuard bounds the number of in-flight requests across every
// gateway sharing the store.
type ConcurrencyGuard struct {
	store ports.CounterStore
	key   string
	max   int64
	ttl   time.Duration
}

// NewConcurrencyGuard builds a guard admitting at most max holders. The
// counter ttl is refreshed on every increment so a crashed holder cannot
// shrink capacity forever.
func NewConcurrencyGuard(store ports.CounterStore, key string, max int64, ttl time.Duration) *ConcurrencyGuard {
	return &ConcurrencyGuard{store: store, key: key, max: max, ttl: ttl}
}

// TryAcquire takes a slot when one is free. Over-limit increments are
// rolled back before returning, even when ctx was cancelled in between.
func (g *ConcurrencyGuard) TryAcquire(ctx context.Context) (bool, error) {
	current, err := g.store.Increment(ctx, g.key, g.ttl)
	if err != nil {
		return false, err
	}
	if current <= g.max {
		return true, nil
	}
	if err := g.rollback(ctx); err != nil {
		return false, err
	}
	return false, nil
}

func (g *ConcurrencyGuard) rollback(ctx context.Context) error {
	rollbackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	_, err := g.store.Decrement(rollbackCtx, g.key)
	return err
}

// releaser returns a function that gives the slot back exactly once. It
// detaches from ctx cancellation so a timed-out request still frees its slot.
func (g *ConcurrencyGuard) releaser(ctx context.Context, onError func(error)) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			if err := g.rollback(ctx); err != nil && onError != nil {
				onError(err)
			}
		})
	}
}

// Key returns the store key backing the guard.
func (g *ConcurrencyGuard) Key() string { return g.key }
