package admission

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/jumpgate/internal/domain/remotecall"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTokenBucketBurstAfterRefill(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	store := NewMemoryStore()
	store.now = clock.Now

	bucket := NewTokenBucket(store, "bucket:test", 5, 1, time.Minute)
	bucket.now = clock.Now

	for i := 0; i < 5; i++ {
		ok, err := bucket.Take(ctx)
		require.NoError(t, err)
		require.True(t, ok, "initial burst token %d", i)
	}
	ok, err := bucket.Take(ctx)
	require.NoError(t, err)
	require.False(t, ok, "bucket should be empty")

	clock.Advance(5 * time.Second)

	for i := 0; i < 5; i++ {
		ok, err := bucket.Take(ctx)
		require.NoError(t, err)
		require.True(t, ok, "refilled token %d", i)
	}
	ok, err = bucket.Take(ctx)
	require.NoError(t, err)
	require.False(t, ok, "sixth request must be rejected")
}

func TestTokenBucketNeverExceedsCapacity(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	store := NewMemoryStore()
	store.now = clock.Now
	bucket := NewTokenBucket(store, "bucket:cap", 2, 10, time.Hour)
	bucket.now = clock.Now

	clock.Advance(time.Hour)
	admitted := 0
	for i := 0; i < 5; i++ {
		ok, err := bucket.Take(ctx)
		require.NoError(t, err)
		if ok {
			admitted++
		}
	}
	require.Equal(t, 2, admitted)
}

func TestControllerConcurrencyGuardBlocksThirdCaller(t *testing.T) {
	store := NewMemoryStore()
	limits := Limits{
		ConcurrencyKey: "semaphore:test",
		MaxConcurrent:  2,
		CounterTTL:     time.Minute,
		WaitTimeout:    5 * time.Second,
		RetryInterval:  5 * time.Millisecond,
	}
	controller := NewController(store, limits)
	ctx := context.Background()

	release1, err := controller.Admit(ctx)
	require.NoError(t, err)
	release2, err := controller.Admit(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), store.Value("semaphore:test"))

	var admitted atomic.Bool
	done := make(chan func())
	go func() {
		release3, err := controller.Admit(ctx)
		if err == nil {
			admitted.Store(true)
		}
		done <- release3
	}()

	time.Sleep(50 * time.Millisecond)
	require.False(t, admitted.Load(), "third caller must wait for a free slot")

	release1()
	var release3 func()
	select {
	case release3 = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("third caller was not admitted after a release")
	}
	require.True(t, admitted.Load())

	release2()
	release3()
	release1()
	require.Equal(t, int64(0), store.Value("semaphore:test"), "counter must return to zero")
}

func TestControllerRateTimeout(t *testing.T) {
	store := NewMemoryStore()
	controller := NewController(store, Limits{
		BucketKey:     "bucket:timeout",
		Capacity:      1,
		RefillRate:    0,
		BucketTTL:     time.Minute,
		WaitTimeout:   30 * time.Millisecond,
		RetryInterval: 5 * time.Millisecond,
	})

	release, err := controller.Admit(context.Background())
	require.NoError(t, err)
	release()

	_, err = controller.Admit(context.Background())
	require.ErrorIs(t, err, remotecall.ErrAdmissionTimeout)
	require.Equal(t, "server busy", remotecall.AsDomainError(err).Message)
	require.Equal(t, "rate", remotecall.AsDomainError(err).Context["guard"])
}

func TestControllerConcurrencyTimeoutRollsBack(t *testing.T) {
	store := NewMemoryStore()
	controller := NewController(store, Limits{
		ConcurrencyKey: "semaphore:rollback",
		MaxConcurrent:  1,
		WaitTimeout:    20 * time.Millisecond,
		RetryInterval:  5 * time.Millisecond,
	})

	release, err := controller.Admit(context.Background())
	require.NoError(t, err)

	_, err = controller.Admit(context.Background())
	require.ErrorIs(t, err, remotecall.ErrAdmissionTimeout)
	require.Equal(t, int64(1), store.Value("semaphore:rollback"), "rejected attempts must not leak increments")

	release()
	require.Equal(t, int64(0), store.Value("semaphore:rollback"))
}

func TestControllerCancellationAbortsWait(t *testing.T) {
	store := NewMemoryStore()
	controller := NewController(store, Limits{
		ConcurrencyKey: "semaphore:cancel",
		MaxConcurrent:  1,
		WaitTimeout:    time.Minute,
		RetryInterval:  10 * time.Millisecond,
	})

	holderRelease, err := controller.Admit(context.Background())
	require.NoError(t, err)
	defer holderRelease()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = controller.Admit(ctx)
	require.Error(t, err)
	require.Equal(t, remotecall.ErrCodeCancelled, remotecall.CodeOf(err))
	require.Less(t, time.Since(start), time.Second)
}

func TestControllerReleaseSurvivesCancelledContext(t *testing.T) {
	store := NewMemoryStore()
	controller := NewController(store, Limits{
		ConcurrencyKey: "semaphore:detached",
		MaxConcurrent:  1,
		WaitTimeout:    time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	release, err := controller.Admit(ctx)
	require.NoError(t, err)

	cancel()
	release()
	require.Equal(t, int64(0), store.Value("semaphore:detached"))
}

type failingStore struct {
	MemoryStore
}

func (*failingStore) TakeToken(context.Context, string, float64, float64, time.Time, time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}

func TestControllerStoreFailure(t *testing.T) {
	controller := NewController(&failingStore{}, Limits{BucketKey: "bucket:x", Capacity: 1, RefillRate: 1, WaitTimeout: time.Second})

	release, err := controller.Admit(context.Background())
	require.ErrorIs(t, err, remotecall.ErrAdmissionUnavailable)
	require.NotNil(t, release)
	release()
}

func TestControllerDisabledGuards(t *testing.T) {
	controller := NewController(NewMemoryStore(), Limits{})
	release, err := controller.Admit(context.Background())
	require.NoError(t, err)
	release()
}

// cancelOnIncrementStore cancels the caller right after the counter moves.
type cancelOnIncrementStore struct {
	*MemoryStore
	cancel context.CancelFunc
}

func (s *cancelOnIncrementStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	value, err := s.MemoryStore.Increment(ctx, key, ttl)
	s.cancel()
	return value, err
}

func TestControllerOverLimitRollbackSurvivesCancellation(t *testing.T) {
	store := NewMemoryStore()
	limits := Limits{
		ConcurrencyKey: "semaphore:cancelled-rollback",
		MaxConcurrent:  1,
		WaitTimeout:    time.Second,
		RetryInterval:  5 * time.Millisecond,
	}

	holderRelease, err := NewController(store, limits).Admit(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	waiter := NewController(&cancelOnIncrementStore{MemoryStore: store, cancel: cancel}, limits)

	_, err = waiter.Admit(ctx)
	require.Error(t, err)
	require.Equal(t, remotecall.ErrCodeCancelled, remotecall.CodeOf(err))
	require.Equal(t, int64(1), store.Value("semaphore:cancelled-rollback"), "over-limit increment must be rolled back")

	holderRelease()
	require.Equal(t, int64(0), store.Value("semaphore:cancelled-rollback"))
}
