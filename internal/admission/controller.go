package admission

import (
	"context"
	"time"

	"github.com/alexisbeaulieu97/jumpgate/internal/domain/remotecall"
	"github.com/alexisbeaulieu97/jumpgate/internal/infrastructure/logging"
	"github.com/alexisbeaulieu97/jumpgate/internal/ports"
)

const (
	guardRate        = "rate"
	guardConcurrency = "concurrency"
)

// Limits configures both admission guards. A non-positive Capacity disables
// the token bucket and a non-positive MaxConcurrent disables the guard.
type Limits struct {
	BucketKey      string
	Capacity       float64
	RefillRate     float64
	BucketTTL      time.Duration
	ConcurrencyKey string
	MaxConcurrent  int64
	CounterTTL     time.Duration
	WaitTimeout    time.Duration
	RetryInterval  time.Duration
}

// DefaultLimits returns the stock admission settings.
func DefaultLimits() Limits {
	return Limits{
		BucketKey:      "bucket:remote_call",
		Capacity:       5,
		RefillRate:     1,
		BucketTTL:      60 * time.Second,
		ConcurrencyKey: "semaphore:remote_call",
		MaxConcurrent:  5,
		CounterTTL:     60 * time.Second,
		WaitTimeout:    30 * time.Second,
		RetryInterval:  200 * time.Millisecond,
	}
}

// Controller composes the token bucket and the concurrency guard. Both must
// admit a request before it proceeds.
type Controller struct {
	bucket        *TokenBucket
	guard         *ConcurrencyGuard
	waitTimeout   time.Duration
	retryInterval time.Duration
	logger        ports.Logger
}

// ControllerOption configures a controller.
type ControllerOption func(*Controller)

// WithControllerLogger injects a logger.
func WithControllerLogger(logger ports.Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewController builds a controller over store using limits.
func NewController(store ports.CounterStore, limits Limits, opts ...ControllerOption) *Controller {
	c := &Controller{
		waitTimeout:   limits.WaitTimeout,
		retryInterval: limits.RetryInterval,
		logger:        logging.NewNoOpLogger(),
	}
	if c.retryInterval <= 0 {
		c.retryInterval = 200 * time.Millisecond
	}
	if limits.Capacity > 0 {
		c.bucket = NewTokenBucket(store, limits.BucketKey, limits.Capacity, limits.RefillRate, limits.BucketTTL)
	}
	if limits.MaxConcurrent > 0 {
		c.guard = NewConcurrencyGuard(store, limits.ConcurrencyKey, limits.MaxConcurrent, limits.CounterTTL)
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "admission")
	return c
}

// Admit waits until both guards admit the request. Each guard gets its own
// wait budget. The returned release must be called once the guarded work is
// done; it is idempotent.
func (c *Controller) Admit(ctx context.Context) (func(), error) {
	if c.bucket != nil {
		if err := c.wait(ctx, guardRate, c.bucket.Take); err != nil {
			return noopRelease, err
		}
	}
	if c.guard == nil {
		return noopRelease, nil
	}
	if err := c.wait(ctx, guardConcurrency, c.guard.TryAcquire); err != nil {
		return noopRelease, err
	}
	return c.guard.releaser(ctx, func(err error) {
		c.logger.Error(ctx, "failed to release concurrency slot", "key", c.guard.Key(), "error", err)
	}), nil
}

func (c *Controller) wait(ctx context.Context, guard string, try func(context.Context) (bool, error)) error {
	deadline := time.Now().Add(c.waitTimeout)
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return remotecall.NewCancelledError(err)
		}
		attempts++
		admitted, err := try(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return remotecall.NewCancelledError(ctx.Err())
			}
			c.logger.Error(ctx, "admission store failure", "guard", guard, "error", err)
			return remotecall.NewAdmissionUnavailableError(guard, err)
		}
		if admitted {
			if attempts > 1 {
				c.logger.Debug(ctx, "admitted after waiting", "guard", guard, "attempts", attempts)
			}
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.logger.Warn(ctx, "admission wait timed out", "guard", guard, "attempts", attempts)
			return remotecall.NewAdmissionTimeoutError(guard)
		}
		sleep := c.retryInterval
		if sleep > remaining {
			sleep = remaining
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return remotecall.NewCancelledError(ctx.Err())
		case <-timer.C:
		}
	}
}

func noopRelease() {}

var _ ports.Admitter = (*Controller)(nil)
