// Package redisstore backs admission control with Redis. Each check-and-update
// runs as one server-side Lua script so concurrent gateways never race.
package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alexisbeaulieu97/jumpgate/internal/ports"
)

// takeTokenScript refills the bucket by elapsed milliseconds times the
// per-millisecond rate, caps it at capacity and consumes one token when one
// is available. A missing bucket starts full.
var takeTokenScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local bucket = redis.call("HMGET", key, "tokens", "timestamp")
local tokens = tonumber(bucket[1]) or capacity
local last = tonumber(bucket[2]) or now

local elapsed = math.max(0, now - last)
tokens = math.min(capacity, tokens + elapsed * rate / 1000)

local admitted = 0
if tokens >= 1 then
	tokens = tokens - 1
	admitted = 1
end

redis.call("HSET", key, "tokens", tostring(tokens), "timestamp", tostring(now))
if ttl > 0 then
	redis.call("PEXPIRE", key, ttl)
end
return admitted
`)

// incrementScript increments the counter and refreshes its ttl in one step.
var incrementScript = redis.NewScript(`
local value = redis.call("INCR", KEYS[1])
local ttl = tonumber(ARGV[1])
if ttl > 0 then
	redis.call("PEXPIRE", KEYS[1], ttl)
end
return value
`)

// decrementScript decrements the counter without letting it go negative.
var decrementScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current <= 0 then
	return 0
end
return redis.call("DECR", KEYS[1])
`)

// Options configures the Redis connection.
type Options struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
}

// Store implements ports.CounterStore on a Redis client.
type Store struct {
	client redis.UniversalClient
}

// New wraps an existing client.
func New(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

// Dial opens a client for opts. The connection is established lazily; use
// Ping to verify reachability.
func Dial(opts Options) *Store {
	return New(redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
	}))
}

// TakeToken implements ports.CounterStore.
func (s *Store) TakeToken(ctx context.Context, key string, capacity, rate float64, now time.Time, ttl time.Duration) (bool, error) {
	admitted, err := takeTokenScript.Run(ctx, s.client, []string{key},
		formatFloat(capacity),
		formatFloat(rate),
		now.UnixMilli(),
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("take token %s: %w", key, err)
	}
	return admitted == 1, nil
}

// Increment implements ports.CounterStore.
func (s *Store) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	value, err := incrementScript.Run(ctx, s.client, []string{key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}
	return value, nil
}

// Decrement implements ports.CounterStore.
func (s *Store) Decrement(ctx context.Context, key string) (int64, error) {
	value, err := decrementScript.Run(ctx, s.client, []string{key}).Int64()
	if err != nil {
		return 0, fmt.Errorf("decrement %s: %w", key, err)
	}
	return value, nil
}

// Ping implements ports.CounterStore.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var _ ports.CounterStore = (*Store)(nil)
