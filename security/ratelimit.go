package security

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ruteri/storage-policy-backend/interfaces"
)

// rateLimitKeyPrefix namespaces limiter counters in the shared store.
const rateLimitKeyPrefix = "rate_limit:"

// DefaultRateWindow is the rolling window over which client operations are
// counted.
const DefaultRateWindow = time.Hour

// RateLimiter tracks per-client operation counts within a rolling window
// backed by an external counter store. The window TTL is reset on every
// increment (sliding window by reset-on-write, not a true sliding log).
//
// Concurrent increments for the same client use read-then-write semantics and
// may undercount by at most the concurrency degree. The limiter is advisory.
type RateLimiter struct {
	store  interfaces.CounterStore
	max    int64
	window time.Duration
	log    *slog.Logger
}

// NewRateLimiter creates a limiter allowing max operations per window.
func NewRateLimiter(store interfaces.CounterStore, max int64, window time.Duration, logger *slog.Logger) *RateLimiter {
	if window <= 0 {
		window = DefaultRateWindow
	}
	return &RateLimiter{
		store:  store,
		max:    max,
		window: window,
		log:    logger,
	}
}

// GetStatus returns the client's position within the current window. A client
// with no recorded counter is allowed with a count of zero.
func (rl *RateLimiter) GetStatus(ctx context.Context, clientID string) (interfaces.RateLimitStatus, error) {
	count, _, err := rl.store.Get(ctx, rateLimitKeyPrefix+clientID)
	if err != nil {
		return interfaces.RateLimitStatus{}, fmt.Errorf("failed to read rate counter: %w", err)
	}

	return interfaces.RateLimitStatus{
		ClientID:     clientID,
		CurrentCount: count,
		MaxAllowed:   rl.max,
		Allowed:      count < rl.max,
	}, nil
}

// Increment records one operation for the client, resetting the window TTL.
func (rl *RateLimiter) Increment(ctx context.Context, clientID, operation string) error {
	key := rateLimitKeyPrefix + clientID
	count, _, err := rl.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read rate counter: %w", err)
	}

	if err := rl.store.Set(ctx, key, count+1, rl.window); err != nil {
		return fmt.Errorf("failed to write rate counter: %w", err)
	}

	rl.log.Debug("Incremented rate counter",
		slog.String("client", clientID),
		slog.String("operation", operation),
		slog.Int64("count", count+1))
	return nil
}

// RedisCounterStore implements the counter store contract on redis.
type RedisCounterStore struct {
	client redis.UniversalClient
}

// NewRedisCounterStore wraps a redis client as a counter store.
func NewRedisCounterStore(client redis.UniversalClient) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

// Get returns the counter value, or (0, false, nil) when the key is absent.
func (s *RedisCounterStore) Get(ctx context.Context, key string) (int64, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get %q: %w", key, err)
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("redis key %q holds a non-integer value: %w", key, err)
	}
	return count, true, nil
}

// Set writes the counter value with the given TTL.
func (s *RedisCounterStore) Set(ctx context.Context, key string, value int64, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}
