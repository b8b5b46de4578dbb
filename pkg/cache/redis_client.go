package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/tutormesh/aicache/pkg/observability"
	"github.com/tutormesh/aicache/pkg/retry"
)

// ResilientClient wraps a Redis client with circuit breaker and retry logic.
// A miss (redis.Nil) is reported as ErrNotFound and is never retried nor
// counted as a breaker failure.
type ResilientClient struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	retrier retry.Policy
	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewResilientClient creates a resilient Redis client.
func NewResilientClient(
	client *redis.Client,
	retryConfig retry.Config,
	logger observability.Logger,
	metrics observability.MetricsClient,
) *ResilientClient {
	if logger == nil {
		logger = observability.NewLogger("cache.redis")
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}

	settings := gobreaker.Settings{
		Name:        "cache_redis",
		MaxRequests: 3,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			metrics.IncrementCounterWithLabels("cache.breaker.state_change", 1, map[string]string{
				"from": from.String(),
				"to":   to.String(),
			})
		},
	}

	return &ResilientClient{
		client:  client,
		breaker: gobreaker.NewCircuitBreaker(settings),
		retrier: retry.NewExponentialBackoff(retryConfig),
		logger:  logger,
		metrics: metrics,
	}
}

// do runs fn with retry inside the circuit breaker. fn must reset any
// captured outputs on entry so a retried attempt starts clean. An open
// breaker is reported as ErrStorageUnavailable.
func (r *ResilientClient) do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, r.retrier.Execute(ctx, fn)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return err
}

// Get retrieves a value by key. Returns ErrNotFound on a miss.
func (r *ResilientClient) Get(ctx context.Context, key string) (string, error) {
	var val string
	var miss bool
	err := r.do(ctx, func(ctx context.Context) error {
		miss = false
		v, err := r.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			miss = true
			return nil
		}
		if err != nil {
			return err
		}
		val = v
		return nil
	})
	if err != nil {
		return "", err
	}
	if miss {
		return "", ErrNotFound
	}
	return val, nil
}

// Del removes the given keys and returns how many existed.
func (r *ResilientClient) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	var removed int64
	err := r.do(ctx, func(ctx context.Context) error {
		removed = 0
		n, err := r.client.Del(ctx, keys...).Result()
		if err != nil {
			return err
		}
		removed = n
		return nil
	})
	return removed, err
}

// ScanKeys enumerates all keys matching the glob pattern using SCAN, never
// KEYS, so the store is not blocked on large keyspaces.
func (r *ResilientClient) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	err := r.do(ctx, func(ctx context.Context) error {
		keys = keys[:0]
		iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		return iter.Err()
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// SMembers returns all members of a set.
func (r *ResilientClient) SMembers(ctx context.Context, key string) ([]string, error) {
	var members []string
	err := r.do(ctx, func(ctx context.Context) error {
		m, err := r.client.SMembers(ctx, key).Result()
		if err != nil {
			return err
		}
		members = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

// SRem removes members from a set.
func (r *ResilientClient) SRem(ctx context.Context, key string, members ...interface{}) error {
	return r.do(ctx, func(ctx context.Context) error {
		return r.client.SRem(ctx, key, members...).Err()
	})
}

// MGet fetches multiple keys in one round trip. Missing keys yield nil
// values in the result slice.
func (r *ResilientClient) MGet(ctx context.Context, keys ...string) ([]interface{}, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	var vals []interface{}
	err := r.do(ctx, func(ctx context.Context) error {
		v, err := r.client.MGet(ctx, keys...).Result()
		if err != nil {
			return err
		}
		vals = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vals, nil
}

// Pipelined executes fn against a pipeline. Per-command misses (redis.Nil)
// are not treated as failures.
func (r *ResilientClient) Pipelined(ctx context.Context, fn func(pipe redis.Pipeliner) error) error {
	return r.do(ctx, func(ctx context.Context) error {
		_, err := r.client.Pipelined(ctx, fn)
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	})
}

// Ping checks store connectivity through the breaker, without retries.
func (r *ResilientClient) Ping(ctx context.Context) error {
	_, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, r.client.Ping(ctx).Err()
	})
	return err
}

// Close closes the underlying Redis client.
func (r *ResilientClient) Close() error { return r.client.Close() }
