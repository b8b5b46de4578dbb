package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tutormesh/aicache/pkg/observability"
)

// sharedPayload is the wire form of an entry in the shared tier.
type sharedPayload struct {
	Query     string                 `json:"query"`
	Value     []byte                 `json:"value"`
	ExpiresAt time.Time              `json:"expires_at"`
	CachedAt  time.Time              `json:"cached_at"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// SharedTier is the Redis-backed cross-process tier. Expiry is delegated to
// the store. Alongside each entry it writes a query-index sidecar key holding
// the original query text, so pattern invalidation can match against queries
// rather than opaque digests.
type SharedTier struct {
	redis   *ResilientClient
	prefix  string
	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewSharedTier creates the shared tier over a resilient Redis client.
func NewSharedTier(client *ResilientClient, prefix string, logger observability.Logger, metrics observability.MetricsClient) *SharedTier {
	if logger == nil {
		logger = observability.NewLogger("cache.shared")
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	return &SharedTier{
		redis:   client,
		prefix:  prefix,
		logger:  logger,
		metrics: metrics,
	}
}

func (s *SharedTier) entryKey(key string) string {
	return fmt.Sprintf("%s:entry:%s", s.prefix, key)
}

func (s *SharedTier) qidxKey(key string) string {
	return fmt.Sprintf("%s:qidx:%s", s.prefix, key)
}

// Get fetches an entry by cache key. A miss returns (nil, nil). A malformed
// payload is treated as a miss and removed best-effort. Operational errors
// are returned for the caller to fail open on.
func (s *SharedTier) Get(ctx context.Context, key string) (*Entry, error) {
	raw, err := s.redis.Get(ctx, s.entryKey(key))
	if err != nil {
		if err == ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("shared tier get: %w", err)
	}

	var payload sharedPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		s.logger.Warn("Dropping malformed shared tier entry", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		s.metrics.IncrementCounterWithLabels("cache.shared.malformed", 1, nil)
		if _, delErr := s.redis.Del(ctx, s.entryKey(key), s.qidxKey(key)); delErr != nil {
			s.logger.Debug("Failed to remove malformed entry", map[string]interface{}{
				"key":   key,
				"error": delErr.Error(),
			})
		}
		return nil, nil
	}

	return &Entry{
		Query:     payload.Query,
		Value:     payload.Value,
		ExpiresAt: payload.ExpiresAt,
		CachedAt:  payload.CachedAt,
		Metadata:  payload.Metadata,
	}, nil
}

// Set stores an entry with the given TTL, writing the entry and its query
// index sidecar in one round trip so both expire together.
func (s *SharedTier) Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("shared tier set: non-positive ttl %s", ttl)
	}

	data, err := json.Marshal(sharedPayload{
		Query:     entry.Query,
		Value:     entry.Value,
		ExpiresAt: entry.ExpiresAt,
		CachedAt:  entry.CachedAt,
		Metadata:  entry.Metadata,
	})
	if err != nil {
		return fmt.Errorf("shared tier marshal: %w", err)
	}

	err = s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.entryKey(key), data, ttl)
		pipe.Set(ctx, s.qidxKey(key), entry.Query, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("shared tier set: %w", err)
	}
	return nil
}

// Delete removes an entry and its query index sidecar. It reports whether
// the entry existed.
func (s *SharedTier) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.redis.Del(ctx, s.entryKey(key), s.qidxKey(key))
	if err != nil {
		return false, fmt.Errorf("shared tier delete: %w", err)
	}
	return n > 0, nil
}

// DeleteByPattern removes every entry whose original query contains the
// given substring. Matching runs over the query index sidecars, so digests
// never take part. Returns the cache keys that were removed.
func (s *SharedTier) DeleteByPattern(ctx context.Context, substr string) ([]string, error) {
	qidxPrefix := s.prefix + ":qidx:"
	qidxKeys, err := s.redis.ScanKeys(ctx, qidxPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("shared tier scan: %w", err)
	}
	if len(qidxKeys) == 0 {
		return nil, nil
	}

	queries, err := s.redis.MGet(ctx, qidxKeys...)
	if err != nil {
		return nil, fmt.Errorf("shared tier mget: %w", err)
	}

	var matched []string
	var toDelete []string
	for i, v := range queries {
		query, ok := v.(string)
		if !ok {
			continue
		}
		if !strings.Contains(query, substr) {
			continue
		}
		key := strings.TrimPrefix(qidxKeys[i], qidxPrefix)
		matched = append(matched, key)
		toDelete = append(toDelete, s.entryKey(key), qidxKeys[i])
	}
	if len(toDelete) == 0 {
		return nil, nil
	}

	if _, err := s.redis.Del(ctx, toDelete...); err != nil {
		return nil, fmt.Errorf("shared tier pattern delete: %w", err)
	}
	s.metrics.IncrementCounterWithLabels("cache.shared.pattern_invalidated", float64(len(matched)), nil)
	return matched, nil
}

// Clear removes every entry under this tier's prefix.
func (s *SharedTier) Clear(ctx context.Context) (int, error) {
	keys, err := s.redis.ScanKeys(ctx, s.prefix+":*")
	if err != nil {
		return 0, fmt.Errorf("shared tier clear scan: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.redis.Del(ctx, keys...)
	if err != nil {
		return 0, fmt.Errorf("shared tier clear: %w", err)
	}
	return int(n), nil
}

// Ping reports whether the shared store is reachable.
func (s *SharedTier) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx)
}
