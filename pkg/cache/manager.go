package cache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tutormesh/aicache/pkg/observability"
)

// Manager is the single entry point for cached lookups. It layers the
// in-process tier over the shared tier over the semantic index, promotes
// hits downward, and fails open when the shared store is unreachable.
type Manager struct {
	config   *Config
	local    *LocalTier
	shared   *SharedTier
	semantic *SemanticIndex
	logger   observability.Logger
	metrics  observability.MetricsClient

	counters statCounters

	closed atomic.Bool
	wg     sync.WaitGroup
}

// NewManager wires the cache tiers together. embedder may be nil, which
// disables the semantic tier regardless of configuration.
func NewManager(
	cfg *Config,
	client *ResilientClient,
	embedder Embedder,
	logger observability.Logger,
	metrics observability.MetricsClient,
) (*Manager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NewLogger("cache")
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}

	local, err := NewLocalTier(cfg.L1MaxSize)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		config:  cfg,
		local:   local,
		shared:  NewSharedTier(client, cfg.Prefix, logger.WithPrefix("shared"), metrics),
		logger:  logger,
		metrics: metrics,
	}
	if cfg.EnableSemantic && embedder != nil {
		m.semantic = NewSemanticIndex(embedder, client, cfg, logger.WithPrefix("semantic"), metrics)
	}
	return m, nil
}

// Get looks query up through all tiers. It returns (nil, nil) on a full
// miss. Shared tier failures are logged and treated as misses.
func (m *Manager) Get(ctx context.Context, query string, reqContext map[string]interface{}) (*LookupResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrInvalidQuery
	}
	if m.closed.Load() {
		return nil, ErrShuttingDown
	}

	m.counters.totalLookups.Add(1)
	key := MakeKey(query, reqContext)

	if result := m.lookupExact(ctx, key); result != nil {
		return result, nil
	}
	if m.semantic == nil {
		return nil, nil
	}

	// L3
	match, err := m.semantic.FindSimilar(ctx, query)
	if err != nil {
		m.logger.Warn("Semantic lookup failed, failing open", map[string]interface{}{
			"error": err.Error(),
		})
		m.counters.semanticMisses.Add(1)
		m.recordLookup(LevelSemantic, false)
		return nil, nil
	}
	if match != nil {
		if result := m.resolveSemanticMatch(ctx, match); result != nil {
			m.counters.semanticHits.Add(1)
			m.recordLookup(LevelSemantic, true)
			return result, nil
		}
	}
	m.counters.semanticMisses.Add(1)
	m.recordLookup(LevelSemantic, false)
	return nil, nil
}

// GetExact looks a canonical cache key up in L1 and L2 only, skipping the
// semantic tier. Use it when the key from a previous Set is already known.
func (m *Manager) GetExact(ctx context.Context, key string) (*LookupResult, error) {
	if key == "" {
		return nil, ErrInvalidQuery
	}
	if m.closed.Load() {
		return nil, ErrShuttingDown
	}

	m.counters.totalLookups.Add(1)
	return m.lookupExact(ctx, key), nil
}

// lookupExact probes L1 then L2 for key, promoting an L2 hit. It returns
// nil on a miss and fails open on shared tier errors.
func (m *Manager) lookupExact(ctx context.Context, key string) *LookupResult {
	if entry, ok := m.local.Get(key); ok {
		m.counters.l1Hits.Add(1)
		m.recordLookup(LevelL1, true)
		return &LookupResult{
			Key:      key,
			Value:    entry.Value,
			Level:    LevelL1,
			Metadata: entry.Metadata,
		}
	}
	m.counters.l1Misses.Add(1)
	m.recordLookup(LevelL1, false)

	entry, err := m.shared.Get(ctx, key)
	if err != nil {
		m.logger.Warn("Shared tier unavailable, failing open", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		m.metrics.IncrementCounterWithLabels("cache.shared.fail_open", 1, nil)
		entry = nil
	}
	if entry != nil {
		m.counters.l2Hits.Add(1)
		m.recordLookup(LevelL2, true)
		m.promote(key, entry)
		return &LookupResult{
			Key:      key,
			Value:    entry.Value,
			Level:    LevelL2,
			Metadata: entry.Metadata,
		}
	}
	m.counters.l2Misses.Add(1)
	m.recordLookup(LevelL2, false)
	return nil
}

// resolveSemanticMatch fetches the entry a semantic match points at. The
// mapping can outlive the entry, so a dangling match resolves to nil.
func (m *Manager) resolveSemanticMatch(ctx context.Context, match *SemanticMatch) *LookupResult {
	entry, ok := m.local.Get(match.CacheKey)
	if !ok {
		var err error
		entry, err = m.shared.Get(ctx, match.CacheKey)
		if err != nil {
			m.logger.Warn("Shared tier unavailable resolving semantic match", map[string]interface{}{
				"key":   match.CacheKey,
				"error": err.Error(),
			})
			return nil
		}
		if entry != nil {
			m.promote(match.CacheKey, entry)
		}
	}
	if entry == nil {
		return nil
	}

	metadata := make(map[string]interface{}, len(entry.Metadata)+2)
	for k, v := range entry.Metadata {
		metadata[k] = v
	}
	metadata["matched_query"] = match.MatchedQuery
	metadata["similarity"] = match.Similarity

	return &LookupResult{
		Key:        match.CacheKey,
		Value:      entry.Value,
		Level:      LevelSemantic,
		Metadata:   metadata,
		Similarity: match.Similarity,
	}
}

// promote copies a shared tier hit into L1 for the remainder of its life.
// Entries already at or past expiry get a one second floor so a caller who
// just saw the value can see it again.
func (m *Manager) promote(key string, entry *Entry) {
	remaining := time.Until(entry.ExpiresAt)
	if remaining < time.Second {
		remaining = time.Second
	}
	promoted := *entry
	promoted.ExpiresAt = time.Now().Add(remaining)
	m.local.Set(key, &promoted)
}

// Set stores value for query across the tiers and returns the cache key.
// The shared tier write is best effort; the semantic index update runs
// asynchronously so embedding latency never sits on the write path.
func (m *Manager) Set(ctx context.Context, query string, reqContext map[string]interface{}, value []byte, ttl time.Duration, metadata map[string]interface{}) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", ErrInvalidQuery
	}
	if m.closed.Load() {
		return "", ErrShuttingDown
	}
	if ttl <= 0 {
		ttl = m.config.DefaultTTL
	}

	key := MakeKey(query, reqContext)
	now := time.Now()
	entry := &Entry{
		Query:     query,
		Value:     value,
		ExpiresAt: now.Add(ttl),
		CachedAt:  now,
		Metadata:  metadata,
	}

	m.local.Set(key, entry)

	if err := m.shared.Set(ctx, key, entry, ttl); err != nil {
		m.logger.Warn("Shared tier write failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		m.metrics.IncrementCounterWithLabels("cache.shared.write_failed", 1, nil)
	}

	if m.semantic != nil {
		m.wg.Add(1)
		SafeGo(m.logger, "semantic_index_add", func() {
			defer m.wg.Done()
			indexCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := m.semantic.Add(indexCtx, query, key); err != nil {
				m.logger.Warn("Semantic index update failed", map[string]interface{}{
					"key":   key,
					"error": err.Error(),
				})
			}
		})
	}

	m.counters.sets.Add(1)
	m.metrics.IncrementCounterWithLabels("cache.set", 1, nil)
	return key, nil
}

// Invalidate removes the entry for the canonical key from every tier and
// reports whether anything was removed. Cache trouble must never break the
// caller's primary path, so an empty key is a no-op and store failures
// degrade to logged no-ops.
func (m *Manager) Invalidate(ctx context.Context, key string) (int, error) {
	if key == "" {
		return 0, nil
	}
	if m.closed.Load() {
		return 0, ErrShuttingDown
	}

	removed := 0
	if m.local.Delete(key) {
		removed = 1
	}
	existed, err := m.shared.Delete(ctx, key)
	if err != nil {
		m.logger.Warn("Shared tier invalidation failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	} else if existed {
		removed = 1
	}
	if m.semantic != nil {
		if err := m.semantic.RemoveByKey(ctx, key); err != nil {
			m.logger.Warn("Semantic index removal failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
	}

	m.counters.invalidations.Add(int64(removed))
	m.metrics.IncrementCounterWithLabels("cache.invalidate", 1, map[string]string{"mode": "exact"})
	return removed, nil
}

// InvalidatePattern removes every entry whose original query contains
// substr, across all tiers. Matching runs against stored query text, never
// against digests. An empty pattern is a no-op; the shared tier being down
// still sweeps L1.
func (m *Manager) InvalidatePattern(ctx context.Context, substr string) (int, error) {
	if substr == "" {
		return 0, nil
	}
	if m.closed.Load() {
		return 0, ErrShuttingDown
	}

	matched, err := m.shared.DeleteByPattern(ctx, substr)
	if err != nil {
		m.logger.Warn("Shared tier pattern invalidation failed", map[string]interface{}{
			"pattern": substr,
			"error":   err.Error(),
		})
		matched = nil
	}
	sharedSet := make(map[string]struct{}, len(matched))
	for _, key := range matched {
		m.local.Delete(key)
		sharedSet[key] = struct{}{}
	}

	// L1-only entries never reached the shared tier's query index, so
	// sweep them by the query text each entry carries.
	localOnly := 0
	for _, key := range m.local.DeleteMatching(func(_ string, e *Entry) bool {
		return strings.Contains(e.Query, substr)
	}) {
		if _, ok := sharedSet[key]; !ok {
			localOnly++
		}
	}

	if m.semantic != nil {
		if err := m.semantic.RemoveByPattern(ctx, substr); err != nil {
			m.logger.Warn("Semantic pattern removal failed", map[string]interface{}{
				"pattern": substr,
				"error":   err.Error(),
			})
		}
	}

	removed := len(matched) + localOnly
	m.counters.invalidations.Add(int64(removed))
	m.metrics.IncrementCounterWithLabels("cache.invalidate", float64(removed), map[string]string{"mode": "pattern"})
	return removed, nil
}

// Clear empties every tier and resets the activity counters.
func (m *Manager) Clear(ctx context.Context) error {
	if m.closed.Load() {
		return ErrShuttingDown
	}

	m.local.Purge()
	if _, err := m.shared.Clear(ctx); err != nil {
		return err
	}
	if m.semantic != nil {
		if err := m.semantic.Clear(ctx); err != nil {
			return err
		}
	}
	m.counters.reset()
	m.logger.Info("Cache cleared", nil)
	return nil
}

// Stats returns a snapshot of cache activity and sizes.
func (m *Manager) Stats(ctx context.Context) Stats {
	stats := m.counters.snapshot()
	stats.L1Size = m.local.Len()
	if m.semantic != nil {
		if n, err := m.semantic.Size(ctx); err == nil {
			stats.SemanticSize = n
		}
	}
	return stats
}

// HotEntries returns the most frequently accessed in-process entries.
func (m *Manager) HotEntries(limit int) []HotEntry {
	return m.local.Hot(limit)
}

// Health reports tier liveness. A down shared store does not make the
// cache unhealthy, it only marks the store unreachable.
func (m *Manager) Health(ctx context.Context) Health {
	return Health{
		L1Size:  m.local.Len(),
		RedisOK: m.shared.Ping(ctx) == nil,
	}
}

// Shutdown stops accepting operations, waits for in-flight background
// indexing to finish up to the context deadline, then closes the store
// client. Calling it more than once is a no-op.
func (m *Manager) Shutdown(ctx context.Context) error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.logger.Info("Cache manager shutting down", nil)

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	if err := m.shared.redis.Close(); err != nil && waitErr == nil {
		waitErr = err
	}
	return waitErr
}

func (m *Manager) recordLookup(level Level, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.metrics.IncrementCounterWithLabels("cache.lookup", 1, map[string]string{
		"level":  string(level),
		"result": result,
	})
}
