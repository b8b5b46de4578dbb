package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tutormesh/aicache/pkg/observability"
)

// SemanticIndex matches queries by embedding similarity. For each indexed
// query it keeps three keys under the tier prefix, all sharing one TTL:
//
//	<prefix>:sem:emb:<qh>  JSON-encoded embedding vector
//	<prefix>:sem:txt:<qh>  original query text
//	<prefix>:sem:map:<qh>  cache key the query resolves to
//
// plus membership in the <prefix>:sem:idx set. Members whose keys have
// expired are pruned lazily during lookup.
type SemanticIndex struct {
	embedder      Embedder
	redis         *ResilientClient
	prefix        string
	threshold     float32
	ttl           time.Duration
	maxCandidates int
	logger        observability.Logger
	metrics       observability.MetricsClient
}

// SemanticMatch is the outcome of a similarity lookup.
type SemanticMatch struct {
	CacheKey     string
	MatchedQuery string
	Similarity   float32
}

// NewSemanticIndex creates a semantic index backed by the given embedder
// and Redis client.
func NewSemanticIndex(
	embedder Embedder,
	client *ResilientClient,
	cfg *Config,
	logger observability.Logger,
	metrics observability.MetricsClient,
) *SemanticIndex {
	if logger == nil {
		logger = observability.NewLogger("cache.semantic")
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	return &SemanticIndex{
		embedder:      embedder,
		redis:         client,
		prefix:        cfg.Prefix,
		threshold:     cfg.SimilarityThreshold,
		ttl:           cfg.SemanticTTL,
		maxCandidates: cfg.MaxCandidates,
		logger:        logger,
		metrics:       metrics,
	}
}

func (s *SemanticIndex) embKey(qh string) string { return fmt.Sprintf("%s:sem:emb:%s", s.prefix, qh) }
func (s *SemanticIndex) txtKey(qh string) string { return fmt.Sprintf("%s:sem:txt:%s", s.prefix, qh) }
func (s *SemanticIndex) mapKey(qh string) string { return fmt.Sprintf("%s:sem:map:%s", s.prefix, qh) }
func (s *SemanticIndex) idxKey() string          { return s.prefix + ":sem:idx" }

// Add embeds query and indexes it against cacheKey. Indexing is best
// effort: an embedder failure is returned but never poisons the cache
// entry itself.
func (s *SemanticIndex) Add(ctx context.Context, query, cacheKey string) error {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return fmt.Errorf("semantic embed: %w", err)
	}
	if len(vec) == 0 {
		return fmt.Errorf("semantic embed: empty vector for query")
	}

	data, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("semantic marshal embedding: %w", err)
	}

	qh := QueryHash(query)
	err = s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.embKey(qh), data, s.ttl)
		pipe.Set(ctx, s.txtKey(qh), query, s.ttl)
		pipe.Set(ctx, s.mapKey(qh), cacheKey, s.ttl)
		pipe.SAdd(ctx, s.idxKey(), qh)
		return nil
	})
	if err != nil {
		return fmt.Errorf("semantic index add: %w", err)
	}
	s.metrics.IncrementCounterWithLabels("cache.semantic.indexed", 1, nil)
	return nil
}

// FindSimilar embeds query and returns the most similar indexed entry at or
// above the similarity threshold, or (nil, nil) when nothing qualifies.
// Index members whose backing keys have expired are pruned as a side effect.
func (s *SemanticIndex) FindSimilar(ctx context.Context, query string) (*SemanticMatch, error) {
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("semantic embed: %w", err)
	}

	members, err := s.redis.SMembers(ctx, s.idxKey())
	if err != nil {
		return nil, fmt.Errorf("semantic index members: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	embKeys := make([]string, len(members))
	for i, qh := range members {
		embKeys[i] = s.embKey(qh)
	}
	raws, err := s.redis.MGet(ctx, embKeys...)
	if err != nil {
		return nil, fmt.Errorf("semantic embeddings fetch: %w", err)
	}

	type scored struct {
		qh  string
		sim float32
	}
	var candidates []scored
	var stale []interface{}
	for i, raw := range raws {
		data, ok := raw.(string)
		if !ok {
			stale = append(stale, members[i])
			continue
		}
		var vec []float32
		if err := json.Unmarshal([]byte(data), &vec); err != nil {
			stale = append(stale, members[i])
			continue
		}
		sim := cosineSimilarity(queryVec, vec)
		if sim >= s.threshold {
			candidates = append(candidates, scored{qh: members[i], sim: sim})
		}
	}

	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, s.idxKey(), stale...); err != nil {
			s.logger.Debug("Failed to prune stale semantic index members", map[string]interface{}{
				"count": len(stale),
				"error": err.Error(),
			})
		}
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	// SMEMBERS order is unspecified, so ties must break on something every
	// process agrees on: the query hash.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].sim != candidates[j].sim {
			return candidates[i].sim > candidates[j].sim
		}
		return candidates[i].qh < candidates[j].qh
	})
	if s.maxCandidates > 0 && len(candidates) > s.maxCandidates {
		candidates = candidates[:s.maxCandidates]
	}

	// Candidates are ordered best-first; take the first whose mapping and
	// text are still alive.
	for _, c := range candidates {
		cacheKey, err := s.redis.Get(ctx, s.mapKey(c.qh))
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("semantic mapping fetch: %w", err)
		}
		matchedQuery, err := s.redis.Get(ctx, s.txtKey(c.qh))
		if err == ErrNotFound {
			matchedQuery = ""
		} else if err != nil {
			return nil, fmt.Errorf("semantic text fetch: %w", err)
		}
		s.metrics.RecordHistogram("cache.semantic.similarity", float64(c.sim), nil)
		return &SemanticMatch{
			CacheKey:     cacheKey,
			MatchedQuery: matchedQuery,
			Similarity:   roundSimilarity(c.sim),
		}, nil
	}
	return nil, nil
}

// RemoveByKey drops every indexed query whose mapping points at cacheKey.
// Several distinct query texts can map to one key, so all of them go.
func (s *SemanticIndex) RemoveByKey(ctx context.Context, cacheKey string) error {
	members, err := s.redis.SMembers(ctx, s.idxKey())
	if err != nil {
		return fmt.Errorf("semantic index members: %w", err)
	}
	if len(members) == 0 {
		return nil
	}

	mapKeys := make([]string, len(members))
	for i, qh := range members {
		mapKeys[i] = s.mapKey(qh)
	}
	mapped, err := s.redis.MGet(ctx, mapKeys...)
	if err != nil {
		return fmt.Errorf("semantic mappings fetch: %w", err)
	}

	var toDelete []string
	var matched []interface{}
	for i, v := range mapped {
		if key, ok := v.(string); ok && key == cacheKey {
			qh := members[i]
			toDelete = append(toDelete, s.embKey(qh), s.txtKey(qh), s.mapKey(qh))
			matched = append(matched, qh)
		}
	}
	if len(matched) == 0 {
		return nil
	}

	err = s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, toDelete...)
		pipe.SRem(ctx, s.idxKey(), matched...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("semantic index remove: %w", err)
	}
	return nil
}

// RemoveByPattern drops every indexed query containing substr.
func (s *SemanticIndex) RemoveByPattern(ctx context.Context, substr string) error {
	txtPrefix := s.prefix + ":sem:txt:"
	txtKeys, err := s.redis.ScanKeys(ctx, txtPrefix+"*")
	if err != nil {
		return fmt.Errorf("semantic pattern scan: %w", err)
	}
	if len(txtKeys) == 0 {
		return nil
	}

	queries, err := s.redis.MGet(ctx, txtKeys...)
	if err != nil {
		return fmt.Errorf("semantic pattern fetch: %w", err)
	}

	var toDelete []string
	var members []interface{}
	for i, v := range queries {
		query, ok := v.(string)
		if !ok || !strings.Contains(query, substr) {
			continue
		}
		qh := strings.TrimPrefix(txtKeys[i], txtPrefix)
		toDelete = append(toDelete, s.embKey(qh), s.txtKey(qh), s.mapKey(qh))
		members = append(members, qh)
	}
	if len(members) == 0 {
		return nil
	}

	err = s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, toDelete...)
		pipe.SRem(ctx, s.idxKey(), members...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("semantic pattern remove: %w", err)
	}
	return nil
}

// Clear removes the whole index.
func (s *SemanticIndex) Clear(ctx context.Context) error {
	keys, err := s.redis.ScanKeys(ctx, s.prefix+":sem:*")
	if err != nil {
		return fmt.Errorf("semantic clear scan: %w", err)
	}
	keys = append(keys, s.idxKey())
	if _, err := s.redis.Del(ctx, keys...); err != nil {
		return fmt.Errorf("semantic clear: %w", err)
	}
	return nil
}

// Size returns the number of indexed queries, including any not yet pruned.
func (s *SemanticIndex) Size(ctx context.Context) (int64, error) {
	members, err := s.redis.SMembers(ctx, s.idxKey())
	if err != nil {
		return 0, err
	}
	return int64(len(members)), nil
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched lengths or zero vectors score -1 so they never clear a
// non-negative threshold.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return -1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return -1
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// roundSimilarity rounds a similarity score to four decimal places for
// reporting. Threshold comparison always uses the raw score.
func roundSimilarity(s float32) float32 {
	return float32(math.Round(float64(s)*10000) / 10000)
}
