package cache

import (
	"context"
	"time"
)

// Level identifies the tier that served a lookup.
type Level string

// Cache levels reported in lookup results.
const (
	LevelL1       Level = "L1"
	LevelL2       Level = "L2"
	LevelSemantic Level = "L3_SEMANTIC"
)

// Entry is a single cached payload with its bookkeeping fields.
// The value is an opaque serialized byte payload; interpretation is deferred
// to the caller. Entries returned by the tiers must not be mutated.
type Entry struct {
	Query       string                 `json:"query"`
	Value       []byte                 `json:"value"`
	ExpiresAt   time.Time              `json:"expires_at"`
	CachedAt    time.Time              `json:"cached_at"`
	AccessCount int64                  `json:"access_count"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Expired reports whether the entry's TTL has elapsed at the given instant.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// LookupResult is what a cache lookup returns to the caller.
type LookupResult struct {
	// Key is the canonical cache key the result was resolved to.
	Key string `json:"key"`
	// Value is the opaque cached payload.
	Value []byte `json:"value"`
	// Level is the tier that satisfied the lookup.
	Level Level `json:"cache_level"`
	// Metadata is the schema-free metadata stored with the entry.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	// Similarity is set only for semantic hits and holds the cosine
	// similarity of the matched query, rounded to four decimal places.
	Similarity float32 `json:"similarity_score,omitempty"`
}

// Embedder computes a fixed-length vector representation of text.
// Identical text must yield directly comparable vectors across calls; a
// single SemanticIndex assumes one fixed embedding space for its lifetime.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// WarmEntry is a query/value pair for cache pre-population. TTL falls back
// to the configured default when zero.
type WarmEntry struct {
	Query   string                 `json:"query"`
	Context map[string]interface{} `json:"context,omitempty"`
	Value   []byte                 `json:"value"`
	TTL     time.Duration          `json:"ttl,omitempty"`
}

// HotEntry describes a frequently accessed L1 entry.
type HotEntry struct {
	Key         string                 `json:"key"`
	Query       string                 `json:"query"`
	AccessCount int64                  `json:"access_count"`
	CachedAt    time.Time              `json:"cached_at"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Health is the result of a cache liveness probe.
type Health struct {
	L1Size  int  `json:"l1_size"`
	RedisOK bool `json:"redis_ok"`
}
