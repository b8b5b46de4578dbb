package cache

import (
	"fmt"
	"time"

	"github.com/tutormesh/aicache/pkg/retry"
)

// Config configures the multi-tier cache.
//
// Use DefaultConfig() for production-ready defaults, then customize specific
// fields as needed.
type Config struct {
	// L1MaxSize is the maximum number of entries held in the in-process tier.
	L1MaxSize int `json:"l1_max_size" mapstructure:"l1_max_size"`
	// DefaultTTL is applied when a write specifies no TTL.
	DefaultTTL time.Duration `json:"default_ttl" mapstructure:"default_ttl"`
	// Prefix namespaces every key this cache writes to the shared store.
	Prefix string `json:"prefix" mapstructure:"prefix"`

	// EnableSemantic turns the similarity tier on. It additionally requires
	// an Embedder at construction time.
	EnableSemantic bool `json:"enable_semantic" mapstructure:"enable_semantic"`
	// SimilarityThreshold is the minimum cosine similarity for a semantic
	// hit (0.0 to 1.0).
	SimilarityThreshold float32 `json:"similarity_threshold" mapstructure:"similarity_threshold"`
	// SemanticTTL is the lifetime of semantic index records. It is
	// intentionally long so the paraphrase index outlives ordinary entries.
	SemanticTTL time.Duration `json:"semantic_ttl" mapstructure:"semantic_ttl"`
	// MaxCandidates bounds how many similarity matches a lookup considers.
	MaxCandidates int `json:"max_candidates" mapstructure:"max_candidates"`

	// EnableMetrics enables metrics collection.
	EnableMetrics bool `json:"enable_metrics" mapstructure:"enable_metrics"`

	// Retry controls retries of shared-store operations.
	Retry retry.Config `json:"retry" mapstructure:"retry"`

	// WarmConcurrency bounds parallelism of cache warming batches.
	WarmConcurrency int `json:"warm_concurrency" mapstructure:"warm_concurrency"`
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() *Config {
	return &Config{
		L1MaxSize:           256,
		DefaultTTL:          time.Hour,
		Prefix:              "cache:v2",
		EnableSemantic:      true,
		SimilarityThreshold: 0.85,
		SemanticTTL:         7 * 24 * time.Hour,
		MaxCandidates:       3,
		EnableMetrics:       true,
		WarmConcurrency:     10,
	}
}

// Validate checks the configuration and fills defaulted fields in place.
func (c *Config) Validate() error {
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: similarity threshold must be between 0 and 1", ErrInvalidConfig)
	}
	if c.L1MaxSize <= 0 {
		c.L1MaxSize = 256
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = time.Hour
	}
	if c.Prefix == "" {
		c.Prefix = "cache:v2"
	}
	if c.SemanticTTL <= 0 {
		c.SemanticTTL = 7 * 24 * time.Hour
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = 3
	}
	if c.WarmConcurrency <= 0 {
		c.WarmConcurrency = 10
	}
	return nil
}
