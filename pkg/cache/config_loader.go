package cache

import (
	"fmt"

	"github.com/spf13/viper"
)

// LoadConfigFromViper loads cache configuration from viper, starting from
// DefaultConfig and overriding any value present under the "cache" key.
//
// Recognized keys:
//
//	cache.l1_max_size
//	cache.default_ttl
//	cache.prefix
//	cache.semantic.enabled
//	cache.semantic.similarity_threshold
//	cache.semantic.ttl
//	cache.semantic.max_candidates
//	cache.warm_concurrency
//	monitoring.metrics.enabled
func LoadConfigFromViper(v *viper.Viper) (*Config, error) {
	config := DefaultConfig()

	if v.IsSet("cache.l1_max_size") {
		config.L1MaxSize = v.GetInt("cache.l1_max_size")
	}
	if ttl := v.GetDuration("cache.default_ttl"); ttl > 0 {
		config.DefaultTTL = ttl
	}
	if prefix := v.GetString("cache.prefix"); prefix != "" {
		config.Prefix = prefix
	}

	if v.IsSet("cache.semantic.enabled") {
		config.EnableSemantic = v.GetBool("cache.semantic.enabled")
	}
	if threshold := v.GetFloat64("cache.semantic.similarity_threshold"); threshold > 0 {
		config.SimilarityThreshold = float32(threshold)
	}
	if ttl := v.GetDuration("cache.semantic.ttl"); ttl > 0 {
		config.SemanticTTL = ttl
	}
	if maxCandidates := v.GetInt("cache.semantic.max_candidates"); maxCandidates > 0 {
		config.MaxCandidates = maxCandidates
	}

	if v.IsSet("monitoring.metrics.enabled") {
		config.EnableMetrics = v.GetBool("monitoring.metrics.enabled")
	}
	if n := v.GetInt("cache.warm_concurrency"); n > 0 {
		config.WarmConcurrency = n
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cache config: %w", err)
	}
	return config, nil
}
