package cache

import (
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/tutormesh/aicache/pkg/observability"
)

var (
	defaultManager *Manager
	defaultOnce    sync.Once
	defaultErr     error
)

// InitDefault builds the process-wide manager exactly once. Later calls
// return the first result regardless of arguments.
func InitDefault(cfg *Config, redisClient *redis.Client, embedder Embedder, logger observability.Logger, metrics observability.MetricsClient) (*Manager, error) {
	defaultOnce.Do(func() {
		if cfg == nil {
			cfg = DefaultConfig()
		}
		resilient := NewResilientClient(redisClient, cfg.Retry, logger, metrics)
		defaultManager, defaultErr = NewManager(cfg, resilient, embedder, logger, metrics)
	})
	return defaultManager, defaultErr
}

// Default returns the process-wide manager, or nil before InitDefault.
func Default() *Manager {
	return defaultManager
}
