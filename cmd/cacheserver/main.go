package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/tutormesh/aicache/pkg/cache"
	"github.com/tutormesh/aicache/pkg/observability"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	v := viper.New()
	v.SetConfigFile(*configPath)
	v.SetEnvPrefix("AICACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		log.Printf("No config file loaded (%v), using defaults and environment", err)
	}

	logger := observability.NewLoggerWithLevel("cacheserver", logLevel(v.GetString("log.level")))

	cfg, err := cache.LoadConfigFromViper(v)
	if err != nil {
		log.Fatalf("Failed to load cache configuration: %v", err)
	}

	var metrics observability.MetricsClient = observability.NewNoopMetricsClient()
	if cfg.EnableMetrics {
		metrics = observability.NewPrometheusMetricsClient("aicache", nil)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     v.GetString("redis.address"),
		Password: v.GetString("redis.password"),
		DB:       v.GetInt("redis.db"),
	})

	var embedder cache.Embedder
	if url := v.GetString("embedding.service_url"); url != "" {
		timeout := v.GetDuration("embedding.timeout")
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		embedder = newHTTPEmbedder(url, timeout, logger.WithPrefix("embedder"))
	} else if cfg.EnableSemantic {
		logger.Warn("Semantic tier disabled: no embedding service configured", nil)
	}

	manager, err := cache.InitDefault(cfg, redisClient, embedder, logger, metrics)
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}

	addr := v.GetString("server.listen_address")
	if addr == "" {
		addr = ":8090"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(manager, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Cache server listening", map[string]interface{}{"address": addr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", map[string]interface{}{"error": err.Error()})
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Error("Cache shutdown incomplete", map[string]interface{}{"error": err.Error()})
	}
	logger.Info("Shutdown complete", nil)
}

func logLevel(s string) observability.LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return observability.LogLevelDebug
	case "warn", "warning":
		return observability.LogLevelWarn
	case "error":
		return observability.LogLevelError
	default:
		return observability.LogLevelInfo
	}
}
