package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tutormesh/aicache/pkg/cache"
	"github.com/tutormesh/aicache/pkg/observability"
)

type lookupRequest struct {
	Query     string                 `json:"query" binding:"required"`
	Context   map[string]interface{} `json:"context"`
	ExactOnly bool                   `json:"exact_only"`
}

type storeRequest struct {
	Query      string                 `json:"query" binding:"required"`
	Context    map[string]interface{} `json:"context"`
	Value      json.RawMessage        `json:"value" binding:"required"`
	TTLSeconds int                    `json:"ttl_seconds"`
	Metadata   map[string]interface{} `json:"metadata"`
}

type invalidateRequest struct {
	Key     string                 `json:"key"`
	Query   string                 `json:"query"`
	Context map[string]interface{} `json:"context"`
	Pattern string                 `json:"pattern"`
}

type warmRequest struct {
	Entries []struct {
		Query      string                 `json:"query" binding:"required"`
		Context    map[string]interface{} `json:"context"`
		Value      json.RawMessage        `json:"value" binding:"required"`
		TTLSeconds int                    `json:"ttl_seconds"`
	} `json:"entries" binding:"required"`
}

func newRouter(manager *cache.Manager, logger observability.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, manager.Health(c.Request.Context()))
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1/cache")
	{
		v1.GET("/stats", func(c *gin.Context) {
			c.JSON(http.StatusOK, manager.Stats(c.Request.Context()))
		})

		v1.GET("/hot", func(c *gin.Context) {
			limit := 10
			if raw := c.Query("limit"); raw != "" {
				if n, err := strconv.Atoi(raw); err == nil && n > 0 {
					limit = n
				}
			}
			c.JSON(http.StatusOK, gin.H{"entries": manager.HotEntries(limit)})
		})

		v1.POST("/lookup", func(c *gin.Context) {
			var req lookupRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			var result *cache.LookupResult
			var err error
			if req.ExactOnly {
				result, err = manager.GetExact(c.Request.Context(), cache.MakeKey(req.Query, req.Context))
			} else {
				result, err = manager.Get(c.Request.Context(), req.Query, req.Context)
			}
			if err != nil {
				status := http.StatusInternalServerError
				if err == cache.ErrInvalidQuery {
					status = http.StatusBadRequest
				} else if err == cache.ErrShuttingDown {
					status = http.StatusServiceUnavailable
				}
				c.JSON(status, gin.H{"error": err.Error()})
				return
			}
			if result == nil {
				c.JSON(http.StatusNotFound, gin.H{"hit": false})
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"hit":         true,
				"key":         result.Key,
				"value":       json.RawMessage(result.Value),
				"cache_level": result.Level,
				"metadata":    result.Metadata,
				"similarity":  result.Similarity,
			})
		})

		v1.POST("/entries", func(c *gin.Context) {
			var req storeRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			ttl := time.Duration(req.TTLSeconds) * time.Second
			key, err := manager.Set(c.Request.Context(), req.Query, req.Context, req.Value, ttl, req.Metadata)
			if err != nil {
				status := http.StatusInternalServerError
				if err == cache.ErrInvalidQuery {
					status = http.StatusBadRequest
				} else if err == cache.ErrShuttingDown {
					status = http.StatusServiceUnavailable
				}
				c.JSON(status, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusCreated, gin.H{"key": key})
		})

		v1.POST("/invalidate", func(c *gin.Context) {
			var req invalidateRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if req.Pattern != "" {
				removed, err := manager.InvalidatePattern(c.Request.Context(), req.Pattern)
				if err != nil {
					c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
					return
				}
				c.JSON(http.StatusOK, gin.H{"removed": removed})
				return
			}

			key := req.Key
			if key == "" && req.Query != "" {
				key = cache.MakeKey(req.Query, req.Context)
			}
			removed, err := manager.Invalidate(c.Request.Context(), key)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"removed": removed})
		})

		v1.POST("/warm", func(c *gin.Context) {
			var req warmRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			entries := make([]cache.WarmEntry, len(req.Entries))
			for i, e := range req.Entries {
				entries[i] = cache.WarmEntry{
					Query:   e.Query,
					Context: e.Context,
					Value:   e.Value,
					TTL:     time.Duration(e.TTLSeconds) * time.Second,
				}
			}

			results, err := manager.Warm(c.Request.Context(), entries)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			var failed int
			for _, r := range results {
				if r.Err != nil {
					failed++
				}
			}
			c.JSON(http.StatusOK, gin.H{"warmed": len(results) - failed, "failed": failed})
		})

		v1.DELETE("/entries", func(c *gin.Context) {
			if err := manager.Clear(c.Request.Context()); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			logger.Info("Cache cleared via admin API", nil)
			c.Status(http.StatusNoContent)
		})
	}

	return router
}
