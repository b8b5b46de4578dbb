package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// WarmResult reports the outcome of warming a single entry.
type WarmResult struct {
	Query    string
	Key      string
	Err      error
	Duration time.Duration
}

// Warm pre-loads the cache with the given entries under bounded
// concurrency. Each warmed entry is tagged with the batch id so warmed
// values can be told apart from organic ones. Individual failures are
// reported per entry and do not stop the batch. On context cancellation
// the entries not yet started carry the context error, and Warm waits
// for in-flight workers before returning so the result slice is settled.
func (m *Manager) Warm(ctx context.Context, entries []WarmEntry) ([]WarmResult, error) {
	if m.closed.Load() {
		return nil, ErrShuttingDown
	}
	if len(entries) == 0 {
		return nil, nil
	}

	batchID := uuid.New().String()
	concurrency := m.config.WarmConcurrency
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]WarmResult, len(entries))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var batchErr error

	started := time.Now()
	for i := range entries {
		if err := ctx.Err(); err != nil {
			batchErr = err
			for j := i; j < len(entries); j++ {
				results[j] = WarmResult{Query: entries[j].Query, Err: err}
			}
			break
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			batchErr = ctx.Err()
			for j := i; j < len(entries); j++ {
				results[j] = WarmResult{Query: entries[j].Query, Err: ctx.Err()}
			}
		}
		if batchErr != nil {
			break
		}

		i := i
		wg.Add(1)
		SafeGo(m.logger, "cache_warm", func() {
			defer func() {
				<-sem
				wg.Done()
			}()

			entry := entries[i]
			entryStart := time.Now()
			metadata := map[string]interface{}{
				"warmed":        true,
				"warm_batch_id": batchID,
			}
			key, err := m.Set(ctx, entry.Query, entry.Context, entry.Value, entry.TTL, metadata)
			results[i] = WarmResult{
				Query:    entry.Query,
				Key:      key,
				Err:      err,
				Duration: time.Since(entryStart),
			}
		})
	}

	wg.Wait()

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	m.logger.Info("Cache warmup completed", map[string]interface{}{
		"batch_id": batchID,
		"total":    len(entries),
		"failed":   failed,
		"duration": time.Since(started).String(),
	})
	m.metrics.IncrementCounterWithLabels("cache.warmed", float64(len(entries)-failed), nil)
	return results, batchErr
}
