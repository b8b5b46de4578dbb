package cache

import (
	"math"
	"sync/atomic"
)

// statCounters tracks per-tier hit and miss counts with atomics so the hot
// path never takes a lock for accounting.
type statCounters struct {
	l1Hits         atomic.Int64
	l1Misses       atomic.Int64
	l2Hits         atomic.Int64
	l2Misses       atomic.Int64
	semanticHits   atomic.Int64
	semanticMisses atomic.Int64
	totalLookups   atomic.Int64
	sets           atomic.Int64
	invalidations  atomic.Int64
}

// TierStats is the hit/miss snapshot for a single tier.
type TierStats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Stats is a point-in-time snapshot of cache activity. Counters are read
// independently, so a snapshot taken under load may be off by in-flight
// operations.
type Stats struct {
	L1             TierStats `json:"l1"`
	L2             TierStats `json:"l2"`
	Semantic       TierStats `json:"semantic"`
	TotalLookups   int64     `json:"total_lookups"`
	Sets           int64     `json:"sets"`
	Invalidations  int64     `json:"invalidations"`
	OverallHitRate float64   `json:"overall_hit_rate"`
	L1Size         int       `json:"l1_size"`
	SemanticSize   int64     `json:"semantic_index_size"`
}

// hitRate returns hits / max(1, total) rounded to four decimal places.
func hitRate(hits, total int64) float64 {
	if total < 1 {
		total = 1
	}
	return math.Round(float64(hits)/float64(total)*10000) / 10000
}

func (c *statCounters) reset() {
	c.l1Hits.Store(0)
	c.l1Misses.Store(0)
	c.l2Hits.Store(0)
	c.l2Misses.Store(0)
	c.semanticHits.Store(0)
	c.semanticMisses.Store(0)
	c.totalLookups.Store(0)
	c.sets.Store(0)
	c.invalidations.Store(0)
}

func (c *statCounters) snapshot() Stats {
	l1h, l1m := c.l1Hits.Load(), c.l1Misses.Load()
	l2h, l2m := c.l2Hits.Load(), c.l2Misses.Load()
	sh, sm := c.semanticHits.Load(), c.semanticMisses.Load()
	total := c.totalLookups.Load()

	return Stats{
		L1:             TierStats{Hits: l1h, Misses: l1m, HitRate: hitRate(l1h, total)},
		L2:             TierStats{Hits: l2h, Misses: l2m, HitRate: hitRate(l2h, total)},
		Semantic:       TierStats{Hits: sh, Misses: sm, HitRate: hitRate(sh, total)},
		TotalLookups:   total,
		Sets:           c.sets.Load(),
		Invalidations:  c.invalidations.Load(),
		OverallHitRate: hitRate(l1h+l2h+sh, total),
	}
}
