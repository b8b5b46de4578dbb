package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// LocalTier is the bounded in-process cache layer (L1). Recency bookkeeping
// is delegated to a non-thread-safe simplelru.LRU guarded by a single mutex;
// every operation is an O(1) map touch under that lock and never performs
// network I/O, so the lock is safe to take on the hot path.
//
// Expiry is lazy: a stale entry is removed when a read observes it, there is
// no background sweep.
type LocalTier struct {
	mu  sync.Mutex
	lru *simplelru.LRU[string, *Entry]
}

// NewLocalTier creates an L1 tier holding at most maxSize entries. When a
// write arrives at capacity the least-recently-used entry is evicted.
func NewLocalTier(maxSize int) (*LocalTier, error) {
	lru, err := simplelru.NewLRU[string, *Entry](maxSize, nil)
	if err != nil {
		return nil, err
	}
	return &LocalTier{lru: lru}, nil
}

// Get returns the entry for key if present and unexpired, marking it
// most-recently-used and incrementing its access count. An expired entry is
// removed and reported as absent.
func (t *LocalTier) Get(key string) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.lru.Get(key)
	if !ok {
		return nil, false
	}
	if entry.Expired(time.Now()) {
		t.lru.Remove(key)
		return nil, false
	}
	entry.AccessCount++
	return entry, true
}

// Set inserts or overwrites the entry as most-recently-used. At capacity the
// least-recently-used entry is evicted first.
func (t *LocalTier) Set(key string, entry *Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lru.Add(key, entry)
}

// Delete removes the entry if present.
func (t *LocalTier) Delete(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lru.Remove(key)
}

// Len returns the number of entries currently held, including entries whose
// TTL has elapsed but has not yet been observed by a read.
func (t *LocalTier) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lru.Len()
}

// Purge removes all entries.
func (t *LocalTier) Purge() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lru.Purge()
}

// DeleteMatching removes every entry for which match returns true and
// returns the keys removed. Recency order is not disturbed for surviving
// entries (matching uses Peek, not Get).
func (t *LocalTier) DeleteMatching(match func(key string, entry *Entry) bool) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var removed []string
	for _, key := range t.lru.Keys() {
		entry, ok := t.lru.Peek(key)
		if !ok {
			continue
		}
		if match(key, entry) {
			t.lru.Remove(key)
			removed = append(removed, key)
		}
	}
	return removed
}

// Hot returns up to limit entries sorted by access count, most accessed
// first.
func (t *LocalTier) Hot(limit int) []HotEntry {
	t.mu.Lock()
	entries := make([]HotEntry, 0, t.lru.Len())
	for _, key := range t.lru.Keys() {
		entry, ok := t.lru.Peek(key)
		if !ok {
			continue
		}
		entries = append(entries, HotEntry{
			Key:         key,
			Query:       entry.Query,
			AccessCount: entry.AccessCount,
			CachedAt:    entry.CachedAt,
			Metadata:    entry.Metadata,
		})
	}
	t.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].AccessCount > entries[j].AccessCount
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}
