package cache

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEntry(query string, ttl time.Duration) *Entry {
	now := time.Now()
	return &Entry{
		Query:     query,
		Value:     []byte(`"response for ` + query + `"`),
		ExpiresAt: now.Add(ttl),
		CachedAt:  now,
	}
}

func TestLocalTier(t *testing.T) {
	t.Run("set and get", func(t *testing.T) {
		tier, err := NewLocalTier(10)
		require.NoError(t, err)

		tier.Set("k1", newTestEntry("q1", time.Hour))
		entry, ok := tier.Get("k1")
		require.True(t, ok)
		assert.Equal(t, "q1", entry.Query)
		assert.Equal(t, 1, tier.Len())
	})

	t.Run("miss on absent key", func(t *testing.T) {
		tier, err := NewLocalTier(10)
		require.NoError(t, err)

		entry, ok := tier.Get("nope")
		assert.False(t, ok)
		assert.Nil(t, entry)
	})

	t.Run("invalid capacity", func(t *testing.T) {
		_, err := NewLocalTier(0)
		assert.Error(t, err)
	})

	t.Run("evicts least recently used at capacity", func(t *testing.T) {
		tier, err := NewLocalTier(3)
		require.NoError(t, err)

		tier.Set("k1", newTestEntry("q1", time.Hour))
		tier.Set("k2", newTestEntry("q2", time.Hour))
		tier.Set("k3", newTestEntry("q3", time.Hour))

		// Touch k1 so k2 becomes the eviction candidate.
		_, ok := tier.Get("k1")
		require.True(t, ok)

		tier.Set("k4", newTestEntry("q4", time.Hour))

		_, ok = tier.Get("k2")
		assert.False(t, ok)
		_, ok = tier.Get("k1")
		assert.True(t, ok)
		_, ok = tier.Get("k4")
		assert.True(t, ok)
		assert.Equal(t, 3, tier.Len())
	})

	t.Run("expired entry removed on read", func(t *testing.T) {
		tier, err := NewLocalTier(10)
		require.NoError(t, err)

		tier.Set("k1", newTestEntry("q1", -time.Second))
		assert.Equal(t, 1, tier.Len())

		entry, ok := tier.Get("k1")
		assert.False(t, ok)
		assert.Nil(t, entry)
		assert.Equal(t, 0, tier.Len())
	})

	t.Run("access count increments per hit", func(t *testing.T) {
		tier, err := NewLocalTier(10)
		require.NoError(t, err)

		tier.Set("k1", newTestEntry("q1", time.Hour))
		for i := 0; i < 3; i++ {
			_, ok := tier.Get("k1")
			require.True(t, ok)
		}
		entry, ok := tier.Get("k1")
		require.True(t, ok)
		assert.Equal(t, int64(4), entry.AccessCount)
	})

	t.Run("overwrite replaces entry", func(t *testing.T) {
		tier, err := NewLocalTier(10)
		require.NoError(t, err)

		tier.Set("k1", newTestEntry("old", time.Hour))
		tier.Set("k1", newTestEntry("new", time.Hour))

		entry, ok := tier.Get("k1")
		require.True(t, ok)
		assert.Equal(t, "new", entry.Query)
		assert.Equal(t, 1, tier.Len())
	})

	t.Run("delete", func(t *testing.T) {
		tier, err := NewLocalTier(10)
		require.NoError(t, err)

		tier.Set("k1", newTestEntry("q1", time.Hour))
		assert.True(t, tier.Delete("k1"))
		assert.False(t, tier.Delete("k1"))
		_, ok := tier.Get("k1")
		assert.False(t, ok)
	})

	t.Run("purge", func(t *testing.T) {
		tier, err := NewLocalTier(10)
		require.NoError(t, err)

		for i := 0; i < 5; i++ {
			key := fmt.Sprintf("k%d", i)
			tier.Set(key, newTestEntry(key, time.Hour))
		}
		tier.Purge()
		assert.Equal(t, 0, tier.Len())
	})
}

func TestLocalTierDeleteMatching(t *testing.T) {
	tier, err := NewLocalTier(10)
	require.NoError(t, err)

	tier.Set("k1", newTestEntry("explain goroutines", time.Hour))
	tier.Set("k2", newTestEntry("explain channels", time.Hour))
	tier.Set("k3", newTestEntry("what is rust", time.Hour))

	removed := tier.DeleteMatching(func(_ string, e *Entry) bool {
		return strings.Contains(e.Query, "explain")
	})

	assert.ElementsMatch(t, []string{"k1", "k2"}, removed)
	assert.Equal(t, 1, tier.Len())
	_, ok := tier.Get("k3")
	assert.True(t, ok)
}

func TestLocalTierHot(t *testing.T) {
	tier, err := NewLocalTier(10)
	require.NoError(t, err)

	tier.Set("cold", newTestEntry("cold query", time.Hour))
	tier.Set("warm", newTestEntry("warm query", time.Hour))
	tier.Set("hot", newTestEntry("hot query", time.Hour))

	for i := 0; i < 5; i++ {
		_, ok := tier.Get("hot")
		require.True(t, ok)
	}
	for i := 0; i < 2; i++ {
		_, ok := tier.Get("warm")
		require.True(t, ok)
	}

	hot := tier.Hot(2)
	require.Len(t, hot, 2)
	assert.Equal(t, "hot", hot[0].Key)
	assert.Equal(t, int64(5), hot[0].AccessCount)
	assert.Equal(t, "warm", hot[1].Key)

	all := tier.Hot(0)
	assert.Len(t, all, 3)
}
