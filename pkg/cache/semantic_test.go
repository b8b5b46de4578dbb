package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutormesh/aicache/pkg/observability"
)

// stubEmbedder returns pre-registered vectors and fails on anything else so
// an unexpected embedding call shows up as a test failure.
type stubEmbedder struct {
	vectors map[string][]float32
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if vec, ok := s.vectors[text]; ok {
		return vec, nil
	}
	return nil, fmt.Errorf("no stub vector for %q", text)
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("embedding service down")
}

func setupSemanticIndex(t *testing.T, embedder Embedder) (*SemanticIndex, *miniredis.Miniredis, func()) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	resilient := NewResilientClient(client, fastRetryConfig(), observability.NewNoopLogger(), nil)

	cfg := &Config{
		Prefix:              "test_cache",
		SimilarityThreshold: 0.85,
		SemanticTTL:         time.Hour,
		MaxCandidates:       3,
	}
	index := NewSemanticIndex(embedder, resilient, cfg, observability.NewNoopLogger(), nil)

	cleanup := func() {
		_ = client.Close()
		mr.Close()
	}
	return index, mr, cleanup
}

func TestSemanticIndexAdd(t *testing.T) {
	ctx := context.Background()
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"what is the capital of france": {1, 0, 0},
	}}
	index, mr, cleanup := setupSemanticIndex(t, embedder)
	defer cleanup()

	require.NoError(t, index.Add(ctx, "what is the capital of france", "key1"))

	qh := QueryHash("what is the capital of france")
	assert.True(t, mr.Exists("test_cache:sem:emb:"+qh))
	assert.True(t, mr.Exists("test_cache:sem:txt:"+qh))
	assert.True(t, mr.Exists("test_cache:sem:map:"+qh))

	mapped, err := mr.Get("test_cache:sem:map:" + qh)
	require.NoError(t, err)
	assert.Equal(t, "key1", mapped)

	members, err := mr.SMembers("test_cache:sem:idx")
	require.NoError(t, err)
	assert.Contains(t, members, qh)

	t.Run("embedder failure does not index", func(t *testing.T) {
		failing, _, cleanupFailing := setupSemanticIndex(t, failingEmbedder{})
		defer cleanupFailing()

		err := failing.Add(ctx, "anything", "key2")
		assert.Error(t, err)
	})
}

func TestSemanticIndexFindSimilar(t *testing.T) {
	ctx := context.Background()
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"what is the capital of france": {1, 0, 0},
		"capital city of france":        {0.98, 0.19, 0},
		"how do tides work":             {0, 1, 0},
	}}

	t.Run("paraphrase above threshold matches", func(t *testing.T) {
		index, _, cleanup := setupSemanticIndex(t, embedder)
		defer cleanup()

		require.NoError(t, index.Add(ctx, "what is the capital of france", "key1"))

		match, err := index.FindSimilar(ctx, "capital city of france")
		require.NoError(t, err)
		require.NotNil(t, match)
		assert.Equal(t, "key1", match.CacheKey)
		assert.Equal(t, "what is the capital of france", match.MatchedQuery)
		assert.Greater(t, match.Similarity, float32(0.85))
	})

	t.Run("identical query scores one", func(t *testing.T) {
		index, _, cleanup := setupSemanticIndex(t, embedder)
		defer cleanup()

		require.NoError(t, index.Add(ctx, "what is the capital of france", "key1"))

		match, err := index.FindSimilar(ctx, "what is the capital of france")
		require.NoError(t, err)
		require.NotNil(t, match)
		assert.InDelta(t, 1.0, float64(match.Similarity), 0.0001)
	})

	t.Run("unrelated query below threshold misses", func(t *testing.T) {
		index, _, cleanup := setupSemanticIndex(t, embedder)
		defer cleanup()

		require.NoError(t, index.Add(ctx, "what is the capital of france", "key1"))

		match, err := index.FindSimilar(ctx, "how do tides work")
		require.NoError(t, err)
		assert.Nil(t, match)
	})

	t.Run("empty index misses", func(t *testing.T) {
		index, _, cleanup := setupSemanticIndex(t, embedder)
		defer cleanup()

		match, err := index.FindSimilar(ctx, "how do tides work")
		require.NoError(t, err)
		assert.Nil(t, match)
	})

	t.Run("expired records pruned from index", func(t *testing.T) {
		index, mr, cleanup := setupSemanticIndex(t, embedder)
		defer cleanup()

		require.NoError(t, index.Add(ctx, "what is the capital of france", "key1"))
		mr.FastForward(2 * time.Hour)

		match, err := index.FindSimilar(ctx, "capital city of france")
		require.NoError(t, err)
		assert.Nil(t, match)

		// Pruning the last member deletes the now-empty set entirely.
		assert.False(t, mr.Exists("test_cache:sem:idx"))
	})

	t.Run("exact ties resolve to the same winner every time", func(t *testing.T) {
		tieEmbedder := &stubEmbedder{vectors: map[string][]float32{
			"alpha phrasing": {1, 0, 0},
			"beta phrasing":  {1, 0, 0},
			"gamma phrasing": {1, 0, 0},
		}}
		index, _, cleanup := setupSemanticIndex(t, tieEmbedder)
		defer cleanup()

		require.NoError(t, index.Add(ctx, "alpha phrasing", "keyA"))
		require.NoError(t, index.Add(ctx, "beta phrasing", "keyB"))

		// Both candidates score identically, so the winner is fixed by
		// query-hash order rather than whatever order the store returns.
		wantKey := "keyA"
		if QueryHash("beta phrasing") < QueryHash("alpha phrasing") {
			wantKey = "keyB"
		}
		for i := 0; i < 10; i++ {
			match, err := index.FindSimilar(ctx, "gamma phrasing")
			require.NoError(t, err)
			require.NotNil(t, match)
			assert.Equal(t, wantKey, match.CacheKey)
		}
	})

	t.Run("dangling mapping skipped", func(t *testing.T) {
		index, mr, cleanup := setupSemanticIndex(t, embedder)
		defer cleanup()

		require.NoError(t, index.Add(ctx, "what is the capital of france", "key1"))
		qh := QueryHash("what is the capital of france")
		mr.Del("test_cache:sem:map:" + qh)

		match, err := index.FindSimilar(ctx, "capital city of france")
		require.NoError(t, err)
		assert.Nil(t, match)
	})

	t.Run("embedder failure surfaces", func(t *testing.T) {
		index, _, cleanup := setupSemanticIndex(t, failingEmbedder{})
		defer cleanup()

		_, err := index.FindSimilar(ctx, "anything")
		assert.Error(t, err)
	})
}

func TestSemanticIndexRemove(t *testing.T) {
	ctx := context.Background()
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"query one": {1, 0},
		"query two": {0, 1},
	}}
	index, mr, cleanup := setupSemanticIndex(t, embedder)
	defer cleanup()

	require.NoError(t, index.Add(ctx, "query one", "k1"))
	require.NoError(t, index.Add(ctx, "query two", "k2"))

	require.NoError(t, index.RemoveByKey(ctx, "k1"))

	qh := QueryHash("query one")
	assert.False(t, mr.Exists("test_cache:sem:emb:"+qh))
	members, err := mr.SMembers("test_cache:sem:idx")
	require.NoError(t, err)
	assert.NotContains(t, members, qh)
	assert.Contains(t, members, QueryHash("query two"))
}

func TestSemanticIndexRemoveByPattern(t *testing.T) {
	ctx := context.Background()
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"explain goroutines": {1, 0},
		"explain channels":   {0.9, 0.1},
		"what is rust":       {0, 1},
	}}
	index, mr, cleanup := setupSemanticIndex(t, embedder)
	defer cleanup()

	require.NoError(t, index.Add(ctx, "explain goroutines", "k1"))
	require.NoError(t, index.Add(ctx, "explain channels", "k2"))
	require.NoError(t, index.Add(ctx, "what is rust", "k3"))

	require.NoError(t, index.RemoveByPattern(ctx, "explain"))

	members, err := mr.SMembers("test_cache:sem:idx")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{QueryHash("what is rust")}, members)
	assert.False(t, mr.Exists("test_cache:sem:txt:"+QueryHash("explain goroutines")))
}

func TestSemanticIndexClear(t *testing.T) {
	ctx := context.Background()
	embedder := &stubEmbedder{vectors: map[string][]float32{"q": {1, 0}}}
	index, mr, cleanup := setupSemanticIndex(t, embedder)
	defer cleanup()

	require.NoError(t, index.Add(ctx, "q", "k1"))
	require.NoError(t, index.Clear(ctx))

	assert.False(t, mr.Exists("test_cache:sem:idx"))
	assert.False(t, mr.Exists("test_cache:sem:emb:"+QueryHash("q")))

	n, err := index.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, -1},
		{"empty", nil, nil, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, float64(tt.want), float64(cosineSimilarity(tt.a, tt.b)), 0.0001)
		})
	}
}
