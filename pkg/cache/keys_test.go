package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMakeKey(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		k1 := MakeKey("what is go", nil)
		k2 := MakeKey("what is go", nil)
		assert.Equal(t, k1, k2)
		assert.Len(t, k1, 64)
	})

	t.Run("context order does not matter", func(t *testing.T) {
		k1 := MakeKey("query", map[string]interface{}{"model": "gpt", "lang": "en"})
		k2 := MakeKey("query", map[string]interface{}{"lang": "en", "model": "gpt"})
		assert.Equal(t, k1, k2)
	})

	t.Run("context changes the key", func(t *testing.T) {
		k1 := MakeKey("query", map[string]interface{}{"model": "a"})
		k2 := MakeKey("query", map[string]interface{}{"model": "b"})
		k3 := MakeKey("query", nil)
		assert.NotEqual(t, k1, k2)
		assert.NotEqual(t, k1, k3)
	})

	t.Run("empty context equals nil context", func(t *testing.T) {
		assert.Equal(t, MakeKey("q", nil), MakeKey("q", map[string]interface{}{}))
	})

	t.Run("different queries differ", func(t *testing.T) {
		assert.NotEqual(t, MakeKey("a", nil), MakeKey("b", nil))
	})

	t.Run("non-serializable context still distinguishes keys", func(t *testing.T) {
		// A channel value makes json.Marshal fail for the whole map.
		ch := make(chan int)
		ctxA := map[string]interface{}{"mode": "a", "sink": ch}
		ctxB := map[string]interface{}{"mode": "b", "sink": ch}

		assert.NotEqual(t, MakeKey("query", ctxA), MakeKey("query", ctxB))
		assert.Equal(t, MakeKey("query", ctxA), MakeKey("query", ctxA))
		assert.NotEqual(t, MakeKey("query", ctxA), MakeKey("query", nil))
	})
}

func TestQueryHash(t *testing.T) {
	h := QueryHash("some query")
	assert.Len(t, h, 32)
	assert.Equal(t, h, QueryHash("some query"))
	assert.NotEqual(t, h, QueryHash("other query"))
}
