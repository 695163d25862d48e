package llm

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complylabs/verdict/internal/store"
)

func TestCacheKey(t *testing.T) {
	cache := NewCache(newRunStore(t))

	t.Run("deterministic", func(t *testing.T) {
		first := cache.Key("prompt", "model-a", "findings")
		second := cache.Key("prompt", "model-a", "findings")
		assert.Equal(t, first, second)
		assert.Len(t, first, 64)
	})

	t.Run("any differing input changes the key", func(t *testing.T) {
		base := cache.Key("prompt", "model-a", "findings")
		assert.NotEqual(t, base, cache.Key("prompt!", "model-a", "findings"))
		assert.NotEqual(t, base, cache.Key("prompt", "model-b", "findings"))
		assert.NotEqual(t, base, cache.Key("prompt", "model-a", "summary"))
	})

	t.Run("separator prevents boundary collisions", func(t *testing.T) {
		assert.NotEqual(t, cache.Key("ab", "c", "s"), cache.Key("a", "bc", "s"))
	})
}

func TestCacheSetGet(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(newRunStore(t))

	t.Run("round-trip", func(t *testing.T) {
		entry := CacheEntry{
			Status:   StatusCompleted,
			Response: json.RawMessage(`{"verdict":"compliant"}`),
			Model:    "model-a",
			Shape:    "findings",
		}
		require.NoError(t, cache.Set(ctx, "key-1", entry))

		got, err := cache.Get(ctx, "key-1")
		require.NoError(t, err)
		assert.Equal(t, &entry, got)
	})

	t.Run("absent key returns ErrNotFound", func(t *testing.T) {
		_, err := cache.Get(ctx, "never-set")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("pending entry requires a batch ID", func(t *testing.T) {
		err := cache.Set(ctx, "key-2", CacheEntry{Status: StatusPending})
		assert.Error(t, err)

		err = cache.Set(ctx, "key-2", CacheEntry{Status: StatusPending, BatchID: "batch-1"})
		assert.NoError(t, err)
	})

	t.Run("corrupt entry surfaces as an error", func(t *testing.T) {
		st := newRunStore(t)
		corrupt := NewCache(st)
		require.NoError(t, st.Save(ctx, cachePrefix+"bad", []byte("not json")))

		_, err := corrupt.Get(ctx, "bad")
		require.Error(t, err)
		assert.NotErrorIs(t, err, store.ErrNotFound)
	})
}

func TestCacheClear(t *testing.T) {
	ctx := context.Background()
	st := newRunStore(t)
	cache := NewCache(st)

	require.NoError(t, cache.Set(ctx, "key-1", CacheEntry{Status: StatusCompleted, Response: json.RawMessage(`{}`)}))
	require.NoError(t, cache.Set(ctx, "key-2", CacheEntry{Status: StatusFailed}))
	require.NoError(t, st.Save(ctx, jobPrefix+"batch-1", []byte(`{"batch_id":"batch-1"}`)))

	require.NoError(t, cache.Clear(ctx))

	_, err := cache.Get(ctx, "key-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = cache.Get(ctx, "key-2")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Batch job records live outside the cache namespace.
	jobs, err := st.ListKeys(ctx, jobPrefix)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}
