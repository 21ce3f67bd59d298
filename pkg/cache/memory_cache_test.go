package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemoryCache(t *testing.T, config CacheConfig) *MemoryCache {
	t.Helper()
	c, err := NewMemoryCache(config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestMemoryCache_SetGet(t *testing.T) {
	c := newTestMemoryCache(t, CacheConfig{})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key1", []byte("value1"), 0))

	value, found, err := c.Get(ctx, "key1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("value1"), value)

	_, found, err = c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
	assert.Equal(t, int64(6), stats.Size)
}

func TestMemoryCache_UpdateExisting(t *testing.T) {
	c := newTestMemoryCache(t, CacheConfig{})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key1", []byte("short"), 0))
	require.NoError(t, c.Set(ctx, "key1", []byte("a longer value"), 0))

	value, found, err := c.Get(ctx, "key1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("a longer value"), value)

	assert.Equal(t, int64(14), c.Stats().Size)
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	c := newTestMemoryCache(t, CacheConfig{})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key1", []byte("value1"), 10*time.Millisecond))

	_, found, err := c.Get(ctx, "key1")
	require.NoError(t, err)
	assert.True(t, found)

	time.Sleep(20 * time.Millisecond)

	_, found, err = c.Get(ctx, "key1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, int64(0), c.Stats().Size)
}

func TestMemoryCache_DefaultTTL(t *testing.T) {
	c := newTestMemoryCache(t, CacheConfig{DefaultTTL: 10 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key1", []byte("value1"), 0))

	time.Sleep(20 * time.Millisecond)

	_, found, err := c.Get(ctx, "key1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryCache_LRUEviction(t *testing.T) {
	c := newTestMemoryCache(t, CacheConfig{MaxSize: 30})
	ctx := context.Background()

	// Three 10-byte entries fill the cache exactly
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("key%d", i), []byte("0123456789"), 0))
	}

	// Touch key0 so key1 becomes the LRU victim
	_, found, err := c.Get(ctx, "key0")
	require.NoError(t, err)
	require.True(t, found)

	require.NoError(t, c.Set(ctx, "key3", []byte("0123456789"), 0))

	_, found, _ = c.Get(ctx, "key1")
	assert.False(t, found, "least recently used entry should be evicted")

	_, found, _ = c.Get(ctx, "key0")
	assert.True(t, found)
	_, found, _ = c.Get(ctx, "key3")
	assert.True(t, found)
}

func TestMemoryCache_ValueTooLarge(t *testing.T) {
	c := newTestMemoryCache(t, CacheConfig{MaxSize: 5})
	err := c.Set(context.Background(), "key1", []byte("too large for the cache"), 0)
	assert.Error(t, err)
}

func TestMemoryCache_DeleteAndClear(t *testing.T) {
	c := newTestMemoryCache(t, CacheConfig{})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key1", []byte("value1"), 0))
	require.NoError(t, c.Set(ctx, "key2", []byte("value2"), 0))

	require.NoError(t, c.Delete(ctx, "key1"))
	_, found, _ := c.Get(ctx, "key1")
	assert.False(t, found)
	assert.Equal(t, int64(1), c.Stats().Deletes)

	require.NoError(t, c.Clear(ctx))
	_, found, _ = c.Get(ctx, "key2")
	assert.False(t, found)
}

func TestMemoryCache_CloseIdempotent(t *testing.T) {
	c, err := NewMemoryCache(CacheConfig{})
	require.NoError(t, err)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}
