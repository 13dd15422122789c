package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tilecache/src/cache"
)

func tile(x int) *cache.TileRef {
	return &cache.TileRef{Layer: "osm", Ext: "png", Z: 5, X: x, Y: 7}
}

func TestUninitialized(t *testing.T) {
	Close()

	assert.Nil(t, Get(tile(1)))
	assert.False(t, Set(tile(1), []byte("x")))
	assert.False(t, Delete(tile(1)))
	assert.False(t, Lock(tile(1)))
	assert.False(t, Unlock(tile(1)))
	_, ok := Stats()
	assert.False(t, ok)
	assert.False(t, Close())
}

func TestLifecycle(t *testing.T) {
	require.True(t, Init(cache.CacheConfig{BaseDir: t.TempDir()}))
	t.Cleanup(func() { Close() })

	assert.Nil(t, Get(tile(1)))
	require.True(t, Set(tile(1), []byte("tile one")))
	assert.Equal(t, []byte("tile one"), Get(tile(1)))

	assert.True(t, Lock(tile(1)))
	assert.False(t, Lock(tile(1)))
	assert.True(t, Unlock(tile(1)))
	assert.True(t, Lock(tile(1)))

	require.True(t, Delete(tile(1)))
	assert.Nil(t, Get(tile(1)))

	stats, ok := Stats()
	require.True(t, ok)
	assert.Equal(t, uint64(1), stats.Stores)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(2), stats.Misses)
}

func TestEmptyTileIsNotAMiss(t *testing.T) {
	require.True(t, Init(cache.CacheConfig{BaseDir: t.TempDir()}))
	t.Cleanup(func() { Close() })

	assert.Nil(t, Get(tile(3)))
	require.True(t, Set(tile(3), []byte{}))

	got := Get(tile(3))
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSendFileReturnsPath(t *testing.T) {
	base := t.TempDir()
	require.True(t, Init(cache.CacheConfig{BaseDir: base, SendFile: true}))
	t.Cleanup(func() { Close() })

	require.True(t, Set(tile(2), []byte("body")))
	want := cache.TilePath(base, "osm", 5, 2, 7, "png")
	assert.Equal(t, []byte(want), Get(tile(2)))
}

func TestInitFailure(t *testing.T) {
	assert.False(t, Init(cache.CacheConfig{}))
}
