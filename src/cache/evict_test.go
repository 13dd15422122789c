package cache

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvictionScenario(t *testing.T) {
	tc := newTestCache(t, func(c *CacheConfig) { c.Limit = 1000 })
	ctx := context.Background()

	a := tileRef("osm", 10, 1, 1)
	b := tileRef("osm", 10, 1, 2)
	tc.mustSet(t, a, bytes.Repeat([]byte("a"), 600))
	tc.clock.Advance(time.Second)
	tc.mustSet(t, b, bytes.Repeat([]byte("b"), 600))

	total, err := totalSize(ctx, tc.db)
	require.NoError(t, err)
	assert.Equal(t, int64(600), total)

	_, ok, err := tc.Get(ctx, tileRef("osm", 10, 1, 1))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoFileExists(t, tc.tilePath(a))

	hit, ok, err := tc.Get(ctx, tileRef("osm", 10, 1, 2))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, hit.Data, 600)
}

func TestEvictionOrderFollowsRecency(t *testing.T) {
	tc := newTestCache(t, nil)
	ctx := context.Background()

	tiles := []*TileRef{
		tileRef("osm", 12, 0, 0),
		tileRef("osm", 12, 0, 1),
		tileRef("osm", 12, 0, 2),
		tileRef("osm", 12, 0, 3),
	}
	for _, tile := range tiles {
		tc.mustSet(t, tile, bytes.Repeat([]byte("x"), 100))
		tc.clock.Advance(time.Second)
	}
	// reading the first tile makes it the most recently used
	_, ok, err := tc.Get(ctx, tiles[0])
	require.NoError(t, err)
	require.True(t, ok)

	evicted, err := tc.enforceLimit(ctx, tc.db, 150)
	require.NoError(t, err)
	assert.Equal(t, 3, evicted)

	for _, tile := range tiles[1:] {
		assert.NoFileExists(t, tc.tilePath(tile))
	}
	assert.FileExists(t, tc.tilePath(tiles[0]))
	assert.Contains(t, tc.logs.String(), "evicted tile")

	var order []string
	for _, line := range bytes.Split([]byte(tc.logs.String()), []byte("\n")) {
		for _, tile := range tiles {
			if bytes.Contains(line, []byte("evicted tile")) && bytes.Contains(line, []byte(tc.tilePath(tile)+" ")) {
				order = append(order, tc.tilePath(tile))
			}
		}
	}
	assert.Equal(t, []string{tc.tilePath(tiles[1]), tc.tilePath(tiles[2]), tc.tilePath(tiles[3])}, order)
}

func TestEvictionBudgetSmallerThanTile(t *testing.T) {
	tc := newTestCache(t, func(c *CacheConfig) { c.Limit = 10 })
	ctx := context.Background()

	tile := tileRef("osm", 1, 0, 0)
	out, err := tc.Set(ctx, tile, bytes.Repeat([]byte("z"), 50))
	require.NoError(t, err)
	assert.Len(t, out, 50)

	count, err := countEntries(ctx, tc.db)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
	assert.NoFileExists(t, tc.tilePath(tile))
}

func TestEvictionToleratesMissingFile(t *testing.T) {
	tc := newTestCache(t, nil)
	ctx := context.Background()

	gone := tileRef("osm", 3, 3, 3)
	tc.mustSet(t, gone, []byte("0123456789"))
	tc.clock.Advance(time.Second)
	tc.mustSet(t, tileRef("osm", 3, 3, 4), []byte("0123456789"))
	require.NoError(t, os.Remove(tc.tilePath(gone)))

	evicted, err := tc.enforceLimit(ctx, tc.db, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, evicted)
	_, found := tc.mustEntry(t, gone)
	assert.False(t, found)
}

func TestNoLimitNeverEvicts(t *testing.T) {
	tc := newTestCache(t, nil)
	ctx := context.Background()
	for i := range 5 {
		tc.mustSet(t, tileRef("osm", 4, i, i), bytes.Repeat([]byte("n"), 1000))
	}
	total, err := totalSize(ctx, tc.db)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), total)
}
