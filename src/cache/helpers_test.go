package cache

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tilecache/src/clock"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// syncBuffer lets a slog handler and the test read the same log output.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type testCache struct {
	*CacheManager
	clock *clock.FakeClock
	logs  *syncBuffer
}

func newTestCache(t *testing.T, mutate func(*CacheConfig)) *testCache {
	t.Helper()

	logs := &syncBuffer{}
	fake := clock.Fake(testEpoch)
	config := CacheConfig{
		BaseDir: t.TempDir(),
		Logger:  slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
		Clock:   fake,
	}
	if mutate != nil {
		mutate(&config)
	}

	cm := NewCacheManager(config)
	require.NoError(t, cm.Init())
	t.Cleanup(func() { cm.Close() })

	return &testCache{CacheManager: cm, clock: fake, logs: logs}
}

func tileRef(layer string, z, x, y int) *TileRef {
	return &TileRef{Layer: layer, Ext: "png", Z: z, X: x, Y: y}
}

func (tc *testCache) mustSet(t *testing.T, tile Tile, data []byte) {
	t.Helper()
	_, err := tc.Set(context.Background(), tile, data)
	require.NoError(t, err)
}

func (tc *testCache) mustEntry(t *testing.T, tile Tile) (Entry, bool) {
	t.Helper()
	entry, found, err := lookupEntry(context.Background(), tc.db, tc.tilePath(tile))
	require.NoError(t, err)
	return entry, found
}
