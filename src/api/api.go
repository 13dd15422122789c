// Package api exposes a process-wide tile cache behind plain functions
// that report failure as false or nil instead of an error. Failures are
// logged with the cache's logger.
package api

import (
	"context"
	"sync"

	"tilecache/src/cache"
)

var (
	globalMu           sync.Mutex
	globalCacheManager *cache.CacheManager
)

func manager() *cache.CacheManager {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalCacheManager
}

func Close() bool {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalCacheManager == nil {
		return false
	}

	if err := globalCacheManager.Close(); err != nil {
		return false
	}

	globalCacheManager = nil
	return true
}

// Init initializes the cache system, replacing any previous instance.
func Init(config cache.CacheConfig) bool {
	cm := cache.NewCacheManager(config)
	if err := cm.Init(); err != nil {
		cm.Config().Logger.Error("cache init failed", "base", config.BaseDir, "error", err)
		return false
	}

	globalMu.Lock()
	previous := globalCacheManager
	globalCacheManager = cm
	globalMu.Unlock()

	if previous != nil {
		previous.Close()
	}
	return true
}

// Get returns the tile bytes, or the tile path in sendfile mode, and nil
// on a miss or failure. A zero-byte tile is a non-nil empty slice.
func Get(tile cache.Tile) []byte {
	cm := manager()
	if cm == nil {
		return nil
	}

	hit, ok, err := cm.Get(context.Background(), tile)
	if err != nil {
		cm.Config().Logger.Error("cache get failed", "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	if cm.Config().SendFile {
		return []byte(hit.Path)
	}
	if hit.Data == nil {
		return []byte{}
	}
	return hit.Data
}

func Set(tile cache.Tile, content []byte) bool {
	cm := manager()
	if cm == nil {
		return false
	}

	if _, err := cm.Set(context.Background(), tile, content); err != nil {
		cm.Config().Logger.Error("cache set failed", "error", err)
		return false
	}

	return true
}

func Delete(tile cache.Tile) bool {
	cm := manager()
	if cm == nil {
		return false
	}

	if err := cm.Delete(context.Background(), tile); err != nil {
		cm.Config().Logger.Error("cache delete failed", "error", err)
		return false
	}

	return true
}

// Lock reports whether the generation lock for tile was taken.
func Lock(tile cache.Tile) bool {
	cm := manager()
	if cm == nil {
		return false
	}

	acquired, err := cm.AttemptLock(tile)
	if err != nil {
		cm.Config().Logger.Error("cache lock failed", "error", err)
		return false
	}
	return acquired
}

func Unlock(tile cache.Tile) bool {
	cm := manager()
	if cm == nil {
		return false
	}

	cm.Unlock(tile)
	return true
}

func Stats() (cache.Stats, bool) {
	cm := manager()
	if cm == nil {
		return cache.Stats{}, false
	}

	stats, err := cm.Stats(context.Background())
	if err != nil {
		cm.Config().Logger.Error("cache stats failed", "error", err)
		return stats, false
	}
	return stats, true
}
