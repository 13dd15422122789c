package cache

import "context"

// Stats returns the counters accumulated since Init together with the
// current index totals, which include tiles written by other processes.
func (cm *CacheManager) Stats(ctx context.Context) (Stats, error) {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	stats := Stats{
		Hits:      cm.hits.Load(),
		Misses:    cm.misses.Load(),
		Stores:    cm.stores.Load(),
		Evictions: cm.evictions.Load(),
		Limit:     cm.config.Limit,
	}

	db, err := cm.handle()
	if err != nil {
		return stats, err
	}
	if stats.Entries, err = countEntries(ctx, db); err != nil {
		return stats, err
	}
	if stats.TotalSize, err = totalSize(ctx, db); err != nil {
		return stats, err
	}
	return stats, nil
}

// HitRatio is the percentage of Get calls that found the tile.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100.0
}
