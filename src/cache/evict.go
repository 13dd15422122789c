package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// enforceLimit evicts least recently used tiles until the indexed total
// is within limit or the index is empty. It returns the number of
// entries removed. Another process evicting at the same time can only
// make this over-evict relative to the snapshot it started from.
func (cm *CacheManager) enforceLimit(ctx context.Context, db *sql.DB, limit int64) (int, error) {
	total, err := totalSize(ctx, db)
	if err != nil {
		return 0, err
	}

	evicted := 0
	for total > limit {
		entry, found, err := oldestEntry(ctx, db)
		if err != nil {
			return evicted, err
		}
		if !found {
			break
		}

		if err := removeFile(entry.Path); err != nil {
			return evicted, fmt.Errorf("failed to evict %s: %w", entry.Path, err)
		}
		if err := removeEntry(ctx, db, entry.Path); err != nil {
			return evicted, err
		}

		total -= entry.Size
		evicted++
		cm.evictions.Add(1)
		cm.logger.Debug("evicted tile",
			"path", entry.Path,
			"size", entry.Size,
			"used", entry.LastUsed,
			"remaining", total,
		)
	}
	return evicted, nil
}

// removeFile deletes path, treating an already missing file as success.
func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
