package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Get looks the tile up on disk. A miss returns ok == false and no error.
// On a hit the entry's last-used time is refreshed and, unless SendFile
// is set, the bytes are read and stored on the tile.
func (cm *CacheManager) Get(ctx context.Context, tile Tile) (Hit, bool, error) {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	db, err := cm.handle()
	if err != nil {
		return Hit{}, false, err
	}

	filename := cm.tilePath(tile)
	if !cm.access.CanRead(filename) {
		cm.misses.Add(1)
		return Hit{}, false, nil
	}

	if !cm.config.ReadOnly {
		if err := touchEntry(ctx, db, filename, cm.clock.Now().Unix()); err != nil {
			return Hit{}, false, err
		}
	}

	if cm.config.SendFile {
		cm.hits.Add(1)
		return Hit{Path: filename}, true, nil
	}

	data, err := os.ReadFile(filename)
	if errors.Is(err, fs.ErrNotExist) {
		// evicted between the access check and the read
		cm.misses.Add(1)
		return Hit{}, false, nil
	}
	if err != nil {
		return Hit{}, false, fmt.Errorf("failed to read tile: %w", err)
	}

	cm.hits.Add(1)
	tile.SetData(data)
	return Hit{Path: filename, Data: data}, true, nil
}

// Set stores data for tile and returns it. In read-only mode data is
// returned untouched and nothing is written.
func (cm *CacheManager) Set(ctx context.Context, tile Tile, data []byte) ([]byte, error) {
	if cm.config.ReadOnly {
		return data, nil
	}

	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	db, err := cm.handle()
	if err != nil {
		return nil, err
	}

	filename := cm.tilePath(tile)
	if err := cm.writeAtomic(filename, data); err != nil {
		return nil, err
	}
	tile.SetData(data)

	if err := upsertEntry(ctx, db, filename, int64(len(data)), cm.clock.Now().Unix()); err != nil {
		return nil, err
	}
	cm.stores.Add(1)

	if cm.config.Limit > 0 {
		if _, err := cm.enforceLimit(ctx, db, cm.config.Limit); err != nil {
			return nil, fmt.Errorf("failed to enforce size limit: %w", err)
		}
	}

	return data, nil
}

// Delete removes the tile's file and index entry. Either may already be
// gone. Read-only mode makes this a no-op.
func (cm *CacheManager) Delete(ctx context.Context, tile Tile) error {
	if cm.config.ReadOnly {
		return nil
	}

	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	db, err := cm.handle()
	if err != nil {
		return err
	}

	filename := cm.tilePath(tile)
	if cm.access.CanRead(filename) {
		if err := removeFile(filename); err != nil {
			return fmt.Errorf("failed to delete tile: %w", err)
		}
	}
	return removeEntry(ctx, db, filename)
}
