package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// AttemptLock tries to take the generation lock for tile without
// blocking. The lock is a directory next to the tile path; mkdir(2)
// either creates it or fails because another holder did. A lock whose
// inode change time is older than StaleLock is presumed abandoned,
// reclaimed, and contended for once more.
func (cm *CacheManager) AttemptLock(tile Tile) (bool, error) {
	name := cm.lockPath(tile)

	if err := cm.makedirs(filepath.Dir(name)); err != nil {
		return false, fmt.Errorf("failed to create lock directory parent: %w", err)
	}

	acquired, err := cm.mkdirLock(name)
	if err != nil || acquired {
		return acquired, err
	}

	changed, inode, err := lockStat(name)
	if errors.Is(err, fs.ErrNotExist) {
		// Released between our mkdir and stat; someone else will win or
		// the caller retries.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat lock: %w", err)
	}

	age := cm.clock.Now().Sub(changed)
	if age < cm.config.StaleLock {
		return false, nil
	}

	cm.logger.Warn("removing stale lock",
		"lock", name,
		"age", age.Round(time.Second).String(),
		"threshold", cm.config.StaleLock.String(),
	)
	reclaimed, err := cm.reclaimStale(name, inode)
	if err != nil || !reclaimed {
		return false, err
	}
	return cm.mkdirLock(name)
}

// reclaimStale moves the stale lock at name aside and removes it. The
// rename lets only one of several contenders that judged the lock stale
// take it away. A contender whose rename picked up a different inode
// than the one it judged has taken a rival's fresh lock and puts it back.
func (cm *CacheManager) reclaimStale(name string, inode uint64) (bool, error) {
	moved := fmt.Sprintf("%s.%s.stale", name, uuid.NewString()[:8])
	if err := os.Rename(name, moved); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to move stale lock: %w", err)
	}

	_, movedInode, err := lockStat(moved)
	if err != nil {
		return false, fmt.Errorf("failed to stat moved lock: %w", err)
	}
	if movedInode != inode {
		// A window remains: a third contender may mkdir name before the
		// restore lands.
		if err := os.Rename(moved, name); err != nil {
			cm.logger.Warn("failed to restore reclaimed lock", "lock", name, "error", err)
		}
		return false, nil
	}

	if err := os.Remove(moved); err != nil {
		cm.logger.Warn("failed to remove stale lock", "lock", moved, "error", err)
	}
	return true, nil
}

// mkdirLock reports true when it created name and false when name
// already exists.
func (cm *CacheManager) mkdirLock(name string) (bool, error) {
	err := withUmask(cm.config.Umask, func() error {
		return os.Mkdir(name, 0o777)
	})
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to create lock: %w", err)
}

// Unlock releases the lock for tile. A failure is only logged: by the
// time a holder releases, another process may already have reclaimed
// the lock as stale.
func (cm *CacheManager) Unlock(tile Tile) {
	name := cm.lockPath(tile)
	if err := os.Remove(name); err != nil {
		cm.logger.Warn("unlock failed", "lock", name, "error", err)
	}
}

// WaitLock polls AttemptLock every LockRetry until the lock is taken or
// ctx is done.
func (cm *CacheManager) WaitLock(ctx context.Context, tile Tile) error {
	for {
		acquired, err := cm.AttemptLock(tile)
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-cm.clock.After(cm.config.LockRetry):
		}
	}
}
