package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// umaskMu serializes umask changes within the process; the mask itself is
// process-wide.
var umaskMu sync.Mutex

// withUmask runs fn with the process umask set to mask and restores the
// previous mask when fn returns or panics.
func withUmask(mask int, fn func() error) error {
	umaskMu.Lock()
	defer umaskMu.Unlock()

	old := unix.Umask(mask)
	defer unix.Umask(old)

	return fn()
}

// makedirs creates path and any missing parents. A directory that
// already exists, including one created concurrently by another
// process, counts as success.
func (cm *CacheManager) makedirs(path string) error {
	return withUmask(cm.config.Umask, func() error {
		err := os.MkdirAll(path, 0o777)
		if err != nil && errors.Is(err, fs.ErrExist) {
			if info, statErr := os.Stat(path); statErr == nil && info.IsDir() {
				return nil
			}
		}
		return err
	})
}

func tempName(filename string) string {
	return fmt.Sprintf("%s.%d.%s%s", filename, os.Getpid(), uuid.NewString()[:8], tmpExtension)
}

// writeAtomic publishes data at filename. Readers see either the previous
// file or the complete new one.
func (cm *CacheManager) writeAtomic(filename string, data []byte) error {
	dirname := filepath.Dir(filename)
	if !cm.access.CanWrite(dirname) {
		if err := cm.makedirs(dirname); err != nil {
			return fmt.Errorf("failed to create tile directory: %w", err)
		}
	}

	tmpfile := tempName(filename)
	err := withUmask(cm.config.Umask, func() error {
		output, err := os.OpenFile(tmpfile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o666)
		if err != nil {
			return err
		}
		if _, err := output.Write(data); err != nil {
			output.Close()
			return err
		}
		return output.Close()
	})
	if err != nil {
		os.Remove(tmpfile)
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := publish(tmpfile, filename); err != nil {
		os.Remove(tmpfile)
		return fmt.Errorf("failed to publish tile: %w", err)
	}
	return nil
}

// publish renames tmpfile onto filename. rename(2) replaces an existing
// file atomically; if the destination still refuses (for example an
// empty directory squats on the name), it is removed and the rename is
// retried once. Between the removal and the retry the path is absent.
func publish(tmpfile, filename string) error {
	err := os.Rename(tmpfile, filename)
	if err == nil {
		return nil
	}
	if !destinationExists(err) {
		return err
	}
	if err := os.Remove(filename); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Rename(tmpfile, filename)
}

func destinationExists(err error) bool {
	return errors.Is(err, fs.ErrExist) ||
		errors.Is(err, unix.EEXIST) ||
		errors.Is(err, unix.ENOTEMPTY) ||
		errors.Is(err, unix.EISDIR)
}
