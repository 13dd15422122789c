//go:build unix

package cache

import (
	"io/fs"
	"time"

	"golang.org/x/sys/unix"
)

// lockStat returns the inode change time and inode number of name.
// x/sys/unix names the field Ctim on every unix it supports.
func lockStat(name string) (time.Time, uint64, error) {
	var st unix.Stat_t
	if err := unix.Stat(name, &st); err != nil {
		return time.Time{}, 0, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	return time.Unix(st.Ctim.Unix()), uint64(st.Ino), nil
}
