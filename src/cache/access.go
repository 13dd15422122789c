package cache

import "golang.org/x/sys/unix"

// Access answers whether the calling process may read or write a path.
type Access interface {
	CanRead(path string) bool
	CanWrite(path string) bool
}

// UnixAccess checks permissions with access(2).
type UnixAccess struct{}

func (UnixAccess) CanRead(path string) bool {
	return unix.Access(path, unix.R_OK) == nil
}

func (UnixAccess) CanWrite(path string) bool {
	return unix.Access(path, unix.W_OK) == nil
}
