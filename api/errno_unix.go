//go:build unix

// Package api
// Author: momentics <momentics@gmail.com>

package api

import "golang.org/x/sys/unix"

// ErrnoName translates a platform error number into text.
func ErrnoName(code int) string {
	errno := unix.Errno(code)
	if name := unix.ErrnoName(errno); name != "" {
		return name + ": " + errno.Error()
	}
	return errno.Error()
}
