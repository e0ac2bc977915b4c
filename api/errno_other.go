//go:build !unix

// Package api
// Author: momentics <momentics@gmail.com>

package api

import "syscall"

// ErrnoName translates a platform error number into text.
func ErrnoName(code int) string {
	return syscall.Errno(code).Error()
}
