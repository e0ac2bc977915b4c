//go:build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Platforms without an epoll reactor.

package reactor

import (
	"fmt"
	"runtime"
)

// NewReactor fails with ErrUnsupported naming the running platform.
func NewReactor() (EventReactor, error) {
	return nil, fmt.Errorf("%w: %s/%s", ErrUnsupported, runtime.GOOS, runtime.GOARCH)
}
