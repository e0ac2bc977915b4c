//go:build !linux

// File: native/default_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package native

import (
	"fmt"

	"github.com/momentics/hioload-net/reactor"
)

// Default reports ErrNotSupported along with the reactor's reason; supply a
// Library explicitly on this platform.
func Default() (Library, error) {
	if _, err := reactor.NewReactor(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotSupported, err)
	}
	return nil, ErrNotSupported
}
