// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral readiness reactor interface used by the native socket layer.

package reactor

import "errors"

var (
	// ErrClosed is returned by operations on a closed reactor.
	ErrClosed = errors.New("reactor: closed")
	// ErrUnsupported is returned by NewReactor where no readiness API is wired.
	ErrUnsupported = errors.New("reactor: no readiness API on this platform")
)

// EventReactor multiplexes readiness of many descriptors. It is safe for
// concurrent use; Wait may be called from several goroutines at once.
type EventReactor interface {
	// Register adds fd for edge-triggered read and write readiness.
	Register(fd int) error

	// Unregister removes fd. Closing fd removes it implicitly.
	Unregister(fd int) error

	// Wait blocks until events are available and writes them into events.
	// A wake-up may return zero events.
	Wait(events []Event) (n int, err error)

	// Wake makes one blocked Wait return.
	Wake() error

	// Close releases the reactor. No Wait may be in progress.
	Close() error
}

// Event is the readiness of one descriptor.
type Event struct {
	Fd       int
	Readable bool
	Writable bool
	Errored  bool
}
