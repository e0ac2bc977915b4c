//go:build !linux

// File: internal/concurrency/pin_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"errors"
	"runtime"
)

var errPinUnsupported = errors.New("concurrency: thread pinning is not supported on " + runtime.GOOS)

// AllowedCPUs lists every logical CPU.
func AllowedCPUs() ([]int, error) {
	cpus := make([]int, runtime.NumCPU())
	for i := range cpus {
		cpus[i] = i
	}
	return cpus, nil
}

// PinCurrentThread is not available here; the thread is left unlocked.
func PinCurrentThread(slot int) (func(), error) {
	return func() {}, errPinUnsupported
}
