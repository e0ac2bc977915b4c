// File: internal/concurrency/cpu.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Processor count used to size the completion worker pool.

package concurrency

import (
	"runtime"

	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
)

// AdjustMaxProcs aligns GOMAXPROCS with the container CPU quota, if any.
// The returned function restores the previous value.
func AdjustMaxProcs(log *zap.Logger) (func(), error) {
	sugar := log.Sugar()
	return maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		sugar.Debugf(format, args...)
	}))
}

// ProcessorCount returns the number of cores the scheduler may run on.
func ProcessorCount() int {
	if n := runtime.GOMAXPROCS(0); n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// Workers resolves a configured worker count; zero or less means one per core.
func Workers(configured int) int {
	if configured > 0 {
		return configured
	}
	return ProcessorCount()
}
