// Package api
// Author: momentics@gmail.com
//
// Generic result and the one-shot future resolved by operation completions.

package api

import (
	"context"
	"sync/atomic"
)

// Result wraps any payload or error.
type Result[T any] struct {
	Value T
	Err   error
}

// Future is a single-assignment result. The first Resolve wins; later calls
// are ignored and report false.
type Future[T any] struct {
	done     chan struct{}
	resolved atomic.Bool
	result   Result[T]
}

// NewFuture returns an unresolved future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a future already holding value and err.
func Resolved[T any](value T, err error) *Future[T] {
	f := NewFuture[T]()
	f.Resolve(value, err)
	return f
}

// Resolve stores the outcome and releases waiters.
func (f *Future[T]) Resolve(value T, err error) bool {
	if !f.resolved.CompareAndSwap(false, true) {
		return false
	}
	f.result = Result[T]{Value: value, Err: err}
	close(f.done)
	return true
}

// Done is closed once the future resolves.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// IsResolved reports whether the outcome is available.
func (f *Future[T]) IsResolved() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future resolves or ctx ends.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.result.Value, f.result.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the outcome; it must only be called after Done is closed.
func (f *Future[T]) Result() Result[T] {
	<-f.done
	return f.result
}
