// File: pool/local.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import "github.com/eapache/queue"

// Local is an unbounded FIFO pool for use by a single goroutine, such as a
// caller recycling its own buffers in a receive loop. Registry never selects
// it, because runtime pools are released from completion goroutines; offer a
// thread-safe pool there instead.
type Local[T any] struct {
	items *queue.Queue
}

// NewLocal creates an empty pool.
func NewLocal[T any]() *Local[T] {
	return &Local[T]{items: queue.New()}
}

// Acquire pops the oldest idle item or builds one with missing.
func (p *Local[T]) Acquire(missing func() T) T {
	if p.items.Length() == 0 {
		return missing()
	}
	return p.items.Remove().(T)
}

// Release always accepts the item.
func (p *Local[T]) Release(item T) bool {
	p.items.Add(item)
	return true
}

// IsThreadSafe is always false.
func (p *Local[T]) IsThreadSafe() bool { return false }

// Idle returns the number of pooled items.
func (p *Local[T]) Idle() int { return p.items.Length() }
