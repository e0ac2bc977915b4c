// File: pool/concurrent.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"sync/atomic"

	"github.com/momentics/hioload-net/internal/concurrency"
)

// DefaultCapacity bounds the number of idle items a Concurrent pool keeps.
const DefaultCapacity = 4096

// Concurrent is a lock-free pool over a bounded queue. Release declines
// items once the queue is full.
type Concurrent[T any] struct {
	queue *concurrency.LockFreeQueue[T]

	created  atomic.Uint64
	reused   atomic.Uint64
	declined atomic.Uint64
}

// NewConcurrent creates a pool keeping up to capacity idle items.
func NewConcurrent[T any](capacity int) *Concurrent[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Concurrent[T]{queue: concurrency.NewLockFreeQueue[T](capacity)}
}

// Acquire pops an idle item or builds one with missing.
func (p *Concurrent[T]) Acquire(missing func() T) T {
	if item, ok := p.queue.Dequeue(); ok {
		p.reused.Add(1)
		return item
	}
	p.created.Add(1)
	return missing()
}

// Release returns item to the pool.
func (p *Concurrent[T]) Release(item T) bool {
	if p.queue.Enqueue(item) {
		return true
	}
	p.declined.Add(1)
	return false
}

// IsThreadSafe is always true.
func (p *Concurrent[T]) IsThreadSafe() bool { return true }

// Idle returns an estimate of the pooled item count.
func (p *Concurrent[T]) Idle() int { return p.queue.Len() }

// Drain empties the pool, passing each idle item to fn.
func (p *Concurrent[T]) Drain(fn func(T)) {
	for {
		item, ok := p.queue.Dequeue()
		if !ok {
			return
		}
		fn(item)
	}
}

// Stats reports how many items were built, reused and declined.
func (p *Concurrent[T]) Stats() Stats {
	return Stats{
		Created:  p.created.Load(),
		Reused:   p.reused.Load(),
		Declined: p.declined.Load(),
	}
}

// Stats are cumulative pool counters.
type Stats struct {
	Created  uint64
	Reused   uint64
	Declined uint64
}
