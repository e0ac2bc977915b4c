// File: api/pool.go
// Author: momentics <momentics@gmail.com>
//
// Pool contracts for operation contexts, completion batches and scratch buffers.

package api

// Pool recycles instances of one type. Acquire calls missing when the pool
// is empty. Release reports false when the pool declined the item, in which
// case the caller still owns it.
type Pool[T any] interface {
	Acquire(missing func() T) T
	Release(item T) bool
	IsThreadSafe() bool
}

// KeyedPool is a family of pools selected by key.
type KeyedPool[K comparable, V any] interface {
	Acquire(key K, missing func(K) V) V
	Release(key K, item V) bool
	IsThreadSafe() bool
}
