// File: pool/keyed.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import "sync"

// Keyed holds one Concurrent pool per key, created on first use.
type Keyed[K comparable, V any] struct {
	capacity int
	pools    sync.Map // K -> *Concurrent[V]
}

// NewKeyed creates a keyed pool whose per-key pools keep up to capacity items.
func NewKeyed[K comparable, V any](capacity int) *Keyed[K, V] {
	return &Keyed[K, V]{capacity: capacity}
}

func (k *Keyed[K, V]) pool(key K) *Concurrent[V] {
	if v, ok := k.pools.Load(key); ok {
		return v.(*Concurrent[V])
	}
	v, _ := k.pools.LoadOrStore(key, NewConcurrent[V](k.capacity))
	return v.(*Concurrent[V])
}

// Acquire pops an idle item for key or builds one with missing.
func (k *Keyed[K, V]) Acquire(key K, missing func(K) V) V {
	return k.pool(key).Acquire(func() V { return missing(key) })
}

// Release returns item to the pool for key.
func (k *Keyed[K, V]) Release(key K, item V) bool {
	return k.pool(key).Release(item)
}

// IsThreadSafe is always true.
func (k *Keyed[K, V]) IsThreadSafe() bool { return true }

// Drain empties every per-key pool, passing each idle item to fn.
func (k *Keyed[K, V]) Drain(fn func(K, V)) {
	k.pools.Range(func(key, v any) bool {
		v.(*Concurrent[V]).Drain(func(item V) { fn(key.(K), item) })
		return true
	})
}
