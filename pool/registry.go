// File: pool/registry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-type pool selection. Pools offered for a type are considered once, at
// the first GetOrAdd for that type; the first thread-safe candidate wins.

package pool

import (
	"reflect"
	"sync"

	"github.com/momentics/hioload-net/api"
)

// Registry maps item types to the pool serving them.
type Registry struct {
	mu       sync.Mutex
	offered  map[reflect.Type][]any
	selected sync.Map // reflect.Type -> pool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{offered: make(map[reflect.Type][]any)}
}

func plainKey[T any]() reflect.Type { return reflect.TypeFor[api.Pool[T]]() }

func keyedKey[K comparable, V any]() reflect.Type { return reflect.TypeFor[api.KeyedPool[K, V]]() }

// Offer registers a candidate pool for items of type T.
func Offer[T any](r *Registry, p api.Pool[T]) {
	r.offer(plainKey[T](), p)
}

// OfferKeyed registers a candidate keyed pool.
func OfferKeyed[K comparable, V any](r *Registry, p api.KeyedPool[K, V]) {
	r.offer(keyedKey[K, V](), p)
}

func (r *Registry) offer(key reflect.Type, p any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offered[key] = append(r.offered[key], p)
}

// GetOrAdd returns the pool selected for T, choosing it on first use. When no
// offered candidate is thread-safe, missing builds one; a nil missing yields
// a Concurrent pool.
func GetOrAdd[T any](r *Registry, missing func() api.Pool[T]) api.Pool[T] {
	key := plainKey[T]()
	p := r.getOrAdd(key, func(candidates []any) any {
		for _, c := range candidates {
			if pool := c.(api.Pool[T]); pool.IsThreadSafe() {
				return pool
			}
		}
		if missing != nil {
			return missing()
		}
		return NewConcurrent[T](DefaultCapacity)
	})
	return p.(api.Pool[T])
}

// GetOrAddKeyed is GetOrAdd for keyed pools; the fallback is a Keyed pool.
func GetOrAddKeyed[K comparable, V any](r *Registry, missing func() api.KeyedPool[K, V]) api.KeyedPool[K, V] {
	key := keyedKey[K, V]()
	p := r.getOrAdd(key, func(candidates []any) any {
		for _, c := range candidates {
			if pool := c.(api.KeyedPool[K, V]); pool.IsThreadSafe() {
				return pool
			}
		}
		if missing != nil {
			return missing()
		}
		return NewKeyed[K, V](DefaultCapacity)
	})
	return p.(api.KeyedPool[K, V])
}

func (r *Registry) getOrAdd(key reflect.Type, choose func([]any) any) any {
	if p, ok := r.selected.Load(key); ok {
		return p
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.selected.Load(key); ok {
		return p
	}
	p := choose(r.offered[key])
	r.selected.Store(key, p)
	return p
}
