// File: socket/buffers.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Native scratch buffers for transfers, pooled by power-of-two bucket.

package socket

import (
	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/control"
	"github.com/momentics/hioload-net/native"
	"github.com/momentics/hioload-net/pool"
)

type scratch struct {
	ptr  uintptr
	mem  []byte
	size int
}

type buffers struct {
	arena   *native.Arena
	pool    api.KeyedPool[int, *scratch]
	min     int
	metrics *control.Metrics
}

func newBuffers(arena *native.Arena, p api.KeyedPool[int, *scratch], minBucket int, m *control.Metrics) *buffers {
	return &buffers{arena: arena, pool: p, min: minBucket, metrics: m}
}

// acquire returns a buffer of at least n bytes.
func (b *buffers) acquire(n int) *scratch {
	return b.pool.Acquire(max(pool.Bucket(n), b.min), b.alloc)
}

func (b *buffers) alloc(size int) *scratch {
	b.metrics.BufferMisses.Inc()
	ptr := b.arena.Alloc(size)
	return &scratch{ptr: ptr, mem: b.arena.Bytes(ptr), size: size}
}

func (b *buffers) release(s *scratch) {
	if s == nil {
		return
	}
	if !b.pool.Release(s.size, s) {
		b.arena.Free(s.ptr)
	}
}

// drain frees every idle buffer when the pool supports it.
func (b *buffers) drain() int {
	d, ok := b.pool.(interface {
		Drain(func(int, *scratch))
	})
	if !ok {
		return 0
	}
	freed := 0
	d.Drain(func(_ int, s *scratch) {
		if b.arena.Free(s.ptr) {
			freed++
		}
	})
	return freed
}
