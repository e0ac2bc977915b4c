// File: native/arena.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Arena of native-format memory blocks addressed by pointer value.

package native

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// Arena hands out zeroed fixed-size blocks. A block's address is its
// identity: it stays valid and unique until Free.
type Arena struct {
	blocks sync.Map // uintptr -> []byte
	live   atomic.Int64
	bytes  atomic.Int64
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{}
}

// Alloc returns the address of a new zeroed block of size bytes.
func (a *Arena) Alloc(size int) uintptr {
	if size < 1 {
		size = 1
	}
	b := make([]byte, size)
	ptr := uintptr(unsafe.Pointer(unsafe.SliceData(b)))
	a.blocks.Store(ptr, b)
	a.live.Add(1)
	a.bytes.Add(int64(size))
	return ptr
}

// Free releases a block. Unknown or already freed pointers report false.
func (a *Arena) Free(ptr uintptr) bool {
	v, ok := a.blocks.LoadAndDelete(ptr)
	if !ok {
		return false
	}
	a.live.Add(-1)
	a.bytes.Add(-int64(len(v.([]byte))))
	return true
}

// Bytes returns the block memory, or nil for unknown pointers.
func (a *Arena) Bytes(ptr uintptr) []byte {
	if v, ok := a.blocks.Load(ptr); ok {
		return v.([]byte)
	}
	return nil
}

// Size returns the block length, or zero for unknown pointers.
func (a *Arena) Size(ptr uintptr) int {
	return len(a.Bytes(ptr))
}

// Live returns the number of allocated blocks.
func (a *Arena) Live() int { return int(a.live.Load()) }

// InUse returns the number of allocated bytes.
func (a *Arena) InUse() int64 { return a.bytes.Load() }
