// File: socket/socket.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Socket core shared by Client, Listener and Node.

package socket

import (
	"runtime"
	"sync/atomic"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/endpoint"
	"github.com/momentics/hioload-net/native"
)

// Socket is the behaviour every socket kind shares.
type Socket interface {
	Configuration() *endpoint.Configuration
	LocalEndpoint() (*endpoint.Endpoint, bool)
	Bound() bool
	TryBind(ep *endpoint.Endpoint) error
	TryBindAny() error
	TryClose() error
}

// ErrorCallback receives the failure of an asynchronous operation.
type ErrorCallback func(s Socket, err error)

// ConnectCallback runs after a successful BeginConnect.
type ConnectCallback func(c *Client, remote *endpoint.Endpoint)

// ShutdownCallback runs after a successful BeginShutdown.
type ShutdownCallback func(c *Client)

// AcceptCallback runs with each client accepted by BeginAccept.
type AcceptCallback func(l *Listener, c *Client)

// TransferCallback runs after a successful send or receive. buf holds the
// caller's buffer and n the bytes transferred.
type TransferCallback func(s Socket, remote *endpoint.Endpoint, buf []byte, n int)

type core struct {
	rt    *Runtime
	cfg   *endpoint.Configuration
	desc  uintptr
	local atomic.Pointer[endpoint.Endpoint]
}

// createDescriptor allocates a descriptor block, opens the socket and
// registers it with the completion handle. The block is freed on failure.
func (rt *Runtime) createDescriptor(cfg *endpoint.Configuration) (uintptr, error) {
	if cfg == nil {
		return 0, &api.ArgumentError{Name: "configuration"}
	}
	if rt.closed.Load() {
		return 0, api.ErrClosed
	}
	desc := rt.arena.Alloc(rt.lib.DescriptorSize())
	if code := rt.lib.CreateSocket(desc, cfg.Pointer()); code != native.OK {
		rt.arena.Free(desc)
		return 0, native.Error(rt.lib, code)
	}
	if code := rt.lib.PrepareForAsync(desc, rt.engine.Handle()); code != native.OK {
		err := native.Error(rt.lib, code)
		if code := rt.lib.Close(desc); code != native.OK {
			err = api.CombinePlatform(err, native.Error(rt.lib, code))
		}
		rt.arena.Free(desc)
		return 0, err
	}
	return desc, nil
}

// own closes and frees the descriptor once the owning wrapper is collected.
func own[T any](rt *Runtime, owner *T, desc uintptr) {
	lib, arena := rt.lib, rt.arena
	runtime.AddCleanup(owner, func(desc uintptr) {
		lib.Close(desc)
		arena.Free(desc)
	}, desc)
}

// Configuration returns the socket's immutable configuration.
func (s *core) Configuration() *endpoint.Configuration { return s.cfg }

// Descriptor returns the native descriptor block address.
func (s *core) Descriptor() uintptr { return s.desc }

// LocalEndpoint returns the endpoint the socket is bound to.
func (s *core) LocalEndpoint() (*endpoint.Endpoint, bool) {
	ep := s.local.Load()
	return ep, ep != nil
}

// Bound reports whether the socket has a local endpoint.
func (s *core) Bound() bool { return s.local.Load() != nil }

// TryBind binds to ep. The native layer rewrites ep with the address actually
// bound, so a zero port reads back as the assigned one.
func (s *core) TryBind(ep *endpoint.Endpoint) error {
	if ep == nil {
		return &api.ArgumentError{Name: "endpoint"}
	}
	if code := s.rt.lib.Bind(s.desc, ep.Pointer(), ep.Size()); code != native.OK {
		return native.Error(s.rt.lib, code)
	}
	s.local.Store(ep)
	return nil
}

// TryBindAny binds to the any address of the configuration's family on an
// ephemeral port.
func (s *core) TryBindAny() error {
	return s.TryBind(s.cfg.AllocateEndpoint())
}

func (s *core) ensureBound() error {
	if s.Bound() {
		return nil
	}
	return s.TryBindAny()
}

func (s *core) close() error {
	if code := s.rt.lib.Close(s.desc); code != native.OK {
		return native.Error(s.rt.lib, code)
	}
	s.local.Store(nil)
	return nil
}

// checkBuffer validates a caller buffer before any native call.
func checkBuffer(buf []byte, length int) error {
	if buf == nil {
		return &api.ArgumentError{Name: "buffer"}
	}
	if length < 0 || length > len(buf) {
		return &api.ArgumentError{Name: "length"}
	}
	return nil
}

// rejected reports a failed precondition of an asynchronous operation.
func rejected[T any](s Socket, sentinel T, err error, onError ErrorCallback) *api.Future[T] {
	if onError != nil {
		onError(s, err)
	}
	return api.Resolved(sentinel, err)
}
