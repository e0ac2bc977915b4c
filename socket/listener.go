// File: socket/listener.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

import (
	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/endpoint"
	"github.com/momentics/hioload-net/native"
)

// Listener accepts connections and produces connected Clients.
type Listener struct {
	core
}

var _ Socket = (*Listener)(nil)

// NewListener opens a listening socket for cfg.
func (rt *Runtime) NewListener(cfg *endpoint.Configuration) (*Listener, error) {
	desc, err := rt.createDescriptor(cfg)
	if err != nil {
		return nil, err
	}
	l := &Listener{core: core{rt: rt, cfg: cfg, desc: desc}}
	own(rt, l, desc)
	return l, nil
}

// TryListen starts listening, binding first if needed. A backlog of zero or
// less uses the configured default.
func (l *Listener) TryListen(backlog int) error {
	if err := l.ensureBound(); err != nil {
		return err
	}
	if backlog <= 0 {
		backlog = l.rt.cfg.ListenBacklog
	}
	if code := l.rt.lib.Listen(l.desc, backlog); code != native.OK {
		return native.Error(l.rt.lib, code)
	}
	return nil
}

// adopt wraps an accepted descriptor into a connected client.
func (l *Listener) adopt(desc uintptr, remote *endpoint.Endpoint) *Client {
	c := &Client{core: core{rt: l.rt, cfg: l.cfg, desc: desc}}
	c.local.Store(l.local.Load())
	c.remote.Store(remote)
	own(l.rt, c, desc)
	return c
}

// TryAccept waits for one connection.
func (l *Listener) TryAccept() (*Client, error) {
	rt := l.rt
	desc := rt.arena.Alloc(rt.lib.DescriptorSize())
	remote := l.cfg.AllocateEndpoint()
	if code := rt.lib.Accept(l.desc, desc, remote.Pointer(), remote.Size()); code != native.OK {
		rt.arena.Free(desc)
		return nil, native.Error(rt.lib, code)
	}
	return l.adopt(desc, remote), nil
}

// BeginAccept submits an accept. The future resolves to nil on failure.
func (l *Listener) BeginAccept(onResult AcceptCallback, onError ErrorCallback) *api.Future[*Client] {
	rt := l.rt
	desc := rt.arena.Alloc(rt.lib.DescriptorSize())
	remote := l.cfg.AllocateEndpoint()
	future := api.NewFuture[*Client]()
	ctx := rt.accepts.Acquire(rt.newAcceptContext)
	ctx.hydrate(l, desc, remote, onResult, onError, future)
	cfg := l.cfg.Pointer()
	rt.submit(&ctx.opContext, func(h, p uintptr) { rt.lib.BeginAccept(h, cfg, p) })
	return future
}

// TryClose closes the listener.
func (l *Listener) TryClose() error { return l.close() }
