// File: socket/client.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connection-oriented client. Transfers and shutdown need a remote endpoint,
// which connect or accept set and shutdown clears.

package socket

import (
	"sync/atomic"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/endpoint"
	"github.com/momentics/hioload-net/native"
)

// Client is a connection-oriented socket.
type Client struct {
	core
	remote atomic.Pointer[endpoint.Endpoint]
}

var _ Socket = (*Client)(nil)

// NewClient opens a client socket for cfg.
func (rt *Runtime) NewClient(cfg *endpoint.Configuration) (*Client, error) {
	desc, err := rt.createDescriptor(cfg)
	if err != nil {
		return nil, err
	}
	c := &Client{core: core{rt: rt, cfg: cfg, desc: desc}}
	own(rt, c, desc)
	return c, nil
}

// RemoteEndpoint returns the peer of a connected client.
func (c *Client) RemoteEndpoint() (*endpoint.Endpoint, bool) {
	ep := c.remote.Load()
	return ep, ep != nil
}

// Connected reports whether the client has a remote endpoint.
func (c *Client) Connected() bool { return c.remote.Load() != nil }

func (c *Client) notConnected() error {
	if c.Connected() {
		return nil
	}
	return &api.NotConnectedError{Code: int(c.rt.endpoints.Errors.NotConnected.Code())}
}

// TryConnect connects to ep, binding first if needed.
func (c *Client) TryConnect(ep *endpoint.Endpoint) error {
	if ep == nil {
		return &api.ArgumentError{Name: "endpoint"}
	}
	if err := c.ensureBound(); err != nil {
		return err
	}
	if code := c.rt.lib.Connect(c.desc, ep.Pointer(), ep.Size()); code != native.OK {
		return native.Error(c.rt.lib, code)
	}
	c.remote.Store(ep)
	return nil
}

// BeginConnect submits a connect. The future resolves to false on failure.
func (c *Client) BeginConnect(ep *endpoint.Endpoint, onResult ConnectCallback, onError ErrorCallback) *api.Future[bool] {
	if ep == nil {
		return rejected(c, false, &api.ArgumentError{Name: "endpoint"}, onError)
	}
	if err := c.ensureBound(); err != nil {
		return rejected(c, false, err, onError)
	}
	rt := c.rt
	future := api.NewFuture[bool]()
	ctx := rt.connects.Acquire(rt.newConnectContext)
	ctx.hydrate(c, ep, onResult, onError, future)
	cfg := c.cfg.Pointer()
	rt.submit(&ctx.opContext, func(h, p uintptr) { rt.lib.BeginConnect(h, cfg, p) })
	return future
}

// TryShutdown shuts the connection down; the client stays bound.
func (c *Client) TryShutdown() error {
	if err := c.notConnected(); err != nil {
		return err
	}
	if code := c.rt.lib.Shutdown(c.desc); code != native.OK {
		return native.Error(c.rt.lib, code)
	}
	c.remote.Store(nil)
	return nil
}

// BeginShutdown submits a shutdown. The future resolves to false on failure.
func (c *Client) BeginShutdown(onResult ShutdownCallback, onError ErrorCallback) *api.Future[bool] {
	if err := c.notConnected(); err != nil {
		return rejected(c, false, err, onError)
	}
	rt := c.rt
	future := api.NewFuture[bool]()
	ctx := rt.shutdowns.Acquire(rt.newShutdownContext)
	ctx.hydrate(c, onResult, onError, future)
	cfg := c.cfg.Pointer()
	rt.submit(&ctx.opContext, func(h, p uintptr) { rt.lib.BeginShutdown(h, cfg, p) })
	return future
}

// TrySend sends the first length bytes of buf.
func (c *Client) TrySend(buf []byte, length, flags int) (int, error) {
	if err := c.notConnected(); err != nil {
		return 0, err
	}
	if err := checkBuffer(buf, length); err != nil {
		return 0, err
	}
	s := c.rt.buffers.acquire(length)
	defer c.rt.buffers.release(s)
	copy(s.mem, buf[:length])
	n, code := c.rt.lib.Send(c.desc, s.ptr, length, flags)
	if code != native.OK {
		return 0, native.Error(c.rt.lib, code)
	}
	return n, nil
}

// TrySendByte sends a single byte.
func (c *Client) TrySendByte(b byte, flags int) error {
	_, err := c.TrySend([]byte{b}, 1, flags)
	return err
}

// TryReceive receives up to length bytes into buf.
func (c *Client) TryReceive(buf []byte, length, flags int) (int, error) {
	if err := c.notConnected(); err != nil {
		return 0, err
	}
	if err := checkBuffer(buf, length); err != nil {
		return 0, err
	}
	s := c.rt.buffers.acquire(length)
	defer c.rt.buffers.release(s)
	n, code := c.rt.lib.Receive(c.desc, s.ptr, length, flags)
	if code != native.OK {
		return 0, native.Error(c.rt.lib, code)
	}
	return copy(buf, s.mem[:n]), nil
}

// TryReceiveByte receives a single byte.
func (c *Client) TryReceiveByte(flags int) (byte, error) {
	var b [1]byte
	if _, err := c.TryReceive(b[:], 1, flags); err != nil {
		return 0, err
	}
	return b[0], nil
}

// BeginSend submits a send of the first length bytes of buf. The future
// resolves to the bytes sent, or -1 on failure.
func (c *Client) BeginSend(buf []byte, length, flags int, onResult TransferCallback, onError ErrorCallback) *api.Future[int] {
	return c.beginTransfer(buf, length, flags, false, onResult, onError)
}

// BeginReceive submits a receive into buf. The future resolves to the bytes
// received, or -1 on failure.
func (c *Client) BeginReceive(buf []byte, length, flags int, onResult TransferCallback, onError ErrorCallback) *api.Future[int] {
	return c.beginTransfer(buf, length, flags, true, onResult, onError)
}

func (c *Client) beginTransfer(buf []byte, length, flags int, receive bool, onResult TransferCallback, onError ErrorCallback) *api.Future[int] {
	if err := c.notConnected(); err != nil {
		return rejected(c, -1, err, onError)
	}
	if err := checkBuffer(buf, length); err != nil {
		return rejected(c, -1, err, onError)
	}
	rt := c.rt
	s := rt.buffers.acquire(length)
	begin := rt.lib.BeginReceive
	if !receive {
		copy(s.mem, buf[:length])
		begin = rt.lib.BeginSend
	}
	future := api.NewFuture[int]()
	ctx := rt.clients.Acquire(rt.newClientContext)
	ctx.hydrate(c, transfer{
		buf:      buf,
		scratch:  s,
		receive:  receive,
		onResult: onResult,
		onError:  onError,
		future:   future,
	}, length, flags)
	rt.submit(&ctx.opContext, begin)
	return future
}

// TryClose closes the socket and forgets both endpoints.
func (c *Client) TryClose() error {
	if err := c.close(); err != nil {
		return err
	}
	c.remote.Store(nil)
	return nil
}
