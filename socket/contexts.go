// File: socket/contexts.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Operation contexts. Each context owns one native block for its whole life
// and is reused through a pool. A use starts with hydrate, which writes every
// native and managed field, and ends when both the submitter and the
// completion delivery have dropped their reference.

package socket

import (
	"sync/atomic"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/endpoint"
	"github.com/momentics/hioload-net/native"
)

// opContext is the part shared by every context kind. It implements
// engine.Completion.
type opContext struct {
	rt     *Runtime
	ptr    uintptr
	mem    []byte
	layout native.Layout

	refs    atomic.Int32
	claimed atomic.Bool

	handler func()
	release func()
}

func (c *opContext) init(rt *Runtime, s native.Struct, handler, release func()) {
	c.rt = rt
	c.layout = rt.lib.Layout(s)
	c.ptr = rt.arena.Alloc(c.layout.Size)
	c.mem = rt.arena.Bytes(c.ptr)
	c.handler = handler
	c.release = release
	rt.engine.Register(c.ptr, c)
}

// arm starts a new use: one reference for the submitter, one for the delivery.
func (c *opContext) arm(desc uintptr) {
	c.refs.Store(2)
	c.claimed.Store(false)
	c.layout.PutUint(c.mem, native.FieldDescriptor, uint64(desc))
	c.layout.PutBool(c.mem, native.FieldCompletedSynchronously, false)
	c.layout.PutBool(c.mem, native.FieldCompletedSuccessfully, false)
	c.layout.PutInt(c.mem, native.FieldErrorCode, 0)
}

func (c *opContext) Claim() bool { return c.claimed.CompareAndSwap(false, true) }

func (c *opContext) Complete() {
	c.rt.metrics.InFlight.Dec()
	c.handler()
}

func (c *opContext) Done() { c.unref() }

func (c *opContext) unref() {
	if c.refs.Add(-1) == 0 {
		c.release()
	}
}

func (c *opContext) synchronous() bool {
	return c.layout.Bool(c.mem, native.FieldCompletedSynchronously)
}

func (c *opContext) succeeded() bool {
	return c.layout.Bool(c.mem, native.FieldCompletedSuccessfully)
}

func (c *opContext) transferred() int {
	return int(c.layout.Int(c.mem, native.FieldBytesTransferred))
}

func (c *opContext) failure() *api.PlatformError {
	return native.Error(c.rt.lib, native.Code(c.layout.Int(c.mem, native.FieldErrorCode)))
}

func (c *opContext) putEndpoint(ep *endpoint.Endpoint) {
	var ptr uintptr
	size := 0
	if ep != nil {
		ptr, size = ep.Pointer(), ep.Size()
	}
	c.layout.PutUint(c.mem, native.FieldEndpoint, uint64(ptr))
	c.layout.PutInt(c.mem, native.FieldEndpointLength, int64(size))
}

func (c *opContext) putBuffer(s *scratch, length, flags int) {
	c.layout.PutUint(c.mem, native.FieldBuffer, uint64(s.ptr))
	c.layout.PutUint(c.mem, native.FieldLength, uint64(length))
	c.layout.PutInt(c.mem, native.FieldFlags, int64(flags))
	c.layout.PutInt(c.mem, native.FieldBytesTransferred, 0)
}

// free drops the native block of a context its pool declined.
func (c *opContext) free() {
	c.rt.engine.Unregister(c.ptr)
	c.rt.arena.Free(c.ptr)
}

// recycle returns a context to its pool, freeing it when declined.
func recycle[C any](p api.Pool[C], c C, base *opContext) {
	if !p.Release(c) {
		base.free()
	}
}

// submit hands a hydrated context to the native layer and runs the
// completion in place when the native layer finished it synchronously.
// Callbacks run after the future is scheduled to resolve, so a panicking
// callback still resolves it and releases the context.
func (rt *Runtime) submit(c *opContext, begin func(handle, ctx uintptr)) {
	defer c.unref()
	rt.metrics.InFlight.Inc()
	begin(rt.engine.Handle(), c.ptr)
	if c.synchronous() && c.Claim() {
		rt.metrics.SyncCompletions.Inc()
		defer c.Done()
		c.Complete()
	}
}

// ConnectContext carries one connect.
type ConnectContext struct {
	opContext
	client   *Client
	endpoint *endpoint.Endpoint
	onResult ConnectCallback
	onError  ErrorCallback
	future   *api.Future[bool]
}

func (rt *Runtime) newConnectContext() *ConnectContext {
	c := &ConnectContext{}
	c.init(rt, native.StructConnectContext, c.complete, func() {
		c.hydrate(nil, nil, nil, nil, nil)
		recycle(rt.connects, c, &c.opContext)
	})
	return c
}

func (c *ConnectContext) hydrate(client *Client, ep *endpoint.Endpoint, onResult ConnectCallback, onError ErrorCallback, future *api.Future[bool]) {
	if client != nil {
		c.arm(client.desc)
	}
	c.client = client
	c.endpoint = ep
	c.onResult = onResult
	c.onError = onError
	c.future = future
	c.putEndpoint(ep)
}

func (c *ConnectContext) complete() {
	client, ep := c.client, c.endpoint
	if c.succeeded() {
		client.remote.Store(ep)
		defer c.future.Resolve(true, nil)
		if c.onResult != nil {
			c.onResult(client, ep)
		}
		return
	}
	err := c.failure()
	defer c.future.Resolve(false, err)
	if c.onError != nil {
		c.onError(client, err)
	}
}

// AcceptContext carries one accept. The client descriptor block is allocated
// before submission and owned by the context until the accept succeeds.
type AcceptContext struct {
	opContext
	listener   *Listener
	clientDesc uintptr
	endpoint   *endpoint.Endpoint
	onResult   AcceptCallback
	onError    ErrorCallback
	future     *api.Future[*Client]
}

func (rt *Runtime) newAcceptContext() *AcceptContext {
	c := &AcceptContext{}
	c.init(rt, native.StructAcceptContext, c.complete, func() {
		c.hydrate(nil, 0, nil, nil, nil, nil)
		recycle(rt.accepts, c, &c.opContext)
	})
	return c
}

func (c *AcceptContext) hydrate(l *Listener, clientDesc uintptr, ep *endpoint.Endpoint, onResult AcceptCallback, onError ErrorCallback, future *api.Future[*Client]) {
	if l != nil {
		c.arm(l.desc)
	}
	c.listener = l
	c.clientDesc = clientDesc
	c.endpoint = ep
	c.onResult = onResult
	c.onError = onError
	c.future = future
	c.layout.PutUint(c.mem, native.FieldRemoteSocket, uint64(clientDesc))
	c.putEndpoint(ep)
}

func (c *AcceptContext) complete() {
	l := c.listener
	if c.succeeded() {
		client := l.adopt(c.clientDesc, c.endpoint)
		defer c.future.Resolve(client, nil)
		if c.onResult != nil {
			c.onResult(l, client)
		}
		return
	}
	c.rt.arena.Free(c.clientDesc)
	err := c.failure()
	defer c.future.Resolve(nil, err)
	if c.onError != nil {
		c.onError(l, err)
	}
}

// ShutdownContext carries one shutdown.
type ShutdownContext struct {
	opContext
	client   *Client
	onResult ShutdownCallback
	onError  ErrorCallback
	future   *api.Future[bool]
}

func (rt *Runtime) newShutdownContext() *ShutdownContext {
	c := &ShutdownContext{}
	c.init(rt, native.StructShutdownContext, c.complete, func() {
		c.hydrate(nil, nil, nil, nil)
		recycle(rt.shutdowns, c, &c.opContext)
	})
	return c
}

func (c *ShutdownContext) hydrate(client *Client, onResult ShutdownCallback, onError ErrorCallback, future *api.Future[bool]) {
	if client != nil {
		c.arm(client.desc)
	}
	c.client = client
	c.onResult = onResult
	c.onError = onError
	c.future = future
}

func (c *ShutdownContext) complete() {
	client := c.client
	if c.succeeded() {
		client.remote.Store(nil)
		defer c.future.Resolve(true, nil)
		if c.onResult != nil {
			c.onResult(client)
		}
		return
	}
	err := c.failure()
	defer c.future.Resolve(false, err)
	if c.onError != nil {
		c.onError(client, err)
	}
}

// transfer is the managed payload shared by client and node transfers.
type transfer struct {
	buf      []byte
	scratch  *scratch
	receive  bool
	onResult TransferCallback
	onError  ErrorCallback
	future   *api.Future[int]
}

// finish copies received bytes out of the scratch buffer and returns it to
// its pool. It reports the byte count visible to the caller.
func (t *transfer) finish(rt *Runtime, ok bool, n int) int {
	if ok && t.receive {
		n = copy(t.buf, t.scratch.mem[:min(n, len(t.scratch.mem))])
	}
	rt.buffers.release(t.scratch)
	t.scratch = nil
	return n
}

func (t *transfer) report(s Socket, remote *endpoint.Endpoint, ok bool, n int, err error) {
	if ok {
		defer t.future.Resolve(n, nil)
		if t.onResult != nil {
			t.onResult(s, remote, t.buf, n)
		}
		return
	}
	defer t.future.Resolve(-1, err)
	if t.onError != nil {
		t.onError(s, err)
	}
}

// ClientContext carries one send or receive on a connected client.
type ClientContext struct {
	opContext
	transfer
	client *Client
}

func (rt *Runtime) newClientContext() *ClientContext {
	c := &ClientContext{}
	c.init(rt, native.StructClientContext, c.complete, func() {
		c.client = nil
		c.transfer = transfer{}
		recycle(rt.clients, c, &c.opContext)
	})
	return c
}

func (c *ClientContext) hydrate(client *Client, t transfer, length, flags int) {
	c.arm(client.desc)
	c.client = client
	c.transfer = t
	c.putBuffer(t.scratch, length, flags)
}

func (c *ClientContext) complete() {
	ok := c.succeeded()
	n := c.finish(c.rt, ok, c.transferred())
	var err error
	if !ok {
		err = c.failure()
	}
	remote, _ := c.client.RemoteEndpoint()
	c.report(c.client, remote, ok, n, err)
}

// NodeContext carries one send-to or receive-from.
type NodeContext struct {
	opContext
	transfer
	node     *Node
	endpoint *endpoint.Endpoint
}

func (rt *Runtime) newNodeContext() *NodeContext {
	c := &NodeContext{}
	c.init(rt, native.StructNodeContext, c.complete, func() {
		c.node = nil
		c.endpoint = nil
		c.transfer = transfer{}
		recycle(rt.nodes, c, &c.opContext)
	})
	return c
}

func (c *NodeContext) hydrate(n *Node, t transfer, length, flags int, ep *endpoint.Endpoint) {
	c.arm(n.desc)
	c.node = n
	c.transfer = t
	c.endpoint = ep
	c.putBuffer(t.scratch, length, flags)
	c.putEndpoint(ep)
}

func (c *NodeContext) complete() {
	ok := c.succeeded()
	n := c.finish(c.rt, ok, c.transferred())
	var err error
	if !ok {
		err = c.failure()
	}
	remote := c.endpoint
	if ep, found := c.rt.endpoints.Lookup(uintptr(c.layout.Uint(c.mem, native.FieldEndpoint))); found {
		remote = ep
	}
	c.report(c.node, remote, ok, n, err)
}
