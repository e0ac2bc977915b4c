// File: socket/node.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connectionless socket. Every transfer names its peer and binds the node on
// first use.

package socket

import (
	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/endpoint"
	"github.com/momentics/hioload-net/native"
)

// Node is a connectionless socket.
type Node struct {
	core
}

var _ Socket = (*Node)(nil)

// NewNode opens a connectionless socket for cfg.
func (rt *Runtime) NewNode(cfg *endpoint.Configuration) (*Node, error) {
	desc, err := rt.createDescriptor(cfg)
	if err != nil {
		return nil, err
	}
	n := &Node{core: core{rt: rt, cfg: cfg, desc: desc}}
	own(rt, n, desc)
	return n, nil
}

// TrySendTo sends the first length bytes of buf to remote.
func (n *Node) TrySendTo(buf []byte, length, flags int, remote *endpoint.Endpoint) (int, error) {
	if err := checkBuffer(buf, length); err != nil {
		return 0, err
	}
	if remote == nil {
		return 0, &api.ArgumentError{Name: "endpoint"}
	}
	if err := n.ensureBound(); err != nil {
		return 0, err
	}
	rt := n.rt
	s := rt.buffers.acquire(length)
	defer rt.buffers.release(s)
	copy(s.mem, buf[:length])
	sent, code := rt.lib.SendTo(n.desc, s.ptr, length, flags, remote.Pointer(), remote.Size())
	if code != native.OK {
		return 0, native.Error(rt.lib, code)
	}
	return sent, nil
}

// TrySendByteTo sends a single byte to remote.
func (n *Node) TrySendByteTo(b byte, flags int, remote *endpoint.Endpoint) error {
	_, err := n.TrySendTo([]byte{b}, 1, flags, remote)
	return err
}

// TryReceiveFrom receives one datagram into buf and reports its sender.
func (n *Node) TryReceiveFrom(buf []byte, length, flags int) (int, *endpoint.Endpoint, error) {
	if err := checkBuffer(buf, length); err != nil {
		return 0, nil, err
	}
	if err := n.ensureBound(); err != nil {
		return 0, nil, err
	}
	rt := n.rt
	remote := n.cfg.AllocateEndpoint()
	s := rt.buffers.acquire(length)
	defer rt.buffers.release(s)
	got, code := rt.lib.ReceiveFrom(n.desc, s.ptr, length, flags, remote.Pointer(), remote.Size())
	if code != native.OK {
		return 0, nil, native.Error(rt.lib, code)
	}
	return copy(buf, s.mem[:got]), remote, nil
}

// TryReceiveByteFrom receives a single byte and reports its sender.
func (n *Node) TryReceiveByteFrom(flags int) (byte, *endpoint.Endpoint, error) {
	var b [1]byte
	_, remote, err := n.TryReceiveFrom(b[:], 1, flags)
	return b[0], remote, err
}

// BeginSendTo submits a send of the first length bytes of buf to remote. The
// future resolves to the bytes sent, or -1 on failure.
func (n *Node) BeginSendTo(buf []byte, length, flags int, remote *endpoint.Endpoint, onResult TransferCallback, onError ErrorCallback) *api.Future[int] {
	if remote == nil {
		return rejected(n, -1, &api.ArgumentError{Name: "endpoint"}, onError)
	}
	return n.beginTransfer(buf, length, flags, remote, false, onResult, onError)
}

// BeginReceiveFrom submits a receive into buf. The transfer callback gets the
// sender. The future resolves to the bytes received, or -1 on failure.
func (n *Node) BeginReceiveFrom(buf []byte, length, flags int, onResult TransferCallback, onError ErrorCallback) *api.Future[int] {
	return n.beginTransfer(buf, length, flags, nil, true, onResult, onError)
}

func (n *Node) beginTransfer(buf []byte, length, flags int, remote *endpoint.Endpoint, receive bool, onResult TransferCallback, onError ErrorCallback) *api.Future[int] {
	if err := checkBuffer(buf, length); err != nil {
		return rejected(n, -1, err, onError)
	}
	if err := n.ensureBound(); err != nil {
		return rejected(n, -1, err, onError)
	}
	rt := n.rt
	s := rt.buffers.acquire(length)
	begin := rt.lib.BeginReceiveFrom
	if receive {
		remote = n.cfg.AllocateEndpoint()
	} else {
		copy(s.mem, buf[:length])
		begin = rt.lib.BeginSendTo
	}
	future := api.NewFuture[int]()
	ctx := rt.nodes.Acquire(rt.newNodeContext)
	ctx.hydrate(n, transfer{
		buf:      buf,
		scratch:  s,
		receive:  receive,
		onResult: onResult,
		onError:  onError,
		future:   future,
	}, length, flags, remote)
	rt.submit(&ctx.opContext, begin)
	return future
}

// TryClose closes the node.
func (n *Node) TryClose() error { return n.close() }
