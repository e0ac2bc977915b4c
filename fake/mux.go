// Package fake
// Author: momentics <momentics@gmail.com>
//
// Completion handles and asynchronous submissions of the fake library.

package fake

import (
	"encoding/binary"
	"net/netip"

	"github.com/momentics/hioload-net/native"
)

const entrySize = 8

func (h *handle) post(ctxs ...uintptr) {
	h.mu.Lock()
	h.ready = append(h.ready, ctxs...)
	h.mu.Unlock()
	h.wake()
}

func (h *handle) wake() {
	select {
	case h.signal <- struct{}{}:
	default:
	}
}

func (l *Library) CreateHandle(concurrency int) (uintptr, native.Code) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if code := l.call(OpCreateHandle); code != native.OK {
		return 0, code
	}
	ptr := l.arena.Alloc(entrySize)
	l.handles[ptr] = &handle{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	return ptr, native.OK
}

func (l *Library) CloseHandle(h uintptr) native.Code {
	l.mu.Lock()
	defer l.mu.Unlock()
	if code := l.call(OpCloseHandle); code != native.OK {
		return code
	}
	hd, ok := l.handles[h]
	if !ok {
		return EBADF
	}
	delete(l.handles, h)
	hd.mu.Lock()
	hd.closed = true
	hd.mu.Unlock()
	close(hd.done)
	return native.OK
}

func (l *Library) AllocateEntries(n int) uintptr { return l.arena.Alloc(n * entrySize) }

func (l *Library) FreeEntries(entries uintptr) { l.arena.Free(entries) }

// WaitCompletions hands out queued contexts first and reports EBADF once the
// handle is closed and drained.
func (l *Library) WaitCompletions(h, entries uintptr, contexts []uintptr) (int, native.Code) {
	l.mu.Lock()
	code := l.call(OpWaitCompletions)
	hd := l.handles[h]
	l.mu.Unlock()
	if code != native.OK {
		return 0, code
	}
	if hd == nil {
		return 0, EBADF
	}
	buf := l.arena.Bytes(entries)
	if buf == nil {
		return 0, efault
	}
	for {
		hd.mu.Lock()
		if n := min(len(hd.ready), len(contexts), len(buf)/entrySize); n > 0 {
			for i := 0; i < n; i++ {
				binary.NativeEndian.PutUint64(buf[i*entrySize:], uint64(hd.ready[i]))
			}
			hd.ready = append(hd.ready[:0], hd.ready[n:]...)
			more := len(hd.ready) > 0
			hd.mu.Unlock()
			if more {
				hd.wake()
			}
			for i := 0; i < n; i++ {
				contexts[i] = uintptr(binary.NativeEndian.Uint64(buf[i*entrySize:]))
			}
			return n, native.OK
		}
		closed := hd.closed
		hd.mu.Unlock()
		if closed {
			return 0, EBADF
		}
		select {
		case <-hd.signal:
		case <-hd.done:
		}
	}
}

func (l *Library) BeginConnect(h, cfg, ctx uintptr)  { l.submit(h, ctx, OpBeginConnect) }
func (l *Library) BeginShutdown(h, cfg, ctx uintptr) { l.submit(h, ctx, OpBeginShutdown) }
func (l *Library) BeginAccept(h, cfg, ctx uintptr)   { l.submit(h, ctx, OpBeginAccept) }
func (l *Library) BeginSend(h, ctx uintptr)          { l.submit(h, ctx, OpBeginSend) }
func (l *Library) BeginReceive(h, ctx uintptr)       { l.submit(h, ctx, OpBeginReceive) }
func (l *Library) BeginSendTo(h, ctx uintptr)        { l.submit(h, ctx, OpBeginSendTo) }
func (l *Library) BeginReceiveFrom(h, ctx uintptr)   { l.submit(h, ctx, OpBeginReceiveFrom) }

func complete(b []byte, lay native.Layout, code native.Code, n int) {
	if b == nil {
		return
	}
	lay.PutBool(b, native.FieldCompletedSuccessfully, code == native.OK)
	lay.PutInt(b, native.FieldErrorCode, int64(code))
	lay.PutInt(b, native.FieldBytesTransferred, int64(n))
}

func (l *Library) submit(h, ctx uintptr, op Op) {
	b := l.arena.Bytes(ctx)
	if b == nil {
		return
	}
	lay := l.layouts[layoutOf(op)]

	l.mu.Lock()
	lay.PutBool(b, native.FieldCompletedSynchronously, false)
	if code := l.call(op); code != native.OK {
		complete(b, lay, code, 0)
		lay.PutBool(b, native.FieldCompletedSynchronously, true)
		l.mu.Unlock()
		return
	}
	if l.manual {
		l.mu.Unlock()
		l.submissions <- Submission{Op: op, Handle: h, Context: ctx}
		return
	}

	p := pending{op: op, handle: h, ctx: ctx}
	var (
		n     int
		ready = true
	)
	s, code := l.socket(uintptr(lay.Uint(b, native.FieldDescriptor)))
	if code == native.OK {
		if isRead(op) && len(s.readers) > 0 {
			ready = false
		} else {
			code, n, ready = l.attempt(s, p, b, lay)
		}
	}
	if !ready {
		s.readers = append(s.readers, p)
		l.mu.Unlock()
		return
	}
	complete(b, lay, code, n)
	if l.deferred {
		if hd := l.handles[h]; hd != nil {
			l.mu.Unlock()
			hd.post(ctx)
			return
		}
	}
	lay.PutBool(b, native.FieldCompletedSynchronously, true)
	l.mu.Unlock()
}

func isRead(op Op) bool {
	return op == OpBeginAccept || op == OpBeginReceive || op == OpBeginReceiveFrom
}

// attempt runs p once. ready=false means it has to wait for data.
// Called with l.mu held.
func (l *Library) attempt(s *socket, p pending, b []byte, lay native.Layout) (code native.Code, n int, ready bool) {
	desc := uintptr(lay.Uint(b, native.FieldDescriptor))
	switch p.op {
	case OpBeginConnect:
		return l.connect(desc, uintptr(lay.Uint(b, native.FieldEndpoint)), int(lay.Int(b, native.FieldEndpointLength))), 0, true
	case OpBeginShutdown:
		return l.shutdown(desc), 0, true
	case OpBeginAccept:
		code := l.accept(s, uintptr(lay.Uint(b, native.FieldRemoteSocket)), uintptr(lay.Uint(b, native.FieldEndpoint)))
		return code, 0, code != EAGAIN
	}

	buf := l.buffer(b, lay)
	if buf == nil {
		return efault, 0, true
	}
	switch p.op {
	case OpBeginSend:
		n, code = l.send(s, buf)
	case OpBeginSendTo:
		ap, _, code := l.readEndpoint(uintptr(lay.Uint(b, native.FieldEndpoint)), int(lay.Int(b, native.FieldEndpointLength)))
		if code != native.OK {
			return code, 0, true
		}
		n, code = l.sendTo(s, buf, ap)
		return code, n, true
	case OpBeginReceive:
		n, _, code = l.receive(s, buf)
	case OpBeginReceiveFrom:
		var from netip.AddrPort
		n, from, code = l.receive(s, buf)
		if code == native.OK && from.IsValid() {
			code = l.writeEndpoint(uintptr(lay.Uint(b, native.FieldEndpoint)), from)
		}
	}
	if code == EAGAIN {
		return native.OK, 0, false
	}
	return code, n, true
}

// serve completes queued readers of s that no longer have to wait.
// Called with l.mu held.
func (l *Library) serve(s *socket) {
	for len(s.readers) > 0 {
		p := s.readers[0]
		b := l.arena.Bytes(p.ctx)
		if b == nil {
			s.readers = s.readers[1:]
			continue
		}
		code, n, ready := l.attempt(s, p, b, l.layouts[layoutOf(p.op)])
		if !ready {
			return
		}
		s.readers = s.readers[1:]
		l.finish(p, code, n)
	}
}

func (l *Library) finish(p pending, code native.Code, n int) {
	complete(l.arena.Bytes(p.ctx), l.layouts[layoutOf(p.op)], code, n)
	if hd := l.handles[p.handle]; hd != nil {
		hd.post(p.ctx)
	}
}

func (l *Library) ParseIPv4(text string, ep uintptr) (bool, native.Code) {
	return l.parse(text, ep, native.StructIPv4Endpoint, netip.Addr.Is4)
}

func (l *Library) ParseIPv6(text string, ep uintptr) (bool, native.Code) {
	return l.parse(text, ep, native.StructIPv6Endpoint, netip.Addr.Is6)
}

func (l *Library) parse(text string, ep uintptr, st native.Struct, want func(netip.Addr) bool) (bool, native.Code) {
	b := l.arena.Bytes(ep)
	if b == nil {
		return false, efault
	}
	addr, err := netip.ParseAddr(text)
	if err != nil || !want(addr) {
		return false, native.OK
	}
	copy(l.layouts[st].Raw(b, native.FieldAddress), addr.WithZone("").AsSlice())
	return true, native.OK
}
