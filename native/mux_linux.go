//go:build linux

// File: native/mux_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Completion multiplexer: readiness from the epoll reactor is turned into
// completed operation contexts. Submissions try the operation first and
// complete in place when it does not have to wait.

package native

import (
	"encoding/binary"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-net/reactor"
)

const maxEventsPerWait = 256

var entrySize = int(unsafe.Sizeof(entryBlock{}))

type opKind uint8

const (
	opConnect opKind = iota
	opConnectWait
	opAccept
	opSend
	opReceive
	opSendTo
	opReceiveFrom
)

func (k opKind) layout() Struct {
	switch k {
	case opConnect, opConnectWait:
		return StructConnectContext
	case opAccept:
		return StructAcceptContext
	case opSend, opReceive:
		return StructClientContext
	default:
		return StructNodeContext
	}
}

func (k opKind) reads() bool {
	return k == opAccept || k == opReceive || k == opReceiveFrom
}

type pendingOp struct {
	kind opKind
	ctx  uintptr
}

// fdState queues the operations waiting for readiness on one descriptor.
type fdState struct {
	fd  int
	mux *mux

	mu      sync.Mutex
	readers []pendingOp
	writers []pendingOp
	closed  bool
}

type mux struct {
	ptr     uintptr
	reactor reactor.EventReactor

	mu       sync.Mutex
	ready    []uintptr
	waiters  int
	closed   bool
	released bool
}

func (l *linuxLibrary) CreateHandle(concurrency int) (uintptr, Code) {
	r, err := reactor.NewReactor()
	if err != nil {
		return 0, errno(err)
	}
	m := &mux{reactor: r, ready: make([]uintptr, 0, 64)}
	m.ptr = l.arena.Alloc(8)
	l.muxes.Store(m.ptr, m)
	return m.ptr, OK
}

func (l *linuxLibrary) CloseHandle(handle uintptr) Code {
	v, ok := l.muxes.Load(handle)
	if !ok {
		return Code(unix.EBADF)
	}
	m := v.(*mux)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Code(unix.EBADF)
	}
	m.closed = true
	if m.waiters == 0 {
		l.release(m)
		return OK
	}
	_ = m.reactor.Wake()
	return OK
}

// release frees the reactor once no waiter is left. Called with m.mu held.
func (l *linuxLibrary) release(m *mux) {
	if m.released {
		return
	}
	m.released = true
	_ = m.reactor.Close()
	l.muxes.Delete(m.ptr)
	l.arena.Free(m.ptr)
}

func (l *linuxLibrary) AllocateEntries(n int) uintptr {
	return l.arena.Alloc(n * entrySize)
}

func (l *linuxLibrary) FreeEntries(entries uintptr) {
	l.arena.Free(entries)
}

func (l *linuxLibrary) WaitCompletions(handle, entries uintptr, contexts []uintptr) (int, Code) {
	v, ok := l.muxes.Load(handle)
	if !ok {
		return 0, Code(unix.EBADF)
	}
	buf := l.arena.Bytes(entries)
	if buf == nil {
		return 0, Code(unix.EFAULT)
	}
	m := v.(*mux)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, Code(unix.EBADF)
	}
	m.waiters++
	m.mu.Unlock()
	defer l.leave(m)

	events := make([]reactor.Event, min(len(contexts), maxEventsPerWait))
	for {
		if n := m.drain(buf, contexts); n > 0 {
			return n, OK
		}
		m.mu.Lock()
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return 0, Code(unix.EBADF)
		}

		k, err := m.reactor.Wait(events)
		if err != nil {
			return 0, errno(err)
		}
		for _, ev := range events[:k] {
			l.process(ev)
		}
	}
}

func (l *linuxLibrary) leave(m *mux) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waiters--
	if !m.closed {
		return
	}
	if m.waiters == 0 {
		l.release(m)
		return
	}
	// pass the shutdown on to the next blocked waiter
	_ = m.reactor.Wake()
}

// drain moves ready contexts through the native entries buffer into contexts.
func (m *mux) drain(entries []byte, contexts []uintptr) int {
	m.mu.Lock()
	n := min(len(m.ready), len(contexts), len(entries)/entrySize)
	for i := 0; i < n; i++ {
		binary.NativeEndian.PutUint64(entries[i*entrySize:], uint64(m.ready[i]))
	}
	m.ready = append(m.ready[:0], m.ready[n:]...)
	m.mu.Unlock()

	for i := 0; i < n; i++ {
		contexts[i] = uintptr(binary.NativeEndian.Uint64(entries[i*entrySize:]))
	}
	return n
}

func (m *mux) post(ctxs []uintptr, wake bool) {
	if len(ctxs) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = append(m.ready, ctxs...)
	if wake && !m.released {
		_ = m.reactor.Wake()
	}
}

func (l *linuxLibrary) BeginConnect(handle, cfg, ctx uintptr) { l.submit(handle, ctx, opConnect) }
func (l *linuxLibrary) BeginAccept(handle, cfg, ctx uintptr)  { l.submit(handle, ctx, opAccept) }
func (l *linuxLibrary) BeginSend(handle, ctx uintptr)         { l.submit(handle, ctx, opSend) }
func (l *linuxLibrary) BeginReceive(handle, ctx uintptr)      { l.submit(handle, ctx, opReceive) }
func (l *linuxLibrary) BeginSendTo(handle, ctx uintptr)       { l.submit(handle, ctx, opSendTo) }
func (l *linuxLibrary) BeginReceiveFrom(handle, ctx uintptr)  { l.submit(handle, ctx, opReceiveFrom) }

// BeginShutdown never waits for readiness.
func (l *linuxLibrary) BeginShutdown(handle, cfg, ctx uintptr) {
	b := l.arena.Bytes(ctx)
	if b == nil {
		return
	}
	lay := l.layouts[StructShutdownContext]
	code := l.Shutdown(uintptr(lay.Uint(b, FieldDescriptor)))
	complete(b, lay, code, 0)
	lay.PutBool(b, FieldCompletedSynchronously, true)
}

func complete(b []byte, lay Layout, code Code, n int) {
	lay.PutBool(b, FieldCompletedSuccessfully, code == OK)
	lay.PutInt(b, FieldErrorCode, int64(code))
	lay.PutInt(b, FieldBytesTransferred, int64(n))
}

func (l *linuxLibrary) submit(handle, ctx uintptr, kind opKind) {
	b := l.arena.Bytes(ctx)
	if b == nil {
		return
	}
	lay := l.layouts[kind.layout()]
	lay.PutBool(b, FieldCompletedSynchronously, false)

	fail := func(code Code) {
		complete(b, lay, code, 0)
		lay.PutBool(b, FieldCompletedSynchronously, true)
	}

	fd, code := l.fd(uintptr(lay.Uint(b, FieldDescriptor)))
	if code != OK {
		fail(code)
		return
	}
	v, ok := l.states.Load(fd)
	if !ok {
		mv, ok := l.muxes.Load(handle)
		if !ok {
			fail(Code(unix.EBADF))
			return
		}
		if code := l.attach(fd, mv.(*mux)); code != OK {
			fail(code)
			return
		}
		v, _ = l.states.Load(fd)
	}
	st := v.(*fdState)

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		fail(Code(unix.EBADF))
		return
	}
	op := pendingOp{kind: kind, ctx: ctx}
	queue := &st.writers
	if kind.reads() {
		queue = &st.readers
	}
	if len(*queue) == 0 && l.attempt(st, &op, b, lay, true) {
		lay.PutBool(b, FieldCompletedSynchronously, true)
		return
	}
	*queue = append(*queue, op)
}

// attempt runs op once without blocking. It reports whether op completed;
// completion results are written into the context block.
func (l *linuxLibrary) attempt(st *fdState, op *pendingOp, b []byte, lay Layout, writable bool) bool {
	fd := st.fd
	switch op.kind {
	case opConnect:
		sa, code := l.sockaddr(uintptr(lay.Uint(b, FieldEndpoint)), int(lay.Int(b, FieldEndpointLength)))
		if code != OK {
			complete(b, lay, code, 0)
			return true
		}
		switch err := unix.Connect(fd, sa); err {
		case nil:
			complete(b, lay, OK, 0)
			return true
		case unix.EINPROGRESS, unix.EINTR, unix.EALREADY:
			op.kind = opConnectWait
			return false
		default:
			complete(b, lay, errno(err), 0)
			return true
		}

	case opConnectWait:
		if !writable {
			return false
		}
		code := connectResult(fd)
		if code == OK {
			// a stale readiness event may predate the handshake
			if _, err := unix.Getpeername(fd); err == unix.ENOTCONN {
				return false
			}
		}
		complete(b, lay, code, 0)
		return true

	case opAccept:
		nfd, sa, err := unix.Accept4(fd, unix.SOCK_CLOEXEC)
		if err == unix.EAGAIN || err == unix.EINTR {
			return false
		}
		if err != nil {
			complete(b, lay, errno(err), 0)
			return true
		}
		client := uintptr(lay.Uint(b, FieldRemoteSocket))
		ep := uintptr(lay.Uint(b, FieldEndpoint))
		if code := l.setFd(client, nfd); code != OK {
			unix.Close(nfd)
			complete(b, lay, code, 0)
			return true
		}
		if ep != 0 {
			if code := l.storeSockaddr(ep, sa); code != OK {
				complete(b, lay, code, 0)
				return true
			}
		}
		complete(b, lay, l.attach(nfd, st.mux), 0)
		return true
	}

	p, code := l.buffer(uintptr(lay.Uint(b, FieldBuffer)), int(lay.Uint(b, FieldLength)))
	if code != OK {
		complete(b, lay, code, 0)
		return true
	}
	flags := int(lay.Int(b, FieldFlags))

	var (
		n   int
		err error
	)
	switch op.kind {
	case opSend:
		n, err = unix.SendmsgN(fd, p, nil, nil, flags|unix.MSG_NOSIGNAL)
	case opReceive:
		n, _, err = unix.Recvfrom(fd, p, flags)
	case opSendTo:
		sa, code := l.sockaddr(uintptr(lay.Uint(b, FieldEndpoint)), int(lay.Int(b, FieldEndpointLength)))
		if code != OK {
			complete(b, lay, code, 0)
			return true
		}
		n, err = unix.SendmsgN(fd, p, nil, sa, flags|unix.MSG_NOSIGNAL)
	case opReceiveFrom:
		var from unix.Sockaddr
		n, from, err = unix.Recvfrom(fd, p, flags)
		if err == nil {
			if code := l.storeSockaddr(uintptr(lay.Uint(b, FieldEndpoint)), from); code != OK {
				complete(b, lay, code, 0)
				return true
			}
		}
	}
	if err == unix.EAGAIN || err == unix.EINTR {
		return false
	}
	if err != nil {
		complete(b, lay, errno(err), 0)
		return true
	}
	complete(b, lay, OK, n)
	return true
}

// process runs the queued operations of the descriptor an event refers to.
func (l *linuxLibrary) process(ev reactor.Event) {
	v, ok := l.states.Load(ev.Fd)
	if !ok {
		return
	}
	st := v.(*fdState)

	var done []uintptr
	st.mu.Lock()
	if ev.Readable || ev.Errored {
		st.readers, done = l.run(st, st.readers, done, ev.Writable || ev.Errored)
	}
	if ev.Writable || ev.Errored {
		st.writers, done = l.run(st, st.writers, done, true)
	}
	st.mu.Unlock()

	st.mux.post(done, false)
}

func (l *linuxLibrary) run(st *fdState, queue []pendingOp, done []uintptr, writable bool) ([]pendingOp, []uintptr) {
	for len(queue) > 0 {
		op := &queue[0]
		b := l.arena.Bytes(op.ctx)
		if b != nil && !l.attempt(st, op, b, l.layouts[op.kind.layout()], writable) {
			break
		}
		done = append(done, op.ctx)
		queue = queue[1:]
	}
	return queue, done
}

// abort fails every queued operation with code and hands them to the multiplexer.
func (st *fdState) abort(l *linuxLibrary, code Code) {
	st.mu.Lock()
	st.closed = true
	pending := append(st.readers, st.writers...)
	st.readers, st.writers = nil, nil
	st.mu.Unlock()

	done := make([]uintptr, 0, len(pending))
	for _, op := range pending {
		if b := l.arena.Bytes(op.ctx); b != nil {
			complete(b, l.layouts[op.kind.layout()], code, 0)
		}
		done = append(done, op.ctx)
	}
	st.mux.post(done, true)
}
