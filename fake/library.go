// Package fake
// Author: momentics <momentics@gmail.com>
//
// In-memory native library for testing. Sockets live in a simulated network
// keyed by (family, type, port); operations that cannot complete at once are
// queued and posted to their completion handle when data arrives.

package fake

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/momentics/hioload-net/native"
)

// Op names a library call for failure injection and call counting.
type Op string

const (
	OpStartup          Op = "Startup"
	OpCleanup          Op = "Cleanup"
	OpCreateSocket     Op = "CreateSocket"
	OpPrepareForAsync  Op = "PrepareForAsync"
	OpBind             Op = "Bind"
	OpClose            Op = "Close"
	OpConnect          Op = "Connect"
	OpShutdown         Op = "Shutdown"
	OpListen           Op = "Listen"
	OpAccept           Op = "Accept"
	OpSend             Op = "Send"
	OpReceive          Op = "Receive"
	OpSendTo           Op = "SendTo"
	OpReceiveFrom      Op = "ReceiveFrom"
	OpBeginConnect     Op = "BeginConnect"
	OpBeginShutdown    Op = "BeginShutdown"
	OpBeginAccept      Op = "BeginAccept"
	OpBeginSend        Op = "BeginSend"
	OpBeginReceive     Op = "BeginReceive"
	OpBeginSendTo      Op = "BeginSendTo"
	OpBeginReceiveFrom Op = "BeginReceiveFrom"
	OpCreateHandle     Op = "CreateHandle"
	OpCloseHandle      Op = "CloseHandle"
	OpWaitCompletions  Op = "WaitCompletions"
)

// EAGAIN is returned by synchronous calls that would have to wait.
const EAGAIN native.Code = 11

const (
	eaddrinuse   native.Code = 98
	eafnosupport native.Code = 97
	efault       native.Code = 14

	firstFd   = 100
	firstPort = 40000
)

// Submission is a Begin call captured in manual mode.
type Submission struct {
	Op      Op
	Handle  uintptr
	Context uintptr
}

type bindKey struct {
	family, typ int32
	port        uint16
}

type packet struct {
	data []byte
	from netip.AddrPort
}

type pending struct {
	op     Op
	handle uintptr
	ctx    uintptr
}

type socket struct {
	fd                 int64
	family, typ, proto int32
	handle             uintptr

	local     netip.AddrPort
	bound     bool
	remote    netip.AddrPort
	listening bool

	backlog []*socket
	peer    *socket
	eof     bool
	stream  []byte
	packets []packet
	readers []pending
}

type handle struct {
	mu     sync.Mutex
	ready  []uintptr
	signal chan struct{}
	done   chan struct{}
	closed bool
}

// Library implements native.Library in memory.
type Library struct {
	arena   *native.Arena
	layouts map[native.Struct]native.Layout

	mu       sync.Mutex
	started  int
	nextFd   int64
	nextPort uint16
	sockets  map[int64]*socket
	bound    map[bindKey]*socket
	handles  map[uintptr]*handle
	fails    map[Op][]native.Code
	calls    map[Op]int
	manual   bool
	deferred bool

	submissions chan Submission
}

var _ native.Library = (*Library)(nil)

// New returns an empty simulated network.
func New() *Library {
	return &Library{
		arena:       native.NewArena(),
		layouts:     layouts(),
		nextFd:      firstFd,
		nextPort:    firstPort,
		sockets:     make(map[int64]*socket),
		bound:       make(map[bindKey]*socket),
		handles:     make(map[uintptr]*handle),
		fails:       make(map[Op][]native.Code),
		calls:       make(map[Op]int),
		submissions: make(chan Submission, 1024),
	}
}

// FailNext makes the next call of op fail with code.
func (l *Library) FailNext(op Op, code native.Code) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fails[op] = append(l.fails[op], code)
}

// Calls returns how many times op was invoked.
func (l *Library) Calls(op Op) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[op]
}

// Started returns the Startup count minus the Cleanup count.
func (l *Library) Started() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.started
}

// OpenSockets returns the number of sockets not yet closed.
func (l *Library) OpenSockets() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sockets)
}

// SetManual switches Begin calls to capture mode: nothing is performed and
// each submission is handed to Next.
func (l *Library) SetManual(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.manual = on
}

// SetDeferred makes operations that could complete at once report through
// the completion handle instead of completing in place.
func (l *Library) SetDeferred(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deferred = on
}

// Next returns the next captured submission.
func (l *Library) Next(timeout time.Duration) (Submission, bool) {
	select {
	case s := <-l.submissions:
		return s, true
	case <-time.After(timeout):
		return Submission{}, false
	}
}

// Fill copies data into the buffer of a captured receive context.
func (l *Library) Fill(s Submission, data []byte) int {
	b := l.arena.Bytes(s.Context)
	lay := l.layouts[layoutOf(s.Op)]
	p := l.buffer(b, lay)
	return copy(p, data)
}

// Complete writes a result into a captured context and posts it.
func (l *Library) Complete(s Submission, code native.Code, n int) {
	complete(l.arena.Bytes(s.Context), l.layouts[layoutOf(s.Op)], code, n)
	l.Post(s.Handle, s.Context)
}

// Post delivers ctxs through handle as is. They are queued together, so a
// single wait harvests them in the given order.
func (l *Library) Post(h uintptr, ctxs ...uintptr) {
	l.mu.Lock()
	hd := l.handles[h]
	l.mu.Unlock()
	if hd != nil {
		hd.post(ctxs...)
	}
}

func layoutOf(op Op) native.Struct {
	switch op {
	case OpBeginConnect:
		return native.StructConnectContext
	case OpBeginAccept:
		return native.StructAcceptContext
	case OpBeginShutdown:
		return native.StructShutdownContext
	case OpBeginSend, OpBeginReceive:
		return native.StructClientContext
	}
	return native.StructNodeContext
}

// call counts op and pops an injected failure. Called with l.mu held.
func (l *Library) call(op Op) native.Code {
	l.calls[op]++
	if q := l.fails[op]; len(q) > 0 {
		l.fails[op] = q[1:]
		return q[0]
	}
	return native.OK
}

func (l *Library) Arena() *native.Arena { return l.arena }

func (l *Library) DescriptorSize() int { return descriptorSize }

func (l *Library) Layout(s native.Struct) native.Layout { return l.layouts[s] }

func (l *Library) Constants() native.Constants { return constants() }

func (l *Library) Startup() native.Code {
	l.mu.Lock()
	defer l.mu.Unlock()
	if code := l.call(OpStartup); code != native.OK {
		return code
	}
	l.started++
	return native.OK
}

func (l *Library) Cleanup() native.Code {
	l.mu.Lock()
	defer l.mu.Unlock()
	if code := l.call(OpCleanup); code != native.OK {
		return code
	}
	l.started--
	return native.OK
}

func (l *Library) ErrorMessage(code native.Code) string {
	return fmt.Sprintf("fake error %d", code)
}

func (l *Library) fd(desc uintptr) int64 {
	b := l.arena.Bytes(desc)
	if len(b) < descriptorSize {
		return -1
	}
	return int64(binary.NativeEndian.Uint64(b))
}

func (l *Library) setFd(desc uintptr, fd int64) bool {
	b := l.arena.Bytes(desc)
	if len(b) < descriptorSize {
		return false
	}
	binary.NativeEndian.PutUint64(b, uint64(fd))
	return true
}

// socket resolves desc. Called with l.mu held.
func (l *Library) socket(desc uintptr) (*socket, native.Code) {
	s, ok := l.sockets[l.fd(desc)]
	if !ok {
		return nil, EBADF
	}
	return s, native.OK
}

func (l *Library) buffer(b []byte, lay native.Layout) []byte {
	p := l.arena.Bytes(uintptr(lay.Uint(b, native.FieldBuffer)))
	n := int(lay.Uint(b, native.FieldLength))
	if n > len(p) {
		return nil
	}
	return p[:n]
}

func (l *Library) readEndpoint(ep uintptr, size int) (netip.AddrPort, int32, native.Code) {
	b := l.arena.Bytes(ep)
	if b == nil || size > len(b) {
		return netip.AddrPort{}, 0, efault
	}
	family := int32(l.layouts[native.StructEndpoint].Uint(b, native.FieldFamily))
	switch family {
	case FamilyIPv4:
		lay := l.layouts[native.StructIPv4Endpoint]
		if size < lay.Size {
			return netip.AddrPort{}, 0, EINVAL
		}
		addr := netip.AddrFrom4([4]byte(lay.Raw(b, native.FieldAddress)))
		return netip.AddrPortFrom(addr, uint16(lay.BigEndian(b, native.FieldPort))), family, native.OK
	case FamilyIPv6:
		lay := l.layouts[native.StructIPv6Endpoint]
		if size < lay.Size {
			return netip.AddrPort{}, 0, EINVAL
		}
		addr := netip.AddrFrom16([16]byte(lay.Raw(b, native.FieldAddress)))
		return netip.AddrPortFrom(addr, uint16(lay.BigEndian(b, native.FieldPort))), family, native.OK
	}
	return netip.AddrPort{}, 0, eafnosupport
}

func (l *Library) writeEndpoint(ep uintptr, ap netip.AddrPort) native.Code {
	b := l.arena.Bytes(ep)
	if b == nil {
		return efault
	}
	st, family := native.StructIPv6Endpoint, int32(FamilyIPv6)
	if ap.Addr().Is4() {
		st, family = native.StructIPv4Endpoint, FamilyIPv4
	}
	lay := l.layouts[st]
	if len(b) < lay.Size {
		return EINVAL
	}
	lay.PutUint(b, native.FieldFamily, uint64(family))
	lay.PutBigEndian(b, native.FieldPort, uint32(ap.Port()))
	copy(lay.Raw(b, native.FieldAddress), ap.Addr().AsSlice())
	return native.OK
}

func (l *Library) CreateSocket(desc, cfg uintptr) native.Code {
	l.mu.Lock()
	defer l.mu.Unlock()
	if code := l.call(OpCreateSocket); code != native.OK {
		return code
	}
	b := l.arena.Bytes(cfg)
	if b == nil {
		return efault
	}
	lay := l.layouts[native.StructConfiguration]
	s := &socket{
		family: int32(lay.Uint(b, native.FieldFamily)),
		typ:    int32(lay.Int(b, native.FieldType)),
		proto:  int32(lay.Int(b, native.FieldProtocol)),
	}
	if s.family != FamilyIPv4 && s.family != FamilyIPv6 {
		return eafnosupport
	}
	switch {
	case s.typ == TypeStream && (s.proto == 0 || s.proto == ProtocolTcp):
	case s.typ == TypeDatagram && (s.proto == 0 || s.proto == ProtocolUdp):
	default:
		return EPROTONOSUPPORT
	}
	s.fd = l.nextFd
	if !l.setFd(desc, s.fd) {
		return efault
	}
	l.nextFd++
	l.sockets[s.fd] = s
	return native.OK
}

func (l *Library) PrepareForAsync(desc, h uintptr) native.Code {
	l.mu.Lock()
	defer l.mu.Unlock()
	if code := l.call(OpPrepareForAsync); code != native.OK {
		return code
	}
	s, code := l.socket(desc)
	if code != native.OK {
		return code
	}
	if _, ok := l.handles[h]; !ok {
		return EBADF
	}
	s.handle = h
	return native.OK
}

// bind attaches s to ap, assigning an ephemeral port for port 0.
// Called with l.mu held.
func (l *Library) bind(s *socket, ap netip.AddrPort) native.Code {
	if s.bound {
		return EINVAL
	}
	port := ap.Port()
	if port == 0 {
		for {
			port = l.nextPort
			l.nextPort++
			if _, taken := l.bound[bindKey{s.family, s.typ, port}]; !taken {
				break
			}
		}
	}
	key := bindKey{s.family, s.typ, port}
	if _, taken := l.bound[key]; taken {
		return eaddrinuse
	}
	l.bound[key] = s
	s.local = netip.AddrPortFrom(ap.Addr(), port)
	s.bound = true
	return native.OK
}

func (l *Library) autobind(s *socket) native.Code {
	if s.bound {
		return native.OK
	}
	addr := netip.IPv6Unspecified()
	if s.family == FamilyIPv4 {
		addr = netip.IPv4Unspecified()
	}
	return l.bind(s, netip.AddrPortFrom(addr, 0))
}

func (l *Library) Bind(desc, ep uintptr, size int) native.Code {
	l.mu.Lock()
	defer l.mu.Unlock()
	if code := l.call(OpBind); code != native.OK {
		return code
	}
	s, code := l.socket(desc)
	if code != native.OK {
		return code
	}
	ap, family, code := l.readEndpoint(ep, size)
	if code != native.OK {
		return code
	}
	if family != s.family {
		return EINVAL
	}
	if code := l.bind(s, ap); code != native.OK {
		return code
	}
	return l.writeEndpoint(ep, s.local)
}

func (l *Library) Close(desc uintptr) native.Code {
	l.mu.Lock()
	defer l.mu.Unlock()
	if code := l.call(OpClose); code != native.OK {
		return code
	}
	s, code := l.socket(desc)
	if code != native.OK {
		return code
	}
	delete(l.sockets, s.fd)
	if s.bound && l.bound[bindKey{s.family, s.typ, s.local.Port()}] == s {
		delete(l.bound, bindKey{s.family, s.typ, s.local.Port()})
	}
	for _, p := range s.readers {
		l.finish(p, EBADF, 0)
	}
	s.readers = nil
	if peer := s.peer; peer != nil {
		peer.peer = nil
		peer.eof = true
		l.serve(peer)
	}
	l.setFd(desc, -1)
	return native.OK
}

func (l *Library) Connect(desc, ep uintptr, size int) native.Code {
	l.mu.Lock()
	defer l.mu.Unlock()
	if code := l.call(OpConnect); code != native.OK {
		return code
	}
	return l.connect(desc, ep, size)
}

func (l *Library) connect(desc, ep uintptr, size int) native.Code {
	s, code := l.socket(desc)
	if code != native.OK {
		return code
	}
	ap, family, code := l.readEndpoint(ep, size)
	if code != native.OK {
		return code
	}
	if family != s.family {
		return eafnosupport
	}
	if code := l.autobind(s); code != native.OK {
		return code
	}
	if s.typ == TypeDatagram {
		s.remote = ap
		return native.OK
	}
	if s.peer != nil {
		return EINVAL
	}
	ln, ok := l.bound[bindKey{s.family, s.typ, ap.Port()}]
	if !ok || !ln.listening {
		return ECONNREFUSED
	}
	srv := &socket{
		family: s.family,
		typ:    s.typ,
		proto:  s.proto,
		local:  ln.local,
		remote: s.local,
		bound:  true,
		peer:   s,
	}
	s.peer = srv
	s.remote = ap
	ln.backlog = append(ln.backlog, srv)
	l.serve(ln)
	return native.OK
}

func (l *Library) Shutdown(desc uintptr) native.Code {
	l.mu.Lock()
	defer l.mu.Unlock()
	if code := l.call(OpShutdown); code != native.OK {
		return code
	}
	return l.shutdown(desc)
}

func (l *Library) shutdown(desc uintptr) native.Code {
	s, code := l.socket(desc)
	if code != native.OK {
		return code
	}
	if s.typ == TypeDatagram {
		if !s.remote.IsValid() {
			return ENOTCONN
		}
		s.remote = netip.AddrPort{}
		return native.OK
	}
	if s.peer == nil {
		return ENOTCONN
	}
	peer := s.peer
	s.peer, peer.peer = nil, nil
	s.eof, peer.eof = true, true
	l.serve(s)
	l.serve(peer)
	return native.OK
}

func (l *Library) Listen(desc uintptr, backlog int) native.Code {
	l.mu.Lock()
	defer l.mu.Unlock()
	if code := l.call(OpListen); code != native.OK {
		return code
	}
	s, code := l.socket(desc)
	if code != native.OK {
		return code
	}
	if s.typ != TypeStream || backlog < 0 {
		return EINVAL
	}
	if code := l.autobind(s); code != native.OK {
		return code
	}
	s.listening = true
	return native.OK
}

func (l *Library) Accept(desc, client, ep uintptr, size int) native.Code {
	l.mu.Lock()
	defer l.mu.Unlock()
	if code := l.call(OpAccept); code != native.OK {
		return code
	}
	s, code := l.socket(desc)
	if code != native.OK {
		return code
	}
	return l.accept(s, client, ep)
}

// accept pops one pending connection into client. Called with l.mu held.
func (l *Library) accept(s *socket, client, ep uintptr) native.Code {
	if !s.listening {
		return EINVAL
	}
	if len(s.backlog) == 0 {
		return EAGAIN
	}
	c := s.backlog[0]
	s.backlog = s.backlog[1:]
	c.fd = l.nextFd
	c.handle = s.handle
	if !l.setFd(client, c.fd) {
		return efault
	}
	l.nextFd++
	l.sockets[c.fd] = c
	if ep != 0 {
		return l.writeEndpoint(ep, c.remote)
	}
	return native.OK
}

func (l *Library) Send(desc, buf uintptr, length, flags int) (int, native.Code) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if code := l.call(OpSend); code != native.OK {
		return 0, code
	}
	s, code := l.socket(desc)
	if code != native.OK {
		return 0, code
	}
	p := l.arena.Bytes(buf)
	if length > len(p) {
		return 0, efault
	}
	return l.send(s, p[:length])
}

func (l *Library) send(s *socket, p []byte) (int, native.Code) {
	if s.typ == TypeDatagram {
		if !s.remote.IsValid() {
			return 0, ENOTCONN
		}
		return l.sendTo(s, p, s.remote)
	}
	if s.peer == nil {
		return 0, ENOTCONN
	}
	s.peer.stream = append(s.peer.stream, p...)
	l.serve(s.peer)
	return len(p), native.OK
}

func (l *Library) Receive(desc, buf uintptr, length, flags int) (int, native.Code) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if code := l.call(OpReceive); code != native.OK {
		return 0, code
	}
	s, code := l.socket(desc)
	if code != native.OK {
		return 0, code
	}
	p := l.arena.Bytes(buf)
	if length > len(p) {
		return 0, efault
	}
	n, _, code := l.receive(s, p[:length])
	return n, code
}

// receive reads stream bytes or one datagram. Called with l.mu held.
func (l *Library) receive(s *socket, p []byte) (int, netip.AddrPort, native.Code) {
	if s.typ == TypeDatagram {
		if len(s.packets) == 0 {
			return 0, netip.AddrPort{}, EAGAIN
		}
		pk := s.packets[0]
		s.packets = s.packets[1:]
		return copy(p, pk.data), pk.from, native.OK
	}
	if len(s.stream) == 0 {
		if s.eof {
			return 0, s.remote, native.OK
		}
		if s.peer == nil {
			return 0, netip.AddrPort{}, ENOTCONN
		}
		return 0, netip.AddrPort{}, EAGAIN
	}
	n := copy(p, s.stream)
	s.stream = s.stream[n:]
	return n, s.remote, native.OK
}

func (l *Library) SendTo(desc, buf uintptr, length, flags int, ep uintptr, size int) (int, native.Code) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if code := l.call(OpSendTo); code != native.OK {
		return 0, code
	}
	s, code := l.socket(desc)
	if code != native.OK {
		return 0, code
	}
	p := l.arena.Bytes(buf)
	if length > len(p) {
		return 0, efault
	}
	ap, _, code := l.readEndpoint(ep, size)
	if code != native.OK {
		return 0, code
	}
	return l.sendTo(s, p[:length], ap)
}

// sendTo delivers one datagram. Datagrams for unbound ports are dropped.
func (l *Library) sendTo(s *socket, p []byte, to netip.AddrPort) (int, native.Code) {
	if s.typ != TypeDatagram {
		return l.send(s, p)
	}
	if code := l.autobind(s); code != native.OK {
		return 0, code
	}
	if dst, ok := l.bound[bindKey{s.family, s.typ, to.Port()}]; ok {
		from := s.local
		if from.Addr().IsUnspecified() {
			from = netip.AddrPortFrom(to.Addr(), from.Port())
		}
		dst.packets = append(dst.packets, packet{data: append([]byte(nil), p...), from: from})
		l.serve(dst)
	}
	return len(p), native.OK
}

func (l *Library) ReceiveFrom(desc, buf uintptr, length, flags int, ep uintptr, size int) (int, native.Code) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if code := l.call(OpReceiveFrom); code != native.OK {
		return 0, code
	}
	s, code := l.socket(desc)
	if code != native.OK {
		return 0, code
	}
	p := l.arena.Bytes(buf)
	if length > len(p) {
		return 0, efault
	}
	n, from, code := l.receive(s, p[:length])
	if code != native.OK {
		return 0, code
	}
	if from.IsValid() {
		if code := l.writeEndpoint(ep, from); code != native.OK {
			return 0, code
		}
	}
	return n, native.OK
}
