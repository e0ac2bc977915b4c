//go:build linux

// File: native/socket_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux socket layer over golang.org/x/sys/unix. Descriptors are
// non-blocking once prepared; the synchronous calls wait with poll(2).

package native

import (
	"encoding/binary"
	"errors"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

type linuxLibrary struct {
	arena   *Arena
	layouts map[Struct]Layout
	states  sync.Map // int -> *fdState
	muxes   sync.Map // uintptr -> *mux
}

// Default returns the platform socket layer.
func Default() (Library, error) {
	return &linuxLibrary{
		arena:   NewArena(),
		layouts: linuxLayouts(),
	}, nil
}

func errno(err error) Code {
	var e unix.Errno
	if errors.As(err, &e) {
		return Code(e)
	}
	return Code(unix.EIO)
}

func (l *linuxLibrary) Arena() *Arena { return l.arena }

func (l *linuxLibrary) DescriptorSize() int { return int(unsafe.Sizeof(descriptorBlock{})) }

func (l *linuxLibrary) Layout(s Struct) Layout { return l.layouts[s] }

func (l *linuxLibrary) Constants() Constants { return linuxConstants() }

func (l *linuxLibrary) Startup() Code { return OK }

func (l *linuxLibrary) Cleanup() Code { return OK }

func (l *linuxLibrary) ErrorMessage(code Code) string {
	return unix.Errno(code).Error()
}

func (l *linuxLibrary) fd(desc uintptr) (int, Code) {
	b := l.arena.Bytes(desc)
	if len(b) < 8 {
		return -1, Code(unix.EFAULT)
	}
	fd := int64(binary.NativeEndian.Uint64(b))
	if fd < 0 {
		return -1, Code(unix.EBADF)
	}
	return int(fd), OK
}

func (l *linuxLibrary) setFd(desc uintptr, fd int) Code {
	b := l.arena.Bytes(desc)
	if len(b) < 8 {
		return Code(unix.EFAULT)
	}
	binary.NativeEndian.PutUint64(b, uint64(int64(fd)))
	return OK
}

func (l *linuxLibrary) buffer(ptr uintptr, length int) ([]byte, Code) {
	if length == 0 {
		return nil, OK
	}
	b := l.arena.Bytes(ptr)
	if length < 0 || length > len(b) {
		return nil, Code(unix.EFAULT)
	}
	return b[:length], OK
}

func (l *linuxLibrary) CreateSocket(desc, cfg uintptr) Code {
	b := l.arena.Bytes(cfg)
	if b == nil {
		return Code(unix.EFAULT)
	}
	lay := l.layouts[StructConfiguration]
	family := int(lay.Uint(b, FieldFamily))
	typ := int(lay.Int(b, FieldType))
	proto := int(lay.Int(b, FieldProtocol))

	fd, err := unix.Socket(family, typ|unix.SOCK_CLOEXEC, proto)
	if err != nil {
		return errno(err)
	}
	if code := l.setFd(desc, fd); code != OK {
		unix.Close(fd)
		return code
	}
	return OK
}

func (l *linuxLibrary) PrepareForAsync(desc, handle uintptr) Code {
	fd, code := l.fd(desc)
	if code != OK {
		return code
	}
	v, ok := l.muxes.Load(handle)
	if !ok {
		return Code(unix.EBADF)
	}
	return l.attach(fd, v.(*mux))
}

func (l *linuxLibrary) attach(fd int, m *mux) Code {
	if err := unix.SetNonblock(fd, true); err != nil {
		return errno(err)
	}
	if err := m.reactor.Register(fd); err != nil {
		return errno(err)
	}
	l.states.Store(fd, &fdState{fd: fd, mux: m})
	return OK
}

func (l *linuxLibrary) Bind(desc, ep uintptr, size int) Code {
	fd, code := l.fd(desc)
	if code != OK {
		return code
	}
	sa, code := l.sockaddr(ep, size)
	if code != OK {
		return code
	}
	if err := unix.Bind(fd, sa); err != nil {
		return errno(err)
	}
	bound, err := unix.Getsockname(fd)
	if err != nil {
		return errno(err)
	}
	return l.storeSockaddr(ep, bound)
}

func (l *linuxLibrary) Close(desc uintptr) Code {
	fd, code := l.fd(desc)
	if code != OK {
		return code
	}
	if v, ok := l.states.LoadAndDelete(fd); ok {
		st := v.(*fdState)
		st.abort(l, Code(unix.EBADF))
		_ = st.mux.reactor.Unregister(fd)
	}
	l.setFd(desc, -1)
	if err := unix.Close(fd); err != nil {
		return errno(err)
	}
	return OK
}

// blocking retries op until it stops reporting EAGAIN, waiting for events on fd.
func blocking(fd int, events int16, op func() (int, error)) (int, Code) {
	for {
		n, err := op()
		switch err {
		case nil:
			return n, OK
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			if code := waitFd(fd, events); code != OK {
				return 0, code
			}
			continue
		}
		return 0, errno(err)
	}
}

func waitFd(fd int, events int16) Code {
	pfd := []unix.PollFd{{Fd: int32(fd), Events: events}}
	for {
		_, err := unix.Poll(pfd, -1)
		if err == nil {
			return OK
		}
		if err != unix.EINTR {
			return errno(err)
		}
	}
}

func connectResult(fd int) Code {
	soerr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return errno(err)
	}
	return Code(soerr)
}

func (l *linuxLibrary) Connect(desc, ep uintptr, size int) Code {
	fd, code := l.fd(desc)
	if code != OK {
		return code
	}
	sa, code := l.sockaddr(ep, size)
	if code != OK {
		return code
	}
	switch err := unix.Connect(fd, sa); err {
	case nil:
		return OK
	case unix.EINPROGRESS, unix.EINTR, unix.EALREADY:
		if code := waitFd(fd, unix.POLLOUT); code != OK {
			return code
		}
		return connectResult(fd)
	default:
		return errno(err)
	}
}

func (l *linuxLibrary) Shutdown(desc uintptr) Code {
	fd, code := l.fd(desc)
	if code != OK {
		return code
	}
	if err := unix.Shutdown(fd, unix.SHUT_RDWR); err != nil {
		return errno(err)
	}
	return OK
}

func (l *linuxLibrary) Listen(desc uintptr, backlog int) Code {
	fd, code := l.fd(desc)
	if code != OK {
		return code
	}
	if err := unix.Listen(fd, backlog); err != nil {
		return errno(err)
	}
	return OK
}

func (l *linuxLibrary) Accept(desc, client, ep uintptr, size int) Code {
	fd, code := l.fd(desc)
	if code != OK {
		return code
	}
	var sa unix.Sockaddr
	nfd, code := blocking(fd, unix.POLLIN, func() (int, error) {
		n, from, err := unix.Accept4(fd, unix.SOCK_CLOEXEC)
		sa = from
		return n, err
	})
	if code != OK {
		return code
	}
	return l.adopt(fd, nfd, client, ep, sa)
}

// adopt publishes an accepted descriptor into the client block, joining the
// listener's multiplexer when it has one.
func (l *linuxLibrary) adopt(listener, nfd int, client, ep uintptr, sa unix.Sockaddr) Code {
	if code := l.setFd(client, nfd); code != OK {
		unix.Close(nfd)
		return code
	}
	if ep != 0 {
		if code := l.storeSockaddr(ep, sa); code != OK {
			return code
		}
	}
	if v, ok := l.states.Load(listener); ok {
		return l.attach(nfd, v.(*fdState).mux)
	}
	return OK
}

func (l *linuxLibrary) Send(desc, buf uintptr, length, flags int) (int, Code) {
	fd, code := l.fd(desc)
	if code != OK {
		return 0, code
	}
	p, code := l.buffer(buf, length)
	if code != OK {
		return 0, code
	}
	return blocking(fd, unix.POLLOUT, func() (int, error) {
		return unix.SendmsgN(fd, p, nil, nil, flags|unix.MSG_NOSIGNAL)
	})
}

func (l *linuxLibrary) Receive(desc, buf uintptr, length, flags int) (int, Code) {
	fd, code := l.fd(desc)
	if code != OK {
		return 0, code
	}
	p, code := l.buffer(buf, length)
	if code != OK {
		return 0, code
	}
	return blocking(fd, unix.POLLIN, func() (int, error) {
		n, _, err := unix.Recvfrom(fd, p, flags)
		return n, err
	})
}

func (l *linuxLibrary) SendTo(desc, buf uintptr, length, flags int, ep uintptr, size int) (int, Code) {
	fd, code := l.fd(desc)
	if code != OK {
		return 0, code
	}
	p, code := l.buffer(buf, length)
	if code != OK {
		return 0, code
	}
	sa, code := l.sockaddr(ep, size)
	if code != OK {
		return 0, code
	}
	return blocking(fd, unix.POLLOUT, func() (int, error) {
		return unix.SendmsgN(fd, p, nil, sa, flags|unix.MSG_NOSIGNAL)
	})
}

func (l *linuxLibrary) ReceiveFrom(desc, buf uintptr, length, flags int, ep uintptr, size int) (int, Code) {
	fd, code := l.fd(desc)
	if code != OK {
		return 0, code
	}
	p, code := l.buffer(buf, length)
	if code != OK {
		return 0, code
	}
	var from unix.Sockaddr
	n, code := blocking(fd, unix.POLLIN, func() (int, error) {
		n, sa, err := unix.Recvfrom(fd, p, flags)
		from = sa
		return n, err
	})
	if code != OK {
		return 0, code
	}
	if code := l.storeSockaddr(ep, from); code != OK {
		return 0, code
	}
	return n, OK
}
