//go:build linux

// File: native/sockaddr_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Conversion between endpoint blocks and x/sys socket addresses.
// unix.SockaddrInet6 has no flow info, so IPv6 flow info never reaches the
// kernel and is reported as zero for addresses the kernel returns.

package native

import (
	"net/netip"

	"golang.org/x/sys/unix"
)

func (l *linuxLibrary) sockaddr(ep uintptr, size int) (unix.Sockaddr, Code) {
	b := l.arena.Bytes(ep)
	if b == nil || size > len(b) {
		return nil, Code(unix.EFAULT)
	}
	family := l.layouts[StructEndpoint].Uint(b, FieldFamily)
	switch family {
	case unix.AF_INET:
		lay := l.layouts[StructIPv4Endpoint]
		if size < lay.Size {
			return nil, Code(unix.EINVAL)
		}
		sa := &unix.SockaddrInet4{Port: int(lay.BigEndian(b, FieldPort))}
		copy(sa.Addr[:], lay.Raw(b, FieldAddress))
		return sa, OK
	case unix.AF_INET6:
		lay := l.layouts[StructIPv6Endpoint]
		if size < lay.Size {
			return nil, Code(unix.EINVAL)
		}
		sa := &unix.SockaddrInet6{
			Port:   int(lay.BigEndian(b, FieldPort)),
			ZoneId: lay.BigEndian(b, FieldScopeID),
		}
		copy(sa.Addr[:], lay.Raw(b, FieldAddress))
		return sa, OK
	}
	return nil, Code(unix.EAFNOSUPPORT)
}

// storeSockaddr writes sa into the endpoint block. Endpoints of another
// family are left untouched and reported with EAFNOSUPPORT.
func (l *linuxLibrary) storeSockaddr(ep uintptr, sa unix.Sockaddr) Code {
	b := l.arena.Bytes(ep)
	if b == nil {
		return Code(unix.EFAULT)
	}
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		lay := l.layouts[StructIPv4Endpoint]
		if len(b) < lay.Size {
			return Code(unix.EINVAL)
		}
		lay.PutUint(b, FieldFamily, unix.AF_INET)
		lay.PutBigEndian(b, FieldPort, uint32(sa.Port))
		copy(lay.Raw(b, FieldAddress), sa.Addr[:])
	case *unix.SockaddrInet6:
		lay := l.layouts[StructIPv6Endpoint]
		if len(b) < lay.Size {
			return Code(unix.EINVAL)
		}
		lay.PutUint(b, FieldFamily, unix.AF_INET6)
		lay.PutBigEndian(b, FieldPort, uint32(sa.Port))
		lay.PutBigEndian(b, FieldFlowInfo, 0)
		lay.PutBigEndian(b, FieldScopeID, sa.ZoneId)
		copy(lay.Raw(b, FieldAddress), sa.Addr[:])
	case nil:
		return OK
	default:
		return Code(unix.EAFNOSUPPORT)
	}
	return OK
}

func (l *linuxLibrary) parseInto(text string, ep uintptr, s Struct, want func(netip.Addr) bool) (bool, Code) {
	b := l.arena.Bytes(ep)
	if b == nil {
		return false, Code(unix.EFAULT)
	}
	addr, err := netip.ParseAddr(text)
	if err != nil || !want(addr) {
		return false, OK
	}
	lay := l.layouts[s]
	raw := addr.WithZone("").AsSlice()
	copy(lay.Raw(b, FieldAddress), raw)
	return true, OK
}

func (l *linuxLibrary) ParseIPv4(text string, ep uintptr) (bool, Code) {
	return l.parseInto(text, ep, StructIPv4Endpoint, netip.Addr.Is4)
}

func (l *linuxLibrary) ParseIPv6(text string, ep uintptr) (bool, Code) {
	return l.parseInto(text, ep, StructIPv6Endpoint, func(a netip.Addr) bool {
		return a.Is6()
	})
}
