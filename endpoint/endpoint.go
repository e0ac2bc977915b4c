// File: endpoint/endpoint.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Endpoint is a socket address in native sockaddr format. Ports, flow
// information and scope ids are stored in network byte order.

package endpoint

import (
	"fmt"
	"net/netip"
	"strconv"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/native"
)

// Kind is the closed set of endpoint variants.
type Kind int

const (
	KindUnspecified Kind = iota
	KindIPv4
	KindIPv6
	kindCount
)

func (k Kind) String() string {
	switch k {
	case KindIPv4:
		return "IPv4"
	case KindIPv6:
		return "IPv6"
	}
	return "Unspecified"
}

// Endpoint wraps one native address block. The block is freed when the
// Endpoint becomes unreachable.
type Endpoint struct {
	reg    *Registry
	ptr    uintptr
	mem    []byte
	layout native.Layout
	kind   Kind
}

// Pointer returns the native block address.
func (e *Endpoint) Pointer() uintptr { return e.ptr }

// Size returns the native block size.
func (e *Endpoint) Size() int { return e.layout.Size }

// Kind returns the variant.
func (e *Endpoint) Kind() Kind { return e.kind }

// Family returns the interned family stored in the block.
func (e *Endpoint) Family() *AddressFamily {
	return e.reg.familyOf(e.kind)
}

// Port returns the port; unspecified endpoints have none.
func (e *Endpoint) Port() uint16 {
	return uint16(e.layout.BigEndian(e.mem, native.FieldPort))
}

// SetPort stores port in network byte order.
func (e *Endpoint) SetPort(port uint16) {
	e.layout.PutBigEndian(e.mem, native.FieldPort, uint32(port))
}

// Address returns a copy of the raw address bytes.
func (e *Endpoint) Address() []byte {
	raw := e.layout.Raw(e.mem, native.FieldAddress)
	if raw == nil {
		return nil
	}
	return append([]byte(nil), raw...)
}

// SetAddress stores raw address bytes; the length must match the variant.
func (e *Endpoint) SetAddress(addr []byte) error {
	raw := e.layout.Raw(e.mem, native.FieldAddress)
	if raw == nil || len(addr) != len(raw) {
		return &api.ArgumentError{Name: "address"}
	}
	copy(raw, addr)
	return nil
}

// FlowInfo returns the IPv6 flow information.
func (e *Endpoint) FlowInfo() uint32 {
	return e.layout.BigEndian(e.mem, native.FieldFlowInfo)
}

// SetFlowInfo stores the IPv6 flow information.
func (e *Endpoint) SetFlowInfo(v uint32) {
	e.layout.PutBigEndian(e.mem, native.FieldFlowInfo, v)
}

// ScopeID returns the IPv6 scope id.
func (e *Endpoint) ScopeID() uint32 {
	return e.layout.BigEndian(e.mem, native.FieldScopeID)
}

// SetScopeID stores the IPv6 scope id.
func (e *Endpoint) SetScopeID(v uint32) {
	e.layout.PutBigEndian(e.mem, native.FieldScopeID, v)
}

// AddrPort converts the endpoint to a netip.AddrPort.
func (e *Endpoint) AddrPort() (netip.AddrPort, bool) {
	var addr netip.Addr
	switch e.kind {
	case KindIPv4:
		addr = netip.AddrFrom4([4]byte(e.Address()))
	case KindIPv6:
		addr = netip.AddrFrom16([16]byte(e.Address()))
		if s := e.ScopeID(); s != 0 {
			addr = addr.WithZone(strconv.FormatUint(uint64(s), 10))
		}
	default:
		return netip.AddrPort{}, false
	}
	return netip.AddrPortFrom(addr, e.Port()), true
}

func (e *Endpoint) String() string {
	if ap, ok := e.AddrPort(); ok {
		return ap.String()
	}
	return fmt.Sprintf("%s endpoint", e.kind)
}

// Equal reports whether both endpoints hold the same address bytes.
func (e *Endpoint) Equal(o *Endpoint) bool {
	if e == o {
		return true
	}
	if e == nil || o == nil || e.kind != o.kind {
		return false
	}
	return string(e.mem[:e.layout.Size]) == string(o.mem[:o.layout.Size])
}
