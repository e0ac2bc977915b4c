// File: endpoint/constants.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Interned platform constants. Each value exists once per registry, so
// pointer equality is value equality.

package endpoint

import (
	"fmt"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/native"
)

// Constant is a named platform code.
type Constant struct {
	name string
	code int32
}

// Name returns the portable name.
func (c *Constant) Name() string { return c.name }

// Code returns the platform value.
func (c *Constant) Code() int32 { return c.code }

func (c *Constant) String() string { return fmt.Sprintf("%s(%d)", c.name, c.code) }

// AddressFamily is an interned address family.
type AddressFamily struct{ Constant }

// SocketType is an interned socket type.
type SocketType struct{ Constant }

// Protocol is an interned protocol.
type Protocol struct{ Constant }

// SocketError is an interned socket error code.
type SocketError struct{ Constant }

// Families lists the address families every platform provides.
type Families struct {
	Unspecified, IPv4, IPv6 *AddressFamily
}

// SocketTypes lists the known socket types.
type SocketTypes struct {
	Stream, Datagram, Raw, Rdm, SeqPacket *SocketType
}

// Protocols lists the known protocols.
type Protocols struct {
	IP, Icmp, Igmp, IPv4, Tcp, Pup, Udp, Idp, IPv6 *Protocol

	IPv6RoutingHeader, IPv6FragmentHeader *Protocol
	IPSecESP, IPSecAH                     *Protocol
	IcmpV6, IPv6NoNextHeader              *Protocol
	IPv6DestOptions, Raw                  *Protocol
}

// SocketErrors lists the socket errors the runtime interprets.
type SocketErrors struct {
	NotConnected *SocketError
}

// table interns one constant kind by name and by code.
type table[T any] struct {
	kind   string
	byName map[string]*T
	byCode map[int32]*T
}

func newTable[T any](kind string, list []native.Constant, wrap func(Constant) *T) *table[T] {
	t := &table[T]{
		kind:   kind,
		byName: make(map[string]*T, len(list)),
		byCode: make(map[int32]*T, len(list)),
	}
	for _, c := range list {
		v := wrap(Constant{name: c.Name, code: c.Code})
		t.byName[c.Name] = v
		// first registration wins for codes shared by several names
		if _, dup := t.byCode[c.Code]; !dup {
			t.byCode[c.Code] = v
		}
	}
	return t
}

func (t *table[T]) named(name string, missing *[]string) *T {
	v, ok := t.byName[name]
	if !ok {
		*missing = append(*missing, t.kind+"."+name)
	}
	return v
}

func (t *table[T]) lookup(code int32) (*T, error) {
	if v, ok := t.byCode[code]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("%w: %s %d", api.ErrUnknownConstant, t.kind, code)
}

type constants struct {
	families  *table[AddressFamily]
	types     *table[SocketType]
	protocols *table[Protocol]
	errors    *table[SocketError]
}

func loadConstants(c native.Constants) constants {
	return constants{
		families:  newTable("family", c.Families, func(k Constant) *AddressFamily { return &AddressFamily{k} }),
		types:     newTable("type", c.SocketTypes, func(k Constant) *SocketType { return &SocketType{k} }),
		protocols: newTable("protocol", c.Protocols, func(k Constant) *Protocol { return &Protocol{k} }),
		errors:    newTable("error", c.SocketErrors, func(k Constant) *SocketError { return &SocketError{k} }),
	}
}

func (c constants) resolve(r *Registry) error {
	var missing []string
	f, ty, p, e := c.families, c.types, c.protocols, c.errors

	r.Families = Families{
		Unspecified: f.named(native.FamilyUnspecified, &missing),
		IPv4:        f.named(native.FamilyIPv4, &missing),
		IPv6:        f.named(native.FamilyIPv6, &missing),
	}
	r.Types = SocketTypes{
		Stream:    ty.named(native.TypeStream, &missing),
		Datagram:  ty.named(native.TypeDatagram, &missing),
		Raw:       ty.named(native.TypeRaw, &missing),
		Rdm:       ty.named(native.TypeRdm, &missing),
		SeqPacket: ty.named(native.TypeSeqPacket, &missing),
	}
	r.Protocols = Protocols{
		IP:                 p.named(native.ProtocolIP, &missing),
		Icmp:               p.named(native.ProtocolIcmp, &missing),
		Igmp:               p.named(native.ProtocolIgmp, &missing),
		IPv4:               p.named(native.ProtocolIPv4, &missing),
		Tcp:                p.named(native.ProtocolTcp, &missing),
		Pup:                p.named(native.ProtocolPup, &missing),
		Udp:                p.named(native.ProtocolUdp, &missing),
		Idp:                p.named(native.ProtocolIdp, &missing),
		IPv6:               p.named(native.ProtocolIPv6, &missing),
		IPv6RoutingHeader:  p.named(native.ProtocolIPv6RoutingHeader, &missing),
		IPv6FragmentHeader: p.named(native.ProtocolIPv6FragmentHeader, &missing),
		IPSecESP:           p.named(native.ProtocolIPSecESP, &missing),
		IPSecAH:            p.named(native.ProtocolIPSecAH, &missing),
		IcmpV6:             p.named(native.ProtocolIcmpV6, &missing),
		IPv6NoNextHeader:   p.named(native.ProtocolIPv6NoNextHeader, &missing),
		IPv6DestOptions:    p.named(native.ProtocolIPv6DestOptions, &missing),
		Raw:                p.named(native.ProtocolRaw, &missing),
	}
	r.Errors = SocketErrors{
		NotConnected: e.named(native.ErrorNotConnected, &missing),
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: platform does not define %v", api.ErrUnknownConstant, missing)
	}
	return nil
}

// Family returns the interned family for a platform code.
func (r *Registry) Family(code int32) (*AddressFamily, error) { return r.consts.families.lookup(code) }

// Type returns the interned socket type for a platform code.
func (r *Registry) Type(code int32) (*SocketType, error) { return r.consts.types.lookup(code) }

// Protocol returns the interned protocol for a platform code.
func (r *Registry) Protocol(code int32) (*Protocol, error) { return r.consts.protocols.lookup(code) }

// SocketError returns the interned socket error for a platform code.
func (r *Registry) SocketError(code int32) (*SocketError, error) { return r.consts.errors.lookup(code) }
