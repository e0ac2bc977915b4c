// File: endpoint/configuration.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package endpoint

import (
	"fmt"

	"github.com/momentics/hioload-net/native"
)

// Configuration is an interned (family, type, protocol) triple backed by a
// native block. It lives until the registry closes.
type Configuration struct {
	reg      *Registry
	ptr      uintptr
	family   *AddressFamily
	typ      *SocketType
	protocol *Protocol
}

func (r *Registry) newConfiguration(family *AddressFamily, typ *SocketType, protocol *Protocol) *Configuration {
	ptr := r.arena.Alloc(r.cfgLayout.Size)
	b := r.arena.Bytes(ptr)
	r.cfgLayout.PutUint(b, native.FieldFamily, uint64(uint32(family.Code())))
	r.cfgLayout.PutInt(b, native.FieldType, int64(typ.Code()))
	r.cfgLayout.PutInt(b, native.FieldProtocol, int64(protocol.Code()))
	return &Configuration{reg: r, ptr: ptr, family: family, typ: typ, protocol: protocol}
}

// Pointer returns the native block address.
func (c *Configuration) Pointer() uintptr { return c.ptr }

// Family returns the address family.
func (c *Configuration) Family() *AddressFamily { return c.family }

// Type returns the socket type.
func (c *Configuration) Type() *SocketType { return c.typ }

// Protocol returns the protocol.
func (c *Configuration) Protocol() *Protocol { return c.protocol }

// EndpointKind returns the kind of endpoint sockets of this configuration use.
func (c *Configuration) EndpointKind() Kind { return c.reg.kindOf(c.family) }

// AllocateEndpoint returns a zeroed endpoint matching the family.
func (c *Configuration) AllocateEndpoint() *Endpoint {
	return c.reg.NewEndpoint(c.EndpointKind())
}

func (c *Configuration) String() string {
	return fmt.Sprintf("%s/%s/%s", c.family.Name(), c.typ.Name(), c.protocol.Name())
}
