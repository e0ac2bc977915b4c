// File: endpoint/registry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Registry owns the interned constants, the configuration caches and the
// endpoint reverse cache of one runtime.

package endpoint

import (
	"runtime"
	"sync"
	"weak"

	"go.uber.org/zap"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/native"
)

// Registry resolves constants, configurations and endpoints.
type Registry struct {
	Families  Families
	Types     SocketTypes
	Protocols Protocols
	Errors    SocketErrors

	lib    native.Library
	arena  *native.Arena
	log    *zap.Logger
	consts constants

	cfgLayout native.Layout
	epLayouts [kindCount]native.Layout

	// mu orders configuration creation against Close.
	mu           sync.RWMutex
	configs      sync.Map // configKey -> *Configuration
	configsByPtr sync.Map // uintptr -> *Configuration

	endpoints sync.Map // uintptr -> weak.Pointer[Endpoint]
}

// NewRegistry reads constants and layouts from lib.
func NewRegistry(lib native.Library, log *zap.Logger) (*Registry, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		lib:       lib,
		arena:     lib.Arena(),
		log:       log,
		consts:    loadConstants(lib.Constants()),
		cfgLayout: lib.Layout(native.StructConfiguration),
	}
	r.epLayouts[KindUnspecified] = lib.Layout(native.StructEndpoint)
	r.epLayouts[KindIPv4] = lib.Layout(native.StructIPv4Endpoint)
	r.epLayouts[KindIPv6] = lib.Layout(native.StructIPv6Endpoint)
	if err := r.consts.resolve(r); err != nil {
		return nil, err
	}
	return r, nil
}

type configKey struct {
	family, typ, protocol int32
}

// Configuration returns the interned configuration for the triple,
// creating it on first use. A nil protocol means Protocols.IP.
func (r *Registry) Configuration(family *AddressFamily, typ *SocketType, protocol *Protocol) *Configuration {
	if protocol == nil {
		protocol = r.Protocols.IP
	}
	key := configKey{family.Code(), typ.Code(), protocol.Code()}
	if v, ok := r.configs.Load(key); ok {
		return v.(*Configuration)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	c := r.newConfiguration(family, typ, protocol)
	v, loaded := r.configs.LoadOrStore(key, c)
	if loaded {
		r.arena.Free(c.ptr)
		return v.(*Configuration)
	}
	r.configsByPtr.Store(c.ptr, c)
	return c
}

// ConfigurationAt returns the configuration owning the native block at ptr.
func (r *Registry) ConfigurationAt(ptr uintptr) (*Configuration, bool) {
	v, ok := r.configsByPtr.Load(ptr)
	if !ok {
		return nil, false
	}
	return v.(*Configuration), true
}

// Lookup returns the live endpoint wrapping the native block at ptr.
func (r *Registry) Lookup(ptr uintptr) (*Endpoint, bool) {
	v, ok := r.endpoints.Load(ptr)
	if !ok {
		return nil, false
	}
	ep := v.(weak.Pointer[Endpoint]).Value()
	return ep, ep != nil
}

type endpointCleanup struct {
	ptr uintptr
	ref weak.Pointer[Endpoint]
}

// NewEndpoint allocates a zeroed endpoint of kind with its family tag set.
func (r *Registry) NewEndpoint(kind Kind) *Endpoint {
	lay := r.epLayouts[kind]
	ptr := r.arena.Alloc(lay.Size)
	ep := &Endpoint{
		reg:    r,
		ptr:    ptr,
		mem:    r.arena.Bytes(ptr),
		layout: lay,
		kind:   kind,
	}
	ep.layout.PutUint(ep.mem, native.FieldFamily, uint64(r.familyOf(kind).Code()))

	ref := weak.Make(ep)
	r.endpoints.Store(ptr, ref)
	runtime.AddCleanup(ep, func(c endpointCleanup) {
		r.endpoints.CompareAndDelete(c.ptr, c.ref)
		r.arena.Free(c.ptr)
	}, endpointCleanup{ptr: ptr, ref: ref})
	return ep
}

func (r *Registry) familyOf(kind Kind) *AddressFamily {
	switch kind {
	case KindIPv4:
		return r.Families.IPv4
	case KindIPv6:
		return r.Families.IPv6
	}
	return r.Families.Unspecified
}

func (r *Registry) kindOf(family *AddressFamily) Kind {
	switch family {
	case r.Families.IPv4:
		return KindIPv4
	case r.Families.IPv6:
		return KindIPv6
	}
	return KindUnspecified
}

// ParseIPv4 builds an IPv4 endpoint from dotted text and a port.
func (r *Registry) ParseIPv4(text string, port uint16) (*Endpoint, error) {
	return r.parse(KindIPv4, text, port, r.lib.ParseIPv4)
}

// ParseIPv6 builds an IPv6 endpoint from text and a port.
func (r *Registry) ParseIPv6(text string, port uint16) (*Endpoint, error) {
	return r.parse(KindIPv6, text, port, r.lib.ParseIPv6)
}

func (r *Registry) parse(kind Kind, text string, port uint16, parse func(string, uintptr) (bool, native.Code)) (*Endpoint, error) {
	if text == "" {
		return nil, &api.ArgumentError{Name: "text"}
	}
	ep := r.NewEndpoint(kind)
	ok, code := parse(text, ep.ptr)
	if !ok {
		if code == native.OK {
			return nil, &api.AddressFormatError{Address: text}
		}
		return nil, native.Error(r.lib, code)
	}
	ep.SetPort(port)
	return ep, nil
}

var (
	ipv4Any      = []byte{0, 0, 0, 0}
	ipv4Loopback = []byte{127, 0, 0, 1}
	ipv6Any      = make([]byte, 16)
	ipv6Loopback = append(make([]byte, 15), 1)
)

// IPv4Any returns a new endpoint for 0.0.0.0:port.
func (r *Registry) IPv4Any(port uint16) *Endpoint { return r.fixed(KindIPv4, ipv4Any, port) }

// IPv4Loopback returns a new endpoint for 127.0.0.1:port.
func (r *Registry) IPv4Loopback(port uint16) *Endpoint { return r.fixed(KindIPv4, ipv4Loopback, port) }

// IPv6Any returns a new endpoint for [::]:port.
func (r *Registry) IPv6Any(port uint16) *Endpoint { return r.fixed(KindIPv6, ipv6Any, port) }

// IPv6Loopback returns a new endpoint for [::1]:port.
func (r *Registry) IPv6Loopback(port uint16) *Endpoint { return r.fixed(KindIPv6, ipv6Loopback, port) }

func (r *Registry) fixed(kind Kind, addr []byte, port uint16) *Endpoint {
	ep := r.NewEndpoint(kind)
	_ = ep.SetAddress(addr)
	ep.SetPort(port)
	return ep
}

// Close frees every configuration block and empties both configuration
// caches. Configurations obtained earlier must not be used afterwards.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	freed := 0
	r.configs.Range(func(key, v any) bool {
		c := v.(*Configuration)
		r.configs.Delete(key)
		r.configsByPtr.Delete(c.ptr)
		if r.arena.Free(c.ptr) {
			freed++
		}
		return true
	})
	r.log.Debug("configurations released", zap.Int("count", freed))
	return nil
}
