//go:build linux

// File: native/layout_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Native structure layouts for the Linux socket layer.

package native

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

type descriptorBlock struct {
	Fd int64
}

type configurationBlock struct {
	Family   uint16
	_        [2]byte
	Type     int32
	Protocol int32
}

type contextHeader struct {
	Descriptor             uint64
	CompletedSynchronously uint8
	CompletedSuccessfully  uint8
	_                      [2]byte
	ErrorCode              int32
}

type connectBlock struct {
	contextHeader
	Endpoint       uint64
	EndpointLength int32
	_              [4]byte
}

type acceptBlock struct {
	connectBlock
	RemoteSocket uint64
}

type shutdownBlock struct {
	contextHeader
}

type clientBlock struct {
	contextHeader
	Buffer           uint64
	Length           uint32
	Flags            int32
	BytesTransferred int64
}

type nodeBlock struct {
	clientBlock
	Endpoint       uint64
	EndpointLength int32
	_              [4]byte
}

// entryBlock is one slot of a completion entries buffer.
type entryBlock struct {
	Context uint64
}

func slot(off, size uintptr) Slot { return Slot{Offset: int(off), Width: int(size)} }

func headerSlots(h *contextHeader, m map[Field]Slot) map[Field]Slot {
	m[FieldDescriptor] = slot(unsafe.Offsetof(h.Descriptor), unsafe.Sizeof(h.Descriptor))
	m[FieldCompletedSynchronously] = slot(unsafe.Offsetof(h.CompletedSynchronously), 1)
	m[FieldCompletedSuccessfully] = slot(unsafe.Offsetof(h.CompletedSuccessfully), 1)
	m[FieldErrorCode] = slot(unsafe.Offsetof(h.ErrorCode), unsafe.Sizeof(h.ErrorCode))
	return m
}

func linuxLayouts() map[Struct]Layout {
	var (
		cfg  configurationBlock
		v4   unix.RawSockaddrInet4
		v6   unix.RawSockaddrInet6
		raw  unix.RawSockaddrAny
		conn connectBlock
		acc  acceptBlock
		shut shutdownBlock
		cli  clientBlock
		node nodeBlock
	)

	layouts := map[Struct]Layout{
		StructConfiguration: {Size: int(unsafe.Sizeof(cfg)), Fields: map[Field]Slot{
			FieldFamily:   slot(unsafe.Offsetof(cfg.Family), unsafe.Sizeof(cfg.Family)),
			FieldType:     slot(unsafe.Offsetof(cfg.Type), unsafe.Sizeof(cfg.Type)),
			FieldProtocol: slot(unsafe.Offsetof(cfg.Protocol), unsafe.Sizeof(cfg.Protocol)),
		}},
		StructEndpoint: {Size: unix.SizeofSockaddrAny, Fields: map[Field]Slot{
			FieldFamily: slot(unsafe.Offsetof(raw.Addr), unsafe.Sizeof(raw.Addr.Family)),
		}},
		StructIPv4Endpoint: {Size: unix.SizeofSockaddrInet4, Fields: map[Field]Slot{
			FieldFamily:  slot(unsafe.Offsetof(v4.Family), unsafe.Sizeof(v4.Family)),
			FieldPort:    slot(unsafe.Offsetof(v4.Port), unsafe.Sizeof(v4.Port)),
			FieldAddress: slot(unsafe.Offsetof(v4.Addr), unsafe.Sizeof(v4.Addr)),
		}},
		StructIPv6Endpoint: {Size: unix.SizeofSockaddrInet6, Fields: map[Field]Slot{
			FieldFamily:   slot(unsafe.Offsetof(v6.Family), unsafe.Sizeof(v6.Family)),
			FieldPort:     slot(unsafe.Offsetof(v6.Port), unsafe.Sizeof(v6.Port)),
			FieldFlowInfo: slot(unsafe.Offsetof(v6.Flowinfo), unsafe.Sizeof(v6.Flowinfo)),
			FieldAddress:  slot(unsafe.Offsetof(v6.Addr), unsafe.Sizeof(v6.Addr)),
			FieldScopeID:  slot(unsafe.Offsetof(v6.Scope_id), unsafe.Sizeof(v6.Scope_id)),
		}},
	}

	var h contextHeader
	layouts[StructSocketContext] = Layout{Size: int(unsafe.Sizeof(h)), Fields: headerSlots(&h, map[Field]Slot{})}

	m := headerSlots(&h, map[Field]Slot{})
	m[FieldEndpoint] = slot(unsafe.Offsetof(conn.Endpoint), unsafe.Sizeof(conn.Endpoint))
	m[FieldEndpointLength] = slot(unsafe.Offsetof(conn.EndpointLength), unsafe.Sizeof(conn.EndpointLength))
	layouts[StructConnectContext] = Layout{Size: int(unsafe.Sizeof(conn)), Fields: m}

	m = headerSlots(&h, map[Field]Slot{})
	m[FieldEndpoint] = slot(unsafe.Offsetof(acc.Endpoint), unsafe.Sizeof(acc.Endpoint))
	m[FieldEndpointLength] = slot(unsafe.Offsetof(acc.EndpointLength), unsafe.Sizeof(acc.EndpointLength))
	m[FieldRemoteSocket] = slot(unsafe.Offsetof(acc.RemoteSocket), unsafe.Sizeof(acc.RemoteSocket))
	layouts[StructAcceptContext] = Layout{Size: int(unsafe.Sizeof(acc)), Fields: m}

	layouts[StructShutdownContext] = Layout{Size: int(unsafe.Sizeof(shut)), Fields: headerSlots(&h, map[Field]Slot{})}

	m = headerSlots(&h, map[Field]Slot{})
	m[FieldBuffer] = slot(unsafe.Offsetof(cli.Buffer), unsafe.Sizeof(cli.Buffer))
	m[FieldLength] = slot(unsafe.Offsetof(cli.Length), unsafe.Sizeof(cli.Length))
	m[FieldFlags] = slot(unsafe.Offsetof(cli.Flags), unsafe.Sizeof(cli.Flags))
	m[FieldBytesTransferred] = slot(unsafe.Offsetof(cli.BytesTransferred), unsafe.Sizeof(cli.BytesTransferred))
	layouts[StructClientContext] = Layout{Size: int(unsafe.Sizeof(cli)), Fields: m}

	m = headerSlots(&h, map[Field]Slot{})
	m[FieldBuffer] = slot(unsafe.Offsetof(node.Buffer), unsafe.Sizeof(node.Buffer))
	m[FieldLength] = slot(unsafe.Offsetof(node.Length), unsafe.Sizeof(node.Length))
	m[FieldFlags] = slot(unsafe.Offsetof(node.Flags), unsafe.Sizeof(node.Flags))
	m[FieldBytesTransferred] = slot(unsafe.Offsetof(node.BytesTransferred), unsafe.Sizeof(node.BytesTransferred))
	m[FieldEndpoint] = slot(unsafe.Offsetof(node.Endpoint), unsafe.Sizeof(node.Endpoint))
	m[FieldEndpointLength] = slot(unsafe.Offsetof(node.EndpointLength), unsafe.Sizeof(node.EndpointLength))
	layouts[StructNodeContext] = Layout{Size: int(unsafe.Sizeof(node)), Fields: m}

	return layouts
}

func linuxConstants() Constants {
	return Constants{
		Families: []Constant{
			{FamilyUnspecified, unix.AF_UNSPEC},
			{FamilyIPv4, unix.AF_INET},
			{FamilyIPv6, unix.AF_INET6},
		},
		SocketTypes: []Constant{
			{TypeStream, unix.SOCK_STREAM},
			{TypeDatagram, unix.SOCK_DGRAM},
			{TypeRaw, unix.SOCK_RAW},
			{TypeRdm, unix.SOCK_RDM},
			{TypeSeqPacket, unix.SOCK_SEQPACKET},
		},
		Protocols: []Constant{
			{ProtocolIP, unix.IPPROTO_IP},
			{ProtocolIcmp, unix.IPPROTO_ICMP},
			{ProtocolIgmp, unix.IPPROTO_IGMP},
			{ProtocolIPv4, unix.IPPROTO_IPIP},
			{ProtocolTcp, unix.IPPROTO_TCP},
			{ProtocolPup, unix.IPPROTO_PUP},
			{ProtocolUdp, unix.IPPROTO_UDP},
			{ProtocolIdp, unix.IPPROTO_IDP},
			{ProtocolIPv6, unix.IPPROTO_IPV6},
			{ProtocolIPv6RoutingHeader, unix.IPPROTO_ROUTING},
			{ProtocolIPv6FragmentHeader, unix.IPPROTO_FRAGMENT},
			{ProtocolIPSecESP, unix.IPPROTO_ESP},
			{ProtocolIPSecAH, unix.IPPROTO_AH},
			{ProtocolIcmpV6, unix.IPPROTO_ICMPV6},
			{ProtocolIPv6NoNextHeader, unix.IPPROTO_NONE},
			{ProtocolIPv6DestOptions, unix.IPPROTO_DSTOPTS},
			{ProtocolRaw, unix.IPPROTO_RAW},
		},
		SocketErrors: []Constant{
			{ErrorNotConnected, int32(unix.ENOTCONN)},
		},
	}
}
