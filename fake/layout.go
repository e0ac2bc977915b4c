// Package fake
// Author: momentics <momentics@gmail.com>
//
// Layouts and constants of the fake native library. They deliberately differ
// from every real platform so that managed code relying on fixed offsets
// fails the tests.

package fake

import "github.com/momentics/hioload-net/native"

// Error codes reported by the fake library.
const (
	EBADF           native.Code = 9
	EINVAL          native.Code = 22
	EPROTONOSUPPORT native.Code = 93
	ENOTCONN        native.Code = 107
	ECONNREFUSED    native.Code = 111
)

// Platform constant values.
const (
	FamilyIPv4 = 2
	FamilyIPv6 = 10

	TypeStream   = 1
	TypeDatagram = 2

	ProtocolTcp = 6
	ProtocolUdp = 17
)

const descriptorSize = 16

func s(off, width int) native.Slot { return native.Slot{Offset: off, Width: width} }

func header() map[native.Field]native.Slot {
	return map[native.Field]native.Slot{
		native.FieldErrorCode:              s(0, 4),
		native.FieldCompletedSuccessfully:  s(4, 1),
		native.FieldCompletedSynchronously: s(5, 1),
		native.FieldDescriptor:             s(8, 8),
	}
}

func with(m map[native.Field]native.Slot, extra map[native.Field]native.Slot) map[native.Field]native.Slot {
	for k, v := range extra {
		m[k] = v
	}
	return m
}

func layouts() map[native.Struct]native.Layout {
	return map[native.Struct]native.Layout{
		native.StructConfiguration: {Size: 16, Fields: map[native.Field]native.Slot{
			native.FieldProtocol: s(0, 4),
			native.FieldType:     s(4, 4),
			native.FieldFamily:   s(8, 2),
		}},
		native.StructEndpoint: {Size: 32, Fields: map[native.Field]native.Slot{
			native.FieldFamily: s(0, 2),
		}},
		native.StructIPv4Endpoint: {Size: 16, Fields: map[native.Field]native.Slot{
			native.FieldFamily:  s(0, 2),
			native.FieldPort:    s(2, 2),
			native.FieldAddress: s(4, 4),
		}},
		native.StructIPv6Endpoint: {Size: 28, Fields: map[native.Field]native.Slot{
			native.FieldFamily:   s(0, 2),
			native.FieldPort:     s(2, 2),
			native.FieldFlowInfo: s(4, 4),
			native.FieldAddress:  s(8, 16),
			native.FieldScopeID:  s(24, 4),
		}},
		native.StructSocketContext:   {Size: 16, Fields: header()},
		native.StructShutdownContext: {Size: 16, Fields: header()},
		native.StructConnectContext: {Size: 32, Fields: with(header(), map[native.Field]native.Slot{
			native.FieldEndpoint:       s(16, 8),
			native.FieldEndpointLength: s(24, 4),
		})},
		native.StructAcceptContext: {Size: 40, Fields: with(header(), map[native.Field]native.Slot{
			native.FieldRemoteSocket:   s(16, 8),
			native.FieldEndpoint:       s(24, 8),
			native.FieldEndpointLength: s(32, 4),
		})},
		native.StructClientContext: {Size: 40, Fields: with(header(), map[native.Field]native.Slot{
			native.FieldLength:           s(16, 4),
			native.FieldFlags:            s(20, 4),
			native.FieldBuffer:           s(24, 8),
			native.FieldBytesTransferred: s(32, 8),
		})},
		native.StructNodeContext: {Size: 56, Fields: with(header(), map[native.Field]native.Slot{
			native.FieldLength:           s(16, 4),
			native.FieldFlags:            s(20, 4),
			native.FieldBuffer:           s(24, 8),
			native.FieldBytesTransferred: s(32, 8),
			native.FieldEndpoint:         s(40, 8),
			native.FieldEndpointLength:   s(48, 4),
		})},
	}
}

func constants() native.Constants {
	return native.Constants{
		Families: []native.Constant{
			{Name: native.FamilyUnspecified, Code: 0},
			{Name: native.FamilyIPv4, Code: FamilyIPv4},
			{Name: native.FamilyIPv6, Code: FamilyIPv6},
		},
		SocketTypes: []native.Constant{
			{Name: native.TypeStream, Code: TypeStream},
			{Name: native.TypeDatagram, Code: TypeDatagram},
			{Name: native.TypeRaw, Code: 3},
			{Name: native.TypeRdm, Code: 4},
			{Name: native.TypeSeqPacket, Code: 5},
		},
		Protocols: []native.Constant{
			{Name: native.ProtocolIP, Code: 0},
			{Name: native.ProtocolIcmp, Code: 1},
			{Name: native.ProtocolIgmp, Code: 2},
			{Name: native.ProtocolIPv4, Code: 4},
			{Name: native.ProtocolTcp, Code: ProtocolTcp},
			{Name: native.ProtocolPup, Code: 12},
			{Name: native.ProtocolUdp, Code: ProtocolUdp},
			{Name: native.ProtocolIdp, Code: 22},
			{Name: native.ProtocolIPv6, Code: 41},
			{Name: native.ProtocolIPv6RoutingHeader, Code: 43},
			{Name: native.ProtocolIPv6FragmentHeader, Code: 44},
			{Name: native.ProtocolIPSecESP, Code: 50},
			{Name: native.ProtocolIPSecAH, Code: 51},
			{Name: native.ProtocolIcmpV6, Code: 58},
			{Name: native.ProtocolIPv6NoNextHeader, Code: 59},
			{Name: native.ProtocolIPv6DestOptions, Code: 60},
			{Name: native.ProtocolRaw, Code: 255},
		},
		SocketErrors: []native.Constant{
			{Name: native.ErrorNotConnected, Code: int32(ENOTCONN)},
		},
	}
}
