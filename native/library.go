// File: native/library.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Boundary between the managed socket model and the platform socket layer.

package native

import "errors"

// Code is a raw platform error code. OK means success.
type Code int32

// OK is the success code.
const OK Code = 0

// ErrNotSupported is returned when no native library exists for the platform.
var ErrNotSupported = errors.New("native: this platform is not supported")

// Constant is one named platform value.
type Constant struct {
	Name string
	Code int32
}

// Constant names used by Constants.
const (
	FamilyUnspecified = "Unspecified"
	FamilyIPv4        = "IPv4"
	FamilyIPv6        = "IPv6"

	TypeStream    = "Stream"
	TypeDatagram  = "Datagram"
	TypeRaw       = "Raw"
	TypeRdm       = "ReliablyDeliveredMessages"
	TypeSeqPacket = "SequencedPacket"

	ProtocolIP                 = "IP"
	ProtocolIcmp               = "Icmp"
	ProtocolIgmp               = "Igmp"
	ProtocolIPv4               = "IPv4"
	ProtocolTcp                = "Tcp"
	ProtocolPup                = "Pup"
	ProtocolUdp                = "Udp"
	ProtocolIdp                = "Idp"
	ProtocolIPv6               = "IPv6"
	ProtocolIPv6RoutingHeader  = "IPv6RoutingHeader"
	ProtocolIPv6FragmentHeader = "IPv6FragmentHeader"
	ProtocolIPSecESP           = "IPSecEncapsulatingSecurityPayload"
	ProtocolIPSecAH            = "IPSecAuthenticationHeader"
	ProtocolIcmpV6             = "IcmpV6"
	ProtocolIPv6NoNextHeader   = "IPv6NoNextHeader"
	ProtocolIPv6DestOptions    = "IPv6DestinationOptions"
	ProtocolRaw                = "Raw"

	ErrorNotConnected = "NotConnected"
)

// Constants is the platform's constant registry.
type Constants struct {
	Families     []Constant
	SocketTypes  []Constant
	Protocols    []Constant
	SocketErrors []Constant
}

// Library is the platform socket layer. Pointers are Arena block addresses.
//
// Synchronous calls report failure as a non-OK Code. Submission calls return
// nothing: the library either completes the context in place and sets its
// completed-synchronously flag, or later reports the context pointer exactly
// once through WaitCompletions on the handle.
type Library interface {
	Arena() *Arena
	DescriptorSize() int
	Layout(s Struct) Layout
	Constants() Constants

	Startup() Code
	Cleanup() Code

	// Socket lifecycle. cfg points at a Configuration block.
	CreateSocket(desc, cfg uintptr) Code
	PrepareForAsync(desc, handle uintptr) Code
	// Bind binds to the endpoint and rewrites it with the bound address.
	Bind(desc, ep uintptr, size int) Code
	Close(desc uintptr) Code

	// Connection oriented.
	Connect(desc, ep uintptr, size int) Code
	BeginConnect(handle, cfg, ctx uintptr)
	Shutdown(desc uintptr) Code
	BeginShutdown(handle, cfg, ctx uintptr)
	Listen(desc uintptr, backlog int) Code
	Accept(desc, client, ep uintptr, size int) Code
	BeginAccept(handle, cfg, ctx uintptr)
	Send(desc, buf uintptr, length, flags int) (int, Code)
	BeginSend(handle, ctx uintptr)
	Receive(desc, buf uintptr, length, flags int) (int, Code)
	BeginReceive(handle, ctx uintptr)

	// Connectionless.
	SendTo(desc, buf uintptr, length, flags int, ep uintptr, size int) (int, Code)
	BeginSendTo(handle, ctx uintptr)
	ReceiveFrom(desc, buf uintptr, length, flags int, ep uintptr, size int) (int, Code)
	BeginReceiveFrom(handle, ctx uintptr)

	// Completion multiplexer.
	CreateHandle(concurrency int) (uintptr, Code)
	CloseHandle(handle uintptr) Code
	AllocateEntries(n int) uintptr
	FreeEntries(entries uintptr)
	// WaitCompletions blocks until at least one completion is available and
	// stores up to len(contexts) completed context pointers in order.
	WaitCompletions(handle, entries uintptr, contexts []uintptr) (int, Code)

	// Address parsing into the address field of an endpoint block.
	// ok=false with OK code means the text is malformed.
	ParseIPv4(text string, ep uintptr) (ok bool, code Code)
	ParseIPv6(text string, ep uintptr) (ok bool, code Code)

	// ErrorMessage translates a code into text.
	ErrorMessage(code Code) string
}
