// File: native/layout.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Runtime layout descriptors for native structures.

package native

import (
	"encoding/binary"
	"fmt"
)

// Struct names a native structure whose layout the library publishes.
type Struct int

const (
	StructConfiguration Struct = iota
	StructEndpoint
	StructIPv4Endpoint
	StructIPv6Endpoint
	StructSocketContext
	StructConnectContext
	StructAcceptContext
	StructShutdownContext
	StructClientContext
	StructNodeContext
	structCount
)

var structNames = [...]string{
	"Configuration", "Endpoint", "IPv4Endpoint", "IPv6Endpoint",
	"SocketContext", "ConnectContext", "AcceptContext", "ShutdownContext",
	"ClientContext", "NodeContext",
}

func (s Struct) String() string {
	if s >= 0 && s < structCount {
		return structNames[s]
	}
	return fmt.Sprintf("Struct(%d)", int(s))
}

// Field names one member of a native structure.
type Field int

const (
	FieldFamily Field = iota
	FieldType
	FieldProtocol
	FieldPort
	FieldAddress
	FieldFlowInfo
	FieldScopeID
	FieldDescriptor
	FieldCompletedSynchronously
	FieldCompletedSuccessfully
	FieldErrorCode
	FieldEndpoint
	FieldEndpointLength
	FieldRemoteSocket
	FieldBuffer
	FieldLength
	FieldFlags
	FieldBytesTransferred
)

// Slot is the byte range of a field inside its structure.
type Slot struct {
	Offset int
	Width  int
}

// Layout describes the size and field slots of one native structure.
type Layout struct {
	Size   int
	Fields map[Field]Slot
}

// Has reports whether the structure carries f.
func (l Layout) Has(f Field) bool {
	_, ok := l.Fields[f]
	return ok
}

// Uint reads an unsigned integer field in host byte order.
// Missing fields read as zero.
func (l Layout) Uint(b []byte, f Field) uint64 {
	s, ok := l.Fields[f]
	if !ok {
		return 0
	}
	p := b[s.Offset : s.Offset+s.Width]
	switch s.Width {
	case 1:
		return uint64(p[0])
	case 2:
		return uint64(binary.NativeEndian.Uint16(p))
	case 4:
		return uint64(binary.NativeEndian.Uint32(p))
	case 8:
		return binary.NativeEndian.Uint64(p)
	}
	panic(fmt.Sprintf("native: field %d has unsupported width %d", f, s.Width))
}

// Int reads a signed integer field, sign-extending from its width.
func (l Layout) Int(b []byte, f Field) int64 {
	v := l.Uint(b, f)
	switch l.Fields[f].Width {
	case 1:
		return int64(int8(v))
	case 2:
		return int64(int16(v))
	case 4:
		return int64(int32(v))
	}
	return int64(v)
}

// Bool reads a flag field.
func (l Layout) Bool(b []byte, f Field) bool { return l.Uint(b, f) != 0 }

// PutUint writes an integer field in host byte order, truncating to its width.
// Writes to missing fields are ignored.
func (l Layout) PutUint(b []byte, f Field, v uint64) {
	s, ok := l.Fields[f]
	if !ok {
		return
	}
	p := b[s.Offset : s.Offset+s.Width]
	switch s.Width {
	case 1:
		p[0] = byte(v)
	case 2:
		binary.NativeEndian.PutUint16(p, uint16(v))
	case 4:
		binary.NativeEndian.PutUint32(p, uint32(v))
	case 8:
		binary.NativeEndian.PutUint64(p, v)
	default:
		panic(fmt.Sprintf("native: field %d has unsupported width %d", f, s.Width))
	}
}

// PutInt writes a signed integer field.
func (l Layout) PutInt(b []byte, f Field, v int64) { l.PutUint(b, f, uint64(v)) }

// PutBool writes a flag field.
func (l Layout) PutBool(b []byte, f Field, v bool) {
	var x uint64
	if v {
		x = 1
	}
	l.PutUint(b, f, x)
}

// Raw returns the field bytes without interpretation, or nil if missing.
func (l Layout) Raw(b []byte, f Field) []byte {
	s, ok := l.Fields[f]
	if !ok {
		return nil
	}
	return b[s.Offset : s.Offset+s.Width]
}

// BigEndian reads a network-order field of width 2 or 4.
func (l Layout) BigEndian(b []byte, f Field) uint32 {
	p := l.Raw(b, f)
	switch len(p) {
	case 2:
		return uint32(binary.BigEndian.Uint16(p))
	case 4:
		return binary.BigEndian.Uint32(p)
	}
	return 0
}

// PutBigEndian writes a network-order field of width 2 or 4.
func (l Layout) PutBigEndian(b []byte, f Field, v uint32) {
	p := l.Raw(b, f)
	switch len(p) {
	case 2:
		binary.BigEndian.PutUint16(p, uint16(v))
	case 4:
		binary.BigEndian.PutUint32(p, v)
	}
}
