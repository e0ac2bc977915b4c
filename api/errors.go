// Package api
// Author: momentics <momentics@gmail.com>
//
// Error taxonomy shared by the socket, endpoint and engine packages.

package api

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// Sentinels matched through errors.Is.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrAddressFormat   = errors.New("invalid address format")
	ErrNotConnected    = errors.New("socket is not connected")
	ErrPlatform        = errors.New("platform error")
	ErrClosed          = errors.New("runtime is closed")
	ErrUnknownConstant = errors.New("unknown platform constant")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeAddressFormat
	ErrCodeNotConnected
	ErrCodePlatform
	ErrCodeClosed
	ErrCodeInternal
)

// Coded is implemented by every error the library returns.
type Coded interface {
	error
	ErrorCode() ErrorCode
}

// CodeOf returns the library error code carried by err, if any.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var c Coded
	if errors.As(err, &c) {
		return c.ErrorCode()
	}
	return ErrCodeInternal
}

// ArgumentError reports a missing or invalid argument.
type ArgumentError struct {
	Name string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid argument: %s", e.Name)
}

func (e *ArgumentError) ErrorCode() ErrorCode { return ErrCodeInvalidArgument }

func (e *ArgumentError) Is(target error) bool { return target == ErrInvalidArgument }

// AddressFormatError reports text that is not an address of the expected family.
type AddressFormatError struct {
	Address string
}

func (e *AddressFormatError) Error() string {
	return fmt.Sprintf("invalid address format: %q", e.Address)
}

func (e *AddressFormatError) ErrorCode() ErrorCode { return ErrCodeAddressFormat }

func (e *AddressFormatError) Is(target error) bool { return target == ErrAddressFormat }

// NotConnectedError is returned by operations that need a remote endpoint.
type NotConnectedError struct {
	Code int
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("socket is not connected (code %d)", e.Code)
}

func (e *NotConnectedError) ErrorCode() ErrorCode { return ErrCodeNotConnected }

func (e *NotConnectedError) Is(target error) bool { return target == ErrNotConnected }

// PlatformError carries a raw native error code and its translated message.
type PlatformError struct {
	Code    int
	Message string

	causes error
}

// NewPlatformError builds a PlatformError from a native code.
func NewPlatformError(code int, message string) *PlatformError {
	if message == "" {
		message = ErrnoName(code)
	}
	return &PlatformError{Code: code, Message: message}
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("platform error %d: %s", e.Code, e.Message)
}

func (e *PlatformError) ErrorCode() ErrorCode { return ErrCodePlatform }

func (e *PlatformError) Is(target error) bool { return target == ErrPlatform }

// Unwrap exposes the failures a combined error was built from.
func (e *PlatformError) Unwrap() []error {
	return multierr.Errors(e.causes)
}

// CombinePlatform merges two platform failures raised by one operation.
// The code is the bitwise OR of both codes and the messages are joined
// by a newline. Either argument may be nil.
func CombinePlatform(a, b *PlatformError) *PlatformError {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return &PlatformError{
		Code:    a.Code | b.Code,
		Message: strings.Join([]string{a.Message, b.Message}, "\n"),
		causes:  multierr.Combine(a, b),
	}
}
