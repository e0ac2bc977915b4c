package api

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrors_MatchSentinels(t *testing.T) {
	cases := []struct {
		err      error
		sentinel error
		code     ErrorCode
	}{
		{&ArgumentError{Name: "endpoint"}, ErrInvalidArgument, ErrCodeInvalidArgument},
		{&AddressFormatError{Address: "nope"}, ErrAddressFormat, ErrCodeAddressFormat},
		{&NotConnectedError{Code: 107}, ErrNotConnected, ErrCodeNotConnected},
		{NewPlatformError(98, ""), ErrPlatform, ErrCodePlatform},
	}
	for _, c := range cases {
		wrapped := fmt.Errorf("op: %w", c.err)
		assert.ErrorIs(t, wrapped, c.sentinel, c.err.Error())
		assert.Equal(t, c.code, CodeOf(wrapped))
	}
	assert.Equal(t, ErrCodeOK, CodeOf(nil))
	assert.Equal(t, ErrCodeInternal, CodeOf(errors.New("other")))
}

func TestCombinePlatform(t *testing.T) {
	a := &PlatformError{Code: 0x10, Message: "prepare failed"}
	b := &PlatformError{Code: 0x01, Message: "close failed"}

	c := CombinePlatform(a, b)
	require.NotNil(t, c)
	assert.Equal(t, 0x11, c.Code)
	assert.Equal(t, "prepare failed\nclose failed", c.Message)

	var pe *PlatformError
	require.ErrorAs(t, c, &pe)
	assert.Len(t, c.Unwrap(), 2)
	assert.ErrorIs(t, c, ErrPlatform)

	assert.Same(t, a, CombinePlatform(a, nil))
	assert.Same(t, b, CombinePlatform(nil, b))
}

func TestNewPlatformError_TranslatesCode(t *testing.T) {
	err := NewPlatformError(22, "")
	assert.NotEmpty(t, err.Message)
	assert.Contains(t, err.Error(), "22")
}
