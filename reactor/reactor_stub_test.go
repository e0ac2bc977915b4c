//go:build !linux

package reactor

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReactorUnsupported(t *testing.T) {
	r, err := NewReactor()
	require.ErrorIs(t, err, ErrUnsupported)
	assert.Nil(t, r)
	assert.Contains(t, err.Error(), runtime.GOOS)
}
