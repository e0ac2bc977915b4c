//go:build linux

package socket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/control"
	"github.com/momentics/hioload-net/endpoint"
)

func startLinux(t *testing.T) *Runtime {
	t.Helper()
	rt, err := Start(WithConfig(control.Config{Workers: 2}))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, rt.Close()) })
	return rt
}

func TestLoopbackUDPRoundTrip(t *testing.T) {
	rt := startLinux(t)
	a, b := nodePair(t, rt)
	la, _ := a.LocalEndpoint()
	lb, _ := b.LocalEndpoint()
	require.NotZero(t, lb.Port())

	payload := []byte{2, 4, 8}
	n, err := a.TrySendTo(payload, len(payload), 0, lb)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	buf := make([]byte, 16)
	n, from, err := b.TryReceiveFrom(buf, len(buf), 0)
	require.NoError(t, err)
	assert.Equal(t, payload, buf[:n])
	assert.Equal(t, la.Port(), from.Port())

	echo := make([]byte, 16)
	received := a.BeginReceiveFrom(echo, len(echo), 0, nil, nil)
	sent, err := waitFor(t, b.BeginSendTo(buf, n, 0, from, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, 3, sent)

	got, err := waitFor(t, received)
	require.NoError(t, err)
	assert.Equal(t, 3, got)
	assert.Equal(t, payload, echo[:got])
}

func TestLoopbackTCPConnectAccept(t *testing.T) {
	rt := startLinux(t)
	l, addr := listen(t, rt)
	c := newClient(t, rt)

	accepted := l.BeginAccept(nil, nil)
	ok, err := waitFor(t, c.BeginConnect(addr, nil, nil))
	require.NoError(t, err)
	require.True(t, ok)

	server, err := waitFor(t, accepted)
	require.NoError(t, err)
	require.NotNil(t, server)
	t.Cleanup(func() { server.TryClose() })

	buf := make([]byte, 8)
	var remote *endpoint.Endpoint
	received := server.BeginReceive(buf, len(buf), 0, func(_ Socket, r *endpoint.Endpoint, _ []byte, _ int) {
		remote = r
	}, nil)
	n, err := c.TrySend([]byte{2, 4, 8}, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = waitFor(t, received)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 4, 8}, buf[:n])
	require.NotNil(t, remote)
	local, _ := c.LocalEndpoint()
	assert.Equal(t, local.Port(), remote.Port())

	require.NoError(t, c.TryShutdown())
	assert.False(t, c.Connected())
}

func TestLoopbackConnectRefused(t *testing.T) {
	rt := startLinux(t)

	// Bind and close a listener to obtain a port nobody listens on.
	probe, err := rt.NewListener(tcp(rt))
	require.NoError(t, err)
	require.NoError(t, probe.TryBind(rt.Endpoints().IPv4Loopback(0)))
	addr, _ := probe.LocalEndpoint()
	port := addr.Port()
	require.NoError(t, probe.TryClose())

	c := newClient(t, rt)
	err = c.TryConnect(rt.Endpoints().IPv4Loopback(port))
	assert.ErrorIs(t, err, api.ErrPlatform)
	assert.False(t, c.Connected())
	assert.NoError(t, c.TryClose())
}
