package socket

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/endpoint"
	"github.com/momentics/hioload-net/fake"
)

func listen(t *testing.T, rt *Runtime) (*Listener, *endpoint.Endpoint) {
	t.Helper()
	l, err := rt.NewListener(tcp(rt))
	require.NoError(t, err)
	require.NoError(t, l.TryBind(rt.Endpoints().IPv4Loopback(0)))
	require.NoError(t, l.TryListen(0))
	t.Cleanup(func() { l.TryClose() })
	local, ok := l.LocalEndpoint()
	require.True(t, ok)
	return l, local
}

func newClient(t *testing.T, rt *Runtime) *Client {
	t.Helper()
	c, err := rt.NewClient(tcp(rt))
	require.NoError(t, err)
	t.Cleanup(func() { c.TryClose() })
	return c
}

func TestClientNotConnected(t *testing.T) {
	rt, lib := startFake(t)
	c := newClient(t, rt)

	_, err := c.TrySend([]byte{1, 2, 3}, 3, 0)
	assert.ErrorIs(t, err, api.ErrNotConnected)
	assert.Equal(t, api.ErrCodeNotConnected, api.CodeOf(err))
	_, err = c.TryReceive(make([]byte, 3), 3, 0)
	assert.ErrorIs(t, err, api.ErrNotConnected)
	assert.ErrorIs(t, c.TryShutdown(), api.ErrNotConnected)

	var reported atomic.Int32
	onError := func(s Socket, err error) {
		assert.Same(t, c, s)
		assert.ErrorIs(t, err, api.ErrNotConnected)
		reported.Add(1)
	}
	n, err := waitFor(t, c.BeginSend([]byte{1}, 1, 0, nil, onError))
	assert.Equal(t, -1, n)
	assert.ErrorIs(t, err, api.ErrNotConnected)
	ok, err := waitFor(t, c.BeginShutdown(nil, onError))
	assert.False(t, ok)
	assert.ErrorIs(t, err, api.ErrNotConnected)
	assert.Equal(t, int32(2), reported.Load())

	assert.Equal(t, 0, lib.Calls(fake.OpSend))
	assert.Equal(t, 0, lib.Calls(fake.OpReceive))
	assert.Equal(t, 0, lib.Calls(fake.OpShutdown))
	assert.Equal(t, 0, lib.Calls(fake.OpBeginSend))
}

func TestNotConnectedErrorCarriesPlatformCode(t *testing.T) {
	rt, _ := startFake(t)
	c := newClient(t, rt)

	_, err := c.TrySend([]byte{1}, 1, 0)
	var nc *api.NotConnectedError
	require.ErrorAs(t, err, &nc)
	assert.Equal(t, int(fake.ENOTCONN), nc.Code)
}

func TestConnectAcceptSync(t *testing.T) {
	rt, _ := startFake(t)
	l, addr := listen(t, rt)
	c := newClient(t, rt)

	require.NoError(t, c.TryConnect(addr))
	assert.True(t, c.Connected())
	assert.True(t, c.Bound(), "connect binds first")
	remote, ok := c.RemoteEndpoint()
	require.True(t, ok)
	assert.Equal(t, addr.Port(), remote.Port())

	server, err := l.TryAccept()
	require.NoError(t, err)
	t.Cleanup(func() { server.TryClose() })
	assert.True(t, server.Connected())
	peer, _ := server.RemoteEndpoint()
	local, _ := c.LocalEndpoint()
	assert.Equal(t, local.Port(), peer.Port())

	n, err := c.TrySend([]byte{2, 4, 8}, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	buf := make([]byte, 8)
	n, err = server.TryReceive(buf, len(buf), 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 4, 8}, buf[:n])

	require.NoError(t, server.TrySendByte(9, 0))
	b, err := c.TryReceiveByte(0)
	require.NoError(t, err)
	assert.Equal(t, byte(9), b)
}

func TestAcceptWithoutPendingConnection(t *testing.T) {
	rt, lib := startFake(t)
	l, _ := listen(t, rt)
	live := lib.Arena().Live()

	_, err := l.TryAccept()
	var pe *api.PlatformError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, int(fake.EAGAIN), pe.Code)
	assert.LessOrEqual(t, lib.Arena().Live(), live+1, "the client descriptor is freed")
}

func TestConnectRefused(t *testing.T) {
	rt, _ := startFake(t)
	c := newClient(t, rt)

	err := c.TryConnect(rt.Endpoints().IPv4Loopback(1))
	var pe *api.PlatformError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, int(fake.ECONNREFUSED), pe.Code)
	assert.False(t, c.Connected())
	assert.NoError(t, c.TryClose())
}

func TestBeginConnectAndAccept(t *testing.T) {
	rt, _ := startFake(t)
	l, addr := listen(t, rt)
	c := newClient(t, rt)

	var acceptedBy atomic.Pointer[Listener]
	accepted := l.BeginAccept(func(from *Listener, _ *Client) { acceptedBy.Store(from) }, nil)
	assert.False(t, accepted.IsResolved())

	var connectedTo atomic.Pointer[endpoint.Endpoint]
	connected := c.BeginConnect(addr, func(_ *Client, remote *endpoint.Endpoint) { connectedTo.Store(remote) }, nil)

	ok, err := waitFor(t, connected)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Same(t, addr, connectedTo.Load())
	assert.True(t, c.Connected())

	server, err := waitFor(t, accepted)
	require.NoError(t, err)
	require.NotNil(t, server)
	t.Cleanup(func() { server.TryClose() })
	assert.Same(t, l, acceptedBy.Load())
	assert.True(t, server.Connected())
}

func TestBeginConnectRefused(t *testing.T) {
	rt, _ := startFake(t)
	c := newClient(t, rt)

	var failures atomic.Int32
	ok, err := waitFor(t, c.BeginConnect(rt.Endpoints().IPv4Loopback(1), nil, func(Socket, error) { failures.Add(1) }))
	assert.False(t, ok)
	assert.ErrorIs(t, err, api.ErrPlatform)
	assert.Equal(t, int32(1), failures.Load())
	assert.False(t, c.Connected())
}

func TestStreamTransferAsync(t *testing.T) {
	rt, _ := startFake(t)
	l, addr := listen(t, rt)
	c := newClient(t, rt)
	require.NoError(t, c.TryConnect(addr))
	server, err := l.TryAccept()
	require.NoError(t, err)
	t.Cleanup(func() { server.TryClose() })

	buf := make([]byte, 16)
	var got atomic.Int32
	received := server.BeginReceive(buf, len(buf), 0, func(s Socket, remote *endpoint.Endpoint, b []byte, n int) {
		got.Store(int32(n))
	}, nil)

	n, err := waitFor(t, c.BeginSend([]byte{2, 4, 8}, 3, 0, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = waitFor(t, received)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, int32(3), got.Load())
	assert.Equal(t, []byte{2, 4, 8}, buf[:3])
}

func TestShutdownClearsRemote(t *testing.T) {
	rt, _ := startFake(t)
	l, addr := listen(t, rt)
	c := newClient(t, rt)
	require.NoError(t, c.TryConnect(addr))
	server, err := l.TryAccept()
	require.NoError(t, err)
	t.Cleanup(func() { server.TryClose() })

	var shut atomic.Int32
	ok, err := waitFor(t, c.BeginShutdown(func(*Client) { shut.Add(1) }, nil))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(1), shut.Load())
	assert.False(t, c.Connected())
	assert.True(t, c.Bound(), "shutdown keeps the local endpoint")

	_, err = c.TrySend([]byte{1}, 1, 0)
	assert.ErrorIs(t, err, api.ErrNotConnected)

	n, err := server.TryReceive(make([]byte, 4), 4, 0)
	require.NoError(t, err)
	assert.Zero(t, n, "the peer sees end of stream")
}

func TestClientCloseForgetsEndpoints(t *testing.T) {
	rt, _ := startFake(t)
	_, addr := listen(t, rt)
	c, err := rt.NewClient(tcp(rt))
	require.NoError(t, err)
	require.NoError(t, c.TryConnect(addr))

	require.NoError(t, c.TryClose())
	assert.False(t, c.Connected())
	assert.False(t, c.Bound())
}

func TestListenerDefaultBacklog(t *testing.T) {
	rt, lib := startFake(t)
	l, err := rt.NewListener(tcp(rt))
	require.NoError(t, err)
	defer l.TryClose()

	require.NoError(t, l.TryListen(-1))
	assert.True(t, l.Bound(), "listen binds first")
	assert.Equal(t, 1, lib.Calls(fake.OpListen))
}
