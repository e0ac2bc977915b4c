package socket

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/endpoint"
	"github.com/momentics/hioload-net/fake"
	"github.com/momentics/hioload-net/native"
	"github.com/momentics/hioload-net/pool"
)

func nodePair(t *testing.T, rt *Runtime) (*Node, *Node) {
	t.Helper()
	a, err := rt.NewNode(udp(rt))
	require.NoError(t, err)
	b, err := rt.NewNode(udp(rt))
	require.NoError(t, err)
	require.NoError(t, a.TryBind(rt.Endpoints().IPv4Loopback(0)))
	require.NoError(t, b.TryBind(rt.Endpoints().IPv4Loopback(0)))
	t.Cleanup(func() {
		a.TryClose()
		b.TryClose()
	})
	return a, b
}

func TestNodeCreateRejectsMismatchedProtocol(t *testing.T) {
	rt, lib := startFake(t)
	r := rt.Endpoints()
	cfg := r.Configuration(r.Families.IPv4, r.Types.Stream, r.Protocols.Udp)

	_, err := rt.NewNode(cfg)
	require.Error(t, err)
	var pe *api.PlatformError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, int(fake.EPROTONOSUPPORT), pe.Code)
	assert.Equal(t, 0, lib.OpenSockets())
}

func TestNodeNilConfiguration(t *testing.T) {
	rt, lib := startFake(t)
	_, err := rt.NewNode(nil)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
	assert.Equal(t, 0, lib.Calls(fake.OpCreateSocket))
}

func TestPrepareFailureCombinesCloseFailure(t *testing.T) {
	rt, lib := startFake(t)
	lib.FailNext(fake.OpPrepareForAsync, fake.EINVAL)
	lib.FailNext(fake.OpClose, fake.EBADF)

	_, err := rt.NewNode(udp(rt))
	require.Error(t, err)
	var pe *api.PlatformError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, int(fake.EINVAL|fake.EBADF), pe.Code)
	assert.Equal(t, "fake error 22\nfake error 9", pe.Message)
	assert.Len(t, pe.Unwrap(), 2)
}

func TestPrepareFailureClosesSocket(t *testing.T) {
	rt, lib := startFake(t)
	lib.FailNext(fake.OpPrepareForAsync, fake.EINVAL)

	_, err := rt.NewNode(udp(rt))
	require.Error(t, err)
	assert.Equal(t, 1, lib.Calls(fake.OpClose))
	assert.Equal(t, 0, lib.OpenSockets())
}

func TestNodeBindReportsAssignedPort(t *testing.T) {
	rt, _ := startFake(t)
	a, b := nodePair(t, rt)

	la, ok := a.LocalEndpoint()
	require.True(t, ok)
	lb, _ := b.LocalEndpoint()
	assert.NotZero(t, la.Port())
	assert.NotEqual(t, la.Port(), lb.Port())
	assert.True(t, a.Bound())
}

func TestNodeRoundTripSync(t *testing.T) {
	rt, _ := startFake(t)
	a, b := nodePair(t, rt)
	la, _ := a.LocalEndpoint()
	lb, _ := b.LocalEndpoint()

	payload := []byte{2, 4, 8}
	n, err := a.TrySendTo(payload, len(payload), 0, lb)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	buf := make([]byte, 16)
	n, from, err := b.TryReceiveFrom(buf, len(buf), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, payload, buf[:n])
	assert.Equal(t, la.Port(), from.Port())

	n, err = b.TrySendTo(buf, n, 0, from)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	echo := make([]byte, 3)
	n, _, err = a.TryReceiveFrom(echo, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, payload, echo[:n])
}

func TestNodeSingleByte(t *testing.T) {
	rt, _ := startFake(t)
	a, b := nodePair(t, rt)
	lb, _ := b.LocalEndpoint()

	require.NoError(t, a.TrySendByteTo(0x7f, 0, lb))
	v, from, err := b.TryReceiveByteFrom(0)
	require.NoError(t, err)
	assert.Equal(t, byte(0x7f), v)
	assert.NotNil(t, from)
}

func TestNodeRoundTripAsync(t *testing.T) {
	rt, _ := startFake(t)
	a, b := nodePair(t, rt)
	la, _ := a.LocalEndpoint()
	lb, _ := b.LocalEndpoint()

	buf := make([]byte, 8)
	var sender atomic.Pointer[endpoint.Endpoint]
	received := b.BeginReceiveFrom(buf, len(buf), 0, func(s Socket, remote *endpoint.Endpoint, got []byte, n int) {
		assert.Same(t, b, s)
		sender.Store(remote)
	}, nil)
	assert.False(t, received.IsResolved())

	var sentCalls atomic.Int32
	sent := a.BeginSendTo([]byte{2, 4, 8}, 3, 0, lb, func(Socket, *endpoint.Endpoint, []byte, int) {
		sentCalls.Add(1)
	}, nil)

	n, err := waitFor(t, sent)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = waitFor(t, received)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte{2, 4, 8}, buf[:3])
	require.NotNil(t, sender.Load())
	assert.Equal(t, la.Port(), sender.Load().Port())
	assert.Equal(t, int32(1), sentCalls.Load())
}

func TestNodeLazyBind(t *testing.T) {
	rt, lib := startFake(t)
	a, err := rt.NewNode(udp(rt))
	require.NoError(t, err)
	defer a.TryClose()
	_, b := nodePair(t, rt)
	lb, _ := b.LocalEndpoint()

	binds := lib.Calls(fake.OpBind)
	assert.False(t, a.Bound())
	_, err = a.TrySendTo([]byte{1}, 1, 0, lb)
	require.NoError(t, err)
	assert.True(t, a.Bound())
	_, err = a.TrySendTo([]byte{1}, 1, 0, lb)
	require.NoError(t, err)
	assert.Equal(t, binds+1, lib.Calls(fake.OpBind))
}

func TestNodeArgumentErrors(t *testing.T) {
	rt, lib := startFake(t)
	a, b := nodePair(t, rt)
	lb, _ := b.LocalEndpoint()

	_, err := a.TrySendTo(nil, 0, 0, lb)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
	_, err = a.TrySendTo(make([]byte, 2), 3, 0, lb)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
	_, err = a.TrySendTo(make([]byte, 2), 2, 0, nil)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
	_, _, err = a.TryReceiveFrom(make([]byte, 2), -1, 0)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)

	var reported error
	f := a.BeginSendTo(make([]byte, 2), 2, 0, nil, nil, func(s Socket, err error) { reported = err })
	require.True(t, f.IsResolved())
	n, err := waitFor(t, f)
	assert.Equal(t, -1, n)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
	assert.ErrorIs(t, reported, api.ErrInvalidArgument)

	assert.Equal(t, 0, lib.Calls(fake.OpSendTo))
	assert.Equal(t, 0, lib.Calls(fake.OpBeginSendTo))
}

func TestNodeCloseTwice(t *testing.T) {
	rt, _ := startFake(t)
	a, err := rt.NewNode(udp(rt))
	require.NoError(t, err)

	require.NoError(t, a.TryClose())
	assert.False(t, a.Bound())
	err = a.TryClose()
	var pe *api.PlatformError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, int(fake.EBADF), pe.Code)
}

func TestBeginFailureReportsPlatformError(t *testing.T) {
	rt, lib := startFake(t)
	a, b := nodePair(t, rt)
	lb, _ := b.LocalEndpoint()
	lib.FailNext(fake.OpBeginSendTo, fake.EINVAL)

	var calls atomic.Int32
	var reported error
	f := a.BeginSendTo([]byte{1, 2}, 2, 0, lb, nil, func(s Socket, err error) {
		calls.Add(1)
		reported = err
	})
	n, err := waitFor(t, f)
	assert.Equal(t, -1, n)
	assert.ErrorIs(t, err, api.ErrPlatform)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, err, reported)
}

func TestSynchronousCompletionRunsOnce(t *testing.T) {
	rt, lib := startFake(t)
	a, b := nodePair(t, rt)
	lb, _ := b.LocalEndpoint()

	var calls atomic.Int32
	f := a.BeginSendTo([]byte{2, 4, 8}, 3, 0, lb, func(Socket, *endpoint.Endpoint, []byte, int) {
		calls.Add(1)
	}, nil)
	require.True(t, f.IsResolved(), "a synchronous completion resolves before Begin returns")
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(rt.metrics.SyncCompletions))

	// A late delivery of the same context through the completion handle is
	// recognised as already claimed.
	ctx := rt.nodes.Acquire(func() *NodeContext {
		t.Fatal("context was not returned to its pool")
		return nil
	})
	ptr := ctx.ptr
	rt.nodes.Release(ctx)
	lib.Post(rt.engine.Handle(), ptr)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(rt.metrics.Duplicates) == 1
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, float64(0), testutil.ToFloat64(rt.metrics.InFlight))
}

func TestDeferredCompletionGoesThroughEngine(t *testing.T) {
	rt, lib := startFake(t)
	a, b := nodePair(t, rt)
	lb, _ := b.LocalEndpoint()
	lib.SetDeferred(true)

	n, err := waitFor(t, a.BeginSendTo([]byte{2, 4, 8}, 3, 0, lb, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, float64(0), testutil.ToFloat64(rt.metrics.SyncCompletions))

	buf := make([]byte, 3)
	n, _, err = b.TryReceiveFrom(buf, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 4, 8}, buf[:n])
}

func TestPanickingCallbackStillResolvesThroughEngine(t *testing.T) {
	reg := pool.NewRegistry()
	nodes := pool.NewConcurrent[*NodeContext](1)
	pool.Offer[*NodeContext](reg, nodes)
	rt, lib := startFake(t, WithPoolRegistry(reg))
	a, b := nodePair(t, rt)
	lb, _ := b.LocalEndpoint()
	lib.SetDeferred(true)

	boom := func(Socket, *endpoint.Endpoint, []byte, int) { panic("callback failed") }
	n, err := waitFor(t, a.BeginSendTo([]byte{2, 4, 8}, 3, 0, lb, boom, nil))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Eventually(t, func() bool { return nodes.Idle() == 1 }, 5*time.Second, 5*time.Millisecond,
		"the context returns to its pool")
	assert.Equal(t, float64(0), testutil.ToFloat64(rt.metrics.InFlight))

	n, err = waitFor(t, a.BeginSendTo([]byte{1}, 1, 0, lb, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, uint64(1), nodes.Stats().Created)
}

func TestPanickingCallbackOnSynchronousCompletion(t *testing.T) {
	reg := pool.NewRegistry()
	nodes := pool.NewConcurrent[*NodeContext](1)
	pool.Offer[*NodeContext](reg, nodes)
	rt, _ := startFake(t, WithPoolRegistry(reg))
	a, b := nodePair(t, rt)
	lb, _ := b.LocalEndpoint()

	boom := func(Socket, *endpoint.Endpoint, []byte, int) { panic("callback failed") }
	assert.PanicsWithValue(t, "callback failed", func() {
		a.BeginSendTo([]byte{2, 4, 8}, 3, 0, lb, boom, nil)
	})
	assert.Equal(t, 1, nodes.Idle(), "the context returns to its pool")
	assert.Equal(t, float64(0), testutil.ToFloat64(rt.metrics.InFlight))
}

func TestContextReuseUsesLatestHydration(t *testing.T) {
	reg := pool.NewRegistry()
	nodes := pool.NewConcurrent[*NodeContext](1)
	pool.Offer[*NodeContext](reg, nodes)
	rt, lib := startFake(t, WithPoolRegistry(reg))
	_, b := nodePair(t, rt)
	lib.SetManual(true)

	first := make([]byte, 4)
	f1 := b.BeginReceiveFrom(first, 4, 0, nil, nil)
	s1, ok := lib.Next(5 * time.Second)
	require.True(t, ok)
	assert.Equal(t, fake.OpBeginReceiveFrom, s1.Op)
	lib.Fill(s1, []byte{1, 1, 1, 1})
	lib.Complete(s1, native.OK, 4)
	n, err := waitFor(t, f1)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	require.Eventually(t, func() bool { return nodes.Idle() == 1 }, 5*time.Second, time.Millisecond)

	second := make([]byte, 4)
	var seen []byte
	f2 := b.BeginReceiveFrom(second, 4, 0, func(_ Socket, _ *endpoint.Endpoint, buf []byte, n int) {
		seen = buf[:n]
	}, nil)
	s2, ok := lib.Next(5 * time.Second)
	require.True(t, ok)
	assert.Equal(t, s1.Context, s2.Context, "the pooled context is reused")
	lib.Fill(s2, []byte{2, 2})
	lib.Complete(s2, native.OK, 2)

	n, err = waitFor(t, f2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte{2, 2}, second[:2])
	assert.Equal(t, []byte{1, 1, 1, 1}, first)
	require.Len(t, seen, 2)
	assert.Same(t, &second[0], &seen[0])
	assert.Equal(t, uint64(1), nodes.Stats().Created)
	assert.Equal(t, uint64(1), nodes.Stats().Reused)
}

func TestReceiveFailureCompletesThroughEngine(t *testing.T) {
	rt, lib := startFake(t)
	_, b := nodePair(t, rt)
	lib.SetManual(true)

	f := b.BeginReceiveFrom(make([]byte, 4), 4, 0, nil, nil)
	s, ok := lib.Next(5 * time.Second)
	require.True(t, ok)
	lib.Complete(s, fake.ECONNREFUSED, 0)

	n, err := waitFor(t, f)
	assert.Equal(t, -1, n)
	var pe *api.PlatformError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, int(fake.ECONNREFUSED), pe.Code)
}
