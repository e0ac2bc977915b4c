//go:build linux

package native

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newUDP(t *testing.T, l Library, handle uintptr) (desc, ep uintptr) {
	t.Helper()
	a := l.Arena()
	cfgLay := l.Layout(StructConfiguration)
	cfg := a.Alloc(cfgLay.Size)
	cb := a.Bytes(cfg)
	cfgLay.PutUint(cb, FieldFamily, unix.AF_INET)
	cfgLay.PutInt(cb, FieldType, unix.SOCK_DGRAM)
	cfgLay.PutInt(cb, FieldProtocol, unix.IPPROTO_UDP)

	desc = a.Alloc(l.DescriptorSize())
	require.Equal(t, OK, l.CreateSocket(desc, cfg))
	require.Equal(t, OK, l.PrepareForAsync(desc, handle))

	epLay := l.Layout(StructIPv4Endpoint)
	ep = a.Alloc(epLay.Size)
	eb := a.Bytes(ep)
	epLay.PutUint(eb, FieldFamily, unix.AF_INET)
	copy(epLay.Raw(eb, FieldAddress), []byte{127, 0, 0, 1})
	require.Equal(t, OK, l.Bind(desc, ep, epLay.Size))
	require.NotZero(t, epLay.BigEndian(eb, FieldPort), "bind reports the assigned port")
	return desc, ep
}

func TestLinux_ReceiveFromCompletesThroughHandle(t *testing.T) {
	l, err := Default()
	require.NoError(t, err)
	a := l.Arena()

	handle, code := l.CreateHandle(1)
	require.Equal(t, OK, code)
	defer l.CloseHandle(handle)

	rx, rxEp := newUDP(t, l, handle)
	tx, _ := newUDP(t, l, handle)
	defer l.Close(rx)
	defer l.Close(tx)

	nodeLay := l.Layout(StructNodeContext)
	ctx := a.Alloc(nodeLay.Size)
	cb := a.Bytes(ctx)
	buf := a.Alloc(64)
	from := a.Alloc(l.Layout(StructIPv4Endpoint).Size)
	nodeLay.PutUint(cb, FieldDescriptor, uint64(rx))
	nodeLay.PutUint(cb, FieldBuffer, uint64(buf))
	nodeLay.PutUint(cb, FieldLength, 64)
	nodeLay.PutUint(cb, FieldEndpoint, uint64(from))
	nodeLay.PutInt(cb, FieldEndpointLength, int64(a.Size(from)))

	l.BeginReceiveFrom(handle, ctx)
	require.False(t, nodeLay.Bool(cb, FieldCompletedSynchronously), "nothing to read yet")

	out := a.Alloc(5)
	copy(a.Bytes(out), "hello")
	n, code := l.SendTo(tx, out, 5, 0, rxEp, a.Size(rxEp))
	require.Equal(t, OK, code)
	require.Equal(t, 5, n)

	entries := l.AllocateEntries(8)
	defer l.FreeEntries(entries)
	got := make([]uintptr, 8)

	done := make(chan int, 1)
	go func() {
		k, _ := l.WaitCompletions(handle, entries, got)
		done <- k
	}()
	select {
	case k := <-done:
		require.Equal(t, 1, k)
	case <-time.After(5 * time.Second):
		t.Fatal("no completion")
	}

	assert.Equal(t, ctx, got[0])
	assert.True(t, nodeLay.Bool(cb, FieldCompletedSuccessfully))
	assert.EqualValues(t, 5, nodeLay.Int(cb, FieldBytesTransferred))
	assert.Equal(t, "hello", string(a.Bytes(buf)[:5]))
}

func TestLinux_CloseHandleReleasesWaiters(t *testing.T) {
	l, err := Default()
	require.NoError(t, err)

	handle, code := l.CreateHandle(2)
	require.Equal(t, OK, code)
	entries := l.AllocateEntries(4)
	defer l.FreeEntries(entries)

	done := make(chan Code, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, code := l.WaitCompletions(handle, entries, make([]uintptr, 4))
			done <- code
		}()
	}
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, OK, l.CloseHandle(handle))

	for i := 0; i < 2; i++ {
		select {
		case code := <-done:
			assert.Equal(t, Code(unix.EBADF), code)
		case <-time.After(5 * time.Second):
			t.Fatal("waiter not released")
		}
	}
}

func TestLinux_CloseFailsPendingOperations(t *testing.T) {
	l, err := Default()
	require.NoError(t, err)
	a := l.Arena()

	handle, code := l.CreateHandle(1)
	require.Equal(t, OK, code)
	defer l.CloseHandle(handle)

	rx, _ := newUDP(t, l, handle)

	lay := l.Layout(StructNodeContext)
	ctx := a.Alloc(lay.Size)
	cb := a.Bytes(ctx)
	buf := a.Alloc(8)
	from := a.Alloc(l.Layout(StructIPv4Endpoint).Size)
	lay.PutUint(cb, FieldDescriptor, uint64(rx))
	lay.PutUint(cb, FieldBuffer, uint64(buf))
	lay.PutUint(cb, FieldLength, 8)
	lay.PutUint(cb, FieldEndpoint, uint64(from))

	l.BeginReceiveFrom(handle, ctx)
	require.Equal(t, OK, l.Close(rx))

	entries := l.AllocateEntries(4)
	defer l.FreeEntries(entries)
	got := make([]uintptr, 4)
	n, code := l.WaitCompletions(handle, entries, got)
	require.Equal(t, OK, code)
	require.Equal(t, 1, n)
	assert.Equal(t, ctx, got[0])
	assert.False(t, lay.Bool(cb, FieldCompletedSuccessfully))
	assert.EqualValues(t, unix.EBADF, lay.Int(cb, FieldErrorCode))

	assert.Equal(t, Code(unix.EBADF), l.Close(rx), "closing twice surfaces the platform error")
}

func TestLinux_ParseIPv4(t *testing.T) {
	l, err := Default()
	require.NoError(t, err)
	a := l.Arena()
	ep := a.Alloc(l.Layout(StructIPv4Endpoint).Size)

	ok, code := l.ParseIPv4("192.168.1.20", ep)
	require.True(t, ok)
	require.Equal(t, OK, code)
	assert.Equal(t, []byte{192, 168, 1, 20}, l.Layout(StructIPv4Endpoint).Raw(a.Bytes(ep), FieldAddress))

	ok, code = l.ParseIPv4("300.1.1.1", ep)
	assert.False(t, ok)
	assert.Equal(t, OK, code)

	ok, _ = l.ParseIPv4("::1", ep)
	assert.False(t, ok)
}

func TestLinux_StoredIPv6AddressHasNoFlowInfo(t *testing.T) {
	lib, err := Default()
	require.NoError(t, err)
	l := lib.(*linuxLibrary)
	lay := l.Layout(StructIPv6Endpoint)
	ep := l.Arena().Alloc(lay.Size)
	b := l.Arena().Bytes(ep)
	lay.PutUint(b, FieldFamily, unix.AF_INET6)
	lay.PutBigEndian(b, FieldFlowInfo, 0xbeef)

	sa, code := l.sockaddr(ep, lay.Size)
	require.Equal(t, OK, code)
	in6 := sa.(*unix.SockaddrInet6)
	in6.Port = 4242
	in6.ZoneId = 3
	in6.Addr[15] = 1

	require.Equal(t, OK, l.storeSockaddr(ep, in6))
	assert.Zero(t, lay.BigEndian(b, FieldFlowInfo), "stale flow info is cleared")
	assert.Equal(t, uint32(4242), lay.BigEndian(b, FieldPort))
	assert.Equal(t, uint32(3), lay.BigEndian(b, FieldScopeID))
	assert.Equal(t, byte(1), lay.Raw(b, FieldAddress)[15])
}
