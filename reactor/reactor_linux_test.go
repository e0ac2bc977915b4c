//go:build linux

package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestReactor_ReadableAfterWrite(t *testing.T) {
	r, err := NewReactor()
	require.NoError(t, err)
	defer r.Close()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	require.NoError(t, err)
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	require.NoError(t, r.Register(fds[0]))
	_, err = unix.Write(fds[1], []byte("x"))
	require.NoError(t, err)

	events := make([]Event, 8)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		n, err := r.Wait(events)
		require.NoError(t, err)
		for _, ev := range events[:n] {
			if ev.Fd == fds[0] && ev.Readable {
				return
			}
		}
	}
	t.Fatal("no readable event")
}

func TestReactor_WakeUnblocksWait(t *testing.T) {
	r, err := NewReactor()
	require.NoError(t, err)
	defer r.Close()

	done := make(chan int, 1)
	go func() {
		n, _ := r.Wait(make([]Event, 4))
		done <- n
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, r.Wake())

	select {
	case n := <-done:
		assert.Equal(t, 0, n, "wake-ups are not reported as events")
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after Wake")
	}
}

func TestReactor_CloseTwice(t *testing.T) {
	r, err := NewReactor()
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.ErrorIs(t, r.Close(), ErrClosed)
	assert.ErrorIs(t, r.Wake(), ErrClosed)
}
