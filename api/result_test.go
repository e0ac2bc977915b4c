package api

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuture_ResolveOnce(t *testing.T) {
	f := NewFuture[int]()
	assert.False(t, f.IsResolved())

	require.True(t, f.Resolve(5, nil))
	assert.False(t, f.Resolve(6, errors.New("late")))

	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, v)
	assert.True(t, f.IsResolved())
}

func TestFuture_ConcurrentResolve(t *testing.T) {
	f := NewFuture[int]()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			if f.Resolve(v, nil) {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
}

func TestFuture_WaitHonoursContext(t *testing.T) {
	f := NewFuture[bool]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResolved(t *testing.T) {
	boom := errors.New("boom")
	f := Resolved(-1, boom)
	r := f.Result()
	assert.Equal(t, -1, r.Value)
	assert.Same(t, boom, r.Err)
}
