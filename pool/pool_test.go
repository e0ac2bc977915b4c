package pool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-net/api"
)

type item struct{ id int }

func TestBucket(t *testing.T) {
	cases := map[int]int{-3: 1, 0: 1, 1: 1, 2: 2, 3: 4, 4: 4, 5: 8, 1000: 1024, 1024: 1024, 1025: 2048}
	for in, want := range cases {
		assert.Equal(t, want, Bucket(in), "Bucket(%d)", in)
	}
}

func TestConcurrent_ReuseAndDecline(t *testing.T) {
	p := NewConcurrent[*item](2)
	built := 0
	mk := func() *item { built++; return &item{id: built} }

	a := p.Acquire(mk)
	b := p.Acquire(mk)
	c := p.Acquire(mk)
	require.Equal(t, 3, built)

	assert.True(t, p.Release(a))
	assert.True(t, p.Release(b))
	assert.False(t, p.Release(c), "bounded pool declines when full")

	assert.Same(t, a, p.Acquire(mk))
	assert.Equal(t, Stats{Created: 3, Reused: 1, Declined: 1}, p.Stats())
	assert.True(t, p.IsThreadSafe())
}

func TestConcurrent_Parallel(t *testing.T) {
	p := NewConcurrent[*item](64)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				it := p.Acquire(func() *item { return &item{} })
				it.id++
				p.Release(it)
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, p.Idle(), 64)
}

func TestLocal_FIFO(t *testing.T) {
	p := NewLocal[int]()
	assert.False(t, p.IsThreadSafe())
	assert.Equal(t, 7, p.Acquire(func() int { return 7 }))

	p.Release(1)
	p.Release(2)
	assert.Equal(t, 2, p.Idle())
	assert.Equal(t, 1, p.Acquire(nil))
	assert.Equal(t, 2, p.Acquire(nil))
}

func TestKeyed_SeparatesKeys(t *testing.T) {
	k := NewKeyed[int, []byte](4)
	small := k.Acquire(8, func(n int) []byte { return make([]byte, n) })
	require.Len(t, small, 8)
	k.Release(8, small)

	big := k.Acquire(16, func(n int) []byte { return make([]byte, n) })
	assert.Len(t, big, 16, "a different key never hands out the idle 8-byte item")

	again := k.Acquire(8, func(n int) []byte { return make([]byte, n) })
	assert.Same(t, &small[0], &again[0])

	k.Release(8, again)
	k.Release(16, big)
	drained := map[int]int{}
	k.Drain(func(key int, _ []byte) { drained[key]++ })
	assert.Equal(t, map[int]int{8: 1, 16: 1}, drained)
}

func TestRegistry_PrefersThreadSafeCandidate(t *testing.T) {
	r := NewRegistry()
	local := NewLocal[*item]()
	shared := NewConcurrent[*item](8)
	Offer[*item](r, local)
	Offer[*item](r, shared)

	got := GetOrAdd[*item](r, nil)
	assert.Same(t, shared, got)
	assert.Same(t, got, GetOrAdd[*item](r, func() api.Pool[*item] {
		t.Fatal("selection happens once")
		return nil
	}))
}

func TestRegistry_FallsBackWhenNoneThreadSafe(t *testing.T) {
	r := NewRegistry()
	Offer[*item](r, NewLocal[*item]())

	got := GetOrAdd[*item](r, nil)
	_, ok := got.(*Concurrent[*item])
	assert.True(t, ok)
	assert.True(t, got.IsThreadSafe())
}

func TestRegistry_ConcurrentFirstUse(t *testing.T) {
	r := NewRegistry()
	const n = 16
	pools := make([]api.Pool[*item], n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pools[i] = GetOrAdd[*item](r, nil)
		}(i)
	}
	wg.Wait()
	for _, p := range pools[1:] {
		assert.Same(t, pools[0], p)
	}
}

func TestRegistry_Keyed(t *testing.T) {
	r := NewRegistry()
	kp := NewKeyed[int, uintptr](4)
	OfferKeyed[int, uintptr](r, kp)
	assert.Same(t, kp, GetOrAddKeyed[int, uintptr](r, nil))

	other := GetOrAddKeyed[string, uintptr](r, nil)
	assert.NotNil(t, other)
}
