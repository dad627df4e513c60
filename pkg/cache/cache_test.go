package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestGetOrComputeSingleFlight(t *testing.T) {
	c := New[string](Options{})

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "model", nil
	}

	const n = 50
	var wg sync.WaitGroup
	results := make([]string, n)
	outcomes := make([]Outcome, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], outcomes[i], errs[i] = c.GetOrCompute(context.Background(), "k", compute)
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	counts := map[Outcome]int{}
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "model", results[i])
		counts[outcomes[i]]++
	}
	assert.Equal(t, 1, counts[Miss], "exactly one caller computes")
	assert.Equal(t, n-1, counts[Shared]+counts[Hit])

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(n-1), stats.Shared+stats.Hits)

	v, outcome, err := c.GetOrCompute(context.Background(), "k", compute)
	require.NoError(t, err)
	assert.Equal(t, Hit, outcome)
	assert.Equal(t, "model", v)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWaitersAreCountedAsShared(t *testing.T) {
	c := New[string](Options{})

	started := make(chan struct{})
	release := make(chan struct{})
	leader := make(chan Outcome, 1)
	go func() {
		_, outcome, _ := c.GetOrCompute(context.Background(), "k", func(context.Context) (string, error) {
			close(started)
			<-release
			return "model", nil
		})
		leader <- outcome
	}()
	<-started

	waiter := make(chan Outcome, 1)
	go func() {
		_, outcome, _ := c.GetOrCompute(context.Background(), "k", func(context.Context) (string, error) {
			t.Error("waiter must not compute")
			return "", nil
		})
		waiter <- outcome
	}()

	// let the waiter join the in-flight call before releasing it
	time.Sleep(50 * time.Millisecond)
	close(release)

	assert.Equal(t, Miss, <-leader)
	assert.Equal(t, Shared, <-waiter)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Shared)
	assert.Equal(t, int64(0), stats.Hits)
}

func TestFailuresAreSharedButNotStored(t *testing.T) {
	c := New[int](Options{})
	boom := errors.New("status 503")

	var calls atomic.Int32
	release := make(chan struct{})
	failing := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 0, boom
	}

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrCompute(context.Background(), "k", failing)
			errs <- err
		}()
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, 0, c.Len())

	v, outcome, err := c.GetOrCompute(context.Background(), "k", func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, Miss, outcome)
	assert.Equal(t, 42, v)
}

func TestComputationIgnoresCallerCancellation(t *testing.T) {
	c := New[string](Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v, _, err := c.GetOrCompute(ctx, "k", func(ctx context.Context) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}

func TestIdleExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[string](Options{IdleTTL: 30 * time.Minute, Clock: clock.Now})

	c.Put("a", "1")
	c.Put("b", "2")

	clock.Advance(20 * time.Minute)
	_, ok := c.Get("a")
	require.True(t, ok)

	clock.Advance(15 * time.Minute)
	_, ok = c.Get("a")
	assert.True(t, ok, "access refreshes the idle timer")

	_, ok = c.Get("b")
	assert.False(t, ok)

	clock.Advance(31 * time.Minute)
	assert.Equal(t, 1, c.EvictExpired())
	assert.Equal(t, 0, c.Len())
}

func TestMaxEntriesEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[int](Options{MaxEntries: 2})

	c.Put("a", 1)
	c.Put("b", 2)
	_, _ = c.Get("a")
	c.Put("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestDistinctKeysComputeIndependently(t *testing.T) {
	c := New[string](Options{})

	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("k%d", i)
		v, outcome, err := c.GetOrCompute(context.Background(), key, func(context.Context) (string, error) {
			return key, nil
		})
		require.NoError(t, err)
		assert.Equal(t, Miss, outcome)
		assert.Equal(t, key, v)
	}

	stats := c.Stats()
	assert.Equal(t, 3, stats.Entries)
	assert.Equal(t, int64(3), stats.Misses)
	assert.Equal(t, int64(0), stats.Hits)

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestNilInterfaceValue(t *testing.T) {
	c := New[fmt.Stringer](Options{})

	v, _, err := c.GetOrCompute(context.Background(), "k", func(context.Context) (fmt.Stringer, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.Nil(t, v)
}
