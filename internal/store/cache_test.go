package store

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

type mapCache struct {
	mu     sync.Mutex
	stats  *Stats
	getErr error
	sets   int
}

func (c *mapCache) Get(context.Context) (Stats, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return Stats{}, false, c.getErr
	}
	if c.stats == nil {
		return Stats{}, false, nil
	}
	return *c.stats, true, nil
}

func (c *mapCache) Set(_ context.Context, s Stats) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = &s
	c.sets++
	return nil
}

func (c *mapCache) Close() error { return nil }

// countingFacade counts AggregateStats calls and blocks until released.
type countingFacade struct {
	Facade
	calls   atomic.Int32
	release chan struct{}
	stats   Stats
	err     error
}

func (f *countingFacade) AggregateStats(ctx context.Context) (Stats, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	return f.stats, f.err
}

func TestCachedFacade_HitSkipsStore(t *testing.T) {
	want := Stats{WorldCount: 7}
	cache := &mapCache{stats: &want}
	inner := &countingFacade{}

	got, err := NewCachedFacade(inner, cache).AggregateStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, int32(0), inner.calls.Load())
}

func TestCachedFacade_MissLoadsOnce(t *testing.T) {
	cache := &mapCache{}
	inner := &countingFacade{release: make(chan struct{}), stats: Stats{WorldCount: 3}}
	cf := NewCachedFacade(inner, cache)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]Stats, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := cf.AggregateStats(context.Background())
			assert.NoError(t, err)
			results[i] = s
		}(i)
	}

	// let the callers pile up behind the first load
	time.Sleep(50 * time.Millisecond)
	close(inner.release)
	wg.Wait()

	assert.Equal(t, int32(1), inner.calls.Load())
	for _, s := range results {
		assert.Equal(t, int64(3), s.WorldCount)
	}
	assert.Equal(t, 1, cache.sets)
}

func TestCachedFacade_CacheFailureFallsThrough(t *testing.T) {
	cache := &mapCache{getErr: errors.New("redis: connection refused")}
	inner := &countingFacade{stats: Stats{StoryCount: 9}}

	got, err := NewCachedFacade(inner, cache).AggregateStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.StoryCount)
}

func TestCachedFacade_StoreFailurePropagates(t *testing.T) {
	cache := &mapCache{}
	inner := &countingFacade{err: ErrUpstreamUnavailable}

	_, err := NewCachedFacade(inner, cache).AggregateStats(context.Background())
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, 0, cache.sets)
}

func TestCachedFacade_Refresh(t *testing.T) {
	cache := &mapCache{stats: &Stats{WorldCount: 1}}
	inner := &countingFacade{stats: Stats{WorldCount: 2}}
	cf := NewCachedFacade(inner, cache)

	require.NoError(t, cf.RefreshStats(context.Background()))
	got, err := cf.AggregateStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.WorldCount)
}

// slowFacade takes delay to answer and gives up when ctx ends first.
type slowFacade struct {
	Facade
	calls atomic.Int32
	delay time.Duration
	stats Stats
}

func (f *slowFacade) AggregateStats(ctx context.Context) (Stats, error) {
	f.calls.Add(1)
	select {
	case <-time.After(f.delay):
		return f.stats, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

func TestCachedFacade_SharedLoadIgnoresFirstCallersDeadline(t *testing.T) {
	cache := &mapCache{}
	inner := &slowFacade{delay: 60 * time.Millisecond, stats: Stats{WorldCount: 3}}
	cf := NewCachedFacade(inner, cache)

	shortErr := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		_, err := cf.AggregateStats(ctx)
		shortErr <- err
	}()
	require.Eventually(t, func() bool { return inner.calls.Load() == 1 }, time.Second, time.Millisecond)

	got, err := cf.AggregateStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.WorldCount)
	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Equal(t, 1, cache.sets)

	assert.ErrorIs(t, <-shortErr, context.DeadlineExceeded)
}
