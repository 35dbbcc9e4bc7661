package dataaccess

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(opts ...Option) *Executor {
	base := []Option{
		WithBaseDelay(time.Millisecond),
		WithMaxDelay(5 * time.Millisecond),
		WithMaxRetries(3),
	}
	return New("test", 0, append(base, opts...)...)
}

func TestDo_CacheHitSkipsFetcher(t *testing.T) {
	e := newTestExecutor()
	ctx := context.Background()

	calls := 0
	fetch := func(context.Context) (json.RawMessage, error) {
		calls++
		return json.RawMessage(`{"v":1}`), nil
	}

	first, err := e.Do(ctx, "k", time.Minute, fetch)
	require.NoError(t, err)

	second, err := e.Do(ctx, "k", time.Minute, fetch)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls, "cached value must be served without a second network call")
}

func TestDo_ExpiredCacheRefetches(t *testing.T) {
	now := time.Now()
	e := newTestExecutor(WithClock(func() time.Time { return now }))
	ctx := context.Background()

	calls := 0
	fetch := func(context.Context) (json.RawMessage, error) {
		calls++
		return json.RawMessage(`{}`), nil
	}

	_, err := e.Do(ctx, "k", 10*time.Millisecond, fetch)
	require.NoError(t, err)

	now = now.Add(11 * time.Millisecond)
	_, err = e.Do(ctx, "k", 10*time.Millisecond, fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_InflightDeduplication(t *testing.T) {
	e := newTestExecutor()
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context) (json.RawMessage, error) {
		calls.Add(1)
		<-release
		return json.RawMessage(`{"v":42}`), nil
	}

	const waiters = 8
	results := make([]json.RawMessage, waiters)
	errs := make([]error, waiters)
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.Do(ctx, "k", time.Minute, fetch)
		}(i)
	}

	// Let all waiters attach to the in-flight call before releasing it.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "identical concurrent requests must share one network call")
	for i := 0; i < waiters; i++ {
		require.NoError(t, errs[i])
		assert.JSONEq(t, `{"v":42}`, string(results[i]))
	}
}

func TestDo_RetriesRateLimitThenSucceeds(t *testing.T) {
	e := newTestExecutor()
	ctx := context.Background()

	calls := 0
	fetch := func(context.Context) (json.RawMessage, error) {
		calls++
		if calls < 3 {
			return nil, &RateLimitError{}
		}
		return json.RawMessage(`{}`), nil
	}

	_, err := e.Do(ctx, "k", time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_HonorsRetryAfter(t *testing.T) {
	e := newTestExecutor()
	ctx := context.Background()

	var gaps []time.Time
	fetch := func(context.Context) (json.RawMessage, error) {
		gaps = append(gaps, time.Now())
		if len(gaps) == 1 {
			return nil, &RateLimitError{RetryAfter: 30 * time.Millisecond}
		}
		return json.RawMessage(`{}`), nil
	}

	_, err := e.Do(ctx, "k", time.Minute, fetch)
	require.NoError(t, err)
	require.Len(t, gaps, 2)
	assert.GreaterOrEqual(t, gaps[1].Sub(gaps[0]), 30*time.Millisecond,
		"server-declared retry delay must be honored over the backoff schedule")
}

func TestDo_RetriesExhaust(t *testing.T) {
	e := newTestExecutor(WithMaxRetries(2))
	ctx := context.Background()

	calls := 0
	fetch := func(context.Context) (json.RawMessage, error) {
		calls++
		return nil, &RateLimitError{}
	}

	_, err := e.Do(ctx, "k", time.Minute, fetch)
	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 3, calls, "initial attempt plus two retries")
}

func TestDo_QuotaExhaustedServesStaleCache(t *testing.T) {
	now := time.Now()
	e := newTestExecutor(WithClock(func() time.Time { return now }))
	ctx := context.Background()

	fresh := func(context.Context) (json.RawMessage, error) {
		return json.RawMessage(`{"price":9}`), nil
	}
	_, err := e.Do(ctx, "k", 10*time.Millisecond, fresh)
	require.NoError(t, err)

	// Expire the cache, then hit a hard-quota error.
	now = now.Add(time.Hour)
	quota := func(context.Context) (json.RawMessage, error) {
		return nil, ErrQuotaExhausted
	}
	value, err := e.Do(ctx, "k", 10*time.Millisecond, quota)
	require.NoError(t, err, "stale cache must be preferred to total failure on quota exhaustion")
	assert.JSONEq(t, `{"price":9}`, string(value))
}

func TestDo_SweepEvictsEntriesBeyondStaleWindow(t *testing.T) {
	now := time.Now()
	e := newTestExecutor(
		WithClock(func() time.Time { return now }),
		WithStaleMaxAge(time.Minute),
	)
	ctx := context.Background()

	fetch := func(context.Context) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	}
	_, err := e.Do(ctx, "long-dead", 10*time.Millisecond, fetch)
	require.NoError(t, err)
	_, err = e.Do(ctx, "just-expired", 9*time.Minute+30*time.Second, fetch)
	require.NoError(t, err)

	// Any call past the sweep interval triggers eviction.
	now = now.Add(10 * time.Minute)
	_, err = e.Do(ctx, "trigger", time.Minute, fetch)
	require.NoError(t, err)

	e.mu.Lock()
	_, dead := e.cache["long-dead"]
	_, recent := e.cache["just-expired"]
	e.mu.Unlock()
	assert.False(t, dead, "entries expired beyond the stale window must be evicted")
	assert.True(t, recent, "recently expired entries stay available for the stale fallback")

	quota := func(context.Context) (json.RawMessage, error) {
		return nil, ErrQuotaExhausted
	}
	_, err = e.Do(ctx, "long-dead", time.Minute, quota)
	require.ErrorIs(t, err, ErrQuotaExhausted, "no stale value remains after eviction")
}

func TestDo_QuotaExhaustedWithoutCacheFails(t *testing.T) {
	e := newTestExecutor()
	ctx := context.Background()

	quota := func(context.Context) (json.RawMessage, error) {
		return nil, ErrQuotaExhausted
	}
	_, err := e.Do(ctx, "k", time.Minute, quota)
	require.ErrorIs(t, err, ErrQuotaExhausted)
}

func TestDo_QuotaExhaustedNotRetried(t *testing.T) {
	e := newTestExecutor()
	ctx := context.Background()

	calls := 0
	quota := func(context.Context) (json.RawMessage, error) {
		calls++
		return nil, ErrQuotaExhausted
	}
	_, err := e.Do(ctx, "k", time.Minute, quota)
	require.ErrorIs(t, err, ErrQuotaExhausted)
	assert.Equal(t, 1, calls)
}

func TestDo_TransientErrorRetried(t *testing.T) {
	e := newTestExecutor()
	ctx := context.Background()

	calls := 0
	fetch := func(context.Context) (json.RawMessage, error) {
		calls++
		if calls == 1 {
			return nil, assert.AnError
		}
		return json.RawMessage(`{}`), nil
	}

	_, err := e.Do(ctx, "k", time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
