// Package dataaccess provides the shared rate-limited, cached, retrying
// request executor used by every provider adapter.
package dataaccess

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Default executor tuning.
const (
	DefaultBaseDelay  = 500 * time.Millisecond
	DefaultMaxDelay   = 8 * time.Second
	DefaultMaxRetries = 3

	// DefaultStaleMaxAge bounds how long an expired entry stays around for
	// the quota-exhaustion stale fallback before it is evicted.
	DefaultStaleMaxAge = 2 * time.Hour
)

// sweepInterval paces cache eviction sweeps.
const sweepInterval = 5 * time.Minute

// FetchFunc performs one network call and returns the raw response payload.
type FetchFunc func(ctx context.Context) (json.RawMessage, error)

// Executor enforces a minimum inter-request interval for one provider,
// de-duplicates concurrent identical requests, caches successful responses
// for a TTL, and retries rate-limited calls with exponential backoff.
//
// All state is mutex-guarded so the executor is safe to share across
// goroutines within a tick's bounded fan-out.
type Executor struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	cache    map[string]*cacheEntry
	inflight map[string]*call

	baseDelay   time.Duration
	maxDelay    time.Duration
	maxRetries  int
	staleMaxAge time.Duration
	lastSweep   time.Time

	now    func() time.Time
	logger zerolog.Logger
}

type cacheEntry struct {
	value     json.RawMessage
	expiresAt time.Time
}

type call struct {
	done  chan struct{}
	value json.RawMessage
	err   error
}

// Option configures an Executor.
type Option func(*Executor)

// WithBaseDelay sets the initial backoff delay for rate-limit retries.
func WithBaseDelay(d time.Duration) Option {
	return func(e *Executor) { e.baseDelay = d }
}

// WithMaxDelay caps the backoff delay.
func WithMaxDelay(d time.Duration) Option {
	return func(e *Executor) { e.maxDelay = d }
}

// WithMaxRetries sets how many times a rate-limited call is retried.
func WithMaxRetries(n int) Option {
	return func(e *Executor) { e.maxRetries = n }
}

// WithClock overrides the time source used for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// WithStaleMaxAge bounds how long expired cache entries are kept for the
// stale fallback before eviction.
func WithStaleMaxAge(d time.Duration) Option {
	return func(e *Executor) { e.staleMaxAge = d }
}

// New creates an executor for one provider. minInterval is the minimum gap
// enforced between calls to that provider; zero disables pacing.
func New(name string, minInterval time.Duration, opts ...Option) *Executor {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	e := &Executor{
		limiter:     rate.NewLimiter(limit, 1),
		cache:       make(map[string]*cacheEntry),
		inflight:    make(map[string]*call),
		baseDelay:   DefaultBaseDelay,
		maxDelay:    DefaultMaxDelay,
		maxRetries:  DefaultMaxRetries,
		staleMaxAge: DefaultStaleMaxAge,
		now:         time.Now,
		logger:      log.With().Str("component", "dataaccess").Str("provider", name).Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.lastSweep = e.now()
	return e
}

// Do returns the cached response for key when fresh, joins an identical
// in-flight request when one exists, and otherwise paces and executes fetch.
//
// On ErrQuotaExhausted a stale cached value is returned instead of failing:
// staleness is preferred to total failure for that error class only.
func (e *Executor) Do(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc) (json.RawMessage, error) {
	e.mu.Lock()
	e.pruneLocked()
	if entry, ok := e.cache[key]; ok && e.now().Before(entry.expiresAt) {
		e.mu.Unlock()
		return entry.value, nil
	}
	if c, ok := e.inflight[key]; ok {
		e.mu.Unlock()
		select {
		case <-c.done:
			return c.value, c.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c := &call{done: make(chan struct{})}
	e.inflight[key] = c
	e.mu.Unlock()

	value, err := e.execute(ctx, key, fetch)
	if err == nil {
		e.mu.Lock()
		e.cache[key] = &cacheEntry{value: value, expiresAt: e.now().Add(ttl)}
		e.mu.Unlock()
	} else if errors.Is(err, ErrQuotaExhausted) {
		if stale := e.staleValue(key); stale != nil {
			e.logger.Warn().Str("key", key).Msg("quota exhausted, serving stale cached value")
			value, err = stale, nil
		}
	}

	c.value, c.err = value, err
	e.mu.Lock()
	delete(e.inflight, key)
	e.mu.Unlock()
	close(c.done)

	return value, err
}

// execute paces the call and retries rate-limit and transient errors.
func (e *Executor) execute(ctx context.Context, key string, fetch FetchFunc) (json.RawMessage, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	sched := backoff.NewExponentialBackOff()
	sched.InitialInterval = e.baseDelay
	sched.MaxInterval = e.maxDelay
	sched.Multiplier = 2
	sched.RandomizationFactor = 0
	sched.Reset()

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		value, err := fetch(ctx)
		if err == nil {
			return value, nil
		}
		if errors.Is(err, ErrQuotaExhausted) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		lastErr = err

		delay := sched.NextBackOff()
		if delay > e.maxDelay {
			delay = e.maxDelay
		}
		var rle *RateLimitError
		if errors.As(err, &rle) && rle.RetryAfter > 0 {
			delay = rle.RetryAfter
		}
		e.logger.Debug().Str("key", key).Int("attempt", attempt+1).Dur("delay", delay).Err(err).
			Msg("request failed, backing off")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
	if IsRateLimit(lastErr) {
		return nil, ErrRetriesExhausted
	}
	return nil, lastErr
}

// pruneLocked evicts entries expired for longer than the stale window, so
// the cache does not grow without bound over a long session. Runs at most
// once per sweepInterval; expired-but-recent entries stay available for the
// quota-exhaustion stale fallback.
func (e *Executor) pruneLocked() {
	now := e.now()
	if now.Sub(e.lastSweep) < sweepInterval {
		return
	}
	e.lastSweep = now
	for key, entry := range e.cache {
		if now.Sub(entry.expiresAt) > e.staleMaxAge {
			delete(e.cache, key)
		}
	}
}

// staleValue returns the cached payload for key regardless of expiry.
func (e *Executor) staleValue(key string) json.RawMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	if entry, ok := e.cache[key]; ok {
		return entry.value
	}
	return nil
}
