package provider

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrNoProvider is returned when every adapter is blocked or unconfigured.
var ErrNoProvider = errors.New("no provider available")

// Failover routes discovery to the primary adapter unless it is inside a
// quota-exhaustion block window, in which case the alternate serves until
// the window expires. A primary without credentials is skipped permanently.
type Failover struct {
	mu           sync.Mutex
	primary      Adapter // nil when unconfigured
	alternate    Adapter
	blockedUntil map[string]time.Time
	cooldown     time.Duration

	now    func() time.Time
	logger zerolog.Logger
}

// FailoverOption configures a Failover.
type FailoverOption func(*Failover)

// WithNow overrides the controller's time source.
func WithNow(now func() time.Time) FailoverOption {
	return func(f *Failover) { f.now = now }
}

// NewFailover creates a controller. primary may be nil when the provider has
// no credential configured; the alternate then serves exclusively.
func NewFailover(primary, alternate Adapter, cooldown time.Duration, opts ...FailoverOption) *Failover {
	f := &Failover{
		primary:      primary,
		alternate:    alternate,
		blockedUntil: make(map[string]time.Time),
		cooldown:     cooldown,
		now:          time.Now,
		logger:       log.With().Str("component", "failover").Logger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Active returns the adapter discovery should use right now.
func (f *Failover) Active() (Adapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, a := range []Adapter{f.primary, f.alternate} {
		if a == nil {
			continue
		}
		if until, ok := f.blockedUntil[a.Name()]; ok && f.now().Before(until) {
			continue
		}
		return a, nil
	}
	return nil, ErrNoProvider
}

// ReportQuotaExhausted blocks the named provider for the cooldown window.
// Subsequent Active calls route around it until the window expires.
func (f *Failover) ReportQuotaExhausted(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	until := f.now().Add(f.cooldown)
	f.blockedUntil[name] = until
	f.logger.Warn().Str("provider", name).Time("blockedUntil", until).
		Msg("provider quota exhausted, blocking")
}

// Blocked reports whether the named provider is currently blocked.
func (f *Failover) Blocked(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	until, ok := f.blockedUntil[name]
	return ok && f.now().Before(until)
}
