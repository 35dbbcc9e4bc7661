// Package snapshot publishes engine-state snapshots to external consumers
// after every state change.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"soltrader/internal/domain"
)

// Publisher delivers one snapshot to one sink. Publish failures are the
// sink's problem; the engine never blocks on them.
type Publisher interface {
	Publish(ctx context.Context, snap *domain.Snapshot) error
}

// LogPublisher writes a condensed snapshot line to the structured log.
type LogPublisher struct {
	logger zerolog.Logger
}

// NewLogPublisher creates a log-backed publisher.
func NewLogPublisher() *LogPublisher {
	return &LogPublisher{logger: log.With().Str("component", "snapshot").Logger()}
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(_ context.Context, snap *domain.Snapshot) error {
	ev := p.logger.Info().
		Str("status", snap.Status).
		Str("mode", string(snap.Mode)).
		Int("positions", len(snap.Positions)).
		Float64("totalValueSol", snap.Balances.TotalValueSOL).
		Int64("cooldownSec", snap.Cooldown.RemainingSec)
	if snap.Stats != nil {
		ev = ev.Int("trades", snap.Stats.Trades).Float64("totalPnlSol", snap.Stats.TotalPnLSOL)
	}
	ev.Msg("snapshot")
	return nil
}

var _ Publisher = (*LogPublisher)(nil)

// latestTTL bounds how long a stale snapshot survives a dead engine.
const latestTTL = 10 * time.Minute

// RedisPublisher pushes snapshots to Redis: a PUBLISH on the configured
// channel for live subscribers plus a SET of the latest-snapshot key for
// late joiners.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  zerolog.Logger
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(ctx context.Context, addr, channel string) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisPublisher{
		client:  client,
		channel: channel,
		logger:  log.With().Str("component", "snapshot_redis").Logger(),
	}, nil
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, snap *domain.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	if err := p.client.Set(ctx, p.channel+":latest", payload, latestTTL).Err(); err != nil {
		return fmt.Errorf("set latest snapshot: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

var _ Publisher = (*RedisPublisher)(nil)

// FanOut publishes to every sink, logging failures without propagating them.
type FanOut struct {
	sinks  []Publisher
	logger zerolog.Logger
}

// NewFanOut creates a fan-out over the given sinks.
func NewFanOut(sinks ...Publisher) *FanOut {
	return &FanOut{
		sinks:  sinks,
		logger: log.With().Str("component", "snapshot_fanout").Logger(),
	}
}

// Publish implements Publisher. Always returns nil.
func (f *FanOut) Publish(ctx context.Context, snap *domain.Snapshot) error {
	for _, sink := range f.sinks {
		if err := sink.Publish(ctx, snap); err != nil {
			f.logger.Warn().Err(err).Msg("snapshot publish failed")
		}
	}
	return nil
}

var _ Publisher = (*FanOut)(nil)
