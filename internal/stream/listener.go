// Package stream listens to a launch-feed WebSocket and buffers freshly
// minted tokens as out-of-band discovery seeds.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"soltrader/internal/domain"
)

// Config configures listener behavior.
type Config struct {
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is the interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is the timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is the timeout for writing messages.
	WriteTimeout time.Duration
	// BufferSize bounds the pending-seed buffer; oldest entries are dropped.
	BufferSize int
}

// DefaultConfig returns default listener configuration.
func DefaultConfig() Config {
	return Config{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		BufferSize:        64,
	}
}

// Listener maintains a subscription to the new-token feed and buffers seen
// mints until the next scan drains them.
type Listener struct {
	endpoint string
	config   Config

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	pending   []domain.Seed
	pendingMu sync.Mutex

	reconnecting atomic.Bool

	done chan struct{}
	wg   sync.WaitGroup

	logger zerolog.Logger
}

// NewListener connects to the feed and starts the read and ping loops.
func NewListener(ctx context.Context, endpoint string, config *Config) (*Listener, error) {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}

	l := &Listener{
		endpoint: endpoint,
		config:   cfg,
		done:     make(chan struct{}),
		logger:   log.With().Str("component", "stream").Logger(),
	}

	if err := l.connect(ctx); err != nil {
		return nil, err
	}

	l.wg.Add(1)
	go l.readLoop()

	l.wg.Add(1)
	go l.pingLoop()

	return l, nil
}

// connect establishes the WebSocket connection and subscribes to the feed.
func (l *Listener) connect(ctx context.Context) error {
	l.connMu.Lock()
	defer l.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, l.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	conn.SetWriteDeadline(time.Now().Add(l.config.WriteTimeout))
	sub := map[string]string{"method": "subscribeNewToken"}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("write subscribe: %w", err)
	}

	l.conn = conn
	return nil
}

// Pending drains the buffered seeds, newest last. Implements the selector's
// seed source.
func (l *Listener) Pending() []domain.Seed {
	l.pendingMu.Lock()
	defer l.pendingMu.Unlock()
	seeds := l.pending
	l.pending = nil
	return seeds
}

// Close closes the connection and stops the loops.
func (l *Listener) Close() error {
	if l.closed.Swap(true) {
		return nil
	}

	close(l.done)

	l.connMu.Lock()
	if l.conn != nil {
		l.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		l.conn.Close()
	}
	l.connMu.Unlock()

	l.wg.Wait()
	return nil
}

// readLoop reads feed messages and buffers new-token seeds, reconnecting
// with exponential backoff on connection errors.
func (l *Listener) readLoop() {
	defer l.wg.Done()

	reconnectDelay := l.config.ReconnectDelay

	for !l.closed.Load() {
		l.connMu.Lock()
		conn := l.conn
		l.connMu.Unlock()

		if conn == nil {
			select {
			case <-l.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(l.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if l.closed.Load() {
				return
			}

			if !l.reconnecting.Swap(true) {
				l.wg.Add(1)
				go l.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > l.config.MaxReconnectDelay {
				reconnectDelay = l.config.MaxReconnectDelay
			}

			select {
			case <-l.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = l.config.ReconnectDelay

		l.handleMessage(message)
	}
}

// reconnect waits, reconnects and resubscribes. It runs under the listener's
// WaitGroup so Close does not return while a dial is still in flight.
func (l *Listener) reconnect(delay time.Duration) {
	defer l.wg.Done()
	defer l.reconnecting.Store(false)

	if l.closed.Load() {
		return
	}

	select {
	case <-l.done:
		return
	case <-time.After(delay):
	}

	l.connMu.Lock()
	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
	}
	l.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	go func() {
		select {
		case <-l.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := l.connect(ctx); err != nil {
		l.logger.Warn().Err(err).Msg("stream reconnect failed, will retry")
		return
	}

	// Close may have raced with the dial; do not leave the fresh
	// connection behind.
	if l.closed.Load() {
		l.connMu.Lock()
		if l.conn != nil {
			l.conn.Close()
			l.conn = nil
		}
		l.connMu.Unlock()
		return
	}
	l.logger.Info().Msg("stream reconnected")
}

// feedMessage is the subset of the launch feed payload the listener uses.
type feedMessage struct {
	Mint   string `json:"mint"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// handleMessage buffers one new-token event. Non-token messages (subscribe
// acks, heartbeats) are ignored.
func (l *Listener) handleMessage(message []byte) {
	var msg feedMessage
	if err := json.Unmarshal(message, &msg); err != nil || msg.Mint == "" {
		return
	}

	name := msg.Name
	if name == "" {
		name = msg.Symbol
	}

	l.pendingMu.Lock()
	l.pending = append(l.pending, domain.Seed{Address: msg.Mint, Name: name})
	if l.config.BufferSize > 0 && len(l.pending) > l.config.BufferSize {
		l.pending = l.pending[len(l.pending)-l.config.BufferSize:]
	}
	l.pendingMu.Unlock()

	l.logger.Debug().Str("mint", msg.Mint).Str("name", name).Msg("new token streamed")
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (l *Listener) pingLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.connMu.Lock()
			if l.conn != nil {
				l.conn.SetWriteDeadline(time.Now().Add(l.config.WriteTimeout))
				// Write errors surface in the read loop, which reconnects.
				_ = l.conn.WriteMessage(websocket.PingMessage, nil)
			}
			l.connMu.Unlock()
		}
	}
}
