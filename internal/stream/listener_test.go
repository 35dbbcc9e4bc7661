package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soltrader/internal/domain"
)

var upgrader = websocket.Upgrader{}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.ReconnectDelay = 10 * time.Millisecond
	cfg.MaxReconnectDelay = 50 * time.Millisecond
	return &cfg
}

func TestListener_BuffersStreamedSeeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil { // subscribe
			return
		}
		conn.WriteJSON(map[string]string{"mint": "MintAAA", "name": "Alpha"})
		conn.WriteJSON(map[string]string{"method": "heartbeat"})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	l, err := NewListener(context.Background(), wsURL(srv), testConfig())
	require.NoError(t, err)
	defer l.Close()

	var seeds []domain.Seed
	require.Eventually(t, func() bool {
		seeds = append(seeds, l.Pending()...)
		return len(seeds) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "MintAAA", seeds[0].Address)
	assert.Equal(t, "Alpha", seeds[0].Name)
	assert.Empty(t, l.Pending(), "Pending drains the buffer")
}

func TestListener_ReconnectsAfterDrop(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		if attempts.Add(1) == 1 {
			return // drop the first connection right after subscribe
		}
		conn.WriteJSON(map[string]string{"mint": "MintBBB", "symbol": "BETA"})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	l, err := NewListener(context.Background(), wsURL(srv), testConfig())
	require.NoError(t, err)
	defer l.Close()

	var seeds []domain.Seed
	require.Eventually(t, func() bool {
		seeds = append(seeds, l.Pending()...)
		return len(seeds) == 1
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "MintBBB", seeds[0].Address)
	assert.Equal(t, "BETA", seeds[0].Name, "symbol backfills a missing name")
}

func TestClose_DuringReconnectDialReturnsCleanly(t *testing.T) {
	var attempts atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) > 1 {
			// Stall the reconnect handshake until the test finishes.
			<-release
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		conn.Close() // force a read error on the listener
	}))
	defer srv.Close()
	defer close(release)

	l, err := NewListener(context.Background(), wsURL(srv), testConfig())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return attempts.Load() > 1 },
		2*time.Second, 5*time.Millisecond, "reconnect must reach the stalled handshake")

	done := make(chan error, 1)
	go func() { done <- l.Close() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close must not hang while a reconnect dial is in flight")
	}

	l.connMu.Lock()
	conn := l.conn
	l.connMu.Unlock()
	assert.Nil(t, conn, "no connection may remain after Close")
}
