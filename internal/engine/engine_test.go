package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soltrader/internal/config"
	"soltrader/internal/dataaccess"
	"soltrader/internal/domain"
	"soltrader/internal/indicator"
	"soltrader/internal/position"
	"soltrader/internal/provider"
	"soltrader/internal/risk"
	"soltrader/internal/selector"
	"soltrader/internal/storage/memory"
	"soltrader/internal/swap"
)

const testMint = "So11111111111111111111111111111111111111112"

type fakeAdapter struct {
	name       string
	seeds      []domain.Seed
	metrics    map[string]*domain.TokenMetrics
	err        error
	metricsErr error
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Discover(context.Context, int) ([]domain.Seed, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.seeds, nil
}

func (f *fakeAdapter) FetchMetrics(_ context.Context, address string) (*domain.TokenMetrics, error) {
	if f.metricsErr != nil {
		return nil, f.metricsErr
	}
	m, ok := f.metrics[address]
	if !ok {
		return nil, dataaccess.ErrRetriesExhausted
	}
	return m, nil
}

type fakeExec struct{}

func (f *fakeExec) Quote(_ context.Context, inputMint, outputMint string, amount uint64, _ int) (*swap.Quote, error) {
	if inputMint == swap.WSOL && outputMint == USDC {
		return &swap.Quote{OutAmount: 150_000_000}, nil // $150 per SOL
	}
	if inputMint == swap.WSOL {
		return &swap.Quote{OutAmount: 1_000_000, PriceImpactPct: 1.5}, nil
	}
	return &swap.Quote{OutAmount: amount}, nil
}

func (f *fakeExec) Swap(context.Context, *swap.Quote) (string, error) { return "sig-1", nil }

func (f *fakeExec) Confirm(context.Context, string) error { return nil }

type fakeStateStore struct{}

func (f *fakeStateStore) Load(context.Context) (*domain.EngineState, error) {
	return domain.DefaultState(10), nil
}
func (f *fakeStateStore) Save(context.Context, *domain.EngineState) error { return nil }
func (f *fakeStateStore) Close() error                                    { return nil }

type capturingPublisher struct {
	mu    sync.Mutex
	snaps []*domain.Snapshot
}

func (p *capturingPublisher) Publish(_ context.Context, snap *domain.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps = append(p.snaps, snap)
	return nil
}

func (p *capturingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snaps)
}

func risingCandles(n int) []domain.Candle {
	candles := make([]domain.Candle, n)
	price := 100.0
	for i := range candles {
		candles[i] = domain.Candle{
			Timestamp: int64(i) * 60_000,
			Open:      price, High: price * 1.03, Low: price * 0.97, Close: price,
			Volume: 100,
		}
		price += 2
	}
	return candles
}

func goodMetrics() *domain.TokenMetrics {
	liq, vol24h, vol15m := 50_000.0, 200_000.0, 2_000.0
	return &domain.TokenMetrics{
		LiquidityUSD: &liq,
		Vol24hUSD:    &vol24h,
		Vol15mUSD:    &vol15m,
		Candles:      risingCandles(30),
	}
}

func testEngineConfig() *config.Config {
	return &config.Config{
		PollIntervalSec: 20,
		Mode:            domain.ModeSimulated,
		TradeSizeSOL:    0.1,
		MaxPositions:    3,
		CooldownMinutes: 30,
		StopLossPct:     0.25,
		TakeProfitPct:   40,
		ExitSoftMinutes: 30,
		ExitHardMinutes: 90,
		SignalMode:      selector.SignalModeMomentum,

		MomentumShortBars:   3,
		MomentumLongBars:    6,
		MomentumMinShortPct: 1,
		SlippageBps:         250,
	}
}

func testSelector(cfg *config.Config) *selector.Selector {
	return selector.New(selector.Config{
		ScanLimit:       12,
		MinLiquidityUSD: 1_000,
		MinVol24hUSD:    1_000,
		MinVol15mUSD:    100,
		MaxHoldersPct:   35,
		MaxImpactPct:    8,
		MaxRugScore:     6,
		MinCandles:      10,
		MinRangePct:     1,
		VolatilityBars:  20,
		SignalMode:      cfg.SignalMode,
		TradeSizeSOL:    cfg.TradeSizeSOL,
		SlippageBps:     cfg.SlippageBps,
	}, selector.Deps{
		Momentum: indicator.MomentumConfig{
			ShortBars:   cfg.MomentumShortBars,
			LongBars:    cfg.MomentumLongBars,
			MinShortPct: cfg.MomentumMinShortPct,
		},
		Risk: risk.NewScorer(risk.Config{MaxHoldersPct: 35, MinLiquidityUSD: 1_000, MinVol24hUSD: 1_000}),
	})
}

func newTestEngine(cfg *config.Config, primary, alternate provider.Adapter, pub *capturingPublisher) *Engine {
	exec := &fakeExec{}
	return New(Params{
		Config:     cfg,
		Selector:   testSelector(cfg),
		Failover:   provider.NewFailover(primary, alternate, 10*time.Minute),
		Executors:  position.Executors{Sim: exec},
		Quoter:     exec,
		State:      domain.DefaultState(10),
		StateStore: &fakeStateStore{},
		TradeStore: memory.NewTradeStore(),
		Publisher:  pub,
	})
}

func TestTick_EntersCandidateAndPublishes(t *testing.T) {
	adapter := &fakeAdapter{
		name:    "primary",
		seeds:   []domain.Seed{{Address: testMint, Name: "Alpha"}},
		metrics: map[string]*domain.TokenMetrics{testMint: goodMetrics()},
	}
	pub := &capturingPublisher{}
	e := newTestEngine(testEngineConfig(), adapter, nil, pub)

	e.tick(context.Background())

	assert.Equal(t, 1, e.mgr.OpenCount())
	assert.Positive(t, pub.count(), "entry must publish a snapshot")
}

func TestScanAndEnter_QuotaExhaustionBlocksProvider(t *testing.T) {
	primary := &fakeAdapter{name: "primary", err: dataaccess.ErrQuotaExhausted}
	alternate := &fakeAdapter{
		name:    "alternate",
		seeds:   []domain.Seed{{Address: testMint, Name: "Alpha"}},
		metrics: map[string]*domain.TokenMetrics{testMint: goodMetrics()},
	}
	pub := &capturingPublisher{}
	e := newTestEngine(testEngineConfig(), primary, alternate, pub)

	require.NoError(t, e.scanAndEnter(context.Background()))
	assert.True(t, e.failover.Blocked("primary"))
	assert.Equal(t, 0, e.mgr.OpenCount(), "the blocked scan enters nothing")

	// Next scan routes to the alternate and enters.
	require.NoError(t, e.scanAndEnter(context.Background()))
	assert.Equal(t, 1, e.mgr.OpenCount())
}

func TestScanAndEnter_QuotaExhaustionMidScanBlocksProvider(t *testing.T) {
	// Discovery succeeds; the quota runs out on a metric fetch. The provider
	// must still be blocked and the next scan must route to the alternate.
	primary := &fakeAdapter{
		name:       "primary",
		seeds:      []domain.Seed{{Address: testMint, Name: "Alpha"}},
		metricsErr: dataaccess.ErrQuotaExhausted,
	}
	alternate := &fakeAdapter{
		name:    "alternate",
		seeds:   []domain.Seed{{Address: testMint, Name: "Alpha"}},
		metrics: map[string]*domain.TokenMetrics{testMint: goodMetrics()},
	}
	e := newTestEngine(testEngineConfig(), primary, alternate, &capturingPublisher{})

	require.NoError(t, e.scanAndEnter(context.Background()))
	assert.True(t, e.failover.Blocked("primary"))

	require.NoError(t, e.scanAndEnter(context.Background()))
	assert.Equal(t, 1, e.mgr.OpenCount())
}

func TestTick_NoProviderIsRecoverable(t *testing.T) {
	pub := &capturingPublisher{}
	e := newTestEngine(testEngineConfig(), nil, nil, pub)

	// Must not panic; next tick retries.
	e.tick(context.Background())
	assert.Equal(t, 0, e.mgr.OpenCount())
}

func TestTrendOK_MomentumMode(t *testing.T) {
	adapter := &fakeAdapter{
		name:    "primary",
		metrics: map[string]*domain.TokenMetrics{testMint: goodMetrics()},
	}
	e := newTestEngine(testEngineConfig(), adapter, nil, &capturingPublisher{})

	ok, err := e.TrendOK(context.Background(), testMint)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPublishSnapshot_Balances(t *testing.T) {
	pub := &capturingPublisher{}
	e := newTestEngine(testEngineConfig(), nil, nil, pub)

	e.publishSnapshot(context.Background())

	require.Equal(t, 1, pub.count())
	snap := pub.snaps[0]
	assert.Equal(t, domain.ModeSimulated, snap.Mode)
	assert.InDelta(t, 10.0, snap.Balances.SimSOL, 1e-9)
	assert.InDelta(t, 10.0, snap.Balances.TotalValueSOL, 1e-9)
	assert.Equal(t, "running", snap.Status)
}
