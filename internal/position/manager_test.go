package position

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soltrader/internal/domain"
	"soltrader/internal/storage/memory"
	"soltrader/internal/swap"
)

const testMint = "TokenMintAAAA111111111111111111111111111111"

// fakeExec prices buys at a fixed token amount and sells at a per-mint SOL
// value.
type fakeExec struct {
	buyOut     uint64
	sellValues map[string]float64
	quoteErr   error
	swapErr    error
	confirmErr error
	swaps      int
}

func (f *fakeExec) Quote(_ context.Context, inputMint, _ string, _ uint64, _ int) (*swap.Quote, error) {
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	if inputMint == swap.WSOL {
		return &swap.Quote{OutAmount: f.buyOut}, nil
	}
	return &swap.Quote{OutAmount: swap.SOLToLamports(f.sellValues[inputMint])}, nil
}

func (f *fakeExec) Swap(context.Context, *swap.Quote) (string, error) {
	if f.swapErr != nil {
		return "", f.swapErr
	}
	f.swaps++
	return fmt.Sprintf("sig-%d", f.swaps), nil
}

func (f *fakeExec) Confirm(context.Context, string) error { return f.confirmErr }

type fakeStateStore struct {
	saves int
	last  *domain.EngineState
}

func (f *fakeStateStore) Load(context.Context) (*domain.EngineState, error) {
	return domain.DefaultState(10), nil
}

func (f *fakeStateStore) Save(_ context.Context, s *domain.EngineState) error {
	f.saves++
	copied := *s
	copied.Positions = append([]domain.Position(nil), s.Positions...)
	f.last = &copied
	return nil
}

func (f *fakeStateStore) Close() error { return nil }

type fakeTrend struct {
	ok  bool
	err error
}

func (f *fakeTrend) TrendOK(context.Context, string) (bool, error) { return f.ok, f.err }

func testCfg() Config {
	return Config{
		TradeSizeSOL:      0.1,
		MaxPositions:      2,
		CooldownMinutes:   30,
		SlippageBps:       250,
		StopLossPct:       0.25,
		TakeProfitPct:     40,
		TakeProfitUSD:     50,
		ExitSoftMinutes:   30,
		ExitHardMinutes:   90,
		MinPnLPctToExtend: 10,
	}
}

func openPosition(mint string, heldMinutes int, entrySOL float64, now time.Time) domain.Position {
	return domain.Position{
		ID:          "pos-" + mint[:8],
		Mint:        mint,
		Name:        "Token",
		EntryTimeMs: now.Add(-time.Duration(heldMinutes) * time.Minute).UnixMilli(),
		EntrySOL:    entrySOL,
		TokenAmount: 1000,
	}
}

type fixture struct {
	mgr    *Manager
	exec   *fakeExec
	store  *fakeStateStore
	trades *memory.TradeStore
	state  *domain.EngineState
	now    time.Time
}

func newFixture(t *testing.T, cfg Config, trend TrendChecker, positions ...domain.Position) *fixture {
	t.Helper()
	now := time.UnixMilli(1_700_000_000_000)
	state := domain.DefaultState(10)
	state.Positions = positions
	exec := &fakeExec{buyOut: 1000, sellValues: map[string]float64{}}
	store := &fakeStateStore{}
	trades := memory.NewTradeStore()
	mgr := NewManager(cfg, state, Executors{Live: exec, Sim: exec}, store, trades, trend,
		WithNow(func() time.Time { return now }))
	return &fixture{mgr: mgr, exec: exec, store: store, trades: trades, state: state, now: now}
}

func (f *fixture) lastReason(t *testing.T) domain.ExitReason {
	t.Helper()
	recent, err := f.trades.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	return recent[0].Reason
}

func TestUpdate_StopLossBeatsTimeStops(t *testing.T) {
	// Held past the hard stop AND at exactly -stopLossPct*100: priority
	// order must attribute the exit to stop_loss.
	fx := newFixture(t, testCfg(), nil, openPosition(testMint, 120, 0.1, time.UnixMilli(1_700_000_000_000)))
	fx.exec.sellValues[testMint] = 0.075 // exactly -25%

	fx.mgr.Update(context.Background(), 0, 0)

	assert.Equal(t, 0, fx.mgr.OpenCount())
	assert.Equal(t, domain.ExitReasonStopLoss, fx.lastReason(t))
}

func TestUpdate_TakeProfitByPercent(t *testing.T) {
	fx := newFixture(t, testCfg(), nil, openPosition(testMint, 5, 0.1, time.UnixMilli(1_700_000_000_000)))
	fx.exec.sellValues[testMint] = 0.15 // +50%

	fx.mgr.Update(context.Background(), 0, 0)

	assert.Equal(t, domain.ExitReasonTakeProfit, fx.lastReason(t))
}

func TestUpdate_TakeProfitByUSD(t *testing.T) {
	cfg := testCfg()
	cfg.TakeProfitPct = 500 // out of reach by percent
	cfg.TakeProfitUSD = 10
	fx := newFixture(t, cfg, nil, openPosition(testMint, 5, 0.1, time.UnixMilli(1_700_000_000_000)))
	fx.exec.sellValues[testMint] = 0.2 // +0.1 SOL

	// 0.1 SOL * $150 = $15 >= $10.
	fx.mgr.Update(context.Background(), 0, 150)
	assert.Equal(t, domain.ExitReasonTakeProfit, fx.lastReason(t))
}

func TestUpdate_SoftTimeExit(t *testing.T) {
	fx := newFixture(t, testCfg(), &fakeTrend{ok: true}, openPosition(testMint, 45, 0.1, time.UnixMilli(1_700_000_000_000)))
	fx.exec.sellValues[testMint] = 0.101 // +1%, below the extension minimum

	fx.mgr.Update(context.Background(), 0, 0)

	assert.Equal(t, domain.ExitReasonSoftTime, fx.lastReason(t))
}

func TestUpdate_SoftTimeExtendedOnProfitAndTrend(t *testing.T) {
	fx := newFixture(t, testCfg(), &fakeTrend{ok: true}, openPosition(testMint, 45, 0.1, time.UnixMilli(1_700_000_000_000)))
	fx.exec.sellValues[testMint] = 0.12 // +20% >= extension minimum

	fx.mgr.Update(context.Background(), 0, 0)

	assert.Equal(t, 1, fx.mgr.OpenCount(), "profitable trending position must be held another tick")
}

func TestUpdate_SoftTimeNotExtendedWhenTrendGone(t *testing.T) {
	fx := newFixture(t, testCfg(), &fakeTrend{ok: false}, openPosition(testMint, 45, 0.1, time.UnixMilli(1_700_000_000_000)))
	fx.exec.sellValues[testMint] = 0.12

	fx.mgr.Update(context.Background(), 0, 0)

	assert.Equal(t, domain.ExitReasonSoftTime, fx.lastReason(t))
}

func TestUpdate_HardTimeIgnoresExtension(t *testing.T) {
	fx := newFixture(t, testCfg(), &fakeTrend{ok: true}, openPosition(testMint, 120, 0.1, time.UnixMilli(1_700_000_000_000)))
	fx.exec.sellValues[testMint] = 0.12

	fx.mgr.Update(context.Background(), 0, 0)

	assert.Equal(t, domain.ExitReasonHardTime, fx.lastReason(t))
}

func TestUpdate_ManualExitConsumedByFirstPosition(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	posA := openPosition(testMint, 5, 0.1, now)
	posB := openPosition("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", 5, 0.1, now)
	posB.ID = "pos-b"
	fx := newFixture(t, testCfg(), nil, posA, posB)
	fx.exec.sellValues[posA.Mint] = 0.1
	fx.exec.sellValues[posB.Mint] = 0.1

	require.NoError(t, fx.mgr.RequestExit())
	require.NoError(t, fx.mgr.RequestExit(), "queueing twice is a no-op")

	fx.mgr.Update(context.Background(), 0, 0)

	assert.Equal(t, 1, fx.mgr.OpenCount(), "flag is consumed by the first evaluated position")
	assert.Equal(t, domain.ExitReasonManual, fx.lastReason(t))

	// Next tick: the flag is spent, the second position stays open.
	fx.mgr.Update(context.Background(), 0, 0)
	assert.Equal(t, 1, fx.mgr.OpenCount())
}

func TestUpdate_AccountStop(t *testing.T) {
	cfg := testCfg()
	cfg.AccountFloorSOL = 5
	fx := newFixture(t, cfg, nil, openPosition(testMint, 5, 0.1, time.UnixMilli(1_700_000_000_000)))
	fx.exec.sellValues[testMint] = 0.1
	fx.state.Mode = domain.ModeLive

	fx.mgr.Update(context.Background(), 2, 0) // wallet 2 + position 0.1 <= 5

	assert.Equal(t, domain.ExitReasonAccountStop, fx.lastReason(t))
}

func TestUpdate_ExitFailureLeavesPositionOpen(t *testing.T) {
	fx := newFixture(t, testCfg(), nil, openPosition(testMint, 120, 0.1, time.UnixMilli(1_700_000_000_000)))
	fx.exec.sellValues[testMint] = 0.01
	fx.exec.swapErr = errors.New("blockhash expired")

	fx.mgr.Update(context.Background(), 0, 0)

	assert.Equal(t, 1, fx.mgr.OpenCount())
	recent, err := fx.trades.Recent(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, recent)

	// Next tick the swap succeeds and the exit completes.
	fx.exec.swapErr = nil
	fx.mgr.Update(context.Background(), 0, 0)
	assert.Equal(t, 0, fx.mgr.OpenCount())
}

func TestUpdate_SimExitCreditsBalance(t *testing.T) {
	fx := newFixture(t, testCfg(), nil, openPosition(testMint, 120, 0.1, time.UnixMilli(1_700_000_000_000)))
	fx.exec.sellValues[testMint] = 0.2

	fx.mgr.Update(context.Background(), 0, 0)

	assert.InDelta(t, 10.2, fx.mgr.SimBalanceSOL(), 1e-9)
}

func TestEnter_OpensPositionAndStartsCooldown(t *testing.T) {
	fx := newFixture(t, testCfg(), nil)
	cand := &domain.Candidate{Address: testMint, Name: "Alpha", Score: 12.5, Tier: domain.TierStrict}

	require.NoError(t, fx.mgr.Enter(context.Background(), cand, 6))

	assert.Equal(t, 1, fx.mgr.OpenCount())
	assert.InDelta(t, 9.9, fx.mgr.SimBalanceSOL(), 1e-9)
	assert.False(t, fx.mgr.CanEnter(), "cooldown must start on entry")
	assert.Positive(t, fx.mgr.Cooldown().RemainingSec)
	require.NotNil(t, fx.store.last)
	require.Len(t, fx.store.last.Positions, 1)
	assert.Equal(t, testMint, fx.store.last.Positions[0].Mint)
}

func TestEnter_RejectedAtMaxPositions(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	posB := openPosition("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", 5, 0.1, now)
	posB.ID = "pos-b"
	fx := newFixture(t, testCfg(), nil, openPosition(testMint, 5, 0.1, now), posB)

	assert.False(t, fx.mgr.CanEnter())
	err := fx.mgr.Enter(context.Background(), &domain.Candidate{Address: testMint}, 0)
	assert.Error(t, err)
}

func TestEnter_RejectedOnInsufficientSimBalance(t *testing.T) {
	fx := newFixture(t, testCfg(), nil)
	fx.state.SimBalanceSOL = 0.05

	assert.False(t, fx.mgr.CanEnter())
}

func TestResetCooldown_RejectedWithOpenPositions(t *testing.T) {
	fx := newFixture(t, testCfg(), nil, openPosition(testMint, 5, 0.1, time.UnixMilli(1_700_000_000_000)))
	fx.state.LastTradeTimeMs = fx.now.UnixMilli()

	err := fx.mgr.ResetCooldown(context.Background())
	require.Error(t, err)
	assert.Equal(t, fx.now.UnixMilli(), fx.state.LastTradeTimeMs, "cooldown state must not change")
}

func TestResetCooldown_ClearsWhenFlat(t *testing.T) {
	fx := newFixture(t, testCfg(), nil)
	fx.state.LastTradeTimeMs = fx.now.UnixMilli()

	require.NoError(t, fx.mgr.ResetCooldown(context.Background()))
	assert.Zero(t, fx.mgr.Cooldown().RemainingSec)
	assert.True(t, fx.mgr.CanEnter())
}

func TestSetMode(t *testing.T) {
	fx := newFixture(t, testCfg(), nil)

	changed, err := fx.mgr.SetMode(context.Background(), domain.ModeSimulated)
	require.NoError(t, err)
	assert.False(t, changed, "same mode is a no-op")

	changed, err = fx.mgr.SetMode(context.Background(), domain.ModeLive)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.ModeLive, fx.mgr.Mode())

	_, err = fx.mgr.SetMode(context.Background(), "paper")
	assert.Error(t, err)
}

func TestSetMode_RejectedWithoutLiveBackend(t *testing.T) {
	state := domain.DefaultState(10)
	exec := &fakeExec{buyOut: 1000, sellValues: map[string]float64{}}
	mgr := NewManager(testCfg(), state, Executors{Sim: exec}, &fakeStateStore{}, memory.NewTradeStore(), nil)

	_, err := mgr.SetMode(context.Background(), domain.ModeLive)
	require.Error(t, err)
	assert.Equal(t, domain.ModeSimulated, mgr.Mode())
}

func TestSetMode_RoutesExecutionToNewBackend(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	state := domain.DefaultState(10)
	state.Positions = []domain.Position{openPosition(testMint, 120, 0.1, now)}
	live := &fakeExec{buyOut: 1000, sellValues: map[string]float64{testMint: 0.01}}
	sim := &fakeExec{buyOut: 1000, sellValues: map[string]float64{testMint: 0.01}}
	trades := memory.NewTradeStore()
	mgr := NewManager(testCfg(), state, Executors{Live: live, Sim: sim}, &fakeStateStore{}, trades, nil,
		WithNow(func() time.Time { return now }))

	changed, err := mgr.SetMode(context.Background(), domain.ModeLive)
	require.NoError(t, err)
	require.True(t, changed)

	mgr.Update(context.Background(), 100, 0)

	assert.Equal(t, 1, live.swaps, "post-switch exits must use the live backend")
	assert.Equal(t, 0, sim.swaps)
	recent, err := trades.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, domain.ModeLive, recent[0].Mode)
}

func TestEnter_PersistsEntrySnapshot(t *testing.T) {
	fx := newFixture(t, testCfg(), nil)
	impact := 1.5
	cand := &domain.Candidate{
		Address:        testMint,
		Name:           "Alpha",
		Score:          12.5,
		Tier:           domain.TierStrict,
		PriceImpactPct: &impact,
		Momentum:       &domain.MomentumSnapshot{PctShort: 3, PctLong: 8, OK: true, Score: 11},
		Volatility:     &domain.VolatilitySnapshot{RangePct: 6, ChopPct: 2, OK: true},
		Risk:           &domain.RiskAssessment{Score: 1},
	}

	require.NoError(t, fx.mgr.Enter(context.Background(), cand, 6))

	require.Len(t, fx.store.last.Positions, 1)
	entry := fx.store.last.Positions[0].Entry
	assert.Equal(t, domain.TierStrict, entry.Tier)
	require.NotNil(t, entry.PriceImpactPct)
	assert.InDelta(t, 1.5, *entry.PriceImpactPct, 1e-9)
	require.NotNil(t, entry.MomentumScore)
	assert.InDelta(t, 11, *entry.MomentumScore, 1e-9)
	require.NotNil(t, entry.RangePct)
	assert.InDelta(t, 6, *entry.RangePct, 1e-9)
	require.NotNil(t, entry.RugRiskScore)
	assert.InDelta(t, 1, *entry.RugRiskScore, 1e-9)
	assert.Nil(t, entry.SignalScore, "momentum-mode entries carry no rule-based signal")
}

func TestTransitionHookRunsUnlocked(t *testing.T) {
	var cooldowns []int64
	now := time.UnixMilli(1_700_000_000_000)
	state := domain.DefaultState(10)
	exec := &fakeExec{buyOut: 1000, sellValues: map[string]float64{}}
	var mgr *Manager
	mgr = NewManager(testCfg(), state, Executors{Sim: exec}, &fakeStateStore{}, memory.NewTradeStore(), nil,
		WithNow(func() time.Time { return now }),
		WithTransitionHook(func() {
			// Calling back into the manager must not deadlock.
			cooldowns = append(cooldowns, mgr.Cooldown().RemainingSec)
		}))

	require.NoError(t, mgr.Enter(context.Background(), &domain.Candidate{Address: testMint}, 0))
	require.Len(t, cooldowns, 1)
	assert.Positive(t, cooldowns[0])
}
