// Package position owns the open-position set: entry gating, the
// priority-ordered exit state machine and the persisted engine state.
package position

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"soltrader/internal/domain"
	"soltrader/internal/observability"
	"soltrader/internal/storage"
	"soltrader/internal/swap"
)

// TrendChecker re-evaluates the entry trend on fresh candle data, used to
// decide whether a soft time stop may be extended.
type TrendChecker interface {
	TrendOK(ctx context.Context, mint string) (bool, error)
}

// Config holds entry gating and exit thresholds.
type Config struct {
	TradeSizeSOL    float64
	MaxPositions    int
	CooldownMinutes int
	SlippageBps     int

	StopLossPct       float64 // fraction, e.g. 0.25 exits at -25%
	TakeProfitPct     float64 // percent
	TakeProfitUSD     float64
	ExitSoftMinutes   int
	ExitHardMinutes   int
	MinPnLPctToExtend float64
	AccountFloorSOL   float64 // <= 0 disables account_stop
}

// Executors holds the per-mode execution backends. Sim is required; Live may
// be nil when no signer is configured, which blocks switching into live mode.
type Executors struct {
	Live swap.Executor
	Sim  swap.Executor
}

func (e Executors) forMode(mode domain.Mode) swap.Executor {
	if mode == domain.ModeLive {
		return e.Live
	}
	return e.Sim
}

// tickEnv carries the per-tick valuations exit predicates consume.
type tickEnv struct {
	now             time.Time
	accountValueSOL float64
	solPriceUSD     float64 // 0 when unknown
}

// exitRule pairs an exit reason with its predicate. Rules are evaluated in
// slice order per position; the first match wins.
type exitRule struct {
	reason domain.ExitReason
	match  func(ctx context.Context, view *domain.PositionView, env *tickEnv) bool
}

// Manager owns the engine state and every position-lifecycle transition.
// Safe for concurrent manual-control calls; tick methods are expected to run
// from the single scheduling loop.
type Manager struct {
	cfg    Config
	execs  Executors
	store  storage.StateStore
	trades storage.TradeStore
	trend  TrendChecker
	rules  []exitRule
	now    func() time.Time

	mu         sync.Mutex
	state      *domain.EngineState
	manualExit bool
	lastViews  []domain.PositionView

	// onTransition runs after every persisted lifecycle change.
	onTransition func()

	logger zerolog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithNow overrides the clock. For tests.
func WithNow(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithTransitionHook registers a callback invoked after every persisted
// lifecycle change, typically to publish a snapshot. The callback runs
// without the manager lock held and may call back into the manager.
func WithTransitionHook(fn func()) Option {
	return func(m *Manager) { m.onTransition = fn }
}

// NewManager creates a manager around previously loaded state. Execution is
// routed per call on the current mode so runtime mode switches take effect
// on the next transition.
func NewManager(cfg Config, state *domain.EngineState, execs Executors, store storage.StateStore, trades storage.TradeStore, trend TrendChecker, opts ...Option) *Manager {
	m := &Manager{
		cfg:    cfg,
		execs:  execs,
		store:  store,
		trades: trades,
		trend:  trend,
		state:  state,
		now:    time.Now,
		logger: log.With().Str("component", "position").Logger(),
	}
	m.rules = []exitRule{
		{domain.ExitReasonManual, m.matchManual},
		{domain.ExitReasonAccountStop, m.matchAccountStop},
		{domain.ExitReasonStopLoss, m.matchStopLoss},
		{domain.ExitReasonTakeProfit, m.matchTakeProfit},
		{domain.ExitReasonHardTime, m.matchHardTime},
		{domain.ExitReasonSoftTime, m.matchSoftTime},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) matchManual(_ context.Context, _ *domain.PositionView, _ *tickEnv) bool {
	// Level-triggered flag, consumed by the first position that checks it.
	if m.manualExit {
		m.manualExit = false
		return true
	}
	return false
}

func (m *Manager) matchAccountStop(_ context.Context, _ *domain.PositionView, env *tickEnv) bool {
	return m.cfg.AccountFloorSOL > 0 && env.accountValueSOL <= m.cfg.AccountFloorSOL
}

func (m *Manager) matchStopLoss(_ context.Context, view *domain.PositionView, _ *tickEnv) bool {
	return view.PnLPct <= -m.cfg.StopLossPct*100
}

func (m *Manager) matchTakeProfit(_ context.Context, view *domain.PositionView, env *tickEnv) bool {
	if view.PnLPct >= m.cfg.TakeProfitPct {
		return true
	}
	return env.solPriceUSD > 0 && view.PnLSOL*env.solPriceUSD >= m.cfg.TakeProfitUSD
}

func (m *Manager) matchHardTime(_ context.Context, view *domain.PositionView, _ *tickEnv) bool {
	return view.HeldMs >= int64(m.cfg.ExitHardMinutes)*60_000
}

func (m *Manager) matchSoftTime(ctx context.Context, view *domain.PositionView, _ *tickEnv) bool {
	if view.HeldMs < int64(m.cfg.ExitSoftMinutes)*60_000 {
		return false
	}
	if view.PnLPct >= m.cfg.MinPnLPctToExtend && m.trend != nil {
		ok, err := m.trend.TrendOK(ctx, view.Mint)
		if err != nil {
			m.logger.Debug().Err(err).Str("mint", view.Mint).Msg("trend re-check failed")
		} else if ok {
			m.logger.Info().Str("mint", view.Mint).Float64("pnlPct", view.PnLPct).
				Msg("soft time stop extended, trend intact")
			return false
		}
	}
	return true
}

// Update marks every open position and closes those matching an exit rule.
// Exit execution failures leave the position open for the next tick.
// Positions are always evaluated before any entry in the same tick.
func (m *Manager) Update(ctx context.Context, walletSOL, solPriceUSD float64) {
	m.mu.Lock()
	closed := m.updateLocked(ctx, walletSOL, solPriceUSD)
	m.mu.Unlock()
	if closed > 0 {
		m.notify()
	}
}

// updateLocked returns the number of positions closed this tick.
func (m *Manager) updateLocked(ctx context.Context, walletSOL, solPriceUSD float64) int {
	open := append([]domain.Position(nil), m.state.Positions...)
	now := m.now()

	views := make([]domain.PositionView, 0, len(open))
	marked := make(map[string]bool, len(open))
	var positionsSOL float64
	for _, pos := range open {
		view, err := m.mark(ctx, pos, now)
		if err != nil {
			m.logger.Warn().Err(err).Str("mint", pos.Mint).Msg("position valuation failed, skipping this tick")
			views = append(views, unmarkedView(pos, now))
			continue
		}
		marked[pos.ID] = true
		positionsSOL += view.CurrentSOL
		views = append(views, view)
	}

	wallet := walletSOL
	if m.state.Mode == domain.ModeSimulated {
		wallet = m.state.SimBalanceSOL
	}
	env := &tickEnv{
		now:             now,
		accountValueSOL: wallet + positionsSOL,
		solPriceUSD:     solPriceUSD,
	}

	closed := 0
	for i := range views {
		view := &views[i]
		if !marked[view.ID] {
			continue
		}
		for _, rule := range m.rules {
			if rule.match(ctx, view, env) {
				if m.exit(ctx, view, rule.reason, env) {
					closed++
				}
				break
			}
		}
	}
	m.lastViews = m.currentViews(views)
	return closed
}

// currentViews drops views whose position was closed during this update.
func (m *Manager) currentViews(views []domain.PositionView) []domain.PositionView {
	stillOpen := make(map[string]bool, len(m.state.Positions))
	for _, p := range m.state.Positions {
		stillOpen[p.ID] = true
	}
	kept := views[:0]
	for _, v := range views {
		if stillOpen[v.ID] {
			kept = append(kept, v)
		}
	}
	return kept
}

// execLocked returns the execution backend for the current mode.
func (m *Manager) execLocked() swap.Executor {
	return m.execs.forMode(m.state.Mode)
}

// mark values one position by quoting its full token amount back to SOL.
func (m *Manager) mark(ctx context.Context, pos domain.Position, now time.Time) (domain.PositionView, error) {
	amount := uint64(pos.TokenAmount * math.Pow10(pos.TokenDecimals))
	q, err := m.execLocked().Quote(ctx, pos.Mint, swap.WSOL, amount, m.cfg.SlippageBps)
	if err != nil {
		return domain.PositionView{}, err
	}
	current := swap.LamportsToSOL(q.OutAmount)
	view := domain.PositionView{
		Position:   pos,
		CurrentSOL: current,
		PnLSOL:     current - pos.EntrySOL,
		HeldMs:     now.UnixMilli() - pos.EntryTimeMs,
	}
	if pos.EntrySOL > 0 {
		view.PnLPct = view.PnLSOL / pos.EntrySOL * 100
	}
	return view, nil
}

func unmarkedView(pos domain.Position, now time.Time) domain.PositionView {
	return domain.PositionView{
		Position:   pos,
		CurrentSOL: pos.EntrySOL,
		HeldMs:     now.UnixMilli() - pos.EntryTimeMs,
	}
}

// exit sells one position. Failure is logged and the position stays open.
func (m *Manager) exit(ctx context.Context, view *domain.PositionView, reason domain.ExitReason, env *tickEnv) bool {
	pos := view.Position
	amount := uint64(pos.TokenAmount * math.Pow10(pos.TokenDecimals))
	exec := m.execLocked()

	q, err := exec.Quote(ctx, pos.Mint, swap.WSOL, amount, m.cfg.SlippageBps)
	if err != nil {
		m.logger.Error().Err(err).Str("mint", pos.Mint).Str("reason", string(reason)).
			Msg("exit quote failed, position stays open")
		return false
	}
	sig, err := exec.Swap(ctx, q)
	if err != nil {
		m.logger.Error().Err(err).Str("mint", pos.Mint).Str("reason", string(reason)).
			Msg("exit swap failed, position stays open")
		return false
	}
	if err := exec.Confirm(ctx, sig); err != nil {
		m.logger.Error().Err(err).Str("mint", pos.Mint).Str("signature", sig).
			Msg("exit confirmation failed, position stays open")
		return false
	}

	exitSOL := swap.LamportsToSOL(q.OutAmount)
	nowMs := env.now.UnixMilli()

	m.removePosition(pos.ID)
	if m.state.Mode == domain.ModeSimulated {
		m.state.SimBalanceSOL += exitSOL
	}
	m.state.LastExitTimeMs = nowMs
	m.persist(ctx)

	record := &domain.TradeRecord{
		TradeID:        uuid.NewString(),
		Mint:           pos.Mint,
		Name:           pos.Name,
		Mode:           m.state.Mode,
		EntryTimeMs:    pos.EntryTimeMs,
		ExitTimeMs:     nowMs,
		EntrySOL:       pos.EntrySOL,
		ExitSOL:        exitSOL,
		PnLSOL:         exitSOL - pos.EntrySOL,
		Reason:         reason,
		HoldDurationMs: nowMs - pos.EntryTimeMs,
	}
	if pos.EntrySOL > 0 {
		record.PnLPct = record.PnLSOL / pos.EntrySOL * 100
	}
	if m.trades != nil {
		if err := m.trades.Insert(ctx, record); err != nil {
			m.logger.Error().Err(err).Str("tradeId", record.TradeID).Msg("trade record insert failed")
		}
	}

	m.logger.Info().Str("mint", pos.Mint).Str("reason", string(reason)).
		Float64("pnlSol", record.PnLSOL).Float64("pnlPct", record.PnLPct).
		Int64("heldMs", record.HoldDurationMs).Msg("position closed")
	observability.RecordExit(string(reason), record.PnLSOL, len(m.state.Positions))
	return true
}

func (m *Manager) removePosition(id string) {
	kept := m.state.Positions[:0]
	for _, p := range m.state.Positions {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	m.state.Positions = kept
}

// CanEnter reports whether a new entry is currently permitted.
func (m *Manager) CanEnter() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canEnterLocked()
}

func (m *Manager) canEnterLocked() bool {
	if len(m.state.Positions) >= m.cfg.MaxPositions {
		return false
	}
	if m.cooldownLocked().RemainingSec > 0 {
		return false
	}
	if m.state.Mode == domain.ModeSimulated && m.state.SimBalanceSOL < m.cfg.TradeSizeSOL {
		return false
	}
	return true
}

// Enter buys the candidate at the configured trade size. decimals is the
// token's mint decimals, zero when unknown (amounts then stay atomic).
func (m *Manager) Enter(ctx context.Context, cand *domain.Candidate, decimals int) error {
	m.mu.Lock()
	err := m.enterLocked(ctx, cand, decimals)
	m.mu.Unlock()
	if err == nil {
		m.notify()
	}
	return err
}

func (m *Manager) enterLocked(ctx context.Context, cand *domain.Candidate, decimals int) error {
	if !m.canEnterLocked() {
		return fmt.Errorf("entry not permitted")
	}

	exec := m.execLocked()
	q, err := exec.Quote(ctx, swap.WSOL, cand.Address, swap.SOLToLamports(m.cfg.TradeSizeSOL), m.cfg.SlippageBps)
	if err != nil {
		return fmt.Errorf("entry quote: %w", err)
	}
	sig, err := exec.Swap(ctx, q)
	if err != nil {
		return fmt.Errorf("entry swap: %w", err)
	}
	if err := exec.Confirm(ctx, sig); err != nil {
		return fmt.Errorf("entry confirmation: %w", err)
	}

	now := m.now()
	pos := domain.Position{
		ID:            uuid.NewString(),
		Mint:          cand.Address,
		Name:          cand.Name,
		EntryTimeMs:   now.UnixMilli(),
		EntrySOL:      m.cfg.TradeSizeSOL,
		TokenAmount:   float64(q.OutAmount) / math.Pow10(decimals),
		TokenDecimals: decimals,
		Signature:     sig,
		EntryScore:    cand.Score,
		Entry:         entrySnapshot(cand),
	}

	m.state.Positions = append(m.state.Positions, pos)
	if m.state.Mode == domain.ModeSimulated {
		m.state.SimBalanceSOL -= m.cfg.TradeSizeSOL
	}
	m.state.LastTradeTimeMs = now.UnixMilli()
	m.persist(ctx)

	m.logger.Info().Str("mint", pos.Mint).Str("name", pos.Name).
		Float64("entrySol", pos.EntrySOL).Float64("score", cand.Score).
		Str("tier", string(cand.Tier)).Msg("position opened")
	observability.RecordEntry(len(m.state.Positions))
	return nil
}

// entrySnapshot flattens the winning candidate's evaluation for persistence
// with the position.
func entrySnapshot(cand *domain.Candidate) domain.EntrySnapshot {
	snap := domain.EntrySnapshot{
		Tier:           cand.Tier,
		PriceImpactPct: cand.PriceImpactPct,
	}
	if cand.Signal != nil {
		snap.SignalScore = &cand.Signal.Score
	}
	if cand.Momentum != nil {
		snap.MomentumScore = &cand.Momentum.Score
		snap.MomentumPctShort = &cand.Momentum.PctShort
		snap.MomentumPctLong = &cand.Momentum.PctLong
	}
	if cand.Volatility != nil {
		snap.RangePct = &cand.Volatility.RangePct
		snap.ChopPct = &cand.Volatility.ChopPct
	}
	if cand.Risk != nil {
		snap.RugRiskScore = &cand.Risk.Score
	}
	return snap
}

// RequestExit queues a manual exit for the next tick. Idempotent while
// already queued.
func (m *Manager) RequestExit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.manualExit {
		return nil
	}
	m.manualExit = true
	m.logger.Info().Msg("manual exit queued")
	return nil
}

// ResetCooldown clears the entry cooldown. Rejected while any position is
// open.
func (m *Manager) ResetCooldown(ctx context.Context) error {
	m.mu.Lock()
	if n := len(m.state.Positions); n > 0 {
		m.mu.Unlock()
		return fmt.Errorf("cooldown reset rejected: %d position(s) open", n)
	}
	m.state.LastTradeTimeMs = 0
	m.persist(ctx)
	m.mu.Unlock()
	m.notify()
	return nil
}

// SetMode switches between live and simulated execution. Returns changed =
// false when the mode is already set. Switching into live mode requires a
// configured live backend; later transitions route through the new mode's
// executor.
func (m *Manager) SetMode(ctx context.Context, mode domain.Mode) (changed bool, err error) {
	if mode != domain.ModeLive && mode != domain.ModeSimulated {
		return false, fmt.Errorf("unknown mode %q", mode)
	}
	if mode == domain.ModeLive && m.execs.Live == nil {
		return false, fmt.Errorf("live execution not configured")
	}
	m.mu.Lock()
	if m.state.Mode == mode {
		m.mu.Unlock()
		return false, nil
	}
	m.state.Mode = mode
	m.persist(ctx)
	m.mu.Unlock()
	m.logger.Info().Str("mode", string(mode)).Msg("mode changed")
	m.notify()
	return true, nil
}

// Mode returns the current execution mode.
func (m *Manager) Mode() domain.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Mode
}

// SimBalanceSOL returns the paper-trading balance.
func (m *Manager) SimBalanceSOL() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SimBalanceSOL
}

// OpenCount returns the number of open positions.
func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.Positions)
}

// Views returns the most recent per-position valuations.
func (m *Manager) Views() []domain.PositionView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.PositionView(nil), m.lastViews...)
}

// Cooldown describes entry pacing as of now.
func (m *Manager) Cooldown() domain.Cooldown {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cooldownLocked()
}

func (m *Manager) cooldownLocked() domain.Cooldown {
	cd := domain.Cooldown{LastTradeTimeMs: m.state.LastTradeTimeMs}
	if m.state.LastTradeTimeMs == 0 {
		return cd
	}
	cd.NextEntryMs = m.state.LastTradeTimeMs + int64(m.cfg.CooldownMinutes)*60_000
	if remaining := cd.NextEntryMs - m.now().UnixMilli(); remaining > 0 {
		cd.RemainingSec = (remaining + 999) / 1000
	}
	return cd
}

func (m *Manager) persist(ctx context.Context) {
	if err := m.store.Save(ctx, m.state); err != nil {
		m.logger.Error().Err(err).Msg("state persist failed")
	}
}

func (m *Manager) notify() {
	if m.onTransition != nil {
		m.onTransition()
	}
}
