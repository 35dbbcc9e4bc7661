// Package engine runs the tick loop: value held positions, evaluate exits,
// scan for entries and publish snapshots. One tick fully completes before the
// next begins; nothing inside a tick is allowed to crash the loop.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"soltrader/internal/config"
	"soltrader/internal/dataaccess"
	"soltrader/internal/domain"
	"soltrader/internal/indicator"
	"soltrader/internal/observability"
	"soltrader/internal/position"
	"soltrader/internal/provider"
	"soltrader/internal/selector"
	"soltrader/internal/snapshot"
	"soltrader/internal/stats"
	"soltrader/internal/storage"
	"soltrader/internal/swap"
)

// USDC is the quote mint used to price SOL in USD.
const USDC = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

const (
	recentTradesLimit   = 50
	snapshotTradesLimit = 10
	publishTimeout      = 5 * time.Second
)

// Chain covers the RPC calls the engine itself needs. Nil when no RPC
// endpoint is configured.
type Chain interface {
	GetBalance(ctx context.Context, pubkey string) (float64, error)
	GetTokenSupply(ctx context.Context, mint string) (float64, int, error)
}

// Params wires an Engine.
type Params struct {
	Config    *config.Config
	Selector  *selector.Selector
	Failover  *provider.Failover
	Executors position.Executors
	Quoter    swap.Quoter
	State     *domain.EngineState

	StateStore storage.StateStore
	TradeStore storage.TradeStore
	// FeatureStore is optional; nil disables feature archiving.
	FeatureStore storage.FeatureStore

	// Chain is optional; nil disables wallet valuation and decimal lookups.
	Chain        Chain
	WalletPubkey string

	Publisher snapshot.Publisher
}

// Engine is the tick scheduler and the outer control surface.
type Engine struct {
	cfg      *config.Config
	sel      *selector.Selector
	failover *provider.Failover
	mgr      *position.Manager
	chain    Chain
	quoter   swap.Quoter
	wallet   string

	trades    storage.TradeStore
	features  storage.FeatureStore
	publisher snapshot.Publisher

	// lastWalletSOL is refreshed each tick and reused by snapshots between
	// ticks. Written only from the tick loop.
	lastWalletSOL float64

	logger zerolog.Logger
}

// New creates an engine and its position manager.
func New(p Params) *Engine {
	e := &Engine{
		cfg:       p.Config,
		sel:       p.Selector,
		failover:  p.Failover,
		chain:     p.Chain,
		quoter:    p.Quoter,
		wallet:    p.WalletPubkey,
		trades:    p.TradeStore,
		features:  p.FeatureStore,
		publisher: p.Publisher,
		logger:    log.With().Str("component", "engine").Logger(),
	}

	pcfg := position.Config{
		TradeSizeSOL:      p.Config.TradeSizeSOL,
		MaxPositions:      p.Config.MaxPositions,
		CooldownMinutes:   p.Config.CooldownMinutes,
		SlippageBps:       p.Config.SlippageBps,
		StopLossPct:       p.Config.StopLossPct,
		TakeProfitPct:     p.Config.TakeProfitPct,
		TakeProfitUSD:     p.Config.TakeProfitUSD,
		ExitSoftMinutes:   p.Config.ExitSoftMinutes,
		ExitHardMinutes:   p.Config.ExitHardMinutes,
		MinPnLPctToExtend: p.Config.MinPnLPctToExtend,
		AccountFloorSOL:   p.Config.AccountFloorSOL,
	}
	e.mgr = position.NewManager(pcfg, p.State, p.Executors, p.StateStore, p.TradeStore, e,
		position.WithTransitionHook(func() {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			defer cancel()
			e.publishSnapshot(ctx)
		}))
	return e
}

// Run executes ticks at the configured poll interval until ctx is canceled.
func (e *Engine) Run(ctx context.Context) error {
	interval := time.Duration(e.cfg.PollIntervalSec) * time.Second
	e.logger.Info().Dur("interval", interval).Str("mode", string(e.mgr.Mode())).Msg("engine started")
	e.publishSnapshot(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		e.tick(ctx)
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("engine stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// tick runs one full scheduling cycle. Any panic from trading logic is
// converted into a logged recoverable event.
func (e *Engine) tick(ctx context.Context) {
	start := time.Now()
	status := "ok"
	defer func() {
		if r := recover(); r != nil {
			status = "panic"
			e.logger.Error().Interface("panic", r).Msg("tick panicked, recovering")
		}
		observability.RecordTick(status, time.Since(start).Seconds())
	}()

	e.refreshWallet(ctx)
	solPrice := e.solPriceUSD(ctx)

	// Held positions are always evaluated before any entry.
	e.mgr.Update(ctx, e.lastWalletSOL, solPrice)

	if e.mgr.CanEnter() {
		if err := e.scanAndEnter(ctx); err != nil {
			status = "scan_failed"
			e.logger.Warn().Err(err).Msg("scan failed, retrying next tick")
		}
	}
}

func (e *Engine) refreshWallet(ctx context.Context) {
	if e.chain == nil || e.wallet == "" {
		return
	}
	balance, err := e.chain.GetBalance(ctx, e.wallet)
	if err != nil {
		e.logger.Debug().Err(err).Msg("wallet balance refresh failed")
		return
	}
	e.lastWalletSOL = balance
}

// solPriceUSD prices one SOL in USD via the quoter. Zero when unknown.
func (e *Engine) solPriceUSD(ctx context.Context) float64 {
	if e.quoter == nil {
		return 0
	}
	q, err := e.quoter.Quote(ctx, swap.WSOL, USDC, swap.SOLToLamports(1), e.cfg.SlippageBps)
	if err != nil {
		e.logger.Debug().Err(err).Msg("SOL price quote failed")
		return 0
	}
	return float64(q.OutAmount) / 1e6 // USDC has 6 decimals
}

// scanAndEnter runs discovery through the active provider and enters the
// best candidate, if any.
func (e *Engine) scanAndEnter(ctx context.Context) error {
	adapter, err := e.failover.Active()
	if err != nil {
		return err
	}

	res, err := e.sel.Pick(ctx, adapter)
	if err != nil {
		if errors.Is(err, dataaccess.ErrQuotaExhausted) {
			e.failover.ReportQuotaExhausted(adapter.Name())
			observability.RecordProviderBlocked(adapter.Name())
			return nil
		}
		return err
	}

	observability.RecordRejections(res.Rejections)
	e.archiveFeatures(ctx, res.Features)

	if res.Candidate == nil {
		return nil
	}
	observability.RecordCandidate(string(res.Candidate.Tier))

	decimals := e.tokenDecimals(ctx, res.Candidate.Address)
	if err := e.mgr.Enter(ctx, res.Candidate, decimals); err != nil {
		e.logger.Warn().Err(err).Str("mint", res.Candidate.Address).Msg("entry failed")
	}
	return nil
}

func (e *Engine) archiveFeatures(ctx context.Context, rows []*domain.FeatureRow) {
	if e.features == nil || len(rows) == 0 {
		return
	}
	if err := e.features.InsertBulk(ctx, rows); err != nil {
		e.logger.Warn().Err(err).Int("rows", len(rows)).Msg("feature archive failed")
	}
}

func (e *Engine) tokenDecimals(ctx context.Context, mint string) int {
	if e.chain == nil {
		return 0
	}
	_, decimals, err := e.chain.GetTokenSupply(ctx, mint)
	if err != nil {
		e.logger.Debug().Err(err).Str("mint", mint).Msg("decimal lookup failed")
		return 0
	}
	return decimals
}

// TrendOK implements position.TrendChecker: it re-fetches candles through
// the active provider and re-evaluates the configured entry signal.
func (e *Engine) TrendOK(ctx context.Context, mint string) (bool, error) {
	adapter, err := e.failover.Active()
	if err != nil {
		return false, err
	}
	m, err := adapter.FetchMetrics(ctx, mint)
	if err != nil {
		return false, err
	}

	if e.cfg.SignalMode == selector.SignalModeMomentum {
		mom, err := indicator.Momentum(domain.Closes(m.Candles), indicator.MomentumConfig{
			ShortBars:   e.cfg.MomentumShortBars,
			LongBars:    e.cfg.MomentumLongBars,
			MinShortPct: e.cfg.MomentumMinShortPct,
			MinLongPct:  e.cfg.MomentumMinLongPct,
		})
		if err != nil {
			return false, err
		}
		return mom.OK, nil
	}

	snap, err := indicator.NewEngine(indicator.Config{
		EMAFastPeriod:    e.cfg.EMAFastPeriod,
		EMASlowPeriod:    e.cfg.EMASlowPeriod,
		RSIPeriod:        e.cfg.RSIPeriod,
		RSILow:           e.cfg.RSILow,
		BollingerPeriod:  e.cfg.BollingerPeriod,
		BollingerStdMult: e.cfg.BollingerStdMult,
		VolSpikeMult:     e.cfg.VolSpikeMult,
	}).Snapshot(m.Candles)
	if err != nil {
		return false, err
	}
	return snap.Trend, nil
}

// RequestExit queues a manual exit for the next tick.
func (e *Engine) RequestExit() error {
	return e.mgr.RequestExit()
}

// ResetCooldown clears the entry cooldown when no position is open.
func (e *Engine) ResetCooldown(ctx context.Context) error {
	return e.mgr.ResetCooldown(ctx)
}

// SetMode switches between live and simulated execution.
func (e *Engine) SetMode(ctx context.Context, mode domain.Mode) (bool, error) {
	return e.mgr.SetMode(ctx, mode)
}

// publishSnapshot builds the externally visible state view and fans it out.
func (e *Engine) publishSnapshot(ctx context.Context) {
	if e.publisher == nil {
		return
	}

	views := e.mgr.Views()
	var positionsSOL float64
	for _, v := range views {
		positionsSOL += v.CurrentSOL
	}

	balances := domain.Balances{
		WalletSOL:    e.lastWalletSOL,
		SimSOL:       e.mgr.SimBalanceSOL(),
		PositionsSOL: positionsSOL,
	}
	if e.mgr.Mode() == domain.ModeSimulated {
		balances.TotalValueSOL = balances.SimSOL + positionsSOL
	} else {
		balances.TotalValueSOL = balances.WalletSOL + positionsSOL
	}

	snap := &domain.Snapshot{
		TimestampMs: time.Now().UnixMilli(),
		Status:      "running",
		Mode:        e.mgr.Mode(),
		Balances:    balances,
		Positions:   views,
		Cooldown:    e.mgr.Cooldown(),
	}

	if e.trades != nil {
		recent, err := e.trades.Recent(ctx, recentTradesLimit)
		if err != nil {
			e.logger.Debug().Err(err).Msg("recent trades load failed")
		} else if len(recent) > 0 {
			snap.Stats = stats.Compute(recent)
			limit := snapshotTradesLimit
			if len(recent) < limit {
				limit = len(recent)
			}
			for _, t := range recent[:limit] {
				snap.RecentTrades = append(snap.RecentTrades, *t)
			}
		}
	}

	if err := e.publisher.Publish(ctx, snap); err != nil {
		e.logger.Warn().Err(err).Msg("snapshot publish failed")
	}
}
