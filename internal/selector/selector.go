// Package selector turns one provider's discovery feed into at most one
// entry candidate per scan, applying the filter gates, signal evaluation and
// composite ranking.
package selector

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"soltrader/internal/dataaccess"
	"soltrader/internal/domain"
	"soltrader/internal/indicator"
	"soltrader/internal/model"
	"soltrader/internal/provider"
	"soltrader/internal/risk"
	"soltrader/internal/solana"
	"soltrader/internal/swap"
)

// Composite score weights applied on top of the base signal score.
const (
	weightVolatility = 0.5
	weightRisk       = 1.0
)

// relaxedMomentumFloor is the fallback acceptance boundary for momentum
// candidates that miss the configured minimums. Kept at zero to match the
// long-observed behavior of the strategy; see DESIGN.md before tightening.
const relaxedMomentumFloor = 0.0

// Rejection reasons counted per scan for diagnosis.
const (
	ReasonInvalidMint   = "invalid_mint"
	ReasonMetricsFailed = "metrics_failed"
	ReasonLowLiquidity  = "low_liquidity"
	ReasonLowVol24h     = "low_vol24h"
	ReasonSecurityFlag  = "security_flag"
	ReasonAuthority     = "authority"
	ReasonHolders       = "holders"
	ReasonShortHistory  = "short_history"
	ReasonLowVol15m     = "low_vol15m"
	ReasonVolatility    = "volatility"
	ReasonHighImpact    = "high_impact"
	ReasonRugScore      = "rug_score"
	ReasonModelVeto     = "model_veto"
)

// SignalModeMomentum selects momentum evaluation; anything else selects the
// rule-based indicator engine.
const SignalModeMomentum = "momentum"

// RejectionCounts maps rejection reasons to how many seeds each gate dropped.
type RejectionCounts map[string]int

// Result is the outcome of one scan over one adapter.
type Result struct {
	// Candidate is the best surviving candidate, nil when every seed was
	// rejected.
	Candidate *domain.Candidate

	// Rejections counts dropped seeds per gate.
	Rejections RejectionCounts

	// Features holds one archived row per scored candidate.
	Features []*domain.FeatureRow
}

// OnChain covers the RPC checks the selector resolves itself when the
// provider omits the data.
type OnChain interface {
	TopHoldersPct(ctx context.Context, mint string) (float64, error)
	MintAuthorities(ctx context.Context, mint string) (mintAuth, freezeAuth bool, err error)
}

// SeedSource supplies extra seeds discovered out of band, merged ahead of
// the adapter's own discovery list.
type SeedSource interface {
	Pending() []domain.Seed
}

// Config holds the selector's filter thresholds and scan parameters.
type Config struct {
	ScanLimit       int
	MinLiquidityUSD float64
	MinVol24hUSD    float64
	MinVol15mUSD    float64
	MaxHoldersPct   float64
	MaxImpactPct    float64
	MaxRugScore     float64 // < 0 disables the rug gate
	MinCandles      int
	MinRangePct     float64
	VolatilityBars  int
	SignalMode      string
	TradeSizeSOL    float64
	SlippageBps     int
}

// Deps are the collaborators the selector drives per scan. Quoter, Chain,
// Model and Seeds are optional; a nil value disables the corresponding step.
type Deps struct {
	Signal   *indicator.Engine
	Momentum indicator.MomentumConfig
	Risk     *risk.Scorer
	Quoter   swap.Quoter
	Chain    OnChain
	Model    model.Scorer
	Seeds    SeedSource
}

// Selector ranks and filters discovered tokens.
type Selector struct {
	cfg  Config
	deps Deps

	// holdersSupported flips to false for the rest of the process when the
	// RPC endpoint rejects the largest-accounts method. Mutated only from
	// the tick loop.
	holdersSupported bool
	holdersWarned    bool

	logger zerolog.Logger
}

// New creates a selector.
func New(cfg Config, deps Deps) *Selector {
	return &Selector{
		cfg:              cfg,
		deps:             deps,
		holdersSupported: true,
		logger:           log.With().Str("component", "selector").Logger(),
	}
}

// Pick runs one scan over the adapter and returns the best candidate with
// per-gate rejection counts. A fully rejected scan returns a nil candidate
// and no error.
func (s *Selector) Pick(ctx context.Context, adapter provider.Adapter) (*Result, error) {
	seeds, err := adapter.Discover(ctx, s.cfg.ScanLimit)
	if err != nil {
		return nil, err
	}
	seeds = s.mergeSeeds(seeds)

	res := &Result{Rejections: make(RejectionCounts)}
	var strict, relaxed, volOnly *domain.Candidate
	now := time.Now().UnixMilli()

	for _, seed := range seeds {
		cand, reason, err := s.evaluate(ctx, adapter, seed)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			res.Rejections[reason]++
			continue
		}
		res.Features = append(res.Features, featureRow(now, cand))

		// First-seen wins on equal score: strictly-greater comparison
		// keeps the earlier candidate.
		switch cand.Tier {
		case domain.TierStrict:
			if strict == nil || cand.Score > strict.Score {
				strict = cand
			}
		case domain.TierRelaxed:
			if relaxed == nil || cand.Score > relaxed.Score {
				relaxed = cand
			}
		case domain.TierVolatilityOnly:
			if volOnly == nil || cand.Score > volOnly.Score {
				volOnly = cand
			}
		}
	}

	switch {
	case strict != nil:
		res.Candidate = strict
	case relaxed != nil:
		s.logger.Warn().Str("mint", relaxed.Address).Float64("score", relaxed.Score).
			Msg("no strict candidate, falling back to relaxed momentum")
		res.Candidate = relaxed
	case volOnly != nil:
		s.logger.Warn().Str("mint", volOnly.Address).Float64("score", volOnly.Score).
			Msg("no signal candidate, falling back to volatility only")
		res.Candidate = volOnly
	default:
		s.logger.Info().Interface("rejections", res.Rejections).Msg("scan produced no candidate")
	}
	return res, nil
}

// mergeSeeds puts out-of-band seeds ahead of the discovery list, dedupes by
// mint and re-applies the scan limit.
func (s *Selector) mergeSeeds(discovered []domain.Seed) []domain.Seed {
	var extra []domain.Seed
	if s.deps.Seeds != nil {
		extra = s.deps.Seeds.Pending()
	}
	if len(extra) == 0 {
		return discovered
	}

	seen := make(map[string]struct{}, len(extra)+len(discovered))
	merged := make([]domain.Seed, 0, len(extra)+len(discovered))
	for _, seed := range append(extra, discovered...) {
		if _, dup := seen[seed.Address]; dup {
			continue
		}
		seen[seed.Address] = struct{}{}
		merged = append(merged, seed)
	}
	if s.cfg.ScanLimit > 0 && len(merged) > s.cfg.ScanLimit {
		merged = merged[:s.cfg.ScanLimit]
	}
	return merged
}

// evaluate runs every gate for one seed. Returns the scored candidate, or the
// rejection reason that dropped it. A quota-exhaustion error aborts the whole
// scan so the failover controller can block the provider immediately.
func (s *Selector) evaluate(ctx context.Context, adapter provider.Adapter, seed domain.Seed) (*domain.Candidate, string, error) {
	if !provider.ValidMint(seed.Address) {
		return nil, ReasonInvalidMint, nil
	}

	m, err := adapter.FetchMetrics(ctx, seed.Address)
	if err != nil {
		if errors.Is(err, dataaccess.ErrQuotaExhausted) {
			return nil, "", err
		}
		s.logger.Debug().Err(err).Str("mint", seed.Address).Msg("metrics fetch failed")
		return nil, ReasonMetricsFailed, nil
	}

	if m.LiquidityUSD != nil && *m.LiquidityUSD < s.cfg.MinLiquidityUSD {
		return nil, ReasonLowLiquidity, nil
	}
	if m.Vol24hUSD != nil && *m.Vol24hUSD < s.cfg.MinVol24hUSD {
		return nil, ReasonLowVol24h, nil
	}
	if hardStopFlag(m.Security) {
		return nil, ReasonSecurityFlag, nil
	}
	if reason := s.checkAuthorities(ctx, seed.Address, m); reason != "" {
		return nil, reason, nil
	}
	if reason := s.checkHolders(ctx, seed.Address, m); reason != "" {
		return nil, reason, nil
	}
	if len(m.Candles) < s.cfg.MinCandles {
		return nil, ReasonShortHistory, nil
	}
	if m.Vol15mUSD != nil && *m.Vol15mUSD < s.cfg.MinVol15mUSD {
		return nil, ReasonLowVol15m, nil
	}

	vol := indicator.Volatility(m.Candles, s.cfg.VolatilityBars)
	if !vol.OK || vol.RangePct < s.cfg.MinRangePct {
		return nil, ReasonVolatility, nil
	}

	cand := &domain.Candidate{
		Address:    seed.Address,
		Name:       seed.Name,
		Volatility: vol,
	}
	s.evaluateSignal(m, cand)

	impact, reason := s.quoteImpact(ctx, seed.Address)
	if reason != "" {
		return nil, reason, nil
	}
	cand.PriceImpactPct = impact

	cand.Risk = s.deps.Risk.Assess(m)
	if s.cfg.MaxRugScore >= 0 && cand.Risk.Score > s.cfg.MaxRugScore {
		return nil, ReasonRugScore, nil
	}

	cand.Score = s.composite(cand)

	if s.vetoed(cand) {
		return nil, ReasonModelVeto, nil
	}
	return cand, "", nil
}

// evaluateSignal fills the mode-appropriate signal view and assigns the tier.
func (s *Selector) evaluateSignal(m *domain.TokenMetrics, cand *domain.Candidate) {
	cand.Tier = domain.TierVolatilityOnly

	if s.cfg.SignalMode == SignalModeMomentum {
		mom, err := indicator.Momentum(domain.Closes(m.Candles), s.deps.Momentum)
		if err != nil {
			return
		}
		cand.Momentum = &domain.MomentumSnapshot{
			PctShort: mom.PctShort,
			PctLong:  mom.PctLong,
			OK:       mom.OK,
			Score:    mom.Score,
		}
		switch {
		case mom.OK:
			cand.Tier = domain.TierStrict
		case mom.PctShort >= relaxedMomentumFloor && mom.PctLong >= relaxedMomentumFloor:
			cand.Tier = domain.TierRelaxed
		}
		return
	}

	snap, err := s.deps.Signal.Snapshot(m.Candles)
	if err != nil {
		return
	}
	cand.Signal = snap
	if snap.OK {
		cand.Tier = domain.TierStrict
	}
}

// checkAuthorities rejects tokens whose mint retains mint or freeze
// authority, resolving on-chain when the provider omits the flags.
func (s *Selector) checkAuthorities(ctx context.Context, mint string, m *domain.TokenMetrics) string {
	sec := m.Security
	if sec != nil && (isTrue(sec.MintAuthority) || isTrue(sec.FreezeAuthority)) {
		return ReasonAuthority
	}
	known := sec != nil && sec.MintAuthority != nil && sec.FreezeAuthority != nil
	if known || s.deps.Chain == nil {
		return ""
	}

	mintAuth, freezeAuth, err := s.deps.Chain.MintAuthorities(ctx, mint)
	if err != nil {
		s.logger.Debug().Err(err).Str("mint", mint).Msg("authority check failed")
		return ""
	}
	if m.Security == nil {
		m.Security = &domain.SecurityInfo{}
	}
	m.Security.MintAuthority = &mintAuth
	m.Security.FreezeAuthority = &freezeAuth
	if mintAuth || freezeAuth {
		return ReasonAuthority
	}
	return ""
}

// checkHolders rejects tokens whose top-10 holder concentration exceeds the
// maximum. An unsupported RPC method disables the check for the rest of the
// process with a one-time warning.
func (s *Selector) checkHolders(ctx context.Context, mint string, m *domain.TokenMetrics) string {
	if s.cfg.MaxHoldersPct <= 0 {
		return ""
	}
	if m.HoldersPct == nil && s.deps.Chain != nil && s.holdersSupported {
		pct, err := s.deps.Chain.TopHoldersPct(ctx, mint)
		switch {
		case errors.Is(err, solana.ErrUnsupported):
			s.holdersSupported = false
			if !s.holdersWarned {
				s.holdersWarned = true
				s.logger.Warn().Msg("RPC does not support holder lookups, holder gate disabled")
			}
		case err != nil:
			s.logger.Debug().Err(err).Str("mint", mint).Msg("holder check failed")
		default:
			m.HoldersPct = &pct
		}
	}
	if m.HoldersPct != nil && *m.HoldersPct > s.cfg.MaxHoldersPct {
		return ReasonHolders
	}
	return ""
}

// quoteImpact prices the configured trade size to estimate slippage.
func (s *Selector) quoteImpact(ctx context.Context, mint string) (*float64, string) {
	if s.deps.Quoter == nil {
		return nil, ""
	}
	q, err := s.deps.Quoter.Quote(ctx, swap.WSOL, mint, swap.SOLToLamports(s.cfg.TradeSizeSOL), s.cfg.SlippageBps)
	if err != nil {
		s.logger.Debug().Err(err).Str("mint", mint).Msg("impact quote failed")
		return nil, ""
	}
	if q.PriceImpactPct > s.cfg.MaxImpactPct {
		return nil, ReasonHighImpact
	}
	impact := q.PriceImpactPct
	return &impact, ""
}

// composite combines the base signal score with volatility, impact headroom
// and risk.
func (s *Selector) composite(cand *domain.Candidate) float64 {
	var base float64
	if cand.Momentum != nil {
		base = cand.Momentum.Score
	} else if cand.Signal != nil {
		base = cand.Signal.Score
	}

	score := base + weightVolatility*cand.Volatility.RangePct + cand.Volatility.ChopPct
	if cand.PriceImpactPct != nil {
		score += (s.cfg.MaxImpactPct - *cand.PriceImpactPct) / 2
	}
	if cand.Risk != nil {
		score -= weightRisk * cand.Risk.Score
	}
	return score
}

// vetoed consults the trained model when one is loaded. A probability at or
// above the threshold marks the token as a likely rug.
func (s *Selector) vetoed(cand *domain.Candidate) bool {
	if s.deps.Model == nil {
		return false
	}
	res, err := s.deps.Model.Score(features(cand))
	if err != nil {
		s.logger.Debug().Err(err).Str("mint", cand.Address).Msg("model scoring failed")
		return false
	}
	if res.Probability >= res.Threshold {
		s.logger.Info().Str("mint", cand.Address).
			Float64("probability", res.Probability).Float64("threshold", res.Threshold).
			Msg("candidate vetoed by model")
		return true
	}
	return false
}

// features flattens a candidate into the model's named-feature mapping.
// Missing metrics are omitted; the model imputes zero.
func features(cand *domain.Candidate) map[string]float64 {
	f := map[string]float64{
		model.FeatureScore: cand.Score,
	}
	if cand.Risk != nil {
		f[model.FeatureRugRiskScore] = cand.Risk.Score
		putOpt(f, model.FeatureRugHoldersPct, cand.Risk.HoldersPct)
		putOpt(f, model.FeatureRugLiquidityUSD, cand.Risk.LiquidityUSD)
		putOpt(f, model.FeatureRugVol24hUSD, cand.Risk.Vol24hUSD)
	}
	putOpt(f, model.FeaturePriceImpactPct, cand.PriceImpactPct)
	if cand.Volatility != nil {
		f[model.FeatureVolatilityRangePct] = cand.Volatility.RangePct
		f[model.FeatureVolatilityChopPct] = cand.Volatility.ChopPct
	}
	if cand.Signal != nil {
		f[model.FeatureSignalScore] = cand.Signal.Score
	}
	if cand.Momentum != nil {
		f[model.FeatureMomentumScore] = cand.Momentum.Score
		f[model.FeatureMomentumPctShort] = cand.Momentum.PctShort
		f[model.FeatureMomentumPctLong] = cand.Momentum.PctLong
	}
	return f
}

func putOpt(f map[string]float64, name string, v *float64) {
	if v != nil {
		f[name] = *v
	}
}

// featureRow archives one scored candidate for the trainer.
func featureRow(nowMs int64, cand *domain.Candidate) *domain.FeatureRow {
	row := &domain.FeatureRow{
		TimestampMs:    nowMs,
		Address:        cand.Address,
		Name:           cand.Name,
		Score:          cand.Score,
		PriceImpactPct: cand.PriceImpactPct,
	}
	if cand.Risk != nil {
		row.RugRiskScore = &cand.Risk.Score
		row.RugHoldersPct = cand.Risk.HoldersPct
		row.RugLiquidityUSD = cand.Risk.LiquidityUSD
		row.RugVol24hUSD = cand.Risk.Vol24hUSD
	}
	if cand.Volatility != nil {
		row.VolatilityRangePct = &cand.Volatility.RangePct
		row.VolatilityChopPct = &cand.Volatility.ChopPct
	}
	if cand.Signal != nil {
		row.SignalScore = &cand.Signal.Score
	}
	if cand.Momentum != nil {
		row.MomentumScore = &cand.Momentum.Score
		row.MomentumPctShort = &cand.Momentum.PctShort
		row.MomentumPctLong = &cand.Momentum.PctLong
	}
	return row
}

// hardStopFlag reports an explicit positive scam or honeypot signal.
func hardStopFlag(sec *domain.SecurityInfo) bool {
	if sec == nil {
		return false
	}
	return isTrue(sec.IsScam) || isTrue(sec.IsHoneypot)
}

func isTrue(v *bool) bool {
	return v != nil && *v
}
