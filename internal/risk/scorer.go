// Package risk converts security, holder and liquidity metadata into a
// weighted rug-risk score with named flags.
package risk

import "soltrader/internal/domain"

// Flag names recorded on a triggered risk condition.
const (
	FlagScam            = "scam"
	FlagHoneypot        = "honeypot"
	FlagMintable        = "mintable"
	FlagFreezeable      = "freezeable"
	FlagOwnerChange     = "owner_change"
	FlagHighTax         = "high_tax"
	FlagLPUnlocked      = "lp_unlocked"
	FlagMintAuthority   = "mint_authority"
	FlagFreezeAuthority = "freeze_authority"
	FlagTopHolders      = "top_holders"
	FlagLowLiquidity    = "low_liquidity"
	FlagLowVolume       = "low_volume"
)

// Per-flag weights. The score is their sum over triggered conditions and has
// no upper bound; callers apply their own acceptance ceiling.
const (
	weightScam            = 5.0
	weightHoneypot        = 5.0
	weightMintable        = 2.0
	weightFreezeable      = 2.0
	weightOwnerChange     = 2.0
	weightHighTax         = 1.5
	weightLPUnlocked      = 2.5
	weightMintAuthority   = 2.0
	weightFreezeAuthority = 2.0
	weightTopHolders      = 2.0
	weightLowLiquidity    = 1.0
	weightLowVolume       = 1.0
)

// Config holds the numeric thresholds the scorer checks against.
type Config struct {
	MaxHoldersPct   float64
	MinLiquidityUSD float64
	MinVol24hUSD    float64
}

// Scorer computes rug-risk assessments. Unknown (nil) booleans contribute
// nothing: missing data fails open, only explicit positive signals add risk.
type Scorer struct {
	cfg Config
}

// NewScorer creates a scorer with the given thresholds.
func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Assess scores one candidate's metrics. Computed once per candidate per
// scan; never persisted.
func (s *Scorer) Assess(m *domain.TokenMetrics) *domain.RiskAssessment {
	a := &domain.RiskAssessment{}
	if m == nil {
		return a
	}
	a.HoldersPct = m.HoldersPct
	a.LiquidityUSD = m.LiquidityUSD
	a.Vol24hUSD = m.Vol24hUSD

	if sec := m.Security; sec != nil {
		s.flagIf(a, sec.IsScam, FlagScam, weightScam)
		s.flagIf(a, sec.IsHoneypot, FlagHoneypot, weightHoneypot)
		s.flagIf(a, sec.Mintable, FlagMintable, weightMintable)
		s.flagIf(a, sec.Freezeable, FlagFreezeable, weightFreezeable)
		s.flagIf(a, sec.OwnerChangeable, FlagOwnerChange, weightOwnerChange)
		s.flagIf(a, sec.HighTax, FlagHighTax, weightHighTax)
		s.flagIf(a, sec.LPUnlocked, FlagLPUnlocked, weightLPUnlocked)
		s.flagIf(a, sec.MintAuthority, FlagMintAuthority, weightMintAuthority)
		s.flagIf(a, sec.FreezeAuthority, FlagFreezeAuthority, weightFreezeAuthority)
	}

	if m.HoldersPct != nil && s.cfg.MaxHoldersPct > 0 && *m.HoldersPct > s.cfg.MaxHoldersPct {
		a.Score += weightTopHolders
		a.Flags = append(a.Flags, FlagTopHolders)
	}
	if m.LiquidityUSD != nil && *m.LiquidityUSD < 2*s.cfg.MinLiquidityUSD {
		a.Score += weightLowLiquidity
		a.Flags = append(a.Flags, FlagLowLiquidity)
	}
	if m.Vol24hUSD != nil && *m.Vol24hUSD < 2*s.cfg.MinVol24hUSD {
		a.Score += weightLowVolume
		a.Flags = append(a.Flags, FlagLowVolume)
	}

	return a
}

func (s *Scorer) flagIf(a *domain.RiskAssessment, cond *bool, flag string, weight float64) {
	if cond != nil && *cond {
		a.Score += weight
		a.Flags = append(a.Flags, flag)
	}
}
