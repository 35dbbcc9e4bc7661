package domain

// Seed is a token surfaced by provider discovery before metrics are fetched.
type Seed struct {
	Address string // token mint address
	Name    string
}

// SecurityInfo holds provider-reported security flags for a token.
// Pointer fields distinguish "reported false" from "not reported":
// a nil flag is unknown and must not block a candidate on its own.
type SecurityInfo struct {
	IsScam          *bool
	IsHoneypot      *bool
	Mintable        *bool
	Freezeable      *bool
	OwnerChangeable *bool
	HighTax         *bool
	LPUnlocked      *bool

	// Authority presence resolved on-chain when the provider omits it.
	MintAuthority   *bool
	FreezeAuthority *bool
}

// TokenMetrics is the normalized per-token view every adapter produces.
// Nil numeric fields mean the metric source failed or the provider does not
// report it; filter gates treat nil as unknown (fail-open).
type TokenMetrics struct {
	LiquidityUSD *float64
	Vol24hUSD    *float64
	Vol15mUSD    *float64
	HoldersPct   *float64 // top-10 holder concentration, percent of supply
	Security     *SecurityInfo
	Candles      []Candle
}

// IndicatorSnapshot is the rule-based signal view derived from a candle
// series at scan time. Recomputed fresh each scan, never mutated.
type IndicatorSnapshot struct {
	EMAFast     float64
	EMASlow     float64
	RSI         float64
	Bollinger   Bollinger
	VolumeSpike bool
	Valley      bool
	Trend       bool
	Trigger     bool
	OK          bool
	Score       float64
}

// Bollinger holds one set of Bollinger band values.
type Bollinger struct {
	Mid   float64
	Upper float64
	Lower float64
}

// MomentumSnapshot is the alternative signal view when the engine runs in
// momentum mode. Mutually exclusive with IndicatorSnapshot per scan.
type MomentumSnapshot struct {
	PctShort float64
	PctLong  float64
	OK       bool
	Score    float64
}

// VolatilitySnapshot summarizes recent price range and chop.
type VolatilitySnapshot struct {
	RangePct float64
	ChopPct  float64
	OK       bool
}

// RiskAssessment is the weighted rug-risk result for one candidate.
// Score is unbounded; callers apply their own acceptance ceiling.
type RiskAssessment struct {
	Score        float64
	Flags        []string
	HoldersPct   *float64
	LiquidityUSD *float64
	Vol24hUSD    *float64
}

// SelectionTier records how a candidate passed signal evaluation.
type SelectionTier string

const (
	TierStrict         SelectionTier = "STRICT"
	TierRelaxed        SelectionTier = "RELAXED"
	TierVolatilityOnly SelectionTier = "VOLATILITY_ONLY"
)

// Candidate is a token evaluated for entry during one scan.
// Transient: it exists only within the scan that produced it.
type Candidate struct {
	Address        string
	Name           string
	Score          float64
	Signal         *IndicatorSnapshot
	Momentum       *MomentumSnapshot
	Volatility     *VolatilitySnapshot
	PriceImpactPct *float64
	Risk           *RiskAssessment
	Tier           SelectionTier
}
