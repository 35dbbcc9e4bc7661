package domain

// FeatureRow is one per-candidate feature snapshot archived for the external
// model trainer. Column set matches the trainer's expected schema; nil fields
// are written as NULL and imputed downstream.
type FeatureRow struct {
	TimestampMs int64
	Address     string
	Name        string

	Score              float64
	RugRiskScore       *float64
	RugHoldersPct      *float64
	RugLiquidityUSD    *float64
	RugVol24hUSD       *float64
	PriceImpactPct     *float64
	VolatilityRangePct *float64
	VolatilityChopPct  *float64
	SignalScore        *float64
	MomentumScore      *float64
	MomentumPctShort   *float64
	MomentumPctLong    *float64
}
