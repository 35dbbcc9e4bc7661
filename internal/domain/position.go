package domain

// Position is one open holding, owned exclusively by the position manager.
// ID is unique for the position's lifetime and targets a specific exit among
// several concurrently open positions.
type Position struct {
	ID            string  `json:"id"`
	Mint          string  `json:"mint"`
	Name          string  `json:"name"`
	EntryTimeMs   int64   `json:"entryTimeMs"`
	EntrySOL      float64 `json:"entrySol"`
	TokenAmount   float64 `json:"tokenAmount"`
	TokenDecimals int     `json:"tokenDecimals"`
	Signature     string  `json:"signature"`
	EntryScore    float64 `json:"entryScore"`

	// Entry preserves the evaluation context the position was opened on.
	Entry EntrySnapshot `json:"entry"`
}

// EntrySnapshot is the flattened candidate evaluation at entry time, kept for
// post-hoc exit analysis. Columns mirror the feature archive; nil fields were
// not produced by the entry-time signal mode.
type EntrySnapshot struct {
	Tier             SelectionTier `json:"tier"`
	PriceImpactPct   *float64      `json:"priceImpactPct,omitempty"`
	SignalScore      *float64      `json:"signalScore,omitempty"`
	MomentumScore    *float64      `json:"momentumScore,omitempty"`
	MomentumPctShort *float64      `json:"momentumPctShort,omitempty"`
	MomentumPctLong  *float64      `json:"momentumPctLong,omitempty"`
	RangePct         *float64      `json:"rangePct,omitempty"`
	ChopPct          *float64      `json:"chopPct,omitempty"`
	RugRiskScore     *float64      `json:"rugRiskScore,omitempty"`
}

// ExitReason identifies which exit condition closed a position.
type ExitReason string

// Exit reasons in fixed evaluation priority, first match wins.
const (
	ExitReasonManual      ExitReason = "manual"
	ExitReasonAccountStop ExitReason = "account_stop"
	ExitReasonStopLoss    ExitReason = "stop_loss"
	ExitReasonTakeProfit  ExitReason = "take_profit"
	ExitReasonHardTime    ExitReason = "hard_time"
	ExitReasonSoftTime    ExitReason = "soft_time"
)
