package domain

// Mode selects between live execution and paper trading.
type Mode string

const (
	ModeLive      Mode = "live"
	ModeSimulated Mode = "simulated"
)

// EngineState is the persisted engine record. It is loaded at startup and
// rewritten on every position-lifecycle transition.
type EngineState struct {
	Positions       []Position `json:"positions"`
	LastTradeTimeMs int64      `json:"lastTradeTimeMs"`
	LastExitTimeMs  int64      `json:"lastExitTimeMs"`
	Mode            Mode       `json:"mode"`

	// Paper-trading balance, in SOL. Ignored in live mode.
	SimBalanceSOL float64 `json:"simBalanceSol"`
}

// DefaultState returns the state used when the persisted file is missing or
// malformed.
func DefaultState(simBalanceSOL float64) *EngineState {
	return &EngineState{
		Positions:     []Position{},
		Mode:          ModeSimulated,
		SimBalanceSOL: simBalanceSOL,
	}
}
