package domain

// PositionView is the externally visible view of an open position, including
// its current mark.
type PositionView struct {
	Position
	CurrentSOL float64 `json:"currentSol"`
	PnLSOL     float64 `json:"pnlSol"`
	PnLPct     float64 `json:"pnlPct"`
	HeldMs     int64   `json:"heldMs"`
}

// Cooldown describes entry pacing at a point in time.
type Cooldown struct {
	LastTradeTimeMs int64 `json:"lastTradeTimeMs"`
	NextEntryMs     int64 `json:"nextEntryMs"`
	RemainingSec    int64 `json:"remainingSec"`
}

// Balances carries wallet and simulated balances, in SOL.
type Balances struct {
	WalletSOL     float64 `json:"walletSol"`
	SimSOL        float64 `json:"simSol"`
	PositionsSOL  float64 `json:"positionsSol"`
	TotalValueSOL float64 `json:"totalValueSol"`
}

// SessionStats aggregates closed trades for the current session.
type SessionStats struct {
	Trades        int                `json:"trades"`
	Wins          int                `json:"wins"`
	WinRate       float64            `json:"winRate"`
	TotalPnLSOL   float64            `json:"totalPnlSol"`
	MaxDrawdown   float64            `json:"maxDrawdown"`
	ExitsByReason map[ExitReason]int `json:"exitsByReason"`
}

// Snapshot is the engine-state view published after every state change for
// external dashboards and bots.
type Snapshot struct {
	TimestampMs  int64          `json:"timestampMs"`
	Status       string         `json:"status"`
	Mode         Mode           `json:"mode"`
	Balances     Balances       `json:"balances"`
	Positions    []PositionView `json:"positions"`
	Cooldown     Cooldown       `json:"cooldown"`
	Stats        *SessionStats  `json:"stats,omitempty"`
	RecentTrades []TradeRecord  `json:"recentTrades,omitempty"`
}
