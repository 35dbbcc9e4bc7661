package domain

// TradeRecord is one closed trade, appended to the trade history store on
// every successful exit.
type TradeRecord struct {
	TradeID        string
	Mint           string
	Name           string
	Mode           Mode
	EntryTimeMs    int64
	ExitTimeMs     int64
	EntrySOL       float64
	ExitSOL        float64
	PnLSOL         float64
	PnLPct         float64
	Reason         ExitReason
	HoldDurationMs int64
}
