package indicator

// Momentum score weights: short-window change dominates.
const (
	weightPctShort = 0.7
	weightPctLong  = 0.3
)

// MomentumConfig holds lookback windows and minimum percent-change gates for
// momentum mode. A zero or negative minimum leaves that window unconstrained.
type MomentumConfig struct {
	ShortBars   int
	LongBars    int
	MinShortPct float64
	MinLongPct  float64
}

// MomentumResult mirrors domain.MomentumSnapshot construction inputs.
type MomentumResult struct {
	PctShort float64
	PctLong  float64
	OK       bool
	Score    float64
}

// Momentum computes percent change from N-bars-ago close to the latest close
// for the two configured windows. Returns ErrInsufficientData when the series
// cannot cover the long window.
func Momentum(closes []float64, cfg MomentumConfig) (*MomentumResult, error) {
	last := len(closes) - 1
	if cfg.ShortBars <= 0 || cfg.LongBars <= 0 || last < cfg.LongBars || last < cfg.ShortBars {
		return nil, ErrInsufficientData
	}

	pctShort := pctChange(closes[last-cfg.ShortBars], closes[last])
	pctLong := pctChange(closes[last-cfg.LongBars], closes[last])

	ok := (cfg.MinShortPct <= 0 || pctShort >= cfg.MinShortPct) &&
		(cfg.MinLongPct <= 0 || pctLong >= cfg.MinLongPct)

	return &MomentumResult{
		PctShort: pctShort,
		PctLong:  pctLong,
		OK:       ok,
		Score:    weightPctShort*pctShort + weightPctLong*pctLong,
	}, nil
}

func pctChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}
