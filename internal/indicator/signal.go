package indicator

import "soltrader/internal/domain"

// Signal composition weights. The score is a weighted sum of boolean signal
// hits plus a bonus when RSI sits above the midline.
const (
	weightValley      = 1.0
	weightTrend       = 2.0
	weightTrigger     = 1.5
	weightVolumeSpike = 0.5
	bonusRSIAbove50   = 0.5

	volumeLookback = 10
)

// Config holds the signal engine's indicator periods and thresholds.
type Config struct {
	EMAFastPeriod    int
	EMASlowPeriod    int
	RSIPeriod        int
	RSILow           float64
	BollingerPeriod  int
	BollingerStdMult float64
	VolSpikeMult     float64
}

// Engine computes rule-based signal snapshots from candle series.
type Engine struct {
	cfg Config
}

// NewEngine creates a signal engine with the given configuration.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Snapshot derives the full indicator snapshot for the latest bar.
// Returns ErrInsufficientData when the series cannot cover every lookback.
func (e *Engine) Snapshot(candles []domain.Candle) (*domain.IndicatorSnapshot, error) {
	closes := domain.Closes(candles)
	volumes := domain.Volumes(candles)

	fast := EMA(closes, e.cfg.EMAFastPeriod)
	slow := EMA(closes, e.cfg.EMASlowPeriod)
	last := len(closes) - 1
	if last < 1 || fast[last] == nil || fast[last-1] == nil || slow[last] == nil || slow[last-1] == nil {
		return nil, ErrInsufficientData
	}

	rsi, err := RSI(closes, e.cfg.RSIPeriod)
	if err != nil {
		return nil, err
	}
	bands, err := BollingerBands(closes, e.cfg.BollingerPeriod, e.cfg.BollingerStdMult)
	if err != nil {
		return nil, err
	}

	close := closes[last]
	spike := volumeSpike(volumes, e.cfg.VolSpikeMult)

	valley := rsi < e.cfg.RSILow || close < bands.Lower
	trend := *fast[last] > *slow[last] &&
		*fast[last] > *fast[last-1] &&
		*slow[last] > *slow[last-1]
	trigger := close > *fast[last] && spike

	snap := &domain.IndicatorSnapshot{
		EMAFast:     *fast[last],
		EMASlow:     *slow[last],
		RSI:         rsi,
		Bollinger:   bands,
		VolumeSpike: spike,
		Valley:      valley,
		Trend:       trend,
		Trigger:     trigger,
		OK:          (valley && trigger) || trend,
	}

	if valley {
		snap.Score += weightValley
	}
	if trend {
		snap.Score += weightTrend
	}
	if trigger {
		snap.Score += weightTrigger
	}
	if spike {
		snap.Score += weightVolumeSpike
	}
	if rsi > 50 {
		snap.Score += bonusRSIAbove50
	}
	return snap, nil
}

// volumeSpike reports whether the latest volume clears the average of the
// preceding volumeLookback volumes scaled by mult.
func volumeSpike(volumes []float64, mult float64) bool {
	n := len(volumes)
	if n < 2 {
		return false
	}
	start := n - 1 - volumeLookback
	if start < 0 {
		start = 0
	}
	window := volumes[start : n-1]
	var sum float64
	for _, v := range window {
		sum += v
	}
	avg := sum / float64(len(window))
	return volumes[n-1] > avg*mult
}
