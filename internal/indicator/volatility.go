package indicator

import (
	"math"

	"soltrader/internal/domain"
)

// Volatility summarizes the last window bars: rangePct is the high/low span
// relative to the window low, chopPct the average absolute bar-to-bar close
// change. Bars without a valid low/high are skipped; fewer than 2 usable
// bars reports ok=false.
func Volatility(candles []domain.Candle, window int) *domain.VolatilitySnapshot {
	if window > 0 && len(candles) > window {
		candles = candles[len(candles)-window:]
	}

	maxHigh := math.Inf(-1)
	minLow := math.Inf(1)
	usable := 0
	var prevClose float64
	var chopSum float64
	chopCount := 0

	for _, c := range candles {
		if c.Low <= 0 || c.High <= 0 {
			continue
		}
		usable++
		if c.High > maxHigh {
			maxHigh = c.High
		}
		if c.Low < minLow {
			minLow = c.Low
		}
		if prevClose > 0 && c.Close > 0 {
			chopSum += math.Abs(c.Close-prevClose) / prevClose * 100
			chopCount++
		}
		if c.Close > 0 {
			prevClose = c.Close
		}
	}

	if usable < 2 || minLow <= 0 {
		return &domain.VolatilitySnapshot{OK: false}
	}

	snap := &domain.VolatilitySnapshot{
		RangePct: (maxHigh - minLow) / minLow * 100,
		OK:       true,
	}
	if chopCount > 0 {
		snap.ChopPct = chopSum / float64(chopCount)
	}
	return snap
}
