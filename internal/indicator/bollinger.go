package indicator

import (
	"math"

	"soltrader/internal/domain"
)

// BollingerBands computes Bollinger bands over the last period closes using
// the population standard deviation.
func BollingerBands(values []float64, period int, stdMult float64) (domain.Bollinger, error) {
	if period <= 0 || len(values) < period {
		return domain.Bollinger{}, ErrInsufficientData
	}

	window := values[len(values)-period:]
	var sum float64
	for _, v := range window {
		sum += v
	}
	mean := sum / float64(period)

	var variance float64
	for _, v := range window {
		variance += (v - mean) * (v - mean)
	}
	std := math.Sqrt(variance / float64(period))

	return domain.Bollinger{
		Mid:   mean,
		Upper: mean + stdMult*std,
		Lower: mean - stdMult*std,
	}, nil
}
