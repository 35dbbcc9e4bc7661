// Package indicator computes technical indicators and signal snapshots over
// candle series. All functions are pure: they never mutate their inputs.
package indicator

import "errors"

// ErrInsufficientData is returned when a series is shorter than the lookback
// window an indicator requires.
var ErrInsufficientData = errors.New("insufficient data")

// EMA computes an exponential moving average series. Entries before the seed
// is available are nil, never zero: the seed at index period-1 is the simple
// average of the first period values, and each subsequent value is
// price*k + prev*(1-k) with k = 2/(period+1).
func EMA(values []float64, period int) []*float64 {
	out := make([]*float64, len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	var sum float64
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	seed := sum / float64(period)
	out[period-1] = &seed

	k := 2.0 / float64(period+1)
	prev := seed
	for i := period; i < len(values); i++ {
		v := values[i]*k + prev*(1-k)
		out[i] = &v
		prev = v
	}
	return out
}
