package domain

// Candle is one OHLCV bar of price history.
// Series are ordered ascending by timestamp and immutable once constructed.
type Candle struct {
	Timestamp int64 // Unix timestamp in milliseconds
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Closes extracts the close prices from a candle series, preserving order.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Volumes extracts the volumes from a candle series, preserving order.
func Volumes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}
