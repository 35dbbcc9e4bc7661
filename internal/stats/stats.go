// Package stats aggregates closed trades into the session statistics
// published with every snapshot.
package stats

import (
	"sort"

	"soltrader/internal/domain"
)

// Compute calculates session statistics from a slice of closed trades.
// Trades are sorted by ExitTimeMs ASC, TradeID ASC before computing the
// order-dependent max drawdown.
func Compute(trades []*domain.TradeRecord) *domain.SessionStats {
	stats := &domain.SessionStats{
		ExitsByReason: make(map[domain.ExitReason]int),
	}
	n := len(trades)
	if n == 0 {
		return stats
	}

	sorted := make([]*domain.TradeRecord, n)
	copy(sorted, trades)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ExitTimeMs != sorted[j].ExitTimeMs {
			return sorted[i].ExitTimeMs < sorted[j].ExitTimeMs
		}
		return sorted[i].TradeID < sorted[j].TradeID
	})

	stats.Trades = n
	for _, t := range sorted {
		if t.PnLSOL > 0 {
			stats.Wins++
		}
		stats.TotalPnLSOL += t.PnLSOL
		stats.ExitsByReason[t.Reason]++
	}
	stats.WinRate = float64(stats.Wins) / float64(n)
	stats.MaxDrawdown = maxDrawdown(sorted)
	return stats
}

// maxDrawdown calculates the worst peak-to-trough on cumulative PnL.
// Trades must be in chronological order.
func maxDrawdown(trades []*domain.TradeRecord) float64 {
	cumulative := 0.0
	peak := 0.0
	worst := 0.0

	for _, t := range trades {
		cumulative += t.PnLSOL
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > worst {
			worst = dd
		}
	}
	return worst
}
