package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"soltrader/internal/domain"
)

func trade(id string, exitMs int64, pnl float64, reason domain.ExitReason) *domain.TradeRecord {
	return &domain.TradeRecord{TradeID: id, ExitTimeMs: exitMs, PnLSOL: pnl, Reason: reason}
}

func TestCompute_Empty(t *testing.T) {
	s := Compute(nil)
	assert.Zero(t, s.Trades)
	assert.Zero(t, s.WinRate)
	assert.NotNil(t, s.ExitsByReason)
}

func TestCompute_Aggregates(t *testing.T) {
	trades := []*domain.TradeRecord{
		trade("t1", 100, 0.05, domain.ExitReasonTakeProfit),
		trade("t2", 200, -0.03, domain.ExitReasonStopLoss),
		trade("t3", 300, -0.04, domain.ExitReasonStopLoss),
		trade("t4", 400, 0.10, domain.ExitReasonSoftTime),
	}

	s := Compute(trades)
	assert.Equal(t, 4, s.Trades)
	assert.Equal(t, 2, s.Wins)
	assert.InDelta(t, 0.5, s.WinRate, 1e-9)
	assert.InDelta(t, 0.08, s.TotalPnLSOL, 1e-9)
	assert.Equal(t, 2, s.ExitsByReason[domain.ExitReasonStopLoss])
	assert.Equal(t, 1, s.ExitsByReason[domain.ExitReasonTakeProfit])

	// Peak after t1 (+0.05), trough after t3 (-0.02): drawdown 0.07.
	assert.InDelta(t, 0.07, s.MaxDrawdown, 1e-9)
}

func TestCompute_DrawdownUsesChronologicalOrder(t *testing.T) {
	// Passed newest-first; Compute must re-sort by exit time.
	trades := []*domain.TradeRecord{
		trade("t3", 300, 0.10, domain.ExitReasonTakeProfit),
		trade("t2", 200, -0.05, domain.ExitReasonStopLoss),
		trade("t1", 100, 0.02, domain.ExitReasonTakeProfit),
	}

	s := Compute(trades)
	assert.InDelta(t, 0.05, s.MaxDrawdown, 1e-9)
}
