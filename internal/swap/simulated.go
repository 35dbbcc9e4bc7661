package swap

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Simulated executes trades on paper: quotes are real, execution applies the
// quoted amount minus a flat fee and fabricates a signature.
type Simulated struct {
	quoter Quoter
	feePct float64
}

// NewSimulated creates a paper-trading executor on top of a real quoter.
func NewSimulated(quoter Quoter, feePct float64) *Simulated {
	return &Simulated{quoter: quoter, feePct: feePct}
}

// Quote implements Quoter.
func (s *Simulated) Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*Quote, error) {
	return s.quoter.Quote(ctx, inputMint, outputMint, amount, slippageBps)
}

// Swap implements Executor. The fee haircut is applied to OutAmount in place
// so callers see the net fill.
func (s *Simulated) Swap(_ context.Context, q *Quote) (string, error) {
	if q == nil {
		return "", fmt.Errorf("nil quote")
	}
	q.OutAmount = uint64(float64(q.OutAmount) * (1 - s.feePct/100))
	return "sim-" + uuid.NewString(), nil
}

// Confirm implements Executor. Simulated fills are always final.
func (s *Simulated) Confirm(context.Context, string) error { return nil }

var _ Executor = (*Simulated)(nil)
