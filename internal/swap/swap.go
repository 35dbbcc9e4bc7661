// Package swap provides the quote/swap/confirm surface the engine consumes.
// Wallet and key management live outside the process; the live executor only
// forwards prepared swaps to the signing sidecar.
package swap

import (
	"context"
)

// WSOL is the wrapped SOL mint, the quote side of every trade.
const WSOL = "So11111111111111111111111111111111111111112"

const lamportsPerSOL = 1e9

// Quote is one priced route for a prospective trade.
type Quote struct {
	InputMint      string
	OutputMint     string
	InAmount       uint64 // atomic units of the input mint
	OutAmount      uint64 // atomic units of the output mint
	PriceImpactPct float64
	SlippageBps    int

	// Raw provider payload, forwarded verbatim on execution.
	Raw []byte
}

// Quoter prices trades.
type Quoter interface {
	Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*Quote, error)
}

// Executor executes trades end to end.
type Executor interface {
	Quoter

	// Swap executes a previously obtained quote and returns the
	// transaction signature.
	Swap(ctx context.Context, q *Quote) (string, error)

	// Confirm blocks until the transaction is finalized or fails.
	Confirm(ctx context.Context, signature string) error
}

// SOLToLamports converts a SOL amount to atomic units.
func SOLToLamports(sol float64) uint64 {
	return uint64(sol * lamportsPerSOL)
}

// LamportsToSOL converts atomic units to SOL.
func LamportsToSOL(lamports uint64) float64 {
	return float64(lamports) / lamportsPerSOL
}
