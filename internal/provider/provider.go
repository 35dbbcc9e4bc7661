// Package provider contains the market-data adapters and the failover
// controller that decides which adapter serves discovery.
package provider

import (
	"context"

	"github.com/mr-tron/base58"

	"soltrader/internal/domain"
)

// Adapter is one market-data source. Every network call goes through the
// shared data-access executor. Adapters tolerate partial data: a failed
// metric source yields a nil field, never an aborted discovery.
type Adapter interface {
	Name() string

	// Discover returns up to limit seed tokens in provider list order.
	Discover(ctx context.Context, limit int) ([]domain.Seed, error)

	// FetchMetrics returns the normalized metrics for one token.
	FetchMetrics(ctx context.Context, address string) (*domain.TokenMetrics, error)
}

// ValidMint reports whether address decodes as a 32-byte base58 key.
// Discovery feeds are noisy; invalid mints are skipped silently.
func ValidMint(address string) bool {
	raw, err := base58.Decode(address)
	return err == nil && len(raw) == 32
}
