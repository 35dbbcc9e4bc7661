package clickhouse

import (
	"context"
	"fmt"

	"soltrader/internal/domain"
	"soltrader/internal/storage"
)

// FeatureStore implements storage.FeatureStore using ClickHouse. Rows are
// append-only; the candidate_features table is a plain MergeTree ordered by
// (timestamp_ms, address).
type FeatureStore struct {
	conn *Conn
}

// NewFeatureStore creates a new FeatureStore.
func NewFeatureStore(conn *Conn) *FeatureStore {
	return &FeatureStore{conn: conn}
}

// Compile-time interface check.
var _ storage.FeatureStore = (*FeatureStore)(nil)

// InsertBulk appends one scan's feature rows.
func (s *FeatureStore) InsertBulk(ctx context.Context, rows []*domain.FeatureRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO candidate_features (
			timestamp_ms, address, name,
			score, rug_risk_score, rug_holders_pct, rug_liquidity_usd, rug_vol24h_usd,
			price_impact_pct, volatility_range_pct, volatility_chop_pct,
			signal_score, momentum_score, momentum_pct_short, momentum_pct_long
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range rows {
		if r == nil || r.Address == "" {
			return storage.ErrInvalidInput
		}
		// Pass nil values directly for Nullable columns
		err = batch.Append(
			uint64(r.TimestampMs), r.Address, r.Name,
			r.Score, r.RugRiskScore, r.RugHoldersPct, r.RugLiquidityUSD, r.RugVol24hUSD,
			r.PriceImpactPct, r.VolatilityRangePct, r.VolatilityChopPct,
			r.SignalScore, r.MomentumScore, r.MomentumPctShort, r.MomentumPctLong,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}
