// Package storage defines the engine's persistence interfaces: the engine
// state record, the closed-trade history and the feature archive consumed by
// the external training pipeline.
package storage

import (
	"context"

	"soltrader/internal/domain"
)

// StateStore persists the single engine-state record.
type StateStore interface {
	// Load reads the state, substituting defaults when the record is
	// missing or malformed. Never returns an error for those cases.
	Load(ctx context.Context) (*domain.EngineState, error)

	// Save schedules a state write. Writes are serialized and may be
	// debounced; ordering between saves is preserved.
	Save(ctx context.Context, state *domain.EngineState) error

	// Close flushes any pending write.
	Close() error
}

// TradeStore records closed trades.
type TradeStore interface {
	// Insert adds a trade. Returns ErrDuplicateKey if trade_id exists.
	Insert(ctx context.Context, t *domain.TradeRecord) error

	// Recent returns up to limit trades, newest first.
	Recent(ctx context.Context, limit int) ([]*domain.TradeRecord, error)
}

// FeatureStore archives per-scan candidate feature rows for the trainer.
type FeatureStore interface {
	// InsertBulk appends one scan's feature rows.
	InsertBulk(ctx context.Context, rows []*domain.FeatureRow) error
}
