package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"soltrader/internal/domain"
	"soltrader/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.TradeRecord) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trades (
			trade_id, mint, name, mode,
			entry_time_ms, exit_time_ms,
			entry_sol, exit_sol, pnl_sol, pnl_pct,
			reason, hold_duration_ms
		) VALUES (
			$1, $2, $3, $4,
			$5, $6,
			$7, $8, $9, $10,
			$11, $12
		)
	`

	_, err := s.pool.Exec(ctx, query,
		t.TradeID, t.Mint, t.Name, string(t.Mode),
		t.EntryTimeMs, t.ExitTimeMs,
		t.EntrySOL, t.ExitSOL, t.PnLSOL, t.PnLPct,
		string(t.Reason), t.HoldDurationMs,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// Recent returns up to limit trades, newest first.
func (s *TradeStore) Recent(ctx context.Context, limit int) ([]*domain.TradeRecord, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT
			trade_id, mint, name, mode,
			entry_time_ms, exit_time_ms,
			entry_sol, exit_sol, pnl_sol, pnl_pct,
			reason, hold_duration_ms
		FROM trades
		ORDER BY exit_time_ms DESC, trade_id DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent trades: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// scanTrades scans multiple rows into a slice of TradeRecord.
func scanTrades(rows pgx.Rows) ([]*domain.TradeRecord, error) {
	var trades []*domain.TradeRecord

	for rows.Next() {
		var t domain.TradeRecord
		var mode, reason string

		err := rows.Scan(
			&t.TradeID, &t.Mint, &t.Name, &mode,
			&t.EntryTimeMs, &t.ExitTimeMs,
			&t.EntrySOL, &t.ExitSOL, &t.PnLSOL, &t.PnLPct,
			&reason, &t.HoldDurationMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}

		t.Mode = domain.Mode(mode)
		t.Reason = domain.ExitReason(reason)
		trades = append(trades, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}
