package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soltrader/internal/domain"
	"soltrader/internal/storage"
)

func TestTradeStore_InsertAndRecent(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	trades := []*domain.TradeRecord{
		{TradeID: "t1", Mint: "mintA", ExitTimeMs: 100, PnLSOL: 0.02},
		{TradeID: "t2", Mint: "mintB", ExitTimeMs: 300, PnLSOL: -0.01},
		{TradeID: "t3", Mint: "mintC", ExitTimeMs: 200, PnLSOL: 0.05},
	}
	for _, tr := range trades {
		require.NoError(t, store.Insert(ctx, tr))
	}

	recent, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "t2", recent[0].TradeID)
	assert.Equal(t, "t3", recent[1].TradeID)
	assert.Equal(t, "t1", recent[2].TradeID)
}

func TestTradeStore_RecentRespectsLimit(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, &domain.TradeRecord{TradeID: "t1", ExitTimeMs: 100}))
	require.NoError(t, store.Insert(ctx, &domain.TradeRecord{TradeID: "t2", ExitTimeMs: 200}))

	recent, err := store.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "t2", recent[0].TradeID)
}

func TestTradeStore_DuplicateInsert(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, &domain.TradeRecord{TradeID: "t1"}))
	err := store.Insert(ctx, &domain.TradeRecord{TradeID: "t1"})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestTradeStore_InvalidInput(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	assert.ErrorIs(t, store.Insert(ctx, nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Insert(ctx, &domain.TradeRecord{}), storage.ErrInvalidInput)

	_, err := store.Recent(ctx, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestTradeStore_InsertCopies(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	tr := &domain.TradeRecord{TradeID: "t1", Mint: "mintA"}
	require.NoError(t, store.Insert(ctx, tr))
	tr.Mint = "mutated"

	recent, err := store.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "mintA", recent[0].Mint)
}
