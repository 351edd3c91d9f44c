package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/storage"
)

func createTestTrade(id, ticker string) *domain.Trade {
	entry := day(2024, 3, 1)
	return &domain.Trade{
		ID:              id,
		User:            "u1",
		Ticker:          ticker,
		EntryDate:       entry,
		EntryPrice:      100,
		EntryShares:     100,
		StopLoss:        ptr(95.0),
		TP1:             ptr(110.0),
		RemainingShares: 100,
		Status:          domain.TradeStatusOpen,
		MFE:             100,
		MFEDate:         entry,
		MAE:             100,
		MAEDate:         entry,
	}
}

func TestTradeStore_InsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	trade := createTestTrade("t-001", "AAPL")
	require.NoError(t, store.Insert(ctx, trade))

	got, err := store.GetByID(ctx, "t-001")
	require.NoError(t, err)

	assert.Equal(t, trade.Ticker, got.Ticker)
	assert.Equal(t, trade.EntryDate, got.EntryDate.UTC())
	assert.InDelta(t, 95.0, *got.StopLoss, 1e-9)
	assert.Nil(t, got.TP2)
	assert.Equal(t, domain.TradeStatusOpen, got.Status)
	assert.Empty(t, got.PartialExits)
}

func TestTradeStore_DuplicateKey(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	require.NoError(t, store.Insert(ctx, createTestTrade("t-001", "AAPL")))
	assert.ErrorIs(t, store.Insert(ctx, createTestTrade("t-001", "AAPL")), storage.ErrDuplicateKey)

	// Same (user, ticker, entry_date) under a different id.
	assert.ErrorIs(t, store.Insert(ctx, createTestTrade("t-002", "AAPL")), storage.ErrDuplicateKey)
}

func TestTradeStore_UpdateWithPartialExits(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	trade := createTestTrade("t-001", "AAPL")
	require.NoError(t, store.Insert(ctx, trade))

	exitDate := day(2024, 3, 8)
	trade.PartialExits = []domain.PartialExit{
		{Date: day(2024, 3, 5), Price: 110, Shares: 50, Reason: domain.ExitReasonTakeProfit1, PnL: 500, PnLPercent: 10, RMultiple: ptr(2.0)},
		{Date: exitDate, Price: 96, Shares: 50, Reason: domain.ExitReasonStopLoss, PnL: -200, PnLPercent: -4, RMultiple: ptr(-0.8)},
	}
	trade.RemainingShares = 0
	trade.Status = domain.TradeStatusClosed
	trade.BlendedExitPrice = ptr(103.0)
	trade.RealizedPnL = ptr(300.0)
	trade.RealizedR = ptr(0.6)
	trade.HoldingDays = ptr(7)
	trade.ExitDate = &exitDate
	trade.ExitReason = domain.ExitReasonTakeProfit1
	require.NoError(t, store.Update(ctx, trade))

	got, err := store.GetByID(ctx, "t-001")
	require.NoError(t, err)
	require.Len(t, got.PartialExits, 2)
	assert.Equal(t, domain.ExitReasonTakeProfit1, got.PartialExits[0].Reason)
	assert.InDelta(t, -0.8, *got.PartialExits[1].RMultiple, 1e-9)
	assert.Equal(t, 7, *got.HoldingDays)

	closed, err := store.GetClosedByExitRange(ctx, day(2024, 3, 1), day(2024, 3, 31))
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Len(t, closed[0].PartialExits, 2)

	open, err := store.GetOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestTradeStore_UpdateNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTradeStore(pool)
	err := store.Update(context.Background(), createTestTrade("missing", "AAPL"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTradeStore_UpdateWithAudit(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)
	audit := NewAuditLogStore(pool)

	trade := createTestTrade("t-001", "AAPL")
	require.NoError(t, store.Insert(ctx, trade))

	trade.MFE = 12.0
	entry := &domain.AuditEntry{
		TradeID: "t-001", Actor: "ops", Action: "amend_exit_price",
		Before: `{"exit_price":100}`, After: `{"exit_price":110}`, CreatedAt: day(2024, 3, 9),
	}
	require.NoError(t, store.UpdateWithAudit(ctx, trade, entry))

	got, err := store.GetByID(ctx, "t-001")
	require.NoError(t, err)
	assert.InDelta(t, 12.0, got.MFE, 1e-9)
	entries, err := audit.GetByTradeID(ctx, "t-001")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// A rejected audit row rolls back the trade update.
	trade.MFE = 99.0
	bad := *entry
	bad.Before = "not json"
	require.Error(t, store.UpdateWithAudit(ctx, trade, &bad))

	got, err = store.GetByID(ctx, "t-001")
	require.NoError(t, err)
	assert.InDelta(t, 12.0, got.MFE, 1e-9)
	entries, err = audit.GetByTradeID(ctx, "t-001")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
