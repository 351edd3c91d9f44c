package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/idhash"
	"trade-outcome-lab/internal/logger"
	"trade-outcome-lab/internal/storage"
	"trade-outcome-lab/internal/storage/memory"
)

func newTestService() (*Service, *memory.TradeStore, *memory.AuditLogStore) {
	trades := memory.NewTradeStore()
	audit := memory.NewAuditLogStore()
	return NewService(trades, audit, logger.Nop()), trades, audit
}

func openReq() OpenRequest {
	return OpenRequest{
		User:        "alice",
		Ticker:      "MSFT",
		EntryDate:   day(2024, 2, 1),
		EntryPrice:  400,
		EntryShares: 30,
		StopLoss:    f(380),
	}
}

func TestService_OpenTrade(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	tr, err := svc.OpenTrade(ctx, openReq())
	require.NoError(t, err)
	assert.Equal(t, idhash.ComputeTradeID("alice", "MSFT", day(2024, 2, 1)), tr.ID)

	got, err := svc.GetTrade(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, tr.EntryShares, got.RemainingShares)

	_, err = svc.OpenTrade(ctx, openReq())
	assert.True(t, errors.Is(err, storage.ErrDuplicateKey))
}

func TestService_GetTrade_NotFound(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.GetTrade(context.Background(), "missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestService_RecordExit_Persists(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()
	tr, err := svc.OpenTrade(ctx, openReq())
	require.NoError(t, err)

	_, err = svc.RecordExit(ctx, tr.ID, ExitRequest{Date: day(2024, 2, 5), Price: 420, Shares: 10, Reason: domain.ExitReasonTakeProfit1})
	require.NoError(t, err)
	_, err = svc.RecordExit(ctx, tr.ID, ExitRequest{Date: day(2024, 2, 9), Price: 390, Shares: 20, Reason: domain.ExitReasonStopLoss})
	require.NoError(t, err)

	stored, err := store.GetByID(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStatusClosed, stored.Status)
	require.Len(t, stored.PartialExits, 2)
	assert.Equal(t, domain.ExitReasonStopLoss, stored.ExitReason)
	assert.Equal(t, 8, *stored.HoldingDays)

	_, err = svc.RecordExit(ctx, tr.ID, ExitRequest{Date: day(2024, 2, 10), Price: 390, Shares: 1})
	assert.True(t, errors.Is(err, ErrTradeClosed))
}

func TestService_RecordExit_ConcurrentFillsConserveShares(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()
	tr, err := svc.OpenTrade(ctx, openReq())
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordExit(ctx, tr.ID, ExitRequest{Date: day(2024, 2, 2), Price: 401, Shares: 1})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	stored, err := store.GetByID(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, accepted)
	assert.Equal(t, int64(0), stored.RemainingShares)
	assert.Equal(t, stored.EntryShares, stored.ExitedShares())
}

func TestService_ApplyBar(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()
	msft, err := svc.OpenTrade(ctx, openReq())
	require.NoError(t, err)
	other := openReq()
	other.Ticker = "NVDA"
	nvda, err := svc.OpenTrade(ctx, other)
	require.NoError(t, err)

	n, err := svc.ApplyBar(ctx, domain.PriceBar{Ticker: "MSFT", Date: day(2024, 2, 2), High: 410, Low: 395, Close: 405})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ := store.GetByID(ctx, msft.ID)
	assert.Equal(t, 410.0, got.MFE)
	assert.Equal(t, 395.0, got.MAE)

	untouched, _ := store.GetByID(ctx, nvda.ID)
	assert.Equal(t, 400.0, untouched.MFE)
}

func TestService_AmendClosedTrade(t *testing.T) {
	svc, _, audit := newTestService()
	ctx := context.Background()
	tr, err := svc.OpenTrade(ctx, openReq())
	require.NoError(t, err)

	_, err = svc.AmendClosedTrade(ctx, tr.ID, AmendRequest{ExitIndex: 0, Price: 1, Actor: "ops"})
	assert.True(t, errors.Is(err, ErrTradeNotClosed))

	_, err = svc.RecordExit(ctx, tr.ID, ExitRequest{Date: day(2024, 2, 5), Price: 420, Shares: 30})
	require.NoError(t, err)

	amended, err := svc.AmendClosedTrade(ctx, tr.ID, AmendRequest{ExitIndex: 0, Price: 430, Actor: "ops", Note: "fill correction"})
	require.NoError(t, err)
	assert.InDelta(t, 430.0, *amended.BlendedExitPrice, 1e-9)
	assert.InDelta(t, 1.5, *amended.RealizedR, 1e-9)

	entries, err := audit.GetByTradeID(ctx, tr.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ops", entries[0].Actor)
	assert.Equal(t, "amend_exit_price", entries[0].Action)

	var before, after amendSnapshot
	require.NoError(t, sonic.UnmarshalString(entries[0].Before, &before))
	require.NoError(t, sonic.UnmarshalString(entries[0].After, &after))
	assert.Equal(t, 420.0, before.ExitPrice)
	assert.Equal(t, 430.0, after.ExitPrice)
}

type failingAuditStore struct {
	memory.AuditLogStore
}

func (*failingAuditStore) Append(context.Context, *domain.AuditEntry) error {
	return errors.New("audit down")
}

func TestService_AmendClosedTrade_AuditFailureKeepsTrade(t *testing.T) {
	trades := memory.NewTradeStore()
	svc := NewService(trades, &failingAuditStore{}, logger.Nop())
	ctx := context.Background()

	tr, err := svc.OpenTrade(ctx, openReq())
	require.NoError(t, err)
	_, err = svc.RecordExit(ctx, tr.ID, ExitRequest{Date: day(2024, 2, 5), Price: 420, Shares: 30})
	require.NoError(t, err)

	_, err = svc.AmendClosedTrade(ctx, tr.ID, AmendRequest{ExitIndex: 0, Price: 500, Actor: "ops"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit down")

	stored, err := trades.GetByID(ctx, tr.ID)
	require.NoError(t, err)
	require.Len(t, stored.PartialExits, 1)
	assert.Equal(t, 420.0, stored.PartialExits[0].Price)
	assert.InDelta(t, 420.0, *stored.BlendedExitPrice, 1e-9)
	assert.Equal(t, domain.TradeStatusClosed, stored.Status)
}
