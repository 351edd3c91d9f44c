package lifecycle

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-outcome-lab/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func f(v float64) *float64 { return &v }

func openTrade(t *testing.T, stop *float64) *domain.Trade {
	t.Helper()
	tr, err := NewTrade(OpenRequest{
		User:        "alice",
		Ticker:      "aapl",
		EntryDate:   day(2024, 1, 2),
		EntryPrice:  100,
		EntryShares: 100,
		StopLoss:    stop,
		TP1:         f(110),
	})
	require.NoError(t, err)
	return tr
}

func TestNewTrade(t *testing.T) {
	tr := openTrade(t, f(95))

	assert.Equal(t, "AAPL", tr.Ticker)
	assert.Equal(t, domain.TradeStatusOpen, tr.Status)
	assert.Equal(t, int64(100), tr.RemainingShares)
	assert.Equal(t, 100.0, tr.MFE)
	assert.Equal(t, 100.0, tr.MAE)
	assert.Equal(t, tr.EntryDate, tr.MFEDate)
}

func TestNewTrade_Validation(t *testing.T) {
	base := OpenRequest{Ticker: "AAPL", EntryDate: day(2024, 1, 2), EntryPrice: 100, EntryShares: 10}

	tests := []struct {
		name    string
		mutate  func(r *OpenRequest)
		wantErr error
	}{
		{"empty ticker", func(r *OpenRequest) { r.Ticker = " " }, ErrEmptyTicker},
		{"zero price", func(r *OpenRequest) { r.EntryPrice = 0 }, ErrNonPositivePrice},
		{"zero shares", func(r *OpenRequest) { r.EntryShares = 0 }, ErrNonPositiveShares},
		{"stop at entry", func(r *OpenRequest) { r.StopLoss = f(100) }, ErrNonPositiveRisk},
		{"stop above entry", func(r *OpenRequest) { r.StopLoss = f(101) }, ErrNonPositiveRisk},
		{"negative target", func(r *OpenRequest) { r.TP2 = f(-1) }, ErrNonPositivePrice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)
			_, err := NewTrade(req)

			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr))
			var ve *domain.ValidationError
			assert.True(t, errors.As(err, &ve))
		})
	}
}

func TestRecordExit_PartialThenClose(t *testing.T) {
	tr := openTrade(t, f(95))

	require.NoError(t, RecordExit(tr, day(2024, 1, 5), 110, 50, domain.ExitReasonTakeProfit1))
	assert.Equal(t, domain.TradeStatusPartiallyClosed, tr.Status)
	assert.Equal(t, int64(50), tr.RemainingShares)
	assert.Nil(t, tr.BlendedExitPrice)

	first := tr.PartialExits[0]
	assert.InDelta(t, 500.0, first.PnL, 1e-9)
	assert.InDelta(t, 10.0, first.PnLPercent, 1e-9)
	require.NotNil(t, first.RMultiple)
	assert.InDelta(t, 2.0, *first.RMultiple, 1e-9)

	require.NoError(t, RecordExit(tr, day(2024, 1, 12), 104, 50, domain.ExitReasonTrailingStop))
	assert.Equal(t, domain.TradeStatusClosed, tr.Status)
	assert.Equal(t, int64(0), tr.RemainingShares)

	require.NotNil(t, tr.BlendedExitPrice)
	assert.InDelta(t, 107.0, *tr.BlendedExitPrice, 1e-9)
	assert.InDelta(t, 700.0, *tr.RealizedPnL, 1e-9)
	assert.InDelta(t, 1.4, *tr.RealizedR, 1e-9)
	assert.Equal(t, 10, *tr.HoldingDays)
	assert.Equal(t, day(2024, 1, 12), *tr.ExitDate)
	// Equal shares: the earlier exit wins.
	assert.Equal(t, domain.ExitReasonTakeProfit1, tr.ExitReason)
}

func TestRecordExit_PrimaryReasonIsLargestFill(t *testing.T) {
	tr := openTrade(t, nil)

	require.NoError(t, RecordExit(tr, day(2024, 1, 3), 105, 30, domain.ExitReasonTakeProfit1))
	require.NoError(t, RecordExit(tr, day(2024, 1, 4), 98, 70, domain.ExitReasonStopLoss))

	assert.Equal(t, domain.ExitReasonStopLoss, tr.ExitReason)
}

func TestRecordExit_NoStopLeavesRUndefined(t *testing.T) {
	tr := openTrade(t, nil)

	require.NoError(t, RecordExit(tr, day(2024, 1, 3), 105, 100, ""))

	assert.Nil(t, tr.PartialExits[0].RMultiple)
	assert.Nil(t, tr.RealizedR)
	assert.Equal(t, domain.ExitReasonManual, tr.ExitReason)
	assert.InDelta(t, 500.0, *tr.RealizedPnL, 1e-9)
}

func TestRecordExit_Validation(t *testing.T) {
	tests := []struct {
		name    string
		date    time.Time
		price   float64
		shares  int64
		wantErr error
	}{
		{"zero shares", day(2024, 1, 3), 100, 0, ErrNonPositiveShares},
		{"negative shares", day(2024, 1, 3), 100, -5, ErrNonPositiveShares},
		{"too many shares", day(2024, 1, 3), 100, 101, ErrExceedsRemaining},
		{"zero price", day(2024, 1, 3), 0, 10, ErrNonPositivePrice},
		{"before entry", day(2024, 1, 1), 100, 10, ErrExitBeforeEntry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := openTrade(t, f(95))
			err := RecordExit(tr, tt.date, tt.price, tt.shares, domain.ExitReasonManual)

			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr))
			assert.Empty(t, tr.PartialExits)
			assert.Equal(t, int64(100), tr.RemainingShares)
			assert.Equal(t, domain.TradeStatusOpen, tr.Status)
		})
	}
}

func TestRecordExit_ClosedTradeRejects(t *testing.T) {
	tr := openTrade(t, f(95))
	require.NoError(t, RecordExit(tr, day(2024, 1, 3), 101, 100, domain.ExitReasonManual))

	err := RecordExit(tr, day(2024, 1, 4), 101, 1, domain.ExitReasonManual)
	assert.True(t, errors.Is(err, ErrTradeClosed))
	assert.Len(t, tr.PartialExits, 1)
}

// Random fill sequences must conserve shares, move status only forward and
// keep the blended price within the range of fill prices.
func TestRecordExit_Invariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	rank := map[domain.TradeStatus]int{
		domain.TradeStatusOpen:            0,
		domain.TradeStatusPartiallyClosed: 1,
		domain.TradeStatusClosed:          2,
	}

	for iter := 0; iter < 200; iter++ {
		tr := openTrade(t, f(90))
		minPx, maxPx := 1e18, 0.0
		prevRank := 0
		date := tr.EntryDate

		for !tr.IsClosed() {
			shares := rng.Int63n(tr.RemainingShares) + 1
			price := 80 + rng.Float64()*40
			date = date.AddDate(0, 0, rng.Intn(3))
			require.NoError(t, RecordExit(tr, date, price, shares, domain.ExitReasonManual))

			if price < minPx {
				minPx = price
			}
			if price > maxPx {
				maxPx = price
			}
			assert.Equal(t, tr.EntryShares, tr.RemainingShares+tr.ExitedShares())
			assert.GreaterOrEqual(t, rank[tr.Status], prevRank)
			prevRank = rank[tr.Status]
		}

		require.NotNil(t, tr.BlendedExitPrice)
		assert.GreaterOrEqual(t, *tr.BlendedExitPrice, minPx-1e-9)
		assert.LessOrEqual(t, *tr.BlendedExitPrice, maxPx+1e-9)
	}
}

func TestUpdateExcursion(t *testing.T) {
	tr := openTrade(t, f(95))

	changed, err := UpdateExcursion(tr, day(2024, 1, 3), 104, 99)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 104.0, tr.MFE)
	assert.Equal(t, day(2024, 1, 3), tr.MFEDate)
	assert.Equal(t, 99.0, tr.MAE)

	changed, err = UpdateExcursion(tr, day(2024, 1, 4), 103, 100)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, day(2024, 1, 3), tr.MFEDate)

	changed, err = UpdateExcursion(tr, day(2024, 1, 1), 200, 1)
	require.NoError(t, err)
	assert.False(t, changed, "bars before entry are ignored")

	_, err = UpdateExcursion(tr, day(2024, 1, 5), 99, 101)
	assert.True(t, errors.Is(err, ErrInvertedRange))
}

func TestUpdateExcursion_NoOpWhenClosed(t *testing.T) {
	tr := openTrade(t, f(95))
	require.NoError(t, RecordExit(tr, day(2024, 1, 3), 101, 100, domain.ExitReasonManual))

	changed, err := UpdateExcursion(tr, day(2024, 1, 4), 150, 50)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 100.0, tr.MFE)
}

func TestAmendExitPrice(t *testing.T) {
	tr := openTrade(t, f(95))
	require.NoError(t, RecordExit(tr, day(2024, 1, 3), 110, 50, domain.ExitReasonTakeProfit1))

	assert.True(t, errors.Is(AmendExitPrice(tr, 0, 111), ErrTradeNotClosed))

	require.NoError(t, RecordExit(tr, day(2024, 1, 4), 100, 50, domain.ExitReasonManual))
	require.NoError(t, AmendExitPrice(tr, 1, 104))

	assert.InDelta(t, 107.0, *tr.BlendedExitPrice, 1e-9)
	assert.InDelta(t, 200.0, tr.PartialExits[1].PnL, 1e-9)
	assert.InDelta(t, 1.4, *tr.RealizedR, 1e-9)

	assert.True(t, errors.Is(AmendExitPrice(tr, 2, 104), ErrExitIndexOutOfRange))
	assert.True(t, errors.Is(AmendExitPrice(tr, 0, 0), ErrNonPositivePrice))
}
