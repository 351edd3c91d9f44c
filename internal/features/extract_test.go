package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-outcome-lab/internal/domain"
)

func ptrFloat(v float64) *float64 { return &v }

// series builds consecutive weekday bars starting 2024-01-01 (a Monday).
func series(closes ...float64) []domain.PriceBar {
	bars := make([]domain.PriceBar, 0, len(closes))
	d := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			d = d.AddDate(0, 0, 1)
		}
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		bars = append(bars, domain.PriceBar{
			Ticker: "TEST", Date: d,
			Open: open, High: c + 1, Low: c - 1, Close: c, Volume: 1000,
		})
		d = d.AddDate(0, 0, 1)
	}
	return bars
}

func TestExtract_BasicValues(t *testing.T) {
	bars := series(100, 101, 102, 104, 106, 110)
	in := Input{
		Bars:       bars,
		EntryDate:  bars[0].Date,
		EntryPrice: 100,
		StopLoss:   ptrFloat(95),
		EvalIndex:  5,
	}

	v, err := Extract(in)
	require.NoError(t, err)

	assert.Equal(t, 5.0, v.Get(domain.FeatureHoldingDays))
	assert.InDelta(t, 10.0, v.Get(domain.FeatureUnrealizedPnL), 1e-9)
	assert.InDelta(t, 10.0, v.Get(domain.FeatureUnrealizedPct), 1e-9)
	assert.InDelta(t, 2.0, v.Get(domain.FeatureUnrealizedR), 1e-9)
	assert.InDelta(t, (110.0-106.0)/106.0*100, v.Get(domain.FeatureReturn1D), 1e-9)
	assert.InDelta(t, 10.0, v.Get(domain.FeatureReturn5D), 1e-9)
	assert.Equal(t, 1.0, v.Get(domain.FeatureAbove1R))
	assert.Equal(t, 1.0, v.Get(domain.FeatureAbove1_5R))
	assert.Equal(t, 1.0, v.Get(domain.FeatureAbove2R))

	// Peak high is 111 on the eval day.
	assert.InDelta(t, (111.0-110.0)/111.0*100, v.Get(domain.FeatureDrawdownFromPeak), 1e-9)
	assert.InDelta(t, 11.0/5.0, v.Get(domain.FeatureMaxFavorableR), 1e-9)

	// Too little history for RSI/ATR/SMA.
	assert.Equal(t, neutralRSI, v.Get(domain.FeatureRSI14))
	assert.Equal(t, 0.0, v.Get(domain.FeatureATRPct))
	assert.Equal(t, 0.0, v.Get(domain.FeaturePriceVsSMA20))

	// 2024-01-08 is a Monday.
	assert.Equal(t, float64(time.Monday), v.Get(domain.FeatureDayOfWeek))
	assert.InDelta(t, 1.0, v.Get(domain.FeatureVolumeRatio20), 1e-9)
	assert.InDelta(t, 0.0, v.Get(domain.FeatureGapPct), 1e-9)
}

func TestExtract_NoLookAhead(t *testing.T) {
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 100 + float64(i%7) - float64(i%3)
	}
	bars := series(closes...)

	in := Input{Bars: bars[:60], EntryDate: bars[40].Date, EntryPrice: closes[40], StopLoss: ptrFloat(closes[40] - 3), EvalIndex: 59}
	before, err := Extract(in)
	require.NoError(t, err)

	in.Bars = bars
	after, err := Extract(in)
	require.NoError(t, err)

	assert.Equal(t, before, after)
}

func TestExtract_IndicatorsWithHistory(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	bars := series(closes...)

	v, err := Extract(Input{Bars: bars, EntryDate: bars[50].Date, EntryPrice: closes[50], EvalIndex: 59})
	require.NoError(t, err)

	// Monotonic rise: RSI saturates high and price sits above both averages.
	assert.Greater(t, v.Get(domain.FeatureRSI14), 70.0)
	assert.Greater(t, v.Get(domain.FeaturePriceVsSMA20), 0.0)
	assert.Greater(t, v.Get(domain.FeaturePriceVsSMA50), v.Get(domain.FeaturePriceVsSMA20))
	assert.Greater(t, v.Get(domain.FeatureATRPct), 0.0)

	// No stop: R-based features stay zero.
	assert.Equal(t, 0.0, v.Get(domain.FeatureUnrealizedR))
	assert.Equal(t, 0.0, v.Get(domain.FeatureAbove1R))
}

func TestExtract_Errors(t *testing.T) {
	_, err := Extract(Input{})
	assert.ErrorIs(t, err, ErrNoBars)

	bars := series(100, 101)
	_, err = Extract(Input{Bars: bars, EntryPrice: 100, EvalIndex: 2})
	assert.ErrorIs(t, err, ErrEvalIndexOutOfRange)

	_, err = Extract(Input{Bars: bars, EntryPrice: 0, EvalIndex: 1})
	assert.ErrorIs(t, err, ErrInvalidEntryPrice)
}

func TestIsMonthEnd(t *testing.T) {
	tests := []struct {
		date time.Time
		want bool
	}{
		{time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), true},  // Wednesday
		{time.Date(2024, 1, 30, 0, 0, 0, 0, time.UTC), false}, // Tuesday
		{time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC), true},  // Friday
		{time.Date(2024, 8, 30, 0, 0, 0, 0, time.UTC), true},  // Friday before a Saturday month-end
		{time.Date(2024, 8, 29, 0, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, isMonthEnd(tt.date), tt.date.Format(time.DateOnly))
	}
}
