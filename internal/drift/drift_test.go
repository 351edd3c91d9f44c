package drift

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/logger"
	"trade-outcome-lab/internal/storage/memory"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func closed(id, ticker string, entry, exit time.Time, r float64) *domain.Trade {
	return &domain.Trade{
		ID:          id,
		Ticker:      ticker,
		EntryDate:   entry,
		EntryPrice:  100,
		EntryShares: 10,
		Status:      domain.TradeStatusClosed,
		RealizedR:   &r,
		ExitDate:    &exit,
	}
}

func pred(id, ticker string, date time.Time, p float64) *domain.PredictionLog {
	return &domain.PredictionLog{ID: id, Ticker: ticker, Date: date, Probability: p}
}

func TestMatchTrades_ExactBeforeNearest(t *testing.T) {
	entry := day(2024, 3, 10)
	trades := []*domain.Trade{
		closed("near", "AAPL", entry.AddDate(0, 0, 1), day(2024, 3, 20), 1),
		closed("exact", "AAPL", entry, day(2024, 3, 21), -1),
	}
	logs := []*domain.PredictionLog{pred("l1", "AAPL", entry, 70)}

	matched, unmatched := MatchTrades(trades, logs)

	require.Len(t, matched, 1)
	assert.Equal(t, "exact", matched[0].TradeID)
	assert.True(t, matched[0].ExactMatch)
	assert.False(t, matched[0].Win)
	assert.Equal(t, 1, unmatched)
}

func TestMatchTrades_NearestWithinWindow(t *testing.T) {
	entry := day(2024, 3, 10)
	trades := []*domain.Trade{closed("t1", "MSFT", entry, day(2024, 3, 15), 2)}

	tests := []struct {
		name   string
		logs   []*domain.PredictionLog
		wantID string
	}{
		{
			name:   "earlier log wins a tie",
			logs:   []*domain.PredictionLog{pred("after", "MSFT", entry.AddDate(0, 0, 2), 80), pred("before", "MSFT", entry.AddDate(0, 0, -2), 60)},
			wantID: "before",
		},
		{
			name:   "closer log wins",
			logs:   []*domain.PredictionLog{pred("far", "MSFT", entry.AddDate(0, 0, -3), 60), pred("close", "MSFT", entry.AddDate(0, 0, 1), 80)},
			wantID: "close",
		},
		{
			name: "outside window",
			logs: []*domain.PredictionLog{pred("x", "MSFT", entry.AddDate(0, 0, 4), 60)},
		},
		{
			name: "other ticker",
			logs: []*domain.PredictionLog{pred("x", "AAPL", entry, 60)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matched, unmatched := MatchTrades(trades, tt.logs)
			if tt.wantID == "" {
				assert.Empty(t, matched)
				assert.Equal(t, 1, unmatched)
				return
			}
			require.Len(t, matched, 1)
			assert.False(t, matched[0].ExactMatch)
			for _, l := range tt.logs {
				if l.ID == tt.wantID {
					assert.Equal(t, l.Probability, matched[0].Probability)
				}
			}
		})
	}
}

func TestMatchTrades_IgnoresOpenTrades(t *testing.T) {
	open := &domain.Trade{ID: "o", Ticker: "AAPL", EntryDate: day(2024, 1, 2), Status: domain.TradeStatusOpen}

	matched, unmatched := MatchTrades([]*domain.Trade{open}, []*domain.PredictionLog{pred("l", "AAPL", day(2024, 1, 2), 70)})

	assert.Empty(t, matched)
	assert.Equal(t, 0, unmatched)
}

func TestBuildBuckets_UnderconfidentBucket(t *testing.T) {
	var matched []domain.MatchedTrade
	for i := 0; i < 8; i++ {
		matched = append(matched, domain.MatchedTrade{Probability: 72, Win: i < 7})
	}

	buckets := BuildBuckets(matched)

	require.Len(t, buckets, 1)
	b := buckets[0]
	assert.Equal(t, 70.0, b.Min)
	assert.Equal(t, 75.0, b.Max)
	assert.Equal(t, 8, b.TradeCount)
	assert.InDelta(t, 0.725, b.ExpectedWinRate, 1e-9)
	assert.InDelta(t, 0.875, b.ActualWinRate, 1e-9)
	assert.InDelta(t, 0.15, b.CalibrationError, 1e-9)
	assert.True(t, b.IsUnderconfident)
	assert.False(t, b.IsOverconfident)
}

func TestBuildBuckets_Edges(t *testing.T) {
	matched := []domain.MatchedTrade{
		{Probability: 49.9, Win: true},
		{Probability: 50, Win: false},
		{Probability: 100, Win: true},
	}

	buckets := BuildBuckets(matched)

	require.Len(t, buckets, 2)
	assert.Equal(t, 50.0, buckets[0].Min)
	assert.Equal(t, 95.0, buckets[1].Min)
	assert.True(t, buckets[0].IsOverconfident)
}

func TestRecommendThreshold(t *testing.T) {
	tests := []struct {
		name    string
		buckets []domain.CalibrationBucket
		current float64
		matched int
		want    float64
	}{
		{
			name:    "no buckets keeps current",
			current: 0.6,
			want:    0.6,
		},
		{
			name: "lowest well calibrated bucket",
			buckets: []domain.CalibrationBucket{
				{Min: 55, Max: 60, TradeCount: 10, CalibrationError: -0.2},
				{Min: 65, Max: 70, TradeCount: 4, CalibrationError: 0.01},
				{Min: 70, Max: 75, TradeCount: 6, CalibrationError: 0.03},
				{Min: 80, Max: 85, TradeCount: 9, CalibrationError: 0.0},
			},
			current: 0.6,
			matched: 29,
			want:    0.70,
		},
		{
			name: "overconfident shifts up",
			buckets: []domain.CalibrationBucket{
				{Min: 60, Max: 65, TradeCount: 10, CalibrationError: -0.10},
			},
			current: 0.6,
			matched: 25,
			want:    0.70,
		},
		{
			name: "clamped at floor",
			buckets: []domain.CalibrationBucket{
				{Min: 60, Max: 65, TradeCount: 10, CalibrationError: 0.30},
			},
			current: 0.6,
			matched: 25,
			want:    0.50,
		},
		{
			name: "insufficient trades keeps current",
			buckets: []domain.CalibrationBucket{
				{Min: 60, Max: 65, TradeCount: 3, CalibrationError: -0.60},
			},
			current: 0.6,
			matched: 3,
			want:    0.60,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := RecommendThreshold(tt.buckets, tt.current, tt.matched)
			assert.InDelta(t, tt.want, rec.RecommendedThreshold, 1e-9)
			assert.NotEmpty(t, rec.Reason)
		})
	}
}

func TestConfidenceFor(t *testing.T) {
	assert.Equal(t, ConfidenceLow, ConfidenceFor(0))
	assert.Equal(t, ConfidenceLow, ConfidenceFor(19))
	assert.Equal(t, ConfidenceMedium, ConfidenceFor(20))
	assert.Equal(t, ConfidenceMedium, ConfidenceFor(49))
	assert.Equal(t, ConfidenceHigh, ConfidenceFor(50))
}

type fixture struct {
	trades *memory.TradeStore
	logs   *memory.PredictionLogStore
	mon    *Monitor
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	trades := memory.NewTradeStore()
	logs := memory.NewPredictionLogStore()
	mon := NewMonitor(memory.NewSnapshotReader(trades, logs), Config{}, logger.Nop())
	now := day(2024, 6, 30)
	mon.now = func() time.Time { return now }
	return &fixture{trades: trades, logs: logs, mon: mon, now: now}
}

// add stores n closed trades exiting daysAgo, predicted at p, with wins winners.
func (f *fixture) add(t *testing.T, prefix string, daysAgo, n, wins int, p float64) {
	t.Helper()
	ctx := context.Background()
	exit := f.now.AddDate(0, 0, -daysAgo)
	for i := 0; i < n; i++ {
		ticker := fmt.Sprintf("%s%d", prefix, i)
		entry := exit.AddDate(0, 0, -10)
		r := -1.0
		if i < wins {
			r = 1.5
		}
		require.NoError(t, f.trades.Insert(ctx, closed(ticker, ticker, entry, exit, r)))
		require.NoError(t, f.logs.Insert(ctx, pred("log-"+ticker, ticker, entry, p)))
	}
}

func TestMonitor_DetectDrift_Overconfident(t *testing.T) {
	f := newFixture(t)
	f.add(t, "H", 60, 10, 7, 72) // historical: 0.70 vs 0.725
	f.add(t, "R", 5, 10, 4, 72)  // recent: 0.40 vs 0.725

	d, err := f.mon.DetectDrift(context.Background(), 0)
	require.NoError(t, err)

	assert.True(t, d.DriftDetected)
	assert.Equal(t, 10, d.RecentTradeCount)
	assert.Equal(t, 10, d.HistoricalTradeCount)
	assert.InDelta(t, -0.325, d.RecentWeightedError, 1e-9)
	assert.InDelta(t, -0.025, d.HistoricalWeightedError, 1e-9)
	assert.InDelta(t, -0.30, d.ErrorDelta, 1e-9)
	assert.Contains(t, d.Recommendation, "overconfident")
}

func TestMonitor_DetectDrift_Stable(t *testing.T) {
	f := newFixture(t)
	f.add(t, "H", 60, 20, 14, 72)
	f.add(t, "R", 5, 20, 14, 72)

	d, err := f.mon.DetectDrift(context.Background(), 0)
	require.NoError(t, err)

	assert.False(t, d.DriftDetected)
	assert.Equal(t, "Calibration is stable.", d.Recommendation)
}

func TestMonitor_DetectDrift_NoData(t *testing.T) {
	f := newFixture(t)

	d, err := f.mon.DetectDrift(context.Background(), 14)
	require.NoError(t, err)

	assert.False(t, d.DriftDetected)
	assert.Contains(t, d.Recommendation, "Insufficient")
}

func TestMonitor_GetCalibrationMetrics(t *testing.T) {
	f := newFixture(t)
	f.add(t, "A", 5, 8, 7, 72)
	// An unmatched closed trade still counts toward the match rate.
	require.NoError(t, f.trades.Insert(context.Background(), closed("lonely", "ZZZ", f.now.AddDate(0, 0, -20), f.now.AddDate(0, 0, -3), 1)))

	m, err := f.mon.GetCalibrationMetrics(context.Background(), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 9, m.TotalTrades)
	assert.Equal(t, 8, m.MatchedTrades)
	assert.InDelta(t, 8.0/9.0, m.MatchRate, 1e-9)
	require.Len(t, m.Buckets, 1)
	assert.True(t, m.Buckets[0].IsUnderconfident)

	from := f.now
	to := f.now.AddDate(0, 0, -1)
	_, err = f.mon.GetCalibrationMetrics(context.Background(), &from, &to)
	var ve *domain.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestMonitor_GetThresholdRecommendation(t *testing.T) {
	f := newFixture(t)

	rec, err := f.mon.GetThresholdRecommendation(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0.60, rec.RecommendedThreshold)
	assert.Equal(t, ConfidenceLow, rec.Confidence)

	f.add(t, "A", 5, 10, 6, 62) // 0.6 vs 0.625: well calibrated
	f.add(t, "B", 5, 20, 17, 82)

	rec, err = f.mon.GetThresholdRecommendation(context.Background(), nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.60, rec.RecommendedThreshold, 1e-9)
	assert.Equal(t, ConfidenceMedium, rec.Confidence)

	bad := 1.5
	_, err = f.mon.GetThresholdRecommendation(context.Background(), &bad)
	assert.Error(t, err)
}

type recordingPublisher struct {
	alerts []Alert
}

func (p *recordingPublisher) PublishDriftAlert(_ context.Context, a Alert) error {
	p.alerts = append(p.alerts, a)
	return nil
}

func TestChecker_CheckOnce(t *testing.T) {
	f := newFixture(t)
	f.add(t, "R", 5, 8, 8, 72)
	runs := memory.NewCalibrationRunStore()
	pub := &recordingPublisher{}
	checker := NewChecker(f.mon, runs, pub, "v1", logger.Nop())
	checker.now = func() time.Time { return f.now }

	run, err := checker.CheckOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, run.DriftDetected)
	assert.Equal(t, domain.CalibrationRunDrift, run.Kind)

	stored, err := runs.GetByKind(context.Background(), domain.CalibrationRunDrift, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Len(t, pub.alerts, 1)
	assert.Equal(t, run.RunID, pub.alerts[0].RunID)
	assert.Equal(t, "v1", pub.alerts[0].ModelVersion)
}

func TestMonitor_CalibrationSamples(t *testing.T) {
	f := newFixture(t)
	f.add(t, "S", 5, 4, 3, 65)

	samples, matched, err := f.mon.CalibrationSamples(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Len(t, samples, 4)
	require.Len(t, matched, 4)

	wins := 0
	for _, s := range samples {
		assert.Equal(t, 65.0, s.Probability)
		wins += s.Label
	}
	assert.Equal(t, 3, wins)
}
