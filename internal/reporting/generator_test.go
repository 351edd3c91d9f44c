package reporting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-outcome-lab/internal/calibration"
	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/drift"
	"trade-outcome-lab/internal/logger"
	"trade-outcome-lab/internal/metrics"
	"trade-outcome-lab/internal/storage/memory"
)

var fixedNow = time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)

// setupMonitor stores n matched closed trades predicted at p, wins of them
// profitable, exiting a few days ago.
func setupMonitor(t *testing.T, n, wins int, p float64) *drift.Monitor {
	t.Helper()
	ctx := context.Background()
	trades := memory.NewTradeStore()
	logs := memory.NewPredictionLogStore()

	exit := domain.Day(time.Now()).AddDate(0, 0, -5)
	entry := exit.AddDate(0, 0, -10)
	for i := 0; i < n; i++ {
		ticker := fmt.Sprintf("T%d", i)
		r := -1.0
		if i < wins {
			r = 2.0
		}
		exitDate := exit
		tr := &domain.Trade{
			ID:          "trade-" + ticker,
			Ticker:      ticker,
			EntryDate:   entry,
			EntryPrice:  50,
			EntryShares: 10,
			Status:      domain.TradeStatusClosed,
			RealizedR:   &r,
			ExitDate:    &exitDate,
		}
		require.NoError(t, trades.Insert(ctx, tr))
		require.NoError(t, logs.Insert(ctx, &domain.PredictionLog{ID: "log-" + ticker, Ticker: ticker, Date: entry, Probability: p}))
	}
	return drift.NewMonitor(memory.NewSnapshotReader(trades, logs), drift.Config{}, logger.Nop())
}

func generate(t *testing.T, mon *drift.Monitor, improvements []*metrics.ImprovementSummary) *Report {
	t.Helper()
	ctx := context.Background()
	samples, matched, err := mon.CalibrationSamples(ctx, nil, nil)
	require.NoError(t, err)

	art, err := calibration.Fit(samples, calibration.FitOptions{Platt: calibration.DefaultPlattOptions()}, fixedNow)
	require.NoError(t, err)

	r, err := NewGenerator(mon).WithClock(func() time.Time { return fixedNow }).Generate(ctx, Input{
		Artifact:     art,
		Samples:      samples,
		Matched:      matched,
		ModelVersion: "v1",
		Improvements: improvements,
	})
	require.NoError(t, err)
	return r
}

func TestGenerate_Summary(t *testing.T) {
	r := generate(t, setupMonitor(t, 10, 8, 72), nil)

	assert.Equal(t, fixedNow, r.GeneratedAt)
	assert.Equal(t, "v1", r.ModelVersion)
	assert.Equal(t, 10, r.DataSummary.TotalTrades)
	assert.Equal(t, 10, r.DataSummary.MatchedTrades)
	assert.Equal(t, 10, r.DataSummary.ExactMatches)
	assert.InDelta(t, 1.0, r.DataSummary.MatchRate, 1e-9)
	assert.Equal(t, r.DataSummary.FirstExit, r.DataSummary.LastExit)

	require.Len(t, r.Methods, 5)
	assert.Equal(t, calibration.MethodRaw, r.Methods[0].Method)
	assert.Equal(t, 10, r.Methods[0].Samples)
	assert.Len(t, r.Reliability, 10)

	require.Len(t, r.Buckets, 1)
	assert.Equal(t, 10, r.Buckets[0].TradeCount)
	require.NotNil(t, r.Threshold)
}

func TestGenerate_NilArtifact(t *testing.T) {
	_, err := NewGenerator(setupMonitor(t, 0, 0, 50)).Generate(context.Background(), Input{})
	assert.Error(t, err)
}

func TestRenderMarkdown_Sections(t *testing.T) {
	imp := metrics.Summarize("tp1", []*domain.CounterfactualResult{
		{TradeID: "a", ExitDate: fixedNow, RealizedPnL: 10, ImprovementVsActual: func() *float64 { v := 5.0; return &v }()},
	})
	md := RenderMarkdown(generate(t, setupMonitor(t, 6, 3, 55), []*metrics.ImprovementSummary{imp}))

	for _, section := range []string{
		"# Calibration Report",
		"## Data Summary",
		"## Calibration Methods",
		"## Reliability (raw vs ensemble)",
		"## Win-Rate Buckets",
		"## Threshold Recommendation",
		"## Counterfactual Scenarios",
		"| tp1 |",
		"Model: v1",
	} {
		assert.Contains(t, md, section)
	}
}

func TestRenderMarkdown_Empty(t *testing.T) {
	md := RenderMarkdown(&Report{GeneratedAt: fixedNow})
	assert.Contains(t, md, "No samples available.")
	assert.Contains(t, md, "No matched trades in any bucket.")
	assert.NotContains(t, md, "## Counterfactual Scenarios")
}

func TestRenderBucketsCSV(t *testing.T) {
	csv := RenderBucketsCSV([]domain.CalibrationBucket{
		{Min: 70, Max: 75, TradeCount: 4, ExpectedWinRate: 0.725, ActualWinRate: 0.5, CalibrationError: -0.225, IsOverconfident: true},
	})
	lines := strings.Split(strings.TrimSpace(csv), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "min,max,trade_count"))
	assert.Equal(t, "70,75,4,0.725000,0.500000,-0.225000,true,false", lines[1])
}

func TestWriteFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	r := generate(t, setupMonitor(t, 4, 2, 60), nil)

	paths, err := WriteFiles(dir, r)
	require.NoError(t, err)
	require.Len(t, paths, 2)

	data, err := os.ReadFile(filepath.Join(dir, MarkdownFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Calibration Report")

	_, err = os.Stat(filepath.Join(dir, ImprovementsFile))
	assert.True(t, os.IsNotExist(err))
}
