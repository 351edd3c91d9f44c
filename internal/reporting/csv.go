package reporting

import (
	"fmt"
	"strings"

	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/metrics"
)

// RenderBucketsCSV renders calibration buckets as CSV string.
func RenderBucketsCSV(buckets []domain.CalibrationBucket) string {
	var sb strings.Builder

	sb.WriteString("min,max,trade_count,expected_win_rate,actual_win_rate,calibration_error,overconfident,underconfident\n")
	for _, b := range buckets {
		sb.WriteString(fmt.Sprintf("%.0f,%.0f,%d,%.6f,%.6f,%.6f,%t,%t\n",
			b.Min, b.Max, b.TradeCount,
			b.ExpectedWinRate, b.ActualWinRate, b.CalibrationError,
			b.IsOverconfident, b.IsUnderconfident,
		))
	}
	return sb.String()
}

// RenderImprovementsCSV renders counterfactual scenario summaries.
func RenderImprovementsCSV(summaries []*metrics.ImprovementSummary) string {
	var sb strings.Builder

	sb.WriteString("scenario,trades,still_open,compared,improved,worsened,improved_rate,")
	sb.WriteString("mean_improvement,median_improvement,p10_improvement,p90_improvement,")
	sb.WriteString("total_pnl,max_drawdown,max_consecutive_losses\n")
	for _, s := range summaries {
		sb.WriteString(fmt.Sprintf("%s,%d,%d,%d,%d,%d,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%d\n",
			s.Scenario, s.Trades, s.StillOpen, s.Compared, s.Improved, s.Worsened, s.ImprovedRate,
			s.MeanImprovement, s.MedianImprovement, s.P10Improvement, s.P90Improvement,
			s.TotalPnL, s.MaxDrawdown, s.MaxConsecutiveLosses,
		))
	}
	return sb.String()
}
