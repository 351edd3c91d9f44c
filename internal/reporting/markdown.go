package reporting

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString("# Calibration Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Artifact fitted: %s", r.FittedAt.Format(time.RFC3339)))
	if r.ModelVersion != "" {
		sb.WriteString(fmt.Sprintf(" | Model: %s", r.ModelVersion))
	}
	sb.WriteString("\n\n")

	// Data Summary
	ds := r.DataSummary
	sb.WriteString("## Data Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Closed Trades | %d |\n", ds.TotalTrades))
	sb.WriteString(fmt.Sprintf("| Matched Trades | %d |\n", ds.MatchedTrades))
	sb.WriteString(fmt.Sprintf("| Exact Date Matches | %d |\n", ds.ExactMatches))
	sb.WriteString(fmt.Sprintf("| Match Rate | %.2f%% |\n", ds.MatchRate*100))
	sb.WriteString(fmt.Sprintf("| Weighted Calibration Error | %.2fpp |\n", ds.WeightedError))
	if ds.MatchedTrades > 0 {
		sb.WriteString(fmt.Sprintf("| Exit Range | %s to %s |\n", ds.FirstExit.Format(dateLayout), ds.LastExit.Format(dateLayout)))
	}
	sb.WriteString("\n")

	// Methods
	sb.WriteString("## Calibration Methods\n\n")
	if len(r.Methods) > 0 && r.Methods[0].Samples > 0 {
		sb.WriteString("| Method | ECE | MCE | Brier | Samples |\n")
		sb.WriteString("|--------|-----|-----|-------|---------|\n")
		for _, m := range r.Methods {
			sb.WriteString(fmt.Sprintf("| %s | %.4f | %.4f | %.4f | %d |\n",
				m.Method, m.ECE, m.MCE, m.Brier, m.Samples))
		}
	} else {
		sb.WriteString("No samples available.\n")
	}
	sb.WriteString("\n")

	// Reliability
	sb.WriteString("## Reliability (raw vs ensemble)\n\n")
	sb.WriteString("| Bin | Raw N | Raw Pred | Raw Actual | Cal N | Cal Pred | Cal Actual |\n")
	sb.WriteString("|-----|-------|----------|------------|-------|----------|------------|\n")
	for _, b := range r.Reliability {
		sb.WriteString(fmt.Sprintf("| %.1f-%.1f | %d | %.4f | %.4f | %d | %.4f | %.4f |\n",
			b.Lower, b.Upper, b.RawCount, b.RawPredicted, b.RawActual,
			b.CalibratedCount, b.CalibratedPredicted, b.CalibratedActual))
	}
	sb.WriteString("\n")

	// Buckets
	sb.WriteString("## Win-Rate Buckets\n\n")
	if len(r.Buckets) > 0 {
		sb.WriteString("| Range | Trades | Expected | Actual | Error | Flag |\n")
		sb.WriteString("|-------|--------|----------|--------|-------|------|\n")
		for _, b := range r.Buckets {
			flag := ""
			switch {
			case b.IsOverconfident:
				flag = "overconfident"
			case b.IsUnderconfident:
				flag = "underconfident"
			}
			sb.WriteString(fmt.Sprintf("| %.0f-%.0f | %d | %.2f | %.2f | %.2f | %s |\n",
				b.Min, b.Max, b.TradeCount, b.ExpectedWinRate, b.ActualWinRate, b.CalibrationError, flag))
		}
	} else {
		sb.WriteString("No matched trades in any bucket.\n")
	}
	sb.WriteString("\n")

	// Threshold
	if t := r.Threshold; t != nil {
		sb.WriteString("## Threshold Recommendation\n\n")
		sb.WriteString(fmt.Sprintf("Current: %.2f | Recommended: %.2f | Confidence: %s\n\n",
			t.CurrentThreshold, t.RecommendedThreshold, t.Confidence))
		sb.WriteString(t.Reason)
		sb.WriteString("\n\n")
	}

	// Counterfactual summaries
	if len(r.Improvements) > 0 {
		sb.WriteString("## Counterfactual Scenarios\n\n")
		sb.WriteString("| Scenario | Trades | Compared | Improved | Mean | Median | P10 | P90 | MaxDD |\n")
		sb.WriteString("|----------|--------|----------|----------|------|--------|-----|-----|-------|\n")
		for _, s := range r.Improvements {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %.2f%% | %.2f | %.2f | %.2f | %.2f | %.2f |\n",
				s.Scenario, s.Trades, s.Compared, s.ImprovedRate*100,
				s.MeanImprovement, s.MedianImprovement, s.P10Improvement, s.P90Improvement, s.MaxDrawdown))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
