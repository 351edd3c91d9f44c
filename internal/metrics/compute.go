package metrics

import (
	"math"
	"sort"

	"trade-outcome-lab/internal/domain"
)

// ImprovementSummary describes how one scenario compared with the actual
// exits across a batch of counterfactual results.
type ImprovementSummary struct {
	Scenario  string `json:"scenario"`
	Trades    int    `json:"trades"`
	StillOpen int    `json:"still_open"`

	// Compared counts results whose actual trade is closed.
	Compared     int     `json:"compared"`
	Improved     int     `json:"improved"`
	Worsened     int     `json:"worsened"`
	ImprovedRate float64 `json:"improved_rate"`

	MeanImprovement   float64 `json:"mean_improvement"`
	MedianImprovement float64 `json:"median_improvement"`
	P10Improvement    float64 `json:"p10_improvement"`
	P25Improvement    float64 `json:"p25_improvement"`
	P75Improvement    float64 `json:"p75_improvement"`
	P90Improvement    float64 `json:"p90_improvement"`
	MinImprovement    float64 `json:"min_improvement"`
	MaxImprovement    float64 `json:"max_improvement"`
	StddevImprovement float64 `json:"stddev_improvement"`
	TotalImprovement  float64 `json:"total_improvement"`

	MeanImprovementR *float64 `json:"mean_improvement_r,omitempty"`

	TotalPnL             float64 `json:"total_pnl"`
	MeanPnLPercent       float64 `json:"mean_pnl_percent"`
	MeanHoldingDays      float64 `json:"mean_holding_days"`
	MaxDrawdown          float64 `json:"max_drawdown"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
}

// Summarize computes the improvement summary for results of one scenario.
// Order-dependent figures (drawdown, loss streaks) use exit date ASC, trade
// id ASC.
func Summarize(scenario string, results []*domain.CounterfactualResult) *ImprovementSummary {
	s := &ImprovementSummary{Scenario: scenario}
	n := len(results)
	if n == 0 {
		return s
	}

	sorted := make([]*domain.CounterfactualResult, n)
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].ExitDate.Equal(sorted[j].ExitDate) {
			return sorted[i].ExitDate.Before(sorted[j].ExitDate)
		}
		return sorted[i].TradeID < sorted[j].TradeID
	})

	var improvements, improvementsR []float64
	pnls := make([]float64, 0, n)
	var pctSum float64
	var holdSum int
	for _, r := range sorted {
		if r.ExitReason == domain.ExitReasonStillOpen {
			s.StillOpen++
		}
		pnls = append(pnls, r.RealizedPnL)
		s.TotalPnL += r.RealizedPnL
		pctSum += r.RealizedPnLPercent
		holdSum += r.HoldingDays

		if r.ImprovementVsActual == nil {
			continue
		}
		imp := *r.ImprovementVsActual
		improvements = append(improvements, imp)
		switch {
		case imp > 0:
			s.Improved++
		case imp < 0:
			s.Worsened++
		}
		if r.ImprovementVsActualR != nil {
			improvementsR = append(improvementsR, *r.ImprovementVsActualR)
		}
	}

	s.Trades = n
	s.MeanPnLPercent = pctSum / float64(n)
	s.MeanHoldingDays = float64(holdSum) / float64(n)
	s.MaxDrawdown = computeMaxDrawdown(pnls)
	s.MaxConsecutiveLosses = computeMaxConsecutiveLosses(pnls)

	s.Compared = len(improvements)
	if s.Compared == 0 {
		return s
	}
	s.ImprovedRate = computeRate(s.Improved, s.Compared)

	ordered := make([]float64, len(improvements))
	copy(ordered, improvements)
	sort.Float64s(ordered)

	mean := computeMean(improvements)
	s.MeanImprovement = mean
	s.MedianImprovement = computePercentile(ordered, 0.50)
	s.P10Improvement = computePercentile(ordered, 0.10)
	s.P25Improvement = computePercentile(ordered, 0.25)
	s.P75Improvement = computePercentile(ordered, 0.75)
	s.P90Improvement = computePercentile(ordered, 0.90)
	s.MinImprovement = ordered[0]
	s.MaxImprovement = ordered[len(ordered)-1]
	s.StddevImprovement = computeStddev(improvements, mean)
	s.TotalImprovement = mean * float64(len(improvements))

	if len(improvementsR) > 0 {
		meanR := computeMean(improvementsR)
		s.MeanImprovementR = &meanR
	}
	return s
}

func computeRate(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}

func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// computeStddev calculates sample standard deviation (n-1 denominator).
func computeStddev(values []float64, mean float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computePercentile uses linear interpolation over a slice sorted ASC.
// p is a fraction (0.10 = 10th percentile).
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// computeMaxDrawdown is the worst peak-to-trough of cumulative PnL.
// Values must be in chronological order.
func computeMaxDrawdown(values []float64) float64 {
	cumulative := 0.0
	peak := 0.0
	maxDrawdown := 0.0

	for _, v := range values {
		cumulative += v
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}
	return maxDrawdown
}

// computeMaxConsecutiveLosses finds the longest streak of PnL <= 0.
func computeMaxConsecutiveLosses(values []float64) int {
	maxStreak := 0
	current := 0
	for _, v := range values {
		if v <= 0 {
			current++
			if current > maxStreak {
				maxStreak = current
			}
		} else {
			current = 0
		}
	}
	return maxStreak
}
