package metrics

import (
	"sort"

	"github.com/samber/lo"

	"trade-outcome-lab/internal/domain"
)

// Compare summarizes results grouped by scenario name, best mean improvement
// first. Scenarios with no closed trades to compare sort last.
func Compare(results []*domain.CounterfactualResult) []*ImprovementSummary {
	groups := lo.GroupBy(lo.Compact(results), func(r *domain.CounterfactualResult) string {
		return r.Scenario
	})

	out := make([]*ImprovementSummary, 0, len(groups))
	for name, rs := range groups {
		out = append(out, Summarize(name, rs))
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.Compared == 0) != (b.Compared == 0) {
			return a.Compared > 0
		}
		if a.MeanImprovement != b.MeanImprovement {
			return a.MeanImprovement > b.MeanImprovement
		}
		return a.Scenario < b.Scenario
	})
	return out
}
