// Package drift reconciles closed trades with the predictions issued for
// them and monitors how well those predictions are calibrated.
package drift

import (
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"trade-outcome-lab/internal/domain"
)

// MatchWindowDays is the furthest a prediction may sit from a trade's entry
// date and still be matched to it.
const MatchWindowDays = 3

// IsWin reports whether a closed trade made money, by realized R when a stop
// was set and by realized P&L otherwise.
func IsWin(t *domain.Trade) bool {
	if t.RealizedR != nil {
		return *t.RealizedR > 0
	}
	if t.RealizedPnL != nil {
		return *t.RealizedPnL > 0
	}
	return false
}

// MatchTrades pairs each CLOSED trade with at most one prediction log for the
// same ticker. An exact (ticker, entry date) match is preferred; otherwise the
// nearest log within MatchWindowDays is used, the earlier log winning ties.
// A log is used for at most one trade. Returns the matches and the number of
// closed trades left unmatched.
func MatchTrades(trades []*domain.Trade, logs []*domain.PredictionLog) ([]domain.MatchedTrade, int) {
	byTicker := lo.GroupBy(logs, func(l *domain.PredictionLog) string {
		return strings.ToUpper(l.Ticker)
	})
	for _, group := range byTicker {
		sort.SliceStable(group, func(i, j int) bool {
			if !group[i].Date.Equal(group[j].Date) {
				return group[i].Date.Before(group[j].Date)
			}
			return group[i].ID < group[j].ID
		})
	}

	closed := lo.Filter(trades, func(t *domain.Trade, _ int) bool {
		return t.IsClosed()
	})

	used := make(map[string]bool)
	chosen := make([]*domain.PredictionLog, len(closed))
	exact := make([]bool, len(closed))

	// Exact matches first so that a near miss never takes a log another
	// trade matches exactly.
	for i, t := range closed {
		entry := domain.Day(t.EntryDate)
		for _, l := range byTicker[strings.ToUpper(t.Ticker)] {
			if !used[l.ID] && domain.Day(l.Date).Equal(entry) {
				chosen[i], exact[i] = l, true
				used[l.ID] = true
				break
			}
		}
	}

	for i, t := range closed {
		if chosen[i] != nil {
			continue
		}
		entry := domain.Day(t.EntryDate)
		var best *domain.PredictionLog
		bestDist := MatchWindowDays + 1
		for _, l := range byTicker[strings.ToUpper(t.Ticker)] {
			if used[l.ID] {
				continue
			}
			dist := absDays(entry, domain.Day(l.Date))
			// Logs are ascending by date, so strict < keeps the earlier on ties.
			if dist <= MatchWindowDays && dist < bestDist {
				best, bestDist = l, dist
			}
		}
		if best != nil {
			chosen[i] = best
			used[best.ID] = true
		}
	}

	var (
		matched   []domain.MatchedTrade
		unmatched int
	)
	for i, t := range closed {
		l := chosen[i]
		if l == nil {
			unmatched++
			continue
		}
		var exitDate time.Time
		if t.ExitDate != nil {
			exitDate = *t.ExitDate
		}
		matched = append(matched, domain.MatchedTrade{
			TradeID:     t.ID,
			Ticker:      t.Ticker,
			EntryDate:   t.EntryDate,
			ExitDate:    exitDate,
			Probability: l.Probability,
			Win:         IsWin(t),
			ExactMatch:  exact[i],
		})
	}
	return matched, unmatched
}

func absDays(a, b time.Time) int {
	d := domain.CalendarDaysBetween(a, b)
	if d < 0 {
		return -d
	}
	return d
}
