// Package lookup locates bars by date within an ascending daily series.
package lookup

import (
	"errors"
	"sort"
	"time"

	"trade-outcome-lab/internal/domain"
)

// ErrNoPriceData is returned when the bar series is empty.
var ErrNoPriceData = errors.New("no price data available")

// IndexAtOrBefore returns the index of the last bar dated on or before date,
// or -1 when every bar is later.
func IndexAtOrBefore(bars []domain.PriceBar, date time.Time) int {
	day := domain.Day(date)
	// First bar strictly after day, minus one.
	return sort.Search(len(bars), func(i int) bool {
		return domain.Day(bars[i].Date).After(day)
	}) - 1
}

// FirstIndexAfter returns the index of the first bar dated strictly after
// date, or len(bars) when none is.
func FirstIndexAfter(bars []domain.PriceBar, date time.Time) int {
	return IndexAtOrBefore(bars, date) + 1
}

// BarAtOrBefore returns the closest bar on or before date. If no bar precedes
// date, the first available bar is returned.
func BarAtOrBefore(bars []domain.PriceBar, date time.Time) (domain.PriceBar, error) {
	if len(bars) == 0 {
		return domain.PriceBar{}, ErrNoPriceData
	}
	i := IndexAtOrBefore(bars, date)
	if i < 0 {
		i = 0
	}
	return bars[i], nil
}

// Window returns the bars dated within [start, end] (inclusive).
func Window(bars []domain.PriceBar, start, end time.Time) []domain.PriceBar {
	lo := IndexAtOrBefore(bars, start.AddDate(0, 0, -1)) + 1
	hi := IndexAtOrBefore(bars, end) + 1
	if lo >= hi {
		return nil
	}
	return bars[lo:hi]
}
