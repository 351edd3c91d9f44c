package domain

import "time"

// PriceBar is one daily OHLCV bar for a ticker.
// Bars are ordered ascending by Date and never mutated after fetch.
type PriceBar struct {
	Ticker string    // instrument symbol
	Date   time.Time // trading day, UTC midnight
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Day truncates t to UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CalendarDaysBetween returns whole calendar days from a to b.
func CalendarDaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}
