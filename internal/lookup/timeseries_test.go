package lookup

import (
	"errors"
	"testing"
	"time"

	"trade-outcome-lab/internal/domain"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func testBars() []domain.PriceBar {
	return []domain.PriceBar{
		{Date: day(2), Close: 100},
		{Date: day(3), Close: 101},
		{Date: day(5), Close: 103},
	}
}

func TestIndexAtOrBefore(t *testing.T) {
	bars := testBars()

	tests := []struct {
		name string
		date time.Time
		want int
	}{
		{"before all", day(1), -1},
		{"exact first", day(2), 0},
		{"gap", day(4), 1},
		{"exact last", day(5), 2},
		{"after all", day(9), 2},
		{"intraday timestamp", day(3).Add(15 * time.Hour), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IndexAtOrBefore(bars, tt.date); got != tt.want {
				t.Errorf("IndexAtOrBefore(%s) = %d, want %d", tt.date, got, tt.want)
			}
		})
	}
}

func TestFirstIndexAfter(t *testing.T) {
	bars := testBars()
	if got := FirstIndexAfter(bars, day(3)); got != 2 {
		t.Errorf("FirstIndexAfter = %d, want 2", got)
	}
	if got := FirstIndexAfter(bars, day(5)); got != len(bars) {
		t.Errorf("FirstIndexAfter past end = %d, want %d", got, len(bars))
	}
}

func TestBarAtOrBefore(t *testing.T) {
	bars := testBars()

	b, err := BarAtOrBefore(bars, day(4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Close != 101 {
		t.Errorf("expected close 101, got %v", b.Close)
	}

	// No bar before target falls back to the first bar.
	b, _ = BarAtOrBefore(bars, day(1))
	if b.Close != 100 {
		t.Errorf("expected first bar fallback, got %v", b.Close)
	}

	if _, err := BarAtOrBefore(nil, day(1)); !errors.Is(err, ErrNoPriceData) {
		t.Errorf("expected ErrNoPriceData, got %v", err)
	}
}

func TestWindow(t *testing.T) {
	bars := testBars()

	got := Window(bars, day(3), day(5))
	if len(got) != 2 || got[0].Close != 101 || got[1].Close != 103 {
		t.Errorf("unexpected window: %+v", got)
	}
	if got := Window(bars, day(6), day(9)); len(got) != 0 {
		t.Errorf("expected empty window, got %d bars", len(got))
	}
}
