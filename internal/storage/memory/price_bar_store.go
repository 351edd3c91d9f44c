package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/storage"
)

// PriceBarStore is an in-memory implementation of storage.PriceBarStore.
type PriceBarStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PriceBar // keyed by (ticker, date)
}

// NewPriceBarStore creates a new in-memory price bar store.
func NewPriceBarStore() *PriceBarStore {
	return &PriceBarStore{
		data: make(map[string]*domain.PriceBar),
	}
}

func barKey(ticker string, date time.Time) string {
	return fmt.Sprintf("%s|%s", ticker, domain.Day(date).Format(time.DateOnly))
}

// InsertBulk upserts bars keyed by (ticker, date).
func (s *PriceBarStore) InsertBulk(_ context.Context, bars []*domain.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}

	for _, b := range bars {
		if b == nil || b.Ticker == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range bars {
		barCopy := *b
		barCopy.Date = domain.Day(b.Date)
		s.data[barKey(b.Ticker, b.Date)] = &barCopy
	}
	return nil
}

// GetByTimeRange retrieves bars for a ticker within [start, end], ordered by date ASC.
func (s *PriceBarStore) GetByTimeRange(_ context.Context, ticker string, start, end time.Time) ([]*domain.PriceBar, error) {
	start, end = domain.Day(start), domain.Day(end)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PriceBar
	for _, b := range s.data {
		if b.Ticker != ticker || b.Date.Before(start) || b.Date.After(end) {
			continue
		}
		barCopy := *b
		result = append(result, &barCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})
	return result, nil
}

var _ storage.PriceBarStore = (*PriceBarStore)(nil)
