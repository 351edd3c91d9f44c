package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Trade // keyed by trade_id
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		data: make(map[string]*domain.Trade),
	}
}

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeStore) Insert(_ context.Context, t *domain.Trade) error {
	if t == nil || t.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.ID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[t.ID] = t.Clone()
	return nil
}

// Update replaces the stored trade. Returns ErrNotFound if trade_id does not exist.
func (s *TradeStore) Update(_ context.Context, t *domain.Trade) error {
	if t == nil || t.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.ID]; !exists {
		return storage.ErrNotFound
	}
	s.data[t.ID] = t.Clone()
	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(_ context.Context, tradeID string) (*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.data[tradeID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return t.Clone(), nil
}

// GetByUser retrieves all trades for a user ordered by (ticker, entry_date).
func (s *TradeStore) GetByUser(_ context.Context, user string) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for _, t := range s.data {
		if t.User == user {
			result = append(result, t.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Ticker != result[j].Ticker {
			return result[i].Ticker < result[j].Ticker
		}
		return result[i].EntryDate.Before(result[j].EntryDate)
	})
	return result, nil
}

// GetOpen retrieves trades that are not CLOSED, ordered by entry_date ASC.
func (s *TradeStore) GetOpen(_ context.Context) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for _, t := range s.data {
		if t.Status != domain.TradeStatusClosed {
			result = append(result, t.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].EntryDate.Equal(result[j].EntryDate) {
			return result[i].EntryDate.Before(result[j].EntryDate)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// GetClosedByExitRange retrieves CLOSED trades with exit date in [start, end].
func (s *TradeStore) GetClosedByExitRange(_ context.Context, start, end time.Time) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.closedInRangeLocked(start, end), nil
}

func (s *TradeStore) closedInRangeLocked(start, end time.Time) []*domain.Trade {
	var result []*domain.Trade
	for _, t := range s.data {
		if t.Status != domain.TradeStatusClosed || t.ExitDate == nil {
			continue
		}
		if t.ExitDate.Before(start) || t.ExitDate.After(end) {
			continue
		}
		result = append(result, t.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].ExitDate.Equal(*result[j].ExitDate) {
			return result[i].ExitDate.Before(*result[j].ExitDate)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

var _ storage.TradeStore = (*TradeStore)(nil)
