package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/storage"
)

// PredictionLogStore is an in-memory implementation of storage.PredictionLogStore.
type PredictionLogStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PredictionLog // keyed by id
}

// NewPredictionLogStore creates a new in-memory prediction log store.
func NewPredictionLogStore() *PredictionLogStore {
	return &PredictionLogStore{
		data: make(map[string]*domain.PredictionLog),
	}
}

// Insert adds a prediction. Returns ErrDuplicateKey if id exists.
func (s *PredictionLogStore) Insert(ctx context.Context, p *domain.PredictionLog) error {
	return s.InsertBulk(ctx, []*domain.PredictionLog{p})
}

// InsertBulk adds multiple predictions atomically. Fails entire batch on any duplicate.
func (s *PredictionLogStore) InsertBulk(_ context.Context, logs []*domain.PredictionLog) error {
	if len(logs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(logs))
	for _, p := range logs {
		if p == nil || p.ID == "" || p.Ticker == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[p.ID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[p.ID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[p.ID] = struct{}{}
	}

	for _, p := range logs {
		logCopy := *p
		s.data[p.ID] = &logCopy
	}
	return nil
}

// GetByDateRange retrieves predictions dated within [start, end].
func (s *PredictionLogStore) GetByDateRange(_ context.Context, start, end time.Time) ([]*domain.PredictionLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.rangeLocked(start, end), nil
}

func (s *PredictionLogStore) rangeLocked(start, end time.Time) []*domain.PredictionLog {
	var result []*domain.PredictionLog
	for _, p := range s.data {
		if p.Date.Before(start) || p.Date.After(end) {
			continue
		}
		logCopy := *p
		result = append(result, &logCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Ticker != b.Ticker {
			return a.Ticker < b.Ticker
		}
		return a.ID < b.ID
	})
	return result
}

var _ storage.PredictionLogStore = (*PredictionLogStore)(nil)
