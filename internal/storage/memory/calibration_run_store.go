package memory

import (
	"context"
	"sort"
	"sync"

	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/storage"
)

// CalibrationRunStore is an in-memory implementation of storage.CalibrationRunStore.
type CalibrationRunStore struct {
	mu   sync.RWMutex
	data map[string]*domain.CalibrationRun
}

// NewCalibrationRunStore creates a new in-memory calibration run store.
func NewCalibrationRunStore() *CalibrationRunStore {
	return &CalibrationRunStore{
		data: make(map[string]*domain.CalibrationRun),
	}
}

// Insert adds a run. Returns ErrDuplicateKey if run_id exists.
func (s *CalibrationRunStore) Insert(_ context.Context, r *domain.CalibrationRun) error {
	if r == nil || r.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.RunID]; exists {
		return storage.ErrDuplicateKey
	}
	runCopy := *r
	s.data[r.RunID] = &runCopy
	return nil
}

// GetByKind retrieves runs of a kind, newest first, up to limit (0 = all).
func (s *CalibrationRunStore) GetByKind(_ context.Context, kind string, limit int) ([]*domain.CalibrationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.CalibrationRun
	for _, r := range s.data {
		if r.Kind == kind {
			runCopy := *r
			result = append(result, &runCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].RunID < result[j].RunID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ storage.CalibrationRunStore = (*CalibrationRunStore)(nil)
