package memory

import (
	"context"
	"sync"

	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/storage"
)

// AuditLogStore is an in-memory implementation of storage.AuditLogStore.
type AuditLogStore struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
}

// NewAuditLogStore creates a new in-memory audit log store.
func NewAuditLogStore() *AuditLogStore {
	return &AuditLogStore{}
}

// Append adds an audit entry.
func (s *AuditLogStore) Append(_ context.Context, e *domain.AuditEntry) error {
	if e == nil || e.TradeID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, *e)
	return nil
}

// GetByTradeID retrieves entries for a trade in append order.
func (s *AuditLogStore) GetByTradeID(_ context.Context, tradeID string) ([]*domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AuditEntry
	for _, e := range s.entries {
		if e.TradeID == tradeID {
			entryCopy := e
			result = append(result, &entryCopy)
		}
	}
	return result, nil
}

var _ storage.AuditLogStore = (*AuditLogStore)(nil)
