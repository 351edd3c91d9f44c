package postgres

import (
	"context"
	"fmt"

	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/storage"
)

// AuditLogStore implements storage.AuditLogStore using PostgreSQL.
type AuditLogStore struct {
	pool *Pool
}

// NewAuditLogStore creates a new AuditLogStore.
func NewAuditLogStore(pool *Pool) *AuditLogStore {
	return &AuditLogStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AuditLogStore = (*AuditLogStore)(nil)

// Append adds an audit entry. Returns ErrNotFound if the trade does not exist.
func (s *AuditLogStore) Append(ctx context.Context, e *domain.AuditEntry) error {
	if e == nil || e.TradeID == "" {
		return storage.ErrInvalidInput
	}

	return insertAuditEntry(ctx, s.pool, e)
}

func insertAuditEntry(ctx context.Context, q querier, e *domain.AuditEntry) error {
	_, err := q.Exec(ctx, `
		INSERT INTO trade_audit_log (trade_id, actor, action, before_json, after_json, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.TradeID, e.Actor, e.Action, e.Before, e.After, e.Note, e.CreatedAt,
	)
	if err != nil {
		if isForeignKeyError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// GetByTradeID retrieves entries for a trade ordered by created_at ASC.
func (s *AuditLogStore) GetByTradeID(ctx context.Context, tradeID string) ([]*domain.AuditEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT trade_id, actor, action, before_json::text, after_json::text, note, created_at
		FROM trade_audit_log
		WHERE trade_id = $1
		ORDER BY created_at ASC, id ASC`, tradeID)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []*domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.TradeID, &e.Actor, &e.Action, &e.Before, &e.After, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit log: %w", err)
	}
	return entries, nil
}
