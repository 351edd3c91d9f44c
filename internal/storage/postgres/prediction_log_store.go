package postgres

import (
	"context"
	"fmt"
	"time"

	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/storage"
)

// PredictionLogStore implements storage.PredictionLogStore using PostgreSQL.
type PredictionLogStore struct {
	pool *Pool
}

// NewPredictionLogStore creates a new PredictionLogStore.
func NewPredictionLogStore(pool *Pool) *PredictionLogStore {
	return &PredictionLogStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PredictionLogStore = (*PredictionLogStore)(nil)

const insertPredictionLog = `
	INSERT INTO prediction_logs (id, ticker, prediction_date, probability, model_version)
	VALUES ($1, $2, $3, $4, $5)
`

// Insert adds a prediction. Returns ErrDuplicateKey if id exists.
func (s *PredictionLogStore) Insert(ctx context.Context, p *domain.PredictionLog) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, insertPredictionLog,
		p.ID, p.Ticker, domain.Day(p.Date), p.Probability, p.ModelVersion)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert prediction log: %w", err)
	}
	return nil
}

// InsertBulk adds multiple predictions atomically. Fails entire batch on any duplicate.
func (s *PredictionLogStore) InsertBulk(ctx context.Context, logs []*domain.PredictionLog) error {
	if len(logs) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, p := range logs {
		if p == nil || p.ID == "" {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, insertPredictionLog,
			p.ID, p.Ticker, domain.Day(p.Date), p.Probability, p.ModelVersion)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert prediction log in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByDateRange retrieves predictions dated within [start, end].
func (s *PredictionLogStore) GetByDateRange(ctx context.Context, start, end time.Time) ([]*domain.PredictionLog, error) {
	return queryPredictionLogs(ctx, s.pool, start, end)
}

func queryPredictionLogs(ctx context.Context, q querier, start, end time.Time) ([]*domain.PredictionLog, error) {
	rows, err := q.Query(ctx, `
		SELECT id::text, ticker, prediction_date, probability, model_version
		FROM prediction_logs
		WHERE prediction_date >= $1 AND prediction_date <= $2
		ORDER BY prediction_date ASC, ticker ASC, id ASC`, domain.Day(start), domain.Day(end))
	if err != nil {
		return nil, fmt.Errorf("query prediction logs: %w", err)
	}
	defer rows.Close()

	var logs []*domain.PredictionLog
	for rows.Next() {
		var p domain.PredictionLog
		if err := rows.Scan(&p.ID, &p.Ticker, &p.Date, &p.Probability, &p.ModelVersion); err != nil {
			return nil, fmt.Errorf("scan prediction log: %w", err)
		}
		logs = append(logs, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prediction logs: %w", err)
	}
	return logs, nil
}
