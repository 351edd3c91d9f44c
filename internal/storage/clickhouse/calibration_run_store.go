package clickhouse

import (
	"context"
	"fmt"

	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/storage"
)

// CalibrationRunStore implements storage.CalibrationRunStore using ClickHouse.
type CalibrationRunStore struct {
	conn *Conn
}

// NewCalibrationRunStore creates a new CalibrationRunStore.
func NewCalibrationRunStore(conn *Conn) *CalibrationRunStore {
	return &CalibrationRunStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CalibrationRunStore = (*CalibrationRunStore)(nil)

// Insert adds a run. Returns ErrDuplicateKey if run_id exists.
func (s *CalibrationRunStore) Insert(ctx context.Context, r *domain.CalibrationRun) error {
	if r == nil || r.RunID == "" {
		return storage.ErrInvalidInput
	}

	// MergeTree does not enforce uniqueness.
	exists, err := s.exists(ctx, r.RunID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	var drift uint8
	if r.DriftDetected {
		drift = 1
	}

	err = s.conn.Exec(ctx, `
		INSERT INTO calibration_runs (
			run_id, kind, created_at, trade_count, weighted_error, error_delta,
			drift_detected, ece, mce, brier, model_version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.RunID, r.Kind, r.CreatedAt, uint32(r.TradeCount), r.WeightedError, r.ErrorDelta,
		drift, r.ECE, r.MCE, r.Brier, r.ModelVersion,
	)
	if err != nil {
		return fmt.Errorf("insert calibration run: %w", err)
	}
	return nil
}

// GetByKind retrieves runs of a kind, newest first, up to limit (0 = all).
func (s *CalibrationRunStore) GetByKind(ctx context.Context, kind string, limit int) ([]*domain.CalibrationRun, error) {
	query := `
		SELECT run_id, kind, created_at, trade_count, weighted_error, error_delta,
			drift_detected, ece, mce, brier, model_version
		FROM calibration_runs
		WHERE kind = ?
		ORDER BY created_at DESC, run_id ASC
	`
	args := []interface{}{kind}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, uint64(limit))
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query calibration runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.CalibrationRun
	for rows.Next() {
		var r domain.CalibrationRun
		var count uint32
		var drift uint8
		err := rows.Scan(
			&r.RunID, &r.Kind, &r.CreatedAt, &count, &r.WeightedError, &r.ErrorDelta,
			&drift, &r.ECE, &r.MCE, &r.Brier, &r.ModelVersion,
		)
		if err != nil {
			return nil, fmt.Errorf("scan calibration run: %w", err)
		}
		r.TradeCount = int(count)
		r.DriftDetected = drift == 1
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calibration runs: %w", err)
	}

	return runs, nil
}

func (s *CalibrationRunStore) exists(ctx context.Context, runID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM calibration_runs WHERE run_id = ?`, runID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
