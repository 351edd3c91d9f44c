package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"trade-outcome-lab/internal/storage"
)

// SnapshotReader reads trades and prediction logs inside one read-only
// REPEATABLE READ transaction.
type SnapshotReader struct {
	pool *Pool
}

// NewSnapshotReader creates a new SnapshotReader.
func NewSnapshotReader(pool *Pool) *SnapshotReader {
	return &SnapshotReader{pool: pool}
}

// Compile-time interface check.
var _ storage.SnapshotReader = (*SnapshotReader)(nil)

// ReadSnapshot returns closed trades and prediction logs from one consistent view.
func (r *SnapshotReader) ReadSnapshot(ctx context.Context, tradeStart, tradeEnd, logStart, logEnd time.Time) (*storage.Snapshot, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback(ctx)

	trades, err := queryClosedTrades(ctx, tx, tradeStart, tradeEnd)
	if err != nil {
		return nil, err
	}
	logs, err := queryPredictionLogs(ctx, tx, logStart, logEnd)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit snapshot tx: %w", err)
	}
	return &storage.Snapshot{Trades: trades, Logs: logs}, nil
}
