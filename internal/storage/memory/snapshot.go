package memory

import (
	"context"
	"time"

	"trade-outcome-lab/internal/storage"
)

// SnapshotReader reads trades and prediction logs while holding both read locks.
type SnapshotReader struct {
	trades *TradeStore
	logs   *PredictionLogStore
}

// NewSnapshotReader creates a snapshot reader over in-memory stores.
func NewSnapshotReader(trades *TradeStore, logs *PredictionLogStore) *SnapshotReader {
	return &SnapshotReader{trades: trades, logs: logs}
}

// ReadSnapshot returns closed trades and prediction logs from one consistent view.
func (r *SnapshotReader) ReadSnapshot(_ context.Context, tradeStart, tradeEnd, logStart, logEnd time.Time) (*storage.Snapshot, error) {
	// Lock order: trades, then logs.
	r.trades.mu.RLock()
	defer r.trades.mu.RUnlock()
	r.logs.mu.RLock()
	defer r.logs.mu.RUnlock()

	return &storage.Snapshot{
		Trades: r.trades.closedInRangeLocked(tradeStart, tradeEnd),
		Logs:   r.logs.rangeLocked(logStart, logEnd),
	}, nil
}

var _ storage.SnapshotReader = (*SnapshotReader)(nil)
