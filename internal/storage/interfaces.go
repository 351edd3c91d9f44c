package storage

import (
	"context"
	"time"

	"trade-outcome-lab/internal/domain"
)

// TradeStore provides access to trades and their partial exits.
type TradeStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
	Insert(ctx context.Context, t *domain.Trade) error

	// Update replaces the mutable state of an existing trade, including its
	// partial exits. Returns ErrNotFound if trade_id does not exist.
	Update(ctx context.Context, t *domain.Trade) error

	// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, tradeID string) (*domain.Trade, error)

	// GetByUser retrieves all trades for a user ordered by (ticker, entry_date).
	GetByUser(ctx context.Context, user string) ([]*domain.Trade, error)

	// GetOpen retrieves trades with remaining shares, ordered by entry_date ASC.
	GetOpen(ctx context.Context) ([]*domain.Trade, error)

	// GetClosedByExitRange retrieves CLOSED trades whose exit date is within
	// [start, end] (inclusive), ordered by exit_date ASC, trade_id ASC.
	GetClosedByExitRange(ctx context.Context, start, end time.Time) ([]*domain.Trade, error)
}

// AuditedTradeUpdater is implemented by trade stores that can persist a
// trade update and its audit entry atomically.
type AuditedTradeUpdater interface {
	// UpdateWithAudit applies Update and appends e in one transaction.
	// Neither write is visible if either fails.
	UpdateWithAudit(ctx context.Context, t *domain.Trade, e *domain.AuditEntry) error
}

// AuditLogStore records explicit edits of closed trades. Append-only.
type AuditLogStore interface {
	// Append adds an audit entry.
	Append(ctx context.Context, e *domain.AuditEntry) error

	// GetByTradeID retrieves entries for a trade ordered by created_at ASC.
	GetByTradeID(ctx context.Context, tradeID string) ([]*domain.AuditEntry, error)
}

// PredictionLogStore provides access to issued predictions.
type PredictionLogStore interface {
	// Insert adds a prediction. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, p *domain.PredictionLog) error

	// InsertBulk adds multiple predictions atomically.
	InsertBulk(ctx context.Context, logs []*domain.PredictionLog) error

	// GetByDateRange retrieves predictions dated within [start, end] (inclusive),
	// ordered by (date, ticker, id).
	GetByDateRange(ctx context.Context, start, end time.Time) ([]*domain.PredictionLog, error)
}

// PriceBarStore provides access to stored daily bars.
type PriceBarStore interface {
	// InsertBulk upserts bars keyed by (ticker, date).
	InsertBulk(ctx context.Context, bars []*domain.PriceBar) error

	// GetByTimeRange retrieves bars for a ticker within [start, end] (inclusive),
	// ordered by date ASC.
	GetByTimeRange(ctx context.Context, ticker string, start, end time.Time) ([]*domain.PriceBar, error)
}

// CalibrationRunStore provides access to persisted calibration measurements.
type CalibrationRunStore interface {
	// Insert adds a run. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, r *domain.CalibrationRun) error

	// GetByKind retrieves runs of a kind ordered by created_at DESC, up to limit.
	GetByKind(ctx context.Context, kind string, limit int) ([]*domain.CalibrationRun, error)
}

// Snapshot is a consistent view of closed trades and prediction logs.
type Snapshot struct {
	Trades []*domain.Trade
	Logs   []*domain.PredictionLog
}

// SnapshotReader reads closed trades and prediction logs as of a single point
// in time. Writes that commit during the read are either fully visible or not
// visible at all.
type SnapshotReader interface {
	// ReadSnapshot returns CLOSED trades with exit date in [tradeStart, tradeEnd]
	// and prediction logs dated within [logStart, logEnd].
	ReadSnapshot(ctx context.Context, tradeStart, tradeEnd, logStart, logEnd time.Time) (*Snapshot, error)
}
