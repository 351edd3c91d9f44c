package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var (
	_ storage.TradeStore          = (*TradeStore)(nil)
	_ storage.AuditedTradeUpdater = (*TradeStore)(nil)
)

const tradeColumns = `
	trade_id, user_id, ticker, entry_date, entry_price, entry_shares,
	stop_loss, tp1, tp2, tp3,
	remaining_shares, status, mfe, mfe_date, mae, mae_date,
	blended_exit_price, realized_pnl, realized_r, holding_days, exit_date, exit_reason
`

// Insert adds a new trade and its partial exits. Returns ErrDuplicateKey if
// trade_id or (user, ticker, entry_date) exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.Trade) error {
	if t == nil || t.ID == "" {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO trades (`+tradeColumns+`) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22
		)`,
		t.ID, t.User, t.Ticker, t.EntryDate, t.EntryPrice, t.EntryShares,
		t.StopLoss, t.TP1, t.TP2, t.TP3,
		t.RemainingShares, string(t.Status), t.MFE, t.MFEDate, t.MAE, t.MAEDate,
		t.BlendedExitPrice, t.RealizedPnL, t.RealizedR, t.HoldingDays, t.ExitDate, t.ExitReason,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}

	if err := upsertPartialExits(ctx, tx, t); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Update replaces the mutable state of a trade and upserts its partial exits.
// Returns ErrNotFound if trade_id does not exist.
func (s *TradeStore) Update(ctx context.Context, t *domain.Trade) error {
	if t == nil || t.ID == "" {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := updateTrade(ctx, tx, t); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// UpdateWithAudit updates t and appends e in a single transaction.
func (s *TradeStore) UpdateWithAudit(ctx context.Context, t *domain.Trade, e *domain.AuditEntry) error {
	if t == nil || t.ID == "" || e == nil || e.TradeID != t.ID {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := updateTrade(ctx, tx, t); err != nil {
		return err
	}
	if err := insertAuditEntry(ctx, tx, e); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func updateTrade(ctx context.Context, tx pgx.Tx, t *domain.Trade) error {
	tag, err := tx.Exec(ctx, `
		UPDATE trades SET
			remaining_shares = $2, status = $3,
			mfe = $4, mfe_date = $5, mae = $6, mae_date = $7,
			blended_exit_price = $8, realized_pnl = $9, realized_r = $10,
			holding_days = $11, exit_date = $12, exit_reason = $13
		WHERE trade_id = $1`,
		t.ID, t.RemainingShares, string(t.Status),
		t.MFE, t.MFEDate, t.MAE, t.MAEDate,
		t.BlendedExitPrice, t.RealizedPnL, t.RealizedR,
		t.HoldingDays, t.ExitDate, t.ExitReason,
	)
	if err != nil {
		return fmt.Errorf("update trade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	return upsertPartialExits(ctx, tx, t)
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(ctx context.Context, tradeID string) (*domain.Trade, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tradeColumns+` FROM trades WHERE trade_id = $1`, tradeID)
	t, err := scanTrade(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade by id: %w", err)
	}

	if err := loadPartialExits(ctx, s.pool, []*domain.Trade{t}); err != nil {
		return nil, err
	}
	return t, nil
}

// GetByUser retrieves all trades for a user ordered by (ticker, entry_date).
func (s *TradeStore) GetByUser(ctx context.Context, user string) ([]*domain.Trade, error) {
	return queryTrades(ctx, s.pool, `
		SELECT `+tradeColumns+` FROM trades
		WHERE user_id = $1
		ORDER BY ticker ASC, entry_date ASC`, user)
}

// GetOpen retrieves trades that are not CLOSED, ordered by entry_date ASC.
func (s *TradeStore) GetOpen(ctx context.Context) ([]*domain.Trade, error) {
	return queryTrades(ctx, s.pool, `
		SELECT `+tradeColumns+` FROM trades
		WHERE status <> 'CLOSED'
		ORDER BY entry_date ASC, trade_id ASC`)
}

// GetClosedByExitRange retrieves CLOSED trades with exit_date in [start, end].
func (s *TradeStore) GetClosedByExitRange(ctx context.Context, start, end time.Time) ([]*domain.Trade, error) {
	return queryClosedTrades(ctx, s.pool, start, end)
}

func queryClosedTrades(ctx context.Context, q querier, start, end time.Time) ([]*domain.Trade, error) {
	return queryTrades(ctx, q, `
		SELECT `+tradeColumns+` FROM trades
		WHERE status = 'CLOSED' AND exit_date >= $1 AND exit_date <= $2
		ORDER BY exit_date ASC, trade_id ASC`, domain.Day(start), domain.Day(end))
}

func queryTrades(ctx context.Context, q querier, sql string, args ...any) ([]*domain.Trade, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}

	var trades []*domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		trades = append(trades, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	if err := loadPartialExits(ctx, q, trades); err != nil {
		return nil, err
	}
	return trades, nil
}

// scanTrade scans a single row into a Trade.
func scanTrade(row pgx.Row) (*domain.Trade, error) {
	var t domain.Trade
	var status string

	err := row.Scan(
		&t.ID, &t.User, &t.Ticker, &t.EntryDate, &t.EntryPrice, &t.EntryShares,
		&t.StopLoss, &t.TP1, &t.TP2, &t.TP3,
		&t.RemainingShares, &status, &t.MFE, &t.MFEDate, &t.MAE, &t.MAEDate,
		&t.BlendedExitPrice, &t.RealizedPnL, &t.RealizedR, &t.HoldingDays, &t.ExitDate, &t.ExitReason,
	)
	if err != nil {
		return nil, err
	}
	t.Status = domain.TradeStatus(status)
	return &t, nil
}

// upsertPartialExits writes exits by position. Amended prices overwrite in place.
func upsertPartialExits(ctx context.Context, tx pgx.Tx, t *domain.Trade) error {
	for i, pe := range t.PartialExits {
		_, err := tx.Exec(ctx, `
			INSERT INTO partial_exits (
				trade_id, seq, exit_date, price, shares, reason, pnl, pnl_percent, r_multiple
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (trade_id, seq) DO UPDATE SET
				price = EXCLUDED.price,
				pnl = EXCLUDED.pnl,
				pnl_percent = EXCLUDED.pnl_percent,
				r_multiple = EXCLUDED.r_multiple`,
			t.ID, i, pe.Date, pe.Price, pe.Shares, pe.Reason, pe.PnL, pe.PnLPercent, pe.RMultiple,
		)
		if err != nil {
			return fmt.Errorf("upsert partial exit %d: %w", i, err)
		}
	}
	return nil
}

// loadPartialExits attaches partial exits to trades in one query.
func loadPartialExits(ctx context.Context, q querier, trades []*domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	byID := make(map[string]*domain.Trade, len(trades))
	ids := make([]string, 0, len(trades))
	for _, t := range trades {
		byID[t.ID] = t
		ids = append(ids, t.ID)
	}

	rows, err := q.Query(ctx, `
		SELECT trade_id, exit_date, price, shares, reason, pnl, pnl_percent, r_multiple
		FROM partial_exits
		WHERE trade_id = ANY($1)
		ORDER BY trade_id ASC, seq ASC`, ids)
	if err != nil {
		return fmt.Errorf("query partial exits: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tradeID string
		var pe domain.PartialExit
		err := rows.Scan(&tradeID, &pe.Date, &pe.Price, &pe.Shares, &pe.Reason, &pe.PnL, &pe.PnLPercent, &pe.RMultiple)
		if err != nil {
			return fmt.Errorf("scan partial exit: %w", err)
		}
		if t, ok := byID[tradeID]; ok {
			t.PartialExits = append(t.PartialExits, pe)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate partial exits: %w", err)
	}
	return nil
}
