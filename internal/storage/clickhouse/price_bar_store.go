package clickhouse

import (
	"context"
	"fmt"
	"time"

	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/storage"
)

// PriceBarStore implements storage.PriceBarStore using ClickHouse.
// Rows live in a ReplacingMergeTree so re-inserted bars supersede older ones.
type PriceBarStore struct {
	conn *Conn
}

// NewPriceBarStore creates a new PriceBarStore.
func NewPriceBarStore(conn *Conn) *PriceBarStore {
	return &PriceBarStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceBarStore = (*PriceBarStore)(nil)

// InsertBulk upserts bars keyed by (ticker, bar_date).
func (s *PriceBarStore) InsertBulk(ctx context.Context, bars []*domain.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_bars (
			ticker, bar_date, open, high, low, close, volume, inserted_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	now := time.Now().UTC()
	for _, b := range bars {
		if b == nil || b.Ticker == "" {
			_ = batch.Abort()
			return storage.ErrInvalidInput
		}
		err = batch.Append(
			b.Ticker, domain.Day(b.Date),
			b.Open, b.High, b.Low, b.Close, b.Volume, now,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTimeRange retrieves bars for a ticker within [start, end] (inclusive).
func (s *PriceBarStore) GetByTimeRange(ctx context.Context, ticker string, start, end time.Time) ([]*domain.PriceBar, error) {
	query := `
		SELECT ticker, bar_date, open, high, low, close, volume
		FROM price_bars FINAL
		WHERE ticker = ? AND bar_date >= ? AND bar_date <= ?
		ORDER BY bar_date ASC
	`

	rows, err := s.conn.Query(ctx, query, ticker, domain.Day(start), domain.Day(end))
	if err != nil {
		return nil, fmt.Errorf("query price bars: %w", err)
	}
	defer rows.Close()

	return scanPriceBars(rows)
}

// scanPriceBars scans multiple rows.
func scanPriceBars(rows chRows) ([]*domain.PriceBar, error) {
	var bars []*domain.PriceBar

	for rows.Next() {
		var b domain.PriceBar
		err := rows.Scan(&b.Ticker, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume)
		if err != nil {
			return nil, fmt.Errorf("scan price bar: %w", err)
		}
		b.Date = domain.Day(b.Date)
		bars = append(bars, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price bars: %w", err)
	}

	return bars, nil
}
