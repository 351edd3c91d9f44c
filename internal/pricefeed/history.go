package pricefeed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/logger"
	"trade-outcome-lab/internal/storage"
)

// coverageSlackDays tolerates weekends and holidays at the edges of a range.
const coverageSlackDays = 4

// HistoryProvider serves bars from the price store and falls back to the
// upstream provider when the stored range does not cover the request.
// Fetched bars are written back to the store.
type HistoryProvider struct {
	store    storage.PriceBarStore
	upstream Provider
	log      *logger.Logger
	now      func() time.Time
}

// NewHistoryProvider creates a store-backed provider.
func NewHistoryProvider(store storage.PriceBarStore, upstream Provider, log *logger.Logger) *HistoryProvider {
	if log == nil {
		log = logger.Nop()
	}
	return &HistoryProvider{
		store:    store,
		upstream: upstream,
		log:      log.With(logger.String("component", "price_history")),
		now:      time.Now,
	}
}

func (h *HistoryProvider) GetHistoricalPrices(ctx context.Context, ticker string, start, end time.Time) ([]domain.PriceBar, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	start, end = domain.Day(start), domain.Day(end)

	stored, err := h.store.GetByTimeRange(ctx, ticker, start, end)
	if err != nil {
		return nil, fmt.Errorf("read stored bars: %w", err)
	}
	if h.covers(stored, start, end) {
		return derefBars(stored), nil
	}

	fetched, err := h.upstream.GetHistoricalPrices(ctx, ticker, start, end)
	if err != nil {
		if len(stored) > 0 {
			h.log.Warn("upstream failed, serving partial stored history",
				logger.String("ticker", ticker),
				logger.Int("bars", len(stored)),
				logger.Error(err),
			)
			return derefBars(stored), nil
		}
		return nil, err
	}
	if len(fetched) == 0 {
		return derefBars(stored), nil
	}

	ptrs := make([]*domain.PriceBar, len(fetched))
	for i := range fetched {
		ptrs[i] = &fetched[i]
	}
	if err := h.store.InsertBulk(ctx, ptrs); err != nil {
		h.log.Warn("persist fetched bars failed", logger.String("ticker", ticker), logger.Error(err))
	}
	return fetched, nil
}

// covers reports whether stored bars span [start, end], allowing slack for
// non-trading days. Ranges ending in the future are measured against today.
func (h *HistoryProvider) covers(stored []*domain.PriceBar, start, end time.Time) bool {
	if len(stored) == 0 {
		return false
	}
	first := stored[0].Date
	last := stored[len(stored)-1].Date
	if first.After(start.AddDate(0, 0, coverageSlackDays)) {
		return false
	}
	today := domain.Day(h.now())
	effectiveEnd := end
	if effectiveEnd.After(today) {
		effectiveEnd = today
	}
	return !last.Before(effectiveEnd.AddDate(0, 0, -coverageSlackDays))
}

func derefBars(bars []*domain.PriceBar) []domain.PriceBar {
	out := make([]domain.PriceBar, len(bars))
	for i, b := range bars {
		out[i] = *b
	}
	return out
}
