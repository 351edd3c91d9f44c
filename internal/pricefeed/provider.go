// Package pricefeed supplies daily OHLCV bars from an upstream provider,
// throttled, retried, cached and persisted.
package pricefeed

import (
	"context"
	"time"

	"trade-outcome-lab/internal/domain"
)

// Provider returns daily bars for ticker within [start, end] (inclusive),
// ascending by date. An empty result is not an error.
type Provider interface {
	GetHistoricalPrices(ctx context.Context, ticker string, start, end time.Time) ([]domain.PriceBar, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, ticker string, start, end time.Time) ([]domain.PriceBar, error)

func (f ProviderFunc) GetHistoricalPrices(ctx context.Context, ticker string, start, end time.Time) ([]domain.PriceBar, error) {
	return f(ctx, ticker, start, end)
}
