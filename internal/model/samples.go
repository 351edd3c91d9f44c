package model

import (
	"errors"
	"fmt"

	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/features"
)

// ErrTradeNotClosed is returned when samples are requested for an open trade.
var ErrTradeNotClosed = errors.New("trade is not closed")

// BuildSamples labels every trading day after entry up to the exit date of a
// closed trade. Bars may include pre-entry history for the indicators. Days
// whose close is at least the blended exit price are labeled 1.
func BuildSamples(t *domain.Trade, bars []domain.PriceBar) ([]Sample, error) {
	if !t.IsClosed() || t.ExitDate == nil || t.BlendedExitPrice == nil {
		return nil, fmt.Errorf("trade %s: %w", t.ID, ErrTradeNotClosed)
	}
	entry := domain.Day(t.EntryDate)
	exit := domain.Day(*t.ExitDate)

	var out []Sample
	for i, b := range bars {
		d := domain.Day(b.Date)
		if !d.After(entry) || d.After(exit) {
			continue
		}
		v, err := features.Extract(features.Input{
			Bars:       bars,
			EntryDate:  entry,
			EntryPrice: t.EntryPrice,
			StopLoss:   t.StopLoss,
			EvalIndex:  i,
		})
		if err != nil {
			return nil, fmt.Errorf("trade %s features on %s: %w", t.ID, d.Format("2006-01-02"), err)
		}
		label := 0
		if b.Close >= *t.BlendedExitPrice {
			label = 1
		}
		out = append(out, Sample{Features: v, Label: label})
	}
	return out, nil
}
