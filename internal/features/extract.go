// Package features derives the fixed-schema feature vector used by the exit model.
//
// Every value is computed from bars[:EvalIndex+1] only. Appending later bars never
// changes the result for an earlier evaluation index.
package features

import (
	"errors"
	"math"
	"time"

	"github.com/cinar/indicator"
	"github.com/samber/lo"

	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/lookup"
)

const (
	rsiPeriod      = 14
	atrPeriod      = 14
	volumeLookback = 20
	neutralRSI     = 50.0
	shortSMAPeriod = 20
	longSMAPeriod  = 50
)

var (
	// ErrNoBars is returned when the bar series is empty.
	ErrNoBars = errors.New("no bars")

	// ErrEvalIndexOutOfRange is returned when EvalIndex is outside the series.
	ErrEvalIndexOutOfRange = errors.New("evaluation index out of range")

	// ErrInvalidEntryPrice is returned for a non-positive entry price.
	ErrInvalidEntryPrice = errors.New("entry price must be positive")
)

// Input describes one evaluation point within a trade.
type Input struct {
	Bars       []domain.PriceBar // ascending by date; may include pre-entry history
	EntryDate  time.Time
	EntryPrice float64
	StopLoss   *float64
	EvalIndex  int // index into Bars of the evaluation day
}

// Extract computes all features as of in.EvalIndex.
func Extract(in Input) (domain.FeatureVector, error) {
	var v domain.FeatureVector

	if len(in.Bars) == 0 {
		return v, ErrNoBars
	}
	if in.EvalIndex < 0 || in.EvalIndex >= len(in.Bars) {
		return v, ErrEvalIndexOutOfRange
	}
	if in.EntryPrice <= 0 {
		return v, ErrInvalidEntryPrice
	}

	bars := in.Bars[:in.EvalIndex+1]
	cur := bars[len(bars)-1]
	entryIdx := lookup.IndexAtOrBefore(bars, in.EntryDate)

	risk := 0.0
	if in.StopLoss != nil && *in.StopLoss < in.EntryPrice {
		risk = in.EntryPrice - *in.StopLoss
	}

	holding := in.EvalIndex - entryIdx
	if holding < 0 {
		holding = 0
	}
	v.Set(domain.FeatureHoldingDays, float64(holding))

	pnl := cur.Close - in.EntryPrice
	v.Set(domain.FeatureUnrealizedPnL, pnl)
	v.Set(domain.FeatureUnrealizedPct, pnl/in.EntryPrice*100)
	unrealizedR := 0.0
	if risk > 0 {
		unrealizedR = pnl / risk
	}
	v.Set(domain.FeatureUnrealizedR, unrealizedR)

	v.Set(domain.FeatureReturn1D, trailingReturn(bars, 1))
	v.Set(domain.FeatureReturn3D, trailingReturn(bars, 3))
	v.Set(domain.FeatureReturn5D, trailingReturn(bars, 5))

	peak := in.EntryPrice
	for i := entryIdx + 1; i < len(bars); i++ {
		if i >= 0 && bars[i].High > peak {
			peak = bars[i].High
		}
	}
	v.Set(domain.FeatureDrawdownFromPeak, (peak-cur.Close)/peak*100)
	if risk > 0 {
		v.Set(domain.FeatureMaxFavorableR, (peak-in.EntryPrice)/risk)
	}

	closes := lo.Map(bars, func(b domain.PriceBar, _ int) float64 { return b.Close })
	v.Set(domain.FeatureRSI14, rsi(closes))
	v.Set(domain.FeatureATRPct, atrPct(bars, closes))
	v.Set(domain.FeaturePriceVsSMA20, smaDeviation(closes, shortSMAPeriod))
	v.Set(domain.FeaturePriceVsSMA50, smaDeviation(closes, longSMAPeriod))
	v.Set(domain.FeatureVolumeRatio20, volumeRatio(bars))

	v.Set(domain.FeatureDayOfWeek, float64(cur.Date.Weekday()))
	if isMonthEnd(cur.Date) {
		v.Set(domain.FeatureIsMonthEnd, 1)
	}

	v.Set(domain.FeatureAbove1R, flag(risk > 0 && unrealizedR >= 1))
	v.Set(domain.FeatureAbove1_5R, flag(risk > 0 && unrealizedR >= 1.5))
	v.Set(domain.FeatureAbove2R, flag(risk > 0 && unrealizedR >= 2))

	if len(bars) > 1 {
		prev := bars[len(bars)-2].Close
		if prev > 0 {
			v.Set(domain.FeatureGapPct, (cur.Open-prev)/prev*100)
		}
	}

	return v, nil
}

func trailingReturn(bars []domain.PriceBar, n int) float64 {
	last := len(bars) - 1
	if last-n < 0 {
		return 0
	}
	base := bars[last-n].Close
	if base <= 0 {
		return 0
	}
	return (bars[last].Close - base) / base * 100
}

func rsi(closes []float64) float64 {
	if len(closes) <= rsiPeriod {
		return neutralRSI
	}
	_, values := indicator.RsiPeriod(rsiPeriod, closes)
	return finiteOr(lo.LastOrEmpty(values), neutralRSI)
}

func atrPct(bars []domain.PriceBar, closes []float64) float64 {
	if len(bars) <= atrPeriod {
		return 0
	}
	highs := lo.Map(bars, func(b domain.PriceBar, _ int) float64 { return b.High })
	lows := lo.Map(bars, func(b domain.PriceBar, _ int) float64 { return b.Low })
	_, atr := indicator.Atr(atrPeriod, highs, lows, closes)
	last := closes[len(closes)-1]
	if last <= 0 {
		return 0
	}
	return finiteOr(lo.LastOrEmpty(atr)/last*100, 0)
}

func smaDeviation(closes []float64, period int) float64 {
	if len(closes) < period {
		return 0
	}
	sma := lo.LastOrEmpty(indicator.Sma(period, closes))
	if sma <= 0 || math.IsNaN(sma) {
		return 0
	}
	return (closes[len(closes)-1] - sma) / sma * 100
}

// volumeRatio compares today's volume with the mean of up to 20 prior bars.
func volumeRatio(bars []domain.PriceBar) float64 {
	last := len(bars) - 1
	start := last - volumeLookback
	if start < 0 {
		start = 0
	}
	prior := bars[start:last]
	if len(prior) == 0 {
		return 1
	}
	avg := lo.MeanBy(prior, func(b domain.PriceBar) float64 { return b.Volume })
	if avg <= 0 {
		return 1
	}
	return bars[last].Volume / avg
}

// isMonthEnd reports whether d is the last weekday of its month.
func isMonthEnd(d time.Time) bool {
	next := d.AddDate(0, 0, 1)
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next.Month() != d.Month()
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func finiteOr(x, fallback float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return fallback
	}
	return x
}
