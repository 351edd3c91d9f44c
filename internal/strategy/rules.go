package strategy

import (
	"context"
	"fmt"
	"strings"

	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/features"
	"trade-outcome-lab/internal/lookup"
)

// ExitRules is a validated rule-set. Nil fields are disabled.
type ExitRules struct {
	StopLoss               *float64
	TP1                    *float64
	TP2                    *float64
	TP3                    *float64
	TrailingStopPercent    *float64
	TrailingStopActivation *float64
	MaxHoldingDays         *int
	ModelExitThreshold     *float64
}

// RuleSimulator applies ExitRules in the package precedence order.
type RuleSimulator struct {
	rules  ExitRules
	scorer ProbabilityScorer
}

// ID returns the strategy identifier including parameters.
func (s *RuleSimulator) ID() string {
	r := s.rules
	parts := []string{"RULES"}
	if r.MaxHoldingDays != nil {
		parts = append(parts, fmt.Sprintf("max%dd", *r.MaxHoldingDays))
	}
	if r.StopLoss != nil {
		parts = append(parts, fmt.Sprintf("sl%.4g", *r.StopLoss))
	}
	if r.TrailingStopPercent != nil {
		p := fmt.Sprintf("trail%.4g", *r.TrailingStopPercent*100)
		if r.TrailingStopActivation != nil {
			p += fmt.Sprintf("@%.4g", *r.TrailingStopActivation*100)
		}
		parts = append(parts, p)
	}
	if r.ModelExitThreshold != nil {
		parts = append(parts, fmt.Sprintf("model%.4g", *r.ModelExitThreshold))
	}
	for i, tp := range []*float64{r.TP1, r.TP2, r.TP3} {
		if tp != nil {
			parts = append(parts, fmt.Sprintf("tp%d_%.4g", i+1, *tp))
		}
	}
	return strings.Join(parts, "_")
}

// Rules returns a copy of the rule-set.
func (s *RuleSimulator) Rules() ExitRules {
	return s.rules
}

// Simulate runs the rules over bars strictly after input.EntryDate.
// Returns *domain.DataUnavailableError when no such bar exists.
func (s *RuleSimulator) Simulate(ctx context.Context, input *Input) (*domain.SimulatedExit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if input == nil || input.EntryPrice <= 0 {
		return nil, domain.NewValidationError("entry_price", ErrNonPositivePrice)
	}

	bars := input.Bars
	start := lookup.FirstIndexAfter(bars, input.EntryDate)
	if start >= len(bars) {
		return nil, &domain.DataUnavailableError{
			Ticker: input.Ticker,
			Reason: fmt.Sprintf("no bars after entry date %s", input.EntryDate.Format("2006-01-02")),
		}
	}

	r := s.rules
	entry := input.EntryPrice
	peak, trough := entry, entry

	exit := func(i, d int, price float64, reason string) *domain.SimulatedExit {
		return &domain.SimulatedExit{
			ExitDate:    bars[i].Date,
			ExitPrice:   price,
			ExitReason:  reason,
			HoldingDays: d,
			PeakPrice:   peak,
			TroughPrice: trough,
		}
	}

	for i := start; i < len(bars); i++ {
		d := i - start + 1
		b := bars[i]

		if b.High > peak {
			peak = b.High
		}
		if b.Low < trough {
			trough = b.Low
		}

		if r.MaxHoldingDays != nil && d >= *r.MaxHoldingDays {
			return exit(i, d, b.Close, domain.ExitReasonMaxHolding), nil
		}

		if r.StopLoss != nil && b.Low <= *r.StopLoss {
			return exit(i, d, *r.StopLoss, domain.ExitReasonStopLoss), nil
		}

		if r.TrailingStopPercent != nil {
			active := r.TrailingStopActivation == nil || (peak-entry)/entry > *r.TrailingStopActivation
			if active {
				level := peak * (1 - *r.TrailingStopPercent)
				if b.Low <= level {
					return exit(i, d, level, domain.ExitReasonTrailingStop), nil
				}
			}
		}

		if r.ModelExitThreshold != nil {
			v, err := features.Extract(features.Input{
				Bars:       bars,
				EntryDate:  input.EntryDate,
				EntryPrice: entry,
				StopLoss:   r.StopLoss,
				EvalIndex:  i,
			})
			if err != nil {
				return nil, fmt.Errorf("extract features on %s: %w", b.Date.Format("2006-01-02"), err)
			}
			p := s.scorer.Probability(v)
			if p >= *r.ModelExitThreshold {
				e := exit(i, d, b.Close, domain.ExitReasonModelExit)
				e.ExitProbability = &p
				return e, nil
			}
		}

		if r.TP3 != nil && b.High >= *r.TP3 {
			return exit(i, d, *r.TP3, domain.ExitReasonTakeProfit3), nil
		}
		if r.TP2 != nil && b.High >= *r.TP2 {
			return exit(i, d, *r.TP2, domain.ExitReasonTakeProfit2), nil
		}
		if r.TP1 != nil && b.High >= *r.TP1 {
			return exit(i, d, *r.TP1, domain.ExitReasonTakeProfit1), nil
		}
	}

	last := len(bars) - 1
	return exit(last, last-start+1, bars[last].Close, domain.ExitReasonStillOpen), nil
}

// Ensure RuleSimulator implements Simulator
var _ Simulator = (*RuleSimulator)(nil)
