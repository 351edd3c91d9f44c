package strategy

import (
	"errors"

	"trade-outcome-lab/internal/domain"
)

// Factory errors. FromConfig wraps them in *domain.ValidationError.
var (
	ErrNonPositivePrice       = errors.New("price levels must be positive")
	ErrStopNotBelowEntry      = errors.New("stop_loss must be below entry price")
	ErrTargetNotAboveEntry    = errors.New("take-profit targets must be above entry price")
	ErrTargetOrder            = errors.New("take-profit targets must satisfy tp1 < tp2 < tp3")
	ErrInvalidTrailingPercent = errors.New("trailing_stop_percent must be in (0, 1)")
	ErrActivationWithoutTrail = errors.New("trailing_stop_activation requires trailing_stop_percent")
	ErrNegativeActivation     = errors.New("trailing_stop_activation must be non-negative")
	ErrInvalidMaxHolding      = errors.New("max_holding_days must be positive")
	ErrInvalidModelThreshold  = errors.New("model_exit_threshold must be in (0, 1]")
	ErrModelExitWithoutScorer = errors.New("model_exit_threshold requires a loaded model")
)

// FromConfig validates cfg against entryPrice and builds a RuleSimulator.
// scorer may be nil unless cfg enables the model exit.
func FromConfig(cfg domain.ExitRuleConfig, entryPrice float64, scorer ProbabilityScorer) (*RuleSimulator, error) {
	if entryPrice <= 0 {
		return nil, domain.NewValidationError("entry_price", ErrNonPositivePrice)
	}

	if cfg.StopLoss != nil {
		if *cfg.StopLoss <= 0 {
			return nil, domain.NewValidationError("stop_loss", ErrNonPositivePrice)
		}
		if *cfg.StopLoss >= entryPrice {
			return nil, domain.NewValidationError("stop_loss", ErrStopNotBelowEntry)
		}
	}

	if err := validateTargets(cfg, entryPrice); err != nil {
		return nil, err
	}

	if cfg.TrailingStopPercent != nil {
		if p := *cfg.TrailingStopPercent; p <= 0 || p >= 1 {
			return nil, domain.NewValidationError("trailing_stop_percent", ErrInvalidTrailingPercent)
		}
	}
	if cfg.TrailingStopActivation != nil {
		if cfg.TrailingStopPercent == nil {
			return nil, domain.NewValidationError("trailing_stop_activation", ErrActivationWithoutTrail)
		}
		if *cfg.TrailingStopActivation < 0 {
			return nil, domain.NewValidationError("trailing_stop_activation", ErrNegativeActivation)
		}
	}

	if cfg.MaxHoldingDays != nil && *cfg.MaxHoldingDays <= 0 {
		return nil, domain.NewValidationError("max_holding_days", ErrInvalidMaxHolding)
	}

	if cfg.ModelExitThreshold != nil {
		if th := *cfg.ModelExitThreshold; th <= 0 || th > 1 {
			return nil, domain.NewValidationError("model_exit_threshold", ErrInvalidModelThreshold)
		}
		if scorer == nil {
			return nil, domain.NewValidationError("model_exit_threshold", ErrModelExitWithoutScorer)
		}
	}

	return &RuleSimulator{
		rules: ExitRules{
			StopLoss:               cfg.StopLoss,
			TP1:                    cfg.TP1,
			TP2:                    cfg.TP2,
			TP3:                    cfg.TP3,
			TrailingStopPercent:    cfg.TrailingStopPercent,
			TrailingStopActivation: cfg.TrailingStopActivation,
			MaxHoldingDays:         cfg.MaxHoldingDays,
			ModelExitThreshold:     cfg.ModelExitThreshold,
		},
		scorer: scorer,
	}, nil
}

// validateTargets checks that set targets sit above entry and ascend.
func validateTargets(cfg domain.ExitRuleConfig, entryPrice float64) error {
	prev := entryPrice
	for _, tp := range []struct {
		field string
		val   *float64
	}{
		{"tp1", cfg.TP1},
		{"tp2", cfg.TP2},
		{"tp3", cfg.TP3},
	} {
		if tp.val == nil {
			continue
		}
		if *tp.val <= 0 {
			return domain.NewValidationError(tp.field, ErrNonPositivePrice)
		}
		if *tp.val <= entryPrice {
			return domain.NewValidationError(tp.field, ErrTargetNotAboveEntry)
		}
		if *tp.val <= prev {
			return domain.NewValidationError(tp.field, ErrTargetOrder)
		}
		prev = *tp.val
	}
	return nil
}
