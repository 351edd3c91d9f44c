package domain

import "time"

// ExitRuleConfig is the caller-facing rule-set for the exit simulator.
// Nil fields are disabled. Percentages are fractions (0.05 = 5%).
type ExitRuleConfig struct {
	StopLoss               *float64 `json:"stop_loss,omitempty" validate:"omitempty,gt=0"`
	TP1                    *float64 `json:"tp1,omitempty" validate:"omitempty,gt=0"`
	TP2                    *float64 `json:"tp2,omitempty" validate:"omitempty,gt=0"`
	TP3                    *float64 `json:"tp3,omitempty" validate:"omitempty,gt=0"`
	TrailingStopPercent    *float64 `json:"trailing_stop_percent,omitempty" validate:"omitempty,gt=0,lt=1"`
	TrailingStopActivation *float64 `json:"trailing_stop_activation,omitempty" validate:"omitempty,gte=0"`
	MaxHoldingDays         *int     `json:"max_holding_days,omitempty" validate:"omitempty,gt=0"`
	ModelExitThreshold     *float64 `json:"model_exit_threshold,omitempty" validate:"omitempty,gt=0,lte=1"`
}

// SimulatedExit is the first exit triggered by the simulator.
type SimulatedExit struct {
	ExitDate    time.Time
	ExitPrice   float64
	ExitReason  string
	HoldingDays int     // trading-day index of the exit bar, 1 = first bar after entry
	PeakPrice   float64 // highest high observed up to exit
	TroughPrice float64 // lowest low observed up to exit
	// ExitProbability is set when the model was scored on the exit bar.
	ExitProbability *float64
}

// StillOpen reports whether no rule fired before the data ran out.
func (e *SimulatedExit) StillOpen() bool {
	return e.ExitReason == ExitReasonStillOpen
}
