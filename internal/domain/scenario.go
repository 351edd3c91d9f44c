package domain

import "time"

// Scenario is an alternate exit parameterization for a counterfactual run.
// Fields left nil inherit the trade's own stop-loss and take-profit levels.
type Scenario struct {
	Name  string         `json:"name" validate:"max=64"`
	Rules ExitRuleConfig `json:"rules"`
	// InheritTradeLevels copies stop/targets from the trade when the
	// scenario leaves them nil.
	InheritTradeLevels bool `json:"inherit_trade_levels"`
	// HorizonDays bounds how much history after entry is fetched.
	HorizonDays int `json:"horizon_days" default:"120" validate:"omitempty,gt=0,lte=1000"`
}

// CounterfactualResult is the outcome of replaying a trade under a Scenario.
type CounterfactualResult struct {
	TradeID            string    `json:"trade_id"`
	Scenario           string    `json:"scenario"`
	ExitDate           time.Time `json:"exit_date"`
	ExitPrice          float64   `json:"exit_price"`
	ExitReason         string    `json:"exit_reason"`
	RealizedPnL        float64   `json:"realized_pnl"`
	RealizedPnLPercent float64   `json:"realized_pnl_percent"`
	RealizedR          *float64  `json:"realized_r,omitempty"`
	HoldingDays        int       `json:"holding_days"`
	// Improvement fields are nil while the actual trade is still open.
	ImprovementVsActual  *float64 `json:"improvement_vs_actual,omitempty"`
	ImprovementVsActualR *float64 `json:"improvement_vs_actual_r,omitempty"`
}

// OptimalExitResult is the best achievable exit within the trade's window.
type OptimalExitResult struct {
	TradeID         string    `json:"trade_id"`
	BestExitDate    time.Time `json:"best_exit_date"`
	BestExitPrice   float64   `json:"best_exit_price"`
	MaxPossiblePnL  float64   `json:"max_possible_pnl"`
	MaxPossibleR    *float64  `json:"max_possible_r,omitempty"`
	MFECapturedPct  *float64  `json:"mfe_captured_pct,omitempty"`
	GapVsActual     *float64  `json:"gap_vs_actual,omitempty"`
	GapVsActualR    *float64  `json:"gap_vs_actual_r,omitempty"`
	WindowEndDate   time.Time `json:"window_end_date"`
	ActualExitPrice *float64  `json:"actual_exit_price,omitempty"`
}
