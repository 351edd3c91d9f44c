// Package strategy replays exit rules against daily bars.
//
// Each day after entry the rules are checked in a fixed order and the first
// one that fires ends the simulation:
//
//  1. MAX_HOLDING    day index >= MaxHoldingDays, filled at the close
//  2. STOP_LOSS      low <= stop, filled at the stop
//  3. TRAILING_STOP  low <= peak*(1-pct) once active, filled at that level
//  4. MODEL_EXIT     scored probability >= threshold, filled at the close
//  5. TAKE_PROFIT_3, _2, _1  high >= target, filled at the target
//
// Same-day conflicts resolve by this order, never by intrabar timing.
package strategy

import (
	"context"
	"time"

	"trade-outcome-lab/internal/domain"
)

// Simulator produces the first triggered exit for an entry.
type Simulator interface {
	// Simulate replays bars after the entry date. Deterministic and free of
	// shared state; safe to call concurrently.
	Simulate(ctx context.Context, input *Input) (*domain.SimulatedExit, error)

	// ID returns the rule-set identifier (includes parameters).
	ID() string
}

// ProbabilityScorer maps a feature vector to an exit probability in [0,1].
type ProbabilityScorer interface {
	Probability(v domain.FeatureVector) float64
}

// Input holds all data needed for one simulation.
type Input struct {
	Ticker     string
	Bars       []domain.PriceBar // ascending; may start before entry
	EntryDate  time.Time
	EntryPrice float64
}
