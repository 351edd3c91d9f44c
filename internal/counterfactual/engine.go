// Package counterfactual replays stored trades under alternate exit rules.
package counterfactual

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/logger"
	"trade-outcome-lab/internal/lookup"
	"trade-outcome-lab/internal/observability"
	"trade-outcome-lab/internal/pricefeed"
	"trade-outcome-lab/internal/storage"
	"trade-outcome-lab/internal/strategy"
)

const (
	// DefaultHorizonDays bounds history fetched after entry when a scenario
	// does not set one.
	DefaultHorizonDays = 120

	// featureLookbackDays of pre-entry history feed the model exit indicators.
	featureLookbackDays = 90
)

var validate = validator.New()

// Engine runs counterfactual scenarios and optimal-exit searches.
type Engine struct {
	trades   storage.TradeStore
	provider pricefeed.Provider
	scorer   strategy.ProbabilityScorer
	log      *logger.Logger
	now      func() time.Time
	workers  int
}

// Options contains configuration for creating an Engine.
type Options struct {
	Trades   storage.TradeStore
	Provider pricefeed.Provider
	// Scorer enables MODEL_EXIT scenarios. May be nil.
	Scorer  strategy.ProbabilityScorer
	Logger  *logger.Logger
	Workers int // batch concurrency, default 4
}

// NewEngine creates a counterfactual engine.
func NewEngine(opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	return &Engine{
		trades:   opts.Trades,
		provider: opts.Provider,
		scorer:   opts.Scorer,
		log:      log.With(logger.String("component", "counterfactual")),
		now:      time.Now,
		workers:  workers,
	}
}

// RunCounterfactual replays a trade under scenario.
// Steps:
//  1. Load the trade
//  2. Resolve the rule-set, inheriting trade levels when asked
//  3. Build the simulator via strategy.FromConfig
//  4. Fetch daily bars from the price provider
//  5. Simulate and compare with the actual outcome
func (e *Engine) RunCounterfactual(ctx context.Context, tradeID string, scenario domain.Scenario) (*domain.CounterfactualResult, error) {
	started := time.Now()

	if err := validate.Struct(scenario); err != nil {
		return nil, &domain.ValidationError{Field: "scenario", Reason: err.Error(), Err: err}
	}

	trade, err := e.trades.GetByID(ctx, tradeID)
	if err != nil {
		return nil, fmt.Errorf("load trade %s: %w", tradeID, err)
	}

	rules := resolveRules(scenario, trade)
	sim, err := strategy.FromConfig(rules, trade.EntryPrice, e.scorer)
	if err != nil {
		observability.RecordSimulationError("validation")
		return nil, err
	}

	start := trade.EntryDate
	if rules.ModelExitThreshold != nil {
		start = start.AddDate(0, 0, -featureLookbackDays)
	}
	end := e.horizonEnd(trade, scenario.HorizonDays)

	bars, err := e.fetch(ctx, trade.Ticker, start, end)
	if err != nil {
		observability.RecordSimulationError(errorType(err))
		return nil, err
	}

	exit, err := sim.Simulate(ctx, &strategy.Input{
		Ticker:     trade.Ticker,
		Bars:       bars,
		EntryDate:  trade.EntryDate,
		EntryPrice: trade.EntryPrice,
	})
	if err != nil {
		observability.RecordSimulationError(errorType(err))
		return nil, err
	}

	result := buildResult(trade, scenarioName(scenario, sim), exit, rules.StopLoss)
	observability.RecordSimulation(exit.ExitReason, time.Since(started).Seconds())
	e.log.Debug("counterfactual complete",
		logger.String("trade_id", trade.ID),
		logger.String("scenario", result.Scenario),
		logger.String("exit_reason", result.ExitReason),
		logger.Float64("realized_pnl", result.RealizedPnL),
	)
	return result, nil
}

// FindOptimalExit finds the highest high between entry and the end of the
// trade's window: the final exit date for closed trades, otherwise today
// capped at DefaultHorizonDays after entry.
func (e *Engine) FindOptimalExit(ctx context.Context, tradeID string) (*domain.OptimalExitResult, error) {
	trade, err := e.trades.GetByID(ctx, tradeID)
	if err != nil {
		return nil, fmt.Errorf("load trade %s: %w", tradeID, err)
	}

	end := e.horizonEnd(trade, DefaultHorizonDays)
	if trade.IsClosed() && trade.ExitDate != nil {
		end = domain.Day(*trade.ExitDate)
	}

	bars, err := e.fetch(ctx, trade.Ticker, trade.EntryDate, end)
	if err != nil {
		return nil, err
	}
	window := lookup.Window(bars, domain.Day(trade.EntryDate).AddDate(0, 0, 1), end)
	if len(window) == 0 {
		return nil, &domain.DataUnavailableError{
			Ticker: trade.Ticker,
			Reason: fmt.Sprintf("no bars between %s and %s", trade.EntryDate.Format("2006-01-02"), end.Format("2006-01-02")),
		}
	}

	best := window[0]
	for _, b := range window[1:] {
		if b.High > best.High {
			best = b
		}
	}

	maxPnL := pnl(trade.EntryPrice, best.High, trade.EntryShares)
	result := &domain.OptimalExitResult{
		TradeID:        trade.ID,
		BestExitDate:   best.Date,
		BestExitPrice:  best.High,
		MaxPossiblePnL: maxPnL,
		MaxPossibleR:   rMultiple(trade.EntryPrice, best.High, trade.StopLoss),
		WindowEndDate:  window[len(window)-1].Date,
	}

	if trade.IsClosed() && trade.BlendedExitPrice != nil {
		actual := *trade.BlendedExitPrice
		result.ActualExitPrice = &actual
		if best.High > trade.EntryPrice {
			captured := (actual - trade.EntryPrice) / (best.High - trade.EntryPrice) * 100
			result.MFECapturedPct = &captured
		}
		if trade.RealizedPnL != nil {
			gap := maxPnL - *trade.RealizedPnL
			result.GapVsActual = &gap
		}
		if result.MaxPossibleR != nil && trade.RealizedR != nil {
			gapR := *result.MaxPossibleR - *trade.RealizedR
			result.GapVsActualR = &gapR
		}
	}
	return result, nil
}

// horizonEnd returns entry+days, capped at today.
func (e *Engine) horizonEnd(trade *domain.Trade, days int) time.Time {
	if days <= 0 {
		days = DefaultHorizonDays
	}
	end := domain.Day(trade.EntryDate).AddDate(0, 0, days)
	if today := domain.Day(e.now()); end.After(today) {
		end = today
	}
	return end
}

// fetch loads bars, converting exhausted provider retries into
// DataUnavailableError.
func (e *Engine) fetch(ctx context.Context, ticker string, start, end time.Time) ([]domain.PriceBar, error) {
	if end.Before(domain.Day(start)) {
		return nil, &domain.DataUnavailableError{Ticker: ticker, Reason: "entry date is in the future"}
	}
	bars, err := e.provider.GetHistoricalPrices(ctx, ticker, start, end)
	if err != nil {
		var transient *domain.ProviderTransientError
		if errors.As(err, &transient) {
			return nil, &domain.DataUnavailableError{Ticker: ticker, Reason: "price provider unavailable", Err: err}
		}
		return nil, fmt.Errorf("fetch bars for %s: %w", ticker, err)
	}
	return bars, nil
}

// resolveRules fills unset stop and targets from the trade when the scenario
// inherits trade levels.
func resolveRules(scenario domain.Scenario, trade *domain.Trade) domain.ExitRuleConfig {
	rules := scenario.Rules
	if !scenario.InheritTradeLevels {
		return rules
	}
	if rules.StopLoss == nil {
		rules.StopLoss = trade.StopLoss
	}
	if rules.TP1 == nil {
		rules.TP1 = trade.TP1
	}
	if rules.TP2 == nil {
		rules.TP2 = trade.TP2
	}
	if rules.TP3 == nil {
		rules.TP3 = trade.TP3
	}
	return rules
}

func scenarioName(scenario domain.Scenario, sim strategy.Simulator) string {
	if scenario.Name != "" {
		return scenario.Name
	}
	return sim.ID()
}

// buildResult prices a simulated exit for the whole position. R uses the
// trade's own stop so counterfactual and actual R share a denominator; the
// scenario stop is used only when the trade has none.
func buildResult(trade *domain.Trade, name string, exit *domain.SimulatedExit, scenarioStop *float64) *domain.CounterfactualResult {
	stop := trade.StopLoss
	if stop == nil {
		stop = scenarioStop
	}

	result := &domain.CounterfactualResult{
		TradeID:            trade.ID,
		Scenario:           name,
		ExitDate:           exit.ExitDate,
		ExitPrice:          exit.ExitPrice,
		ExitReason:         exit.ExitReason,
		RealizedPnL:        pnl(trade.EntryPrice, exit.ExitPrice, trade.EntryShares),
		RealizedPnLPercent: (exit.ExitPrice - trade.EntryPrice) / trade.EntryPrice * 100,
		RealizedR:          rMultiple(trade.EntryPrice, exit.ExitPrice, stop),
		HoldingDays:        domain.CalendarDaysBetween(trade.EntryDate, exit.ExitDate),
	}

	if trade.IsClosed() && trade.RealizedPnL != nil {
		diff := result.RealizedPnL - *trade.RealizedPnL
		result.ImprovementVsActual = &diff
		if result.RealizedR != nil && trade.RealizedR != nil {
			diffR := *result.RealizedR - *trade.RealizedR
			result.ImprovementVsActualR = &diffR
		}
	}
	return result
}

func pnl(entry, exit float64, shares int64) float64 {
	v, _ := decimal.NewFromFloat(exit).
		Sub(decimal.NewFromFloat(entry)).
		Mul(decimal.NewFromInt(shares)).
		Float64()
	return v
}

func rMultiple(entry, exit float64, stop *float64) *float64 {
	if stop == nil || *stop >= entry {
		return nil
	}
	r := (exit - entry) / (entry - *stop)
	return &r
}

func errorType(err error) string {
	var (
		validation  *domain.ValidationError
		unavailable *domain.DataUnavailableError
	)
	switch {
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &unavailable):
		return "data_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
