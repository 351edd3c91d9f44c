// Package api exposes trade lifecycle, counterfactual, exit-signal and
// calibration operations over HTTP.
package api

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"trade-outcome-lab/internal/counterfactual"
	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/drift"
	"trade-outcome-lab/internal/features"
	"trade-outcome-lab/internal/lifecycle"
	"trade-outcome-lab/internal/logger"
	"trade-outcome-lab/internal/lookup"
	"trade-outcome-lab/internal/observability"
	"trade-outcome-lab/internal/pricefeed"
	"trade-outcome-lab/internal/storage"
)

// featureLookbackDays of history before entry feed the exit-signal indicators.
const featureLookbackDays = 90

// ExitScorer scores a feature vector against a threshold.
type ExitScorer interface {
	GenerateExitSignal(v domain.FeatureVector, threshold float64) domain.ExitSignal
	Version() string
}

// ProbabilityCalibrator maps a raw percent probability to a calibrated one.
type ProbabilityCalibrator interface {
	Calibrate(probability float64) float64
}

// Deps are the services behind the handlers.
type Deps struct {
	Lifecycle      *lifecycle.Service
	Counterfactual *counterfactual.Engine
	Monitor        *drift.Monitor
	// Scorer is nil when no model is loaded; exit-signal requests then fail
	// with a configuration error.
	Scorer        ExitScorer
	Calibrator    ProbabilityCalibrator // optional
	Prices        pricefeed.Provider
	Predictions   storage.PredictionLogStore
	ExitThreshold float64
	Logger        *logger.Logger
}

// Handler implements the HTTP routes.
type Handler struct {
	deps Deps
	log  *logger.Logger
	now  func() time.Time
}

// NewHandler creates a handler.
func NewHandler(deps Deps) *Handler {
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}
	if deps.ExitThreshold <= 0 {
		deps.ExitThreshold = 0.6
	}
	return &Handler{
		deps: deps,
		log:  log.With(logger.String("component", "api")),
		now:  time.Now,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")

	g.POST("/trades", h.OpenTrade)
	g.GET("/trades/:id", h.GetTrade)
	g.POST("/trades/:id/exits", h.RecordExit)
	g.POST("/trades/:id/excursions", h.UpdateExcursion)
	g.POST("/trades/:id/amend", h.AmendTrade)

	g.POST("/trades/:id/counterfactual", h.RunCounterfactual)
	g.POST("/trades/counterfactual/batch", h.RunCounterfactualBatch)
	g.GET("/trades/:id/optimal-exit", h.FindOptimalExit)

	g.POST("/exit-signal", h.ExitSignal)
	g.POST("/predictions", h.RecordPredictions)

	g.GET("/calibration/metrics", h.CalibrationMetrics)
	g.GET("/calibration/drift", h.Drift)
	g.GET("/calibration/threshold", h.Threshold)
}

// fail logs unexpected errors and writes the mapped response.
func (h *Handler) fail(c echo.Context, op string, err error) error {
	if status, _ := classify(err); status >= 500 {
		h.log.Error(op+" failed", logger.String("route", c.Path()), logger.Error(err))
	}
	return ErrorResponse(c, err)
}

func (h *Handler) OpenTrade(c echo.Context) error {
	req := &OpenTradeRequest{}
	if verr := ReadAndValidateRequest(c, req); verr != nil {
		return BadRequestResponse(c, verr)
	}

	t, err := h.deps.Lifecycle.OpenTrade(c.Request().Context(), lifecycle.OpenRequest{
		User:        req.User,
		Ticker:      req.Ticker,
		EntryDate:   parseDate(req.EntryDate),
		EntryPrice:  req.EntryPrice,
		EntryShares: req.EntryShares,
		StopLoss:    req.StopLoss,
		TP1:         req.TP1,
		TP2:         req.TP2,
		TP3:         req.TP3,
	})
	if err != nil {
		return h.fail(c, "open trade", err)
	}
	return CreatedResponse(c, toTradeView(t))
}

func (h *Handler) GetTrade(c echo.Context) error {
	req := &TradeIDParam{}
	if verr := ReadAndValidateRequest(c, req); verr != nil {
		return BadRequestResponse(c, verr)
	}
	t, err := h.deps.Lifecycle.GetTrade(c.Request().Context(), req.ID)
	if err != nil {
		return h.fail(c, "get trade", err)
	}
	return SuccessResponse(c, toTradeView(t))
}

func (h *Handler) RecordExit(c echo.Context) error {
	req := &ExitRequest{}
	if verr := ReadAndValidateRequest(c, req); verr != nil {
		return BadRequestResponse(c, verr)
	}
	t, err := h.deps.Lifecycle.RecordExit(c.Request().Context(), req.ID, lifecycle.ExitRequest{
		Date:   parseDate(req.Date),
		Price:  req.Price,
		Shares: req.Shares,
		Reason: strings.ToUpper(req.Reason),
	})
	if err != nil {
		return h.fail(c, "record exit", err)
	}
	return SuccessResponse(c, toTradeView(t))
}

func (h *Handler) UpdateExcursion(c echo.Context) error {
	req := &ExcursionRequest{}
	if verr := ReadAndValidateRequest(c, req); verr != nil {
		return BadRequestResponse(c, verr)
	}
	t, err := h.deps.Lifecycle.UpdateExcursion(c.Request().Context(), req.ID, parseDate(req.Date), req.High, req.Low)
	if err != nil {
		return h.fail(c, "update excursion", err)
	}
	return SuccessResponse(c, toTradeView(t))
}

func (h *Handler) AmendTrade(c echo.Context) error {
	req := &AmendRequest{}
	if verr := ReadAndValidateRequest(c, req); verr != nil {
		return BadRequestResponse(c, verr)
	}
	t, err := h.deps.Lifecycle.AmendClosedTrade(c.Request().Context(), req.ID, lifecycle.AmendRequest{
		ExitIndex: req.ExitIndex,
		Price:     req.Price,
		Actor:     req.Actor,
		Note:      req.Note,
	})
	if err != nil {
		return h.fail(c, "amend trade", err)
	}
	return SuccessResponse(c, toTradeView(t))
}

func (h *Handler) RunCounterfactual(c echo.Context) error {
	req := &CounterfactualRequest{}
	if verr := ReadAndValidateRequest(c, req); verr != nil {
		return BadRequestResponse(c, verr)
	}
	res, err := h.deps.Counterfactual.RunCounterfactual(c.Request().Context(), req.ID, req.toScenario())
	if err != nil {
		return h.fail(c, "counterfactual", err)
	}
	return SuccessResponse(c, res)
}

func (h *Handler) RunCounterfactualBatch(c echo.Context) error {
	req := &BatchCounterfactualRequest{}
	if verr := ReadAndValidateRequest(c, req); verr != nil {
		return BadRequestResponse(c, verr)
	}

	results, failures := h.deps.Counterfactual.RunBatch(c.Request().Context(), req.TradeIDs, req.Scenario.toScenario())
	resp := BatchCounterfactualResponse{
		Results: results,
		Errors: lo.Map(failures, func(f counterfactual.BatchError, _ int) BatchErrorBody {
			_, detail := classify(f.Err)
			msg := detail.Message
			if detail.Code == "ERR_INTERNAL" {
				msg = f.Err.Error()
			}
			return BatchErrorBody{TradeID: f.TradeID, Code: detail.Code, Message: msg}
		}),
	}
	if resp.Results == nil {
		resp.Results = []*domain.CounterfactualResult{}
	}
	if resp.Errors == nil {
		resp.Errors = []BatchErrorBody{}
	}
	return SuccessResponse(c, resp)
}

func (h *Handler) FindOptimalExit(c echo.Context) error {
	req := &TradeIDParam{}
	if verr := ReadAndValidateRequest(c, req); verr != nil {
		return BadRequestResponse(c, verr)
	}
	res, err := h.deps.Counterfactual.FindOptimalExit(c.Request().Context(), req.ID)
	if err != nil {
		return h.fail(c, "optimal exit", err)
	}
	return SuccessResponse(c, res)
}

func (h *Handler) ExitSignal(c echo.Context) error {
	req := &ExitSignalRequest{}
	if verr := ReadAndValidateRequest(c, req); verr != nil {
		return BadRequestResponse(c, verr)
	}
	signal, err := h.exitSignal(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, "exit signal", err)
	}
	return SuccessResponse(c, signal)
}

func (h *Handler) exitSignal(ctx context.Context, req *ExitSignalRequest) (*domain.ExitSignal, error) {
	if h.deps.Scorer == nil {
		return nil, &domain.ConfigurationError{
			Setting:     "model.path",
			Remediation: "re-run training with cmd/train and restart",
			Err:         errors.New("no exit model loaded"),
		}
	}

	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))
	entry := parseDate(req.EntryDate)
	asOf := domain.Day(h.now())
	if req.AsOf != "" {
		asOf = parseDate(req.AsOf)
	}
	if asOf.Before(entry) {
		return nil, &domain.ValidationError{Field: "as_of", Reason: "as_of must not precede entry_date"}
	}

	bars, err := h.deps.Prices.GetHistoricalPrices(ctx, ticker, entry.AddDate(0, 0, -featureLookbackDays), asOf)
	if err != nil {
		return nil, err
	}
	idx := lookup.IndexAtOrBefore(bars, asOf)
	if idx < 0 || bars[idx].Date.Before(entry) {
		return nil, &domain.DataUnavailableError{Ticker: ticker, Reason: "no bars between entry and evaluation date"}
	}

	v, err := features.Extract(features.Input{
		Bars:       bars,
		EntryDate:  entry,
		EntryPrice: req.EntryPrice,
		StopLoss:   req.StopLoss,
		EvalIndex:  idx,
	})
	if err != nil {
		return nil, &domain.ValidationError{Field: "features", Reason: err.Error(), Err: err}
	}

	threshold := h.deps.ExitThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	signal := h.deps.Scorer.GenerateExitSignal(v, threshold)
	if h.deps.Calibrator != nil {
		calibrated := h.deps.Calibrator.Calibrate(signal.ExitProbability*100) / 100
		signal.CalibratedProbability = &calibrated
	}
	observability.RecordExitSignal(signal.ShouldExit, signal.ExitProbability)
	return &signal, nil
}

func (h *Handler) RecordPredictions(c echo.Context) error {
	req := &PredictionsRequest{}
	if verr := ReadAndValidateRequest(c, req); verr != nil {
		return BadRequestResponse(c, verr)
	}

	logs := lo.Map(req.Predictions, func(p PredictionBody, _ int) *domain.PredictionLog {
		return &domain.PredictionLog{
			ID:           uuid.NewString(),
			Ticker:       strings.ToUpper(strings.TrimSpace(p.Ticker)),
			Date:         parseDate(p.Date),
			Probability:  p.Probability,
			ModelVersion: p.ModelVersion,
		}
	})
	if err := h.deps.Predictions.InsertBulk(c.Request().Context(), logs); err != nil {
		return h.fail(c, "record predictions", err)
	}
	return CreatedResponse(c, map[string]int{"inserted": len(logs)})
}

func (h *Handler) CalibrationMetrics(c echo.Context) error {
	req := &CalibrationMetricsQuery{}
	if verr := ReadAndValidateRequest(c, req); verr != nil {
		return BadRequestResponse(c, verr)
	}
	res, err := h.deps.Monitor.GetCalibrationMetrics(c.Request().Context(), parseOptionalDate(req.From), parseOptionalDate(req.To))
	if err != nil {
		return h.fail(c, "calibration metrics", err)
	}
	return SuccessResponse(c, res)
}

func (h *Handler) Drift(c echo.Context) error {
	req := &DriftQuery{}
	if verr := ReadAndValidateRequest(c, req); verr != nil {
		return BadRequestResponse(c, verr)
	}
	res, err := h.deps.Monitor.DetectDrift(c.Request().Context(), req.Days)
	if err != nil {
		return h.fail(c, "drift", err)
	}
	return SuccessResponse(c, res)
}

func (h *Handler) Threshold(c echo.Context) error {
	req := &ThresholdQuery{}
	if verr := ReadAndValidateRequest(c, req); verr != nil {
		return BadRequestResponse(c, verr)
	}
	var current *float64
	if req.Current != "" {
		v, err := strconv.ParseFloat(req.Current, 64)
		if err != nil {
			return BadRequestResponse(c, []ErrorDetail{{Code: "ERR_NUMERIC", Field: "current", Message: "current must be a number"}})
		}
		current = &v
	}
	res, err := h.deps.Monitor.GetThresholdRecommendation(c.Request().Context(), current)
	if err != nil {
		return h.fail(c, "threshold", err)
	}
	return SuccessResponse(c, res)
}
