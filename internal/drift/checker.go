package drift

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/logger"
	"trade-outcome-lab/internal/observability"
	"trade-outcome-lab/internal/storage"
)

// Alert is published when a scheduled check detects drift.
type Alert struct {
	RunID        string                `json:"run_id"`
	DetectedAt   time.Time             `json:"detected_at"`
	ModelVersion string                `json:"model_version,omitempty"`
	Detection    domain.DriftDetection `json:"detection"`
}

// AlertPublisher delivers drift alerts to operators.
type AlertPublisher interface {
	PublishDriftAlert(ctx context.Context, alert Alert) error
}

// Checker runs drift detection on a schedule, records every run and
// publishes an alert when drift is found.
type Checker struct {
	monitor      *Monitor
	runs         storage.CalibrationRunStore
	publisher    AlertPublisher // optional
	modelVersion string
	log          *logger.Logger
	now          func() time.Time
}

// NewChecker creates a checker. publisher may be nil.
func NewChecker(monitor *Monitor, runs storage.CalibrationRunStore, publisher AlertPublisher, modelVersion string, log *logger.Logger) *Checker {
	if log == nil {
		log = logger.Nop()
	}
	return &Checker{
		monitor:      monitor,
		runs:         runs,
		publisher:    publisher,
		modelVersion: modelVersion,
		log:          log.With(logger.String("component", "drift_checker")),
		now:          time.Now,
	}
}

// CheckOnce runs one drift check over the default windows and stores it.
// A failed alert publish is logged and does not fail the check.
func (c *Checker) CheckOnce(ctx context.Context) (*domain.CalibrationRun, error) {
	d, err := c.monitor.DetectDrift(ctx, 0)
	if err != nil {
		return nil, err
	}

	run := &domain.CalibrationRun{
		RunID:         uuid.NewString(),
		Kind:          domain.CalibrationRunDrift,
		CreatedAt:     c.now().UTC(),
		TradeCount:    d.RecentTradeCount + d.HistoricalTradeCount,
		WeightedError: d.RecentWeightedError,
		ErrorDelta:    d.ErrorDelta,
		DriftDetected: d.DriftDetected,
		ModelVersion:  c.modelVersion,
	}
	if err := c.runs.Insert(ctx, run); err != nil {
		return nil, fmt.Errorf("store calibration run: %w", err)
	}

	if d.DriftDetected && c.publisher != nil {
		alert := Alert{RunID: run.RunID, DetectedAt: run.CreatedAt, ModelVersion: c.modelVersion, Detection: *d}
		if err := c.publisher.PublishDriftAlert(ctx, alert); err != nil {
			observability.RecordDriftAlert("error")
			c.log.Error("publish drift alert failed", logger.String("run_id", run.RunID), logger.Error(err))
		} else {
			observability.RecordDriftAlert("ok")
			c.log.Warn("calibration drift detected",
				logger.String("run_id", run.RunID),
				logger.String("recommendation", d.Recommendation),
			)
		}
	}
	return run, nil
}

// Run calls CheckOnce every interval until ctx is done. Check errors are
// logged and the loop continues.
func (c *Checker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := c.CheckOnce(ctx); err != nil && ctx.Err() == nil {
			c.log.Error("drift check failed", logger.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
