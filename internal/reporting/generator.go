package reporting

import (
	"context"
	"fmt"
	"time"

	"trade-outcome-lab/internal/calibration"
	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/drift"
	"trade-outcome-lab/internal/metrics"
)

// Generator produces calibration reports from the drift monitor.
type Generator struct {
	monitor *drift.Monitor
	now     func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(monitor *drift.Monitor) *Generator {
	return &Generator{
		monitor: monitor,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Input carries what a report is generated from.
type Input struct {
	Artifact     *calibration.Artifact
	Samples      []domain.CalibrationSample
	Matched      []domain.MatchedTrade
	ModelVersion string
	From, To     *time.Time
	// CurrentThreshold is a fraction; nil uses the monitor default.
	CurrentThreshold *float64
	Improvements     []*metrics.ImprovementSummary
}

// Generate assembles a report for in.
func (g *Generator) Generate(ctx context.Context, in Input) (*Report, error) {
	if in.Artifact == nil {
		return nil, fmt.Errorf("generate report: nil artifact")
	}

	cm, err := g.monitor.GetCalibrationMetrics(ctx, in.From, in.To)
	if err != nil {
		return nil, fmt.Errorf("calibration metrics: %w", err)
	}
	threshold, err := g.monitor.GetThresholdRecommendation(ctx, in.CurrentThreshold)
	if err != nil {
		return nil, fmt.Errorf("threshold recommendation: %w", err)
	}

	return &Report{
		GeneratedAt:  g.now(),
		FittedAt:     in.Artifact.FittedAt,
		ModelVersion: in.ModelVersion,
		DataSummary:  summarize(cm, in),
		Methods:      methodRows(in.Artifact.MethodEvaluations(in.Samples)),
		Reliability:  reliabilityRows(in.Artifact.Raw, in.Artifact.Calibrated),
		Buckets:      cm.Buckets,
		Threshold:    threshold,
		Improvements: in.Improvements,
	}, nil
}

func summarize(cm *domain.CalibrationMetrics, in Input) DataSummary {
	ds := DataSummary{
		TotalTrades:   cm.TotalTrades,
		MatchedTrades: cm.MatchedTrades,
		MatchRate:     cm.MatchRate,
		WeightedError: cm.WeightedError,
		From:          in.From,
		To:            in.To,
	}
	for i, m := range in.Matched {
		if m.ExactMatch {
			ds.ExactMatches++
		}
		if i == 0 || m.ExitDate.Before(ds.FirstExit) {
			ds.FirstExit = m.ExitDate
		}
		if m.ExitDate.After(ds.LastExit) {
			ds.LastExit = m.ExitDate
		}
	}
	return ds
}

func methodRows(evals []calibration.MethodEvaluation) []MethodRow {
	rows := make([]MethodRow, len(evals))
	for i, e := range evals {
		rows[i] = MethodRow{
			Method:  e.Method,
			ECE:     e.Evaluation.ECE,
			MCE:     e.Evaluation.MCE,
			Brier:   e.Evaluation.Brier,
			Samples: e.Evaluation.NumSamples,
		}
	}
	return rows
}

func reliabilityRows(raw, calibrated domain.CalibrationEvaluation) []ReliabilityRow {
	rows := make([]ReliabilityRow, len(raw.Bins))
	for i, b := range raw.Bins {
		rows[i] = ReliabilityRow{
			Lower:        b.Lower,
			Upper:        b.Upper,
			RawCount:     b.Count,
			RawPredicted: b.MeanPredicted,
			RawActual:    b.MeanActual,
		}
		if i < len(calibrated.Bins) {
			c := calibrated.Bins[i]
			rows[i].CalibratedCount = c.Count
			rows[i].CalibratedPredicted = c.MeanPredicted
			rows[i].CalibratedActual = c.MeanActual
		}
	}
	return rows
}
