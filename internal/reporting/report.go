package reporting

import (
	"time"

	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/metrics"
)

// Report is the calibration report written next to a fitted artifact.
type Report struct {
	GeneratedAt  time.Time
	FittedAt     time.Time
	ModelVersion string

	DataSummary DataSummary

	// One row per calibration method, raw first.
	Methods []MethodRow

	// Decile reliability, raw vs ensemble.
	Reliability []ReliabilityRow

	// 5pp win-rate buckets over matched trades.
	Buckets []domain.CalibrationBucket

	Threshold *domain.ThresholdRecommendation

	// Counterfactual scenario summaries, when a batch run is included.
	Improvements []*metrics.ImprovementSummary
}

// DataSummary describes the trades behind the report.
type DataSummary struct {
	TotalTrades   int
	MatchedTrades int
	MatchRate     float64
	ExactMatches  int
	WeightedError float64
	From          *time.Time
	To            *time.Time
	// Exit date range of matched trades.
	FirstExit time.Time
	LastExit  time.Time
}

type MethodRow struct {
	Method  string
	ECE     float64
	MCE     float64
	Brier   float64
	Samples int
}

// ReliabilityRow is one decile under the raw and the calibrated binning.
type ReliabilityRow struct {
	Lower float64
	Upper float64

	RawCount     int
	RawPredicted float64
	RawActual    float64

	CalibratedCount     int
	CalibratedPredicted float64
	CalibratedActual    float64
}
