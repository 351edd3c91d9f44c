package domain

import "time"

// PredictionLog is a probability emitted for a ticker on a date.
type PredictionLog struct {
	ID           string    `json:"id"`
	Ticker       string    `json:"ticker"`
	Date         time.Time `json:"date"`
	Probability  float64   `json:"probability"` // percent, [0,100]
	ModelVersion string    `json:"model_version"`
}

// CalibrationBucket compares predicted and realized win rates for a
// probability range [Min, Max).
type CalibrationBucket struct {
	Min              float64 `json:"min"`
	Max              float64 `json:"max"`
	TradeCount       int     `json:"trade_count"`
	ExpectedWinRate  float64 `json:"expected_win_rate"`
	ActualWinRate    float64 `json:"actual_win_rate"`
	CalibrationError float64 `json:"calibration_error"`
	IsOverconfident  bool    `json:"is_overconfident"`
	IsUnderconfident bool    `json:"is_underconfident"`
}

// IsotonicModel is a monotone lookup table. X is ascending and Y is
// non-decreasing; both are percentages.
type IsotonicModel struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}

// PlattParameters define p = 1/(1+exp(A*x+B)).
type PlattParameters struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

// TemperatureParameters divide the logit before the sigmoid.
type TemperatureParameters struct {
	T float64 `json:"t"`
}

// CalibrationSample is one (predicted probability, outcome) pair.
type CalibrationSample struct {
	Probability float64 // percent, [0,100]
	Label       int     // 0 or 1
}

// MatchedTrade joins a closed trade with the prediction issued for it.
type MatchedTrade struct {
	TradeID     string
	Ticker      string
	ExitDate    time.Time
	EntryDate   time.Time
	Probability float64
	Win         bool
	ExactMatch  bool
}

// DriftDetection compares recent and historical calibration.
type DriftDetection struct {
	DriftDetected           bool                `json:"drift_detected"`
	RecentWeightedError     float64             `json:"recent_weighted_error"`
	HistoricalWeightedError float64             `json:"historical_weighted_error"`
	ErrorDelta              float64             `json:"error_delta"`
	RecentTradeCount        int                 `json:"recent_trade_count"`
	HistoricalTradeCount    int                 `json:"historical_trade_count"`
	RecentBuckets           []CalibrationBucket `json:"recent_buckets"`
	HistoricalBuckets       []CalibrationBucket `json:"historical_buckets"`
	Recommendation          string              `json:"recommendation"`
}

// ThresholdRecommendation suggests a minimum acceptance probability.
type ThresholdRecommendation struct {
	CurrentThreshold     float64 `json:"current_threshold"`
	RecommendedThreshold float64 `json:"recommended_threshold"`
	Confidence           string  `json:"confidence"`
	MatchedTrades        int     `json:"matched_trades"`
	Reason               string  `json:"reason"`
}

// CalibrationMetrics is the bucketed calibration report for a date range.
type CalibrationMetrics struct {
	From          *time.Time          `json:"from,omitempty"`
	To            *time.Time          `json:"to,omitempty"`
	Buckets       []CalibrationBucket `json:"buckets"`
	TotalTrades   int                 `json:"total_trades"`
	MatchedTrades int                 `json:"matched_trades"`
	MatchRate     float64             `json:"match_rate"`
	WeightedError float64             `json:"weighted_error"`
}

// ReliabilityBin is one decile of an evaluation.
type ReliabilityBin struct {
	Lower         float64 `json:"lower"`
	Upper         float64 `json:"upper"`
	Count         int     `json:"count"`
	MeanPredicted float64 `json:"mean_predicted"` // fraction
	MeanActual    float64 `json:"mean_actual"`
}

// CalibrationEvaluation summarizes calibration quality.
type CalibrationEvaluation struct {
	Bins       []ReliabilityBin `json:"bins"`
	ECE        float64          `json:"ece"`
	MCE        float64          `json:"mce"`
	Brier      float64          `json:"brier"`
	NumSamples int              `json:"num_samples"`
}

// Calibration run kinds.
const (
	CalibrationRunDrift = "drift"
	CalibrationRunFit   = "fit"
)

// CalibrationRun is a persisted point-in-time calibration measurement.
type CalibrationRun struct {
	RunID         string
	Kind          string
	CreatedAt     time.Time
	TradeCount    int
	WeightedError float64
	ErrorDelta    float64
	DriftDetected bool
	ECE           float64
	MCE           float64
	Brier         float64
	ModelVersion  string
}
