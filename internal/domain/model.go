package domain

import "time"

// ModelCoefficients is a trained logistic exit model.
// Immutable after load; shared read-only across goroutines.
type ModelCoefficients struct {
	Intercept          float64
	Weights            FeatureVector
	Means              FeatureVector
	Stds               FeatureVector
	Active             [NumFeatures]bool // slots present in the serialized weights
	Version            string
	TrainedAt          time.Time
	TrainingSamples    int
	ValidationAccuracy float64
	Metrics            map[string]float64
}

// ExitSignal is the scored recommendation for an open position.
type ExitSignal struct {
	ShouldExit      bool    `json:"should_exit"`
	ExitProbability float64 `json:"exit_probability"`
	// CalibratedProbability is set when a calibration artifact is loaded.
	CalibratedProbability *float64 `json:"calibrated_probability,omitempty"`
	Confidence            string   `json:"confidence"`
	Reasons               []string `json:"reasons"`
}

// Signal confidence labels.
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)
