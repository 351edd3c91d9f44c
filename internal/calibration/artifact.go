package calibration

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	json "github.com/bytedance/sonic"

	"trade-outcome-lab/internal/domain"
)

var (
	ErrProbabilityOutOfRange = errors.New("probability must be within [0, 100]")
	ErrInvalidLabel          = errors.New("label must be 0 or 1")
)

// Artifact bundles every fitted calibrator with before/after evaluations.
type Artifact struct {
	FittedAt    time.Time                    `json:"fitted_at"`
	NumSamples  int                          `json:"num_samples"`
	Platt       domain.PlattParameters       `json:"platt"`
	Isotonic    domain.IsotonicModel         `json:"isotonic"`
	Temperature domain.TemperatureParameters `json:"temperature"`
	Weights     EnsembleWeights              `json:"ensemble_weights"`
	Raw         domain.CalibrationEvaluation `json:"raw"`
	Calibrated  domain.CalibrationEvaluation `json:"calibrated"`
}

// Calibrate applies the ensemble of the artifact to a percent probability.
func (a *Artifact) Calibrate(probability float64) float64 {
	return EnsembleCalibrate(a.Platt, a.Isotonic, probability, a.Weights)
}

// Calibration methods reported by MethodEvaluations.
const (
	MethodRaw         = "raw"
	MethodPlatt       = "platt"
	MethodIsotonic    = "isotonic"
	MethodTemperature = "temperature"
	MethodEnsemble    = "ensemble"
)

// MethodEvaluation is the evaluation of one calibrator on a sample set.
type MethodEvaluation struct {
	Method     string
	Evaluation domain.CalibrationEvaluation
}

// MethodEvaluations evaluates every fitted calibrator on samples.
func (a *Artifact) MethodEvaluations(samples []domain.CalibrationSample) []MethodEvaluation {
	return []MethodEvaluation{
		{MethodRaw, EvaluateCalibration(samples)},
		{MethodPlatt, evaluateWith(samples, func(p float64) float64 { return PlattCalibrate(a.Platt, p) })},
		{MethodIsotonic, evaluateWith(samples, func(p float64) float64 { return IsotonicCalibrate(a.Isotonic, p) })},
		{MethodTemperature, evaluateWith(samples, func(p float64) float64 { return TemperatureCalibrate(a.Temperature, p) })},
		{MethodEnsemble, evaluateWith(samples, a.Calibrate)},
	}
}

// FitOptions configures Fit.
type FitOptions struct {
	Platt   PlattOptions    `yaml:"platt"`
	Weights EnsembleWeights `yaml:"ensemble_weights"`
}

// ValidateSamples rejects probabilities outside [0,100] and non-binary labels.
func ValidateSamples(samples []domain.CalibrationSample) error {
	for i, s := range samples {
		if s.Probability < 0 || s.Probability > 100 || math.IsNaN(s.Probability) {
			return domain.NewValidationError(fmt.Sprintf("samples[%d].probability", i), ErrProbabilityOutOfRange)
		}
		if s.Label != 0 && s.Label != 1 {
			return domain.NewValidationError(fmt.Sprintf("samples[%d].label", i), ErrInvalidLabel)
		}
	}
	return nil
}

// Fit validates samples and fits Platt, isotonic and temperature calibrators.
func Fit(samples []domain.CalibrationSample, opts FitOptions, now time.Time) (*Artifact, error) {
	if err := ValidateSamples(samples); err != nil {
		return nil, err
	}
	if opts.Weights.Platt == 0 && opts.Weights.Isotonic == 0 {
		opts.Weights = DefaultEnsembleWeights()
	}

	a := &Artifact{
		FittedAt:    now.UTC(),
		NumSamples:  len(samples),
		Platt:       FitPlatt(samples, opts.Platt),
		Isotonic:    FitIsotonic(samples),
		Temperature: FindOptimalTemperature(samples),
		Weights:     opts.Weights,
		Raw:         EvaluateCalibration(samples),
	}
	a.Calibrated = evaluateWith(samples, a.Calibrate)
	return a, nil
}

// SaveArtifact writes a as indented JSON, creating parent directories.
func SaveArtifact(path string, a *Artifact) error {
	data, err := json.ConfigStd.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("encode calibration artifact: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write calibration artifact: %w", err)
	}
	return nil
}

// LoadArtifact reads an artifact written by SaveArtifact.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ConfigurationError{
			Setting:     "calibration.artifact_path",
			Remediation: "run cmd/calibrate to produce the artifact",
			Err:         err,
		}
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, &domain.ConfigurationError{Setting: "calibration.artifact_path", Err: err}
	}
	if len(a.Isotonic.X) != len(a.Isotonic.Y) {
		return nil, &domain.ConfigurationError{
			Setting: "calibration.artifact_path",
			Err:     fmt.Errorf("isotonic table has %d x and %d y values", len(a.Isotonic.X), len(a.Isotonic.Y)),
		}
	}
	return &a, nil
}
