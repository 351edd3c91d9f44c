package calibration

import "trade-outcome-lab/internal/domain"

// EnsembleWeights blend Platt and isotonic outputs.
type EnsembleWeights struct {
	Platt    float64 `json:"platt" yaml:"platt" default:"0.5" validate:"gte=0"`
	Isotonic float64 `json:"isotonic" yaml:"isotonic" default:"0.5" validate:"gte=0"`
}

// DefaultEnsembleWeights is an equal blend.
func DefaultEnsembleWeights() EnsembleWeights {
	return EnsembleWeights{Platt: 0.5, Isotonic: 0.5}
}

// EnsembleCalibrate returns the weighted blend of the Platt and isotonic
// outputs. Weights are normalized by their sum; a non-positive sum falls back
// to the equal blend.
func EnsembleCalibrate(platt domain.PlattParameters, iso domain.IsotonicModel, probability float64, w EnsembleWeights) float64 {
	total := w.Platt + w.Isotonic
	if w.Platt < 0 || w.Isotonic < 0 || total <= 0 {
		w = DefaultEnsembleWeights()
		total = 1
	}
	pp := PlattCalibrate(platt, probability)
	ip := IsotonicCalibrate(iso, probability)
	return (w.Platt*pp + w.Isotonic*ip) / total
}
