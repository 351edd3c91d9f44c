// Package calibration fits and applies probability calibrators.
//
// All calibrators take and return probabilities on the percent scale [0,100].
package calibration

import (
	"math"

	"github.com/creasty/defaults"

	"trade-outcome-lab/internal/domain"
)

// PlattOptions controls the gradient descent of FitPlatt.
type PlattOptions struct {
	Iterations   int     `yaml:"iterations" default:"1000" validate:"gt=0"`
	LearningRate float64 `yaml:"learning_rate" default:"0.01" validate:"gt=0"`
}

// DefaultPlattOptions returns 1000 iterations at learning rate 0.01.
// MustSet panics only on a malformed default tag on PlattOptions.
func DefaultPlattOptions() PlattOptions {
	var o PlattOptions
	defaults.MustSet(&o)
	return o
}

// FitPlatt fits p = 1/(1+exp(A*x+B)) with x = probability/100.
//
// Targets are Bayesian-smoothed: positives aim at (P+1)/(P+2), negatives at
// 1/(N+2). B starts at the smoothed prior log-odds so the first iteration
// already predicts the base rate. Empty input returns {A:1, B:0}.
func FitPlatt(samples []domain.CalibrationSample, opts PlattOptions) domain.PlattParameters {
	if len(samples) == 0 {
		return domain.PlattParameters{A: 1, B: 0}
	}
	if opts.Iterations <= 0 || opts.LearningRate <= 0 {
		opts = DefaultPlattOptions()
	}

	var pos, neg float64
	for _, s := range samples {
		if s.Label == 1 {
			pos++
		} else {
			neg++
		}
	}
	targetPos := (pos + 1) / (pos + 2)
	targetNeg := 1 / (neg + 2)

	x := make([]float64, len(samples))
	t := make([]float64, len(samples))
	for i, s := range samples {
		x[i] = clampPercent(s.Probability) / 100
		if s.Label == 1 {
			t[i] = targetPos
		} else {
			t[i] = targetNeg
		}
	}

	a := 0.0
	b := math.Log((neg + 1) / (pos + 1))
	n := float64(len(samples))

	for iter := 0; iter < opts.Iterations; iter++ {
		var gradA, gradB float64
		for i := range x {
			p := 1 / (1 + math.Exp(a*x[i]+b))
			// d(NLL)/dz for z = a*x+b is (t - p).
			d := t[i] - p
			gradA += d * x[i]
			gradB += d
		}
		a -= opts.LearningRate * gradA / n
		b -= opts.LearningRate * gradB / n
	}

	return domain.PlattParameters{A: a, B: b}
}

// PlattCalibrate maps a percent probability through fitted Platt parameters.
func PlattCalibrate(params domain.PlattParameters, probability float64) float64 {
	x := clampPercent(probability) / 100
	return 100 / (1 + math.Exp(params.A*x+params.B))
}

func clampPercent(p float64) float64 {
	switch {
	case math.IsNaN(p):
		return 0
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
