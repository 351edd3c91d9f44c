package calibration

import (
	"math"

	"trade-outcome-lab/internal/domain"
)

const numBins = 10

// EvaluateCalibration buckets predictions into deciles and reports ECE, MCE
// and the Brier score. All ten bins are returned; empty bins have Count 0 and
// do not contribute to ECE or MCE.
func EvaluateCalibration(samples []domain.CalibrationSample) domain.CalibrationEvaluation {
	return evaluateWith(samples, func(p float64) float64 { return p })
}

// evaluateWith evaluates samples after mapping each probability through f.
func evaluateWith(samples []domain.CalibrationSample, f func(float64) float64) domain.CalibrationEvaluation {
	bins := make([]domain.ReliabilityBin, numBins)
	for i := range bins {
		bins[i].Lower = float64(i) / numBins
		bins[i].Upper = float64(i+1) / numBins
	}

	var (
		sumPred = make([]float64, numBins)
		sumAct  = make([]float64, numBins)
		brier   float64
	)
	for _, s := range samples {
		p := clampPercent(f(s.Probability)) / 100
		y := 0.0
		if s.Label == 1 {
			y = 1
		}
		idx := int(p * numBins)
		if idx >= numBins {
			idx = numBins - 1
		}
		bins[idx].Count++
		sumPred[idx] += p
		sumAct[idx] += y
		brier += (p - y) * (p - y)
	}

	eval := domain.CalibrationEvaluation{Bins: bins, NumSamples: len(samples)}
	if len(samples) == 0 {
		return eval
	}

	n := float64(len(samples))
	for i := range bins {
		if bins[i].Count == 0 {
			continue
		}
		c := float64(bins[i].Count)
		bins[i].MeanPredicted = sumPred[i] / c
		bins[i].MeanActual = sumAct[i] / c
		gap := math.Abs(bins[i].MeanPredicted - bins[i].MeanActual)
		eval.ECE += c / n * gap
		if gap > eval.MCE {
			eval.MCE = gap
		}
	}
	eval.Brier = brier / n
	return eval
}
