package calibration

import (
	"math"

	"trade-outcome-lab/internal/domain"
)

const probEpsilon = 1e-6

func logit(p float64) float64 {
	p = math.Min(math.Max(p, probEpsilon), 1-probEpsilon)
	return math.Log(p / (1 - p))
}

// TemperatureCalibrate divides the logit of probability by T.
// T ≤ 0 is treated as 1.
func TemperatureCalibrate(params domain.TemperatureParameters, probability float64) float64 {
	t := params.T
	if t <= 0 {
		t = 1
	}
	z := logit(clampPercent(probability)/100) / t
	return 100 / (1 + math.Exp(-z))
}

// FindOptimalTemperature grid-searches T in [0.1, 5.0] with step 0.1 for the
// lowest negative log-likelihood. Ties keep the smaller T; empty input
// returns T = 1.
func FindOptimalTemperature(samples []domain.CalibrationSample) domain.TemperatureParameters {
	if len(samples) == 0 {
		return domain.TemperatureParameters{T: 1}
	}

	bestT, bestNLL := 1.0, math.Inf(1)
	for k := 1; k <= 50; k++ {
		t := float64(k) / 10
		nll := temperatureNLL(samples, t)
		if nll < bestNLL {
			bestT, bestNLL = t, nll
		}
	}
	return domain.TemperatureParameters{T: bestT}
}

func temperatureNLL(samples []domain.CalibrationSample, t float64) float64 {
	var nll float64
	for _, s := range samples {
		p := TemperatureCalibrate(domain.TemperatureParameters{T: t}, s.Probability) / 100
		p = math.Min(math.Max(p, probEpsilon), 1-probEpsilon)
		if s.Label == 1 {
			nll -= math.Log(p)
		} else {
			nll -= math.Log(1 - p)
		}
	}
	return nll / float64(len(samples))
}
