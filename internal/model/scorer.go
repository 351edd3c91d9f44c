// Package model scores feature vectors with a trained logistic exit model.
package model

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"trade-outcome-lab/internal/domain"
)

// minStd is the smallest standard deviation treated as real variance.
const minStd = 1e-4

// sigmoidClamp bounds the logit before exponentiation.
const sigmoidClamp = 500.0

const maxRankedReasons = 3

// ErrNilCoefficients is returned by NewScorer when no coefficients are given.
var ErrNilCoefficients = errors.New("nil model coefficients")

// Scorer maps feature vectors to exit probabilities. Safe for concurrent use.
type Scorer struct {
	coef *domain.ModelCoefficients
}

// NewScorer creates a scorer over immutable coefficients.
func NewScorer(coef *domain.ModelCoefficients) (*Scorer, error) {
	if coef == nil {
		return nil, ErrNilCoefficients
	}
	return &Scorer{coef: coef}, nil
}

// Version returns the model version.
func (s *Scorer) Version() string {
	return s.coef.Version
}

// Probability returns sigmoid(intercept + sum of weighted z-scores), in [0,1].
func (s *Scorer) Probability(v domain.FeatureVector) float64 {
	z := s.coef.Intercept
	for _, f := range domain.AllFeatures() {
		z += s.contribution(v, f)
	}
	return Sigmoid(z)
}

// contribution is weight * (x - mean) / std, or zero for inactive or
// zero-variance features.
func (s *Scorer) contribution(v domain.FeatureVector, f domain.Feature) float64 {
	if !s.coef.Active[f] {
		return 0
	}
	std := s.coef.Stds.Get(f)
	if std <= minStd {
		return 0
	}
	return s.coef.Weights.Get(f) * (v.Get(f) - s.coef.Means.Get(f)) / std
}

// Reasons explains a score: the three largest contributions followed by
// fixed heuristic callouts.
func (s *Scorer) Reasons(v domain.FeatureVector) []string {
	type ranked struct {
		f domain.Feature
		c float64
	}

	var items []ranked
	for _, f := range domain.AllFeatures() {
		if c := s.contribution(v, f); c != 0 {
			items = append(items, ranked{f: f, c: c})
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return math.Abs(items[i].c) > math.Abs(items[j].c)
	})
	if len(items) > maxRankedReasons {
		items = items[:maxRankedReasons]
	}

	reasons := make([]string, 0, len(items)+4)
	for _, it := range items {
		dir := "raises"
		if it.c < 0 {
			dir = "lowers"
		}
		reasons = append(reasons, fmt.Sprintf("%s %s exit probability (%+.2f)", it.f, dir, it.c))
	}

	return append(reasons, heuristicReasons(v)...)
}

func heuristicReasons(v domain.FeatureVector) []string {
	var out []string
	if v.Get(domain.FeatureHoldingDays) >= 20 {
		out = append(out, "holding ≥20 days: alpha decays")
	}
	if v.Get(domain.FeatureRSI14) > 70 {
		out = append(out, "RSI > 70: overbought")
	}
	if v.Get(domain.FeatureUnrealizedR) >= 2 {
		out = append(out, "unrealized gain ≥2R: consider locking in profit")
	}
	if v.Get(domain.FeatureDrawdownFromPeak) > 5 {
		out = append(out, "more than 5% below peak: momentum fading")
	}
	return out
}

// GenerateExitSignal scores v and recommends an exit when the probability
// reaches threshold (a fraction in (0,1]).
func (s *Scorer) GenerateExitSignal(v domain.FeatureVector, threshold float64) domain.ExitSignal {
	p := s.Probability(v)
	return domain.ExitSignal{
		ShouldExit:      p >= threshold,
		ExitProbability: p,
		Confidence:      Confidence(p),
		Reasons:         s.Reasons(v),
	}
}

// Confidence labels how far p sits from a coin flip.
func Confidence(p float64) string {
	dist := math.Abs(p-0.5) * 2
	switch {
	case dist >= 0.6:
		return domain.ConfidenceHigh
	case dist >= 0.3:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}

// Sigmoid is the logistic function with inputs clamped to ±500.
func Sigmoid(z float64) float64 {
	if z < -sigmoidClamp {
		return 0
	}
	if z > sigmoidClamp {
		return 1
	}
	return 1 / (1 + math.Exp(-z))
}
