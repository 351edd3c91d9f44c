package calibration

import (
	"math"
	"sort"

	"trade-outcome-lab/internal/domain"
)

type block struct {
	x      float64 // representative input, percent
	sum    float64 // sum of labels
	weight float64
	first  int // index of first unique x pooled into this block
	last   int
}

func (b block) mean() float64 { return b.sum / b.weight }

// FitIsotonic fits a non-decreasing step map with Pool-Adjacent-Violators.
// NaN probabilities are dropped and the rest clamped to [0, 100] before
// sorting. Samples sharing a probability are pooled before PAV runs, so X in
// the result is strictly ascending.
func FitIsotonic(samples []domain.CalibrationSample) domain.IsotonicModel {
	sorted := make([]domain.CalibrationSample, 0, len(samples))
	for _, s := range samples {
		if math.IsNaN(s.Probability) {
			continue
		}
		s.Probability = clampPercent(s.Probability)
		sorted = append(sorted, s)
	}
	if len(sorted) == 0 {
		return domain.IsotonicModel{X: []float64{}, Y: []float64{}}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Probability < sorted[j].Probability
	})

	// Tie aggregation.
	var units []block
	for _, s := range sorted {
		p := s.Probability
		label := 0.0
		if s.Label == 1 {
			label = 1
		}
		if n := len(units); n > 0 && units[n-1].x == p {
			units[n-1].sum += label
			units[n-1].weight++
			continue
		}
		idx := len(units)
		units = append(units, block{x: p, sum: label, weight: 1, first: idx, last: idx})
	}

	// PAV: a stack of blocks whose means are non-decreasing.
	stack := make([]block, 0, len(units))
	for _, u := range units {
		stack = append(stack, u)
		for len(stack) > 1 {
			top := stack[len(stack)-1]
			prev := stack[len(stack)-2]
			if prev.mean() <= top.mean() {
				break
			}
			merged := block{
				sum:    prev.sum + top.sum,
				weight: prev.weight + top.weight,
				first:  prev.first,
				last:   top.last,
			}
			stack = append(stack[:len(stack)-2], merged)
		}
	}

	model := domain.IsotonicModel{
		X: make([]float64, len(units)),
		Y: make([]float64, len(units)),
	}
	for _, b := range stack {
		y := b.mean() * 100
		for i := b.first; i <= b.last; i++ {
			model.X[i] = units[i].x
			model.Y[i] = y
		}
	}
	return model
}

// IsotonicCalibrate interpolates linearly between the nearest breakpoints and
// clamps to the first or last value outside the fitted range. An empty model
// returns the input unchanged.
func IsotonicCalibrate(model domain.IsotonicModel, probability float64) float64 {
	n := len(model.X)
	if n == 0 || len(model.Y) != n {
		return clampPercent(probability)
	}
	p := clampPercent(probability)
	if p <= model.X[0] {
		return model.Y[0]
	}
	if p >= model.X[n-1] {
		return model.Y[n-1]
	}

	// First breakpoint strictly greater than p; p lies in [X[hi-1], X[hi]).
	hi := sort.Search(n, func(i int) bool { return model.X[i] > p })
	lo := hi - 1
	span := model.X[hi] - model.X[lo]
	if span == 0 {
		return model.Y[lo]
	}
	frac := (p - model.X[lo]) / span
	return model.Y[lo] + frac*(model.Y[hi]-model.Y[lo])
}
