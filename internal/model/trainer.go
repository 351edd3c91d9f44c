package model

import (
	"errors"
	"fmt"
	"math"
	"time"

	"trade-outcome-lab/internal/domain"
)

// MinTrainingSamples is the smallest dataset Train accepts.
const MinTrainingSamples = 10

// ErrInsufficientSamples is returned when the dataset is too small to split.
var ErrInsufficientSamples = errors.New("insufficient training samples")

// Sample is one labeled observation. Label is 1 when exiting on that day
// would have been at least as good as the realized exit.
type Sample struct {
	Features domain.FeatureVector
	Label    int
}

// TrainOptions configures gradient descent.
type TrainOptions struct {
	Epochs          int     `yaml:"epochs" default:"2000"`
	LearningRate    float64 `yaml:"learning_rate" default:"0.1"`
	L2              float64 `yaml:"l2" default:"0.001"`
	ValidationSplit float64 `yaml:"validation_split" default:"0.2"`
	Version         string  `yaml:"version"`
}

func (o *TrainOptions) applyDefaults() {
	if o.Epochs <= 0 {
		o.Epochs = 2000
	}
	if o.LearningRate <= 0 {
		o.LearningRate = 0.1
	}
	if o.L2 < 0 {
		o.L2 = 0
	}
	if o.ValidationSplit <= 0 || o.ValidationSplit >= 1 {
		o.ValidationSplit = 0.2
	}
}

// Train fits standardized logistic regression by batch gradient descent.
// Samples are split in order: the tail is held out for validation, so callers
// should pass them sorted by time.
func Train(samples []Sample, opts TrainOptions, now time.Time) (*domain.ModelCoefficients, error) {
	if len(samples) < MinTrainingSamples {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientSamples, len(samples), MinTrainingSamples)
	}
	opts.applyDefaults()

	nVal := int(math.Round(float64(len(samples)) * opts.ValidationSplit))
	if nVal < 1 {
		nVal = 1
	}
	train := samples[:len(samples)-nVal]
	val := samples[len(samples)-nVal:]

	c := &domain.ModelCoefficients{
		TrainedAt:       now.UTC(),
		TrainingSamples: len(train),
		Version:         opts.Version,
	}
	if c.Version == "" {
		c.Version = "v" + now.UTC().Format("20060102T150405")
	}

	n := float64(len(train))
	for _, f := range domain.AllFeatures() {
		var sum float64
		for _, s := range train {
			sum += s.Features.Get(f)
		}
		mean := sum / n
		var ss float64
		for _, s := range train {
			d := s.Features.Get(f) - mean
			ss += d * d
		}
		c.Means.Set(f, mean)
		c.Stds.Set(f, math.Sqrt(ss/n))
		c.Active[f] = true
	}

	// Pre-standardize once; zero-variance columns stay at zero.
	z := make([]domain.FeatureVector, len(train))
	for i, s := range train {
		z[i] = standardize(c, s.Features)
	}

	var positives float64
	for _, s := range train {
		positives += float64(s.Label)
	}
	// Start at the log-odds of the base rate.
	c.Intercept = math.Log((positives + 0.5) / (n - positives + 0.5))

	var gradW domain.FeatureVector
	for epoch := 0; epoch < opts.Epochs; epoch++ {
		gradW = domain.FeatureVector{}
		var gradB float64
		for i, s := range train {
			p := Sigmoid(c.Intercept + dot(c.Weights, z[i]))
			diff := p - float64(s.Label)
			gradB += diff
			for j := range gradW {
				gradW[j] += diff * z[i][j]
			}
		}
		c.Intercept -= opts.LearningRate * gradB / n
		for j := range c.Weights {
			c.Weights[j] -= opts.LearningRate * (gradW[j]/n + opts.L2*c.Weights[j])
		}
	}

	trainAcc, trainLoss := evaluate(c, train)
	valAcc, valLoss := evaluate(c, val)
	c.ValidationAccuracy = valAcc
	c.Metrics = map[string]float64{
		"train_accuracy":      trainAcc,
		"train_log_loss":      trainLoss,
		"validation_log_loss": valLoss,
		"validation_samples":  float64(len(val)),
		"positive_rate":       positives / n,
	}

	return c, nil
}

func standardize(c *domain.ModelCoefficients, v domain.FeatureVector) domain.FeatureVector {
	var out domain.FeatureVector
	for j := range v {
		std := c.Stds[j]
		if std <= minStd {
			continue
		}
		out[j] = (v[j] - c.Means[j]) / std
	}
	return out
}

func dot(w, x domain.FeatureVector) float64 {
	var s float64
	for j := range w {
		s += w[j] * x[j]
	}
	return s
}

func evaluate(c *domain.ModelCoefficients, samples []Sample) (accuracy, logLoss float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	const eps = 1e-12
	var correct int
	for _, s := range samples {
		p := Sigmoid(c.Intercept + dot(c.Weights, standardize(c, s.Features)))
		pred := 0
		if p >= 0.5 {
			pred = 1
		}
		if pred == s.Label {
			correct++
		}
		p = math.Min(math.Max(p, eps), 1-eps)
		if s.Label == 1 {
			logLoss -= math.Log(p)
		} else {
			logLoss -= math.Log(1 - p)
		}
	}
	n := float64(len(samples))
	return float64(correct) / n, logLoss / n
}
