package model

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	json "github.com/bytedance/sonic"

	"trade-outcome-lab/internal/domain"
)

const retrainRemediation = "re-run training with cmd/train to produce a coefficients file"

// coefficientsFile is the serialized coefficient record.
type coefficientsFile struct {
	Intercept          float64            `json:"intercept"`
	Weights            map[string]float64 `json:"weights"`
	FeatureMeans       map[string]float64 `json:"feature_means"`
	FeatureStds        map[string]float64 `json:"feature_stds"`
	Version            string             `json:"version"`
	TrainedAt          time.Time          `json:"trained_at"`
	TrainingSamples    int                `json:"training_samples"`
	ValidationAccuracy float64            `json:"validation_accuracy"`
	Metrics            map[string]float64 `json:"metrics,omitempty"`
}

// LoadCoefficients reads and validates a coefficients file.
// A missing or malformed file is a *domain.ConfigurationError.
func LoadCoefficients(path string) (*domain.ModelCoefficients, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &domain.ConfigurationError{
				Setting:     "model.path",
				Remediation: retrainRemediation,
				Err:         fmt.Errorf("coefficients file %s not found", path),
			}
		}
		return nil, &domain.ConfigurationError{Setting: "model.path", Err: err}
	}
	return ParseCoefficients(data)
}

// ParseCoefficients decodes and validates serialized coefficients against the
// feature schema. Unknown weight names and weights without a mean and std are
// rejected.
func ParseCoefficients(data []byte) (*domain.ModelCoefficients, error) {
	var f coefficientsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &domain.ConfigurationError{
			Setting:     "model.path",
			Remediation: retrainRemediation,
			Err:         fmt.Errorf("decode coefficients: %w", err),
		}
	}
	if len(f.Weights) == 0 {
		return nil, &domain.ConfigurationError{
			Setting:     "model.weights",
			Remediation: retrainRemediation,
			Err:         errors.New("coefficients have no weights"),
		}
	}

	c := &domain.ModelCoefficients{
		Intercept:          f.Intercept,
		Version:            f.Version,
		TrainedAt:          f.TrainedAt,
		TrainingSamples:    f.TrainingSamples,
		ValidationAccuracy: f.ValidationAccuracy,
		Metrics:            f.Metrics,
	}

	names := make([]string, 0, len(f.Weights))
	for name := range f.Weights {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		feat, ok := domain.ParseFeature(name)
		if !ok {
			return nil, &domain.ConfigurationError{
				Setting:     "model.weights",
				Remediation: retrainRemediation,
				Err:         fmt.Errorf("unknown feature %q", name),
			}
		}
		mean, hasMean := f.FeatureMeans[name]
		std, hasStd := f.FeatureStds[name]
		if !hasMean || !hasStd {
			return nil, &domain.ConfigurationError{
				Setting:     "model.feature_means",
				Remediation: retrainRemediation,
				Err:         fmt.Errorf("feature %q has no mean/std", name),
			}
		}
		c.Weights.Set(feat, f.Weights[name])
		c.Means.Set(feat, mean)
		c.Stds.Set(feat, std)
		c.Active[feat] = true
	}

	return c, nil
}

// MarshalCoefficients encodes coefficients in the file format.
func MarshalCoefficients(c *domain.ModelCoefficients) ([]byte, error) {
	f := coefficientsFile{
		Intercept:          c.Intercept,
		Weights:            make(map[string]float64),
		FeatureMeans:       make(map[string]float64),
		FeatureStds:        make(map[string]float64),
		Version:            c.Version,
		TrainedAt:          c.TrainedAt,
		TrainingSamples:    c.TrainingSamples,
		ValidationAccuracy: c.ValidationAccuracy,
		Metrics:            c.Metrics,
	}
	for _, feat := range domain.AllFeatures() {
		if !c.Active[feat] {
			continue
		}
		f.Weights[feat.String()] = c.Weights.Get(feat)
		f.FeatureMeans[feat.String()] = c.Means.Get(feat)
		f.FeatureStds[feat.String()] = c.Stds.Get(feat)
	}
	return json.ConfigStd.MarshalIndent(f, "", "  ")
}

// SaveCoefficients writes coefficients to path.
func SaveCoefficients(path string, c *domain.ModelCoefficients) error {
	data, err := MarshalCoefficients(c)
	if err != nil {
		return fmt.Errorf("marshal coefficients: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write coefficients: %w", err)
	}
	return nil
}
