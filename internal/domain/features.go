package domain

import "fmt"

// Feature identifies one slot of the fixed feature schema.
type Feature int

const (
	FeatureHoldingDays Feature = iota
	FeatureUnrealizedPnL
	FeatureUnrealizedPct
	FeatureUnrealizedR
	FeatureReturn1D
	FeatureReturn3D
	FeatureReturn5D
	FeatureDrawdownFromPeak
	FeatureMaxFavorableR
	FeatureRSI14
	FeatureATRPct
	FeaturePriceVsSMA20
	FeaturePriceVsSMA50
	FeatureVolumeRatio20
	FeatureDayOfWeek
	FeatureIsMonthEnd
	FeatureAbove1R
	FeatureAbove1_5R
	FeatureAbove2R
	FeatureGapPct

	// NumFeatures is the schema width.
	NumFeatures
)

var featureNames = [NumFeatures]string{
	FeatureHoldingDays:      "holding_days",
	FeatureUnrealizedPnL:    "unrealized_pnl",
	FeatureUnrealizedPct:    "unrealized_pct",
	FeatureUnrealizedR:      "unrealized_r",
	FeatureReturn1D:         "return_1d",
	FeatureReturn3D:         "return_3d",
	FeatureReturn5D:         "return_5d",
	FeatureDrawdownFromPeak: "drawdown_from_peak",
	FeatureMaxFavorableR:    "max_favorable_r",
	FeatureRSI14:            "rsi_14",
	FeatureATRPct:           "atr_pct",
	FeaturePriceVsSMA20:     "price_vs_sma20",
	FeaturePriceVsSMA50:     "price_vs_sma50",
	FeatureVolumeRatio20:    "volume_ratio_20",
	FeatureDayOfWeek:        "day_of_week",
	FeatureIsMonthEnd:       "is_month_end",
	FeatureAbove1R:          "above_1r",
	FeatureAbove1_5R:        "above_1_5r",
	FeatureAbove2R:          "above_2r",
	FeatureGapPct:           "gap_pct",
}

var featureByName = func() map[string]Feature {
	m := make(map[string]Feature, NumFeatures)
	for i, n := range featureNames {
		m[n] = Feature(i)
	}
	return m
}()

// String returns the serialized feature name.
func (f Feature) String() string {
	if f < 0 || f >= NumFeatures {
		return fmt.Sprintf("feature(%d)", int(f))
	}
	return featureNames[f]
}

// ParseFeature resolves a serialized feature name.
func ParseFeature(name string) (Feature, bool) {
	f, ok := featureByName[name]
	return f, ok
}

// AllFeatures returns the schema in slot order.
func AllFeatures() []Feature {
	out := make([]Feature, NumFeatures)
	for i := range out {
		out[i] = Feature(i)
	}
	return out
}

// FeatureVector holds one value per schema slot. Unset slots are zero.
type FeatureVector [NumFeatures]float64

// Get returns the value of f.
func (v *FeatureVector) Get(f Feature) float64 {
	return v[f]
}

// Set assigns the value of f.
func (v *FeatureVector) Set(f Feature, x float64) {
	v[f] = x
}

// Map returns the vector keyed by feature name.
func (v *FeatureVector) Map() map[string]float64 {
	m := make(map[string]float64, NumFeatures)
	for i, x := range v {
		m[featureNames[i]] = x
	}
	return m
}

// FeatureVectorFromMap builds a vector from named values.
// Unknown names are returned so callers can reject them.
func FeatureVectorFromMap(m map[string]float64) (FeatureVector, []string) {
	var v FeatureVector
	var unknown []string
	for name, x := range m {
		f, ok := featureByName[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		v[f] = x
	}
	return v, unknown
}
