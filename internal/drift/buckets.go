package drift

import (
	"trade-outcome-lab/internal/domain"
)

const (
	bucketWidth   = 5.0
	bucketFloor   = 50.0
	bucketCeiling = 100.0
	numBuckets    = int((bucketCeiling - bucketFloor) / bucketWidth)

	// Buckets whose error exceeds this in either direction are flagged.
	confidenceTolerance = 0.05
)

// BuildBuckets groups matched trades into 5-point probability buckets from
// 50% to 100% and compares realized against expected win rates. Predictions
// below 50% are left out; 100% falls into the top bucket. Only non-empty
// buckets are returned, in ascending order.
func BuildBuckets(matched []domain.MatchedTrade) []domain.CalibrationBucket {
	var counts, wins [numBuckets]int
	for _, m := range matched {
		if m.Probability < bucketFloor || m.Probability > bucketCeiling {
			continue
		}
		idx := int((m.Probability - bucketFloor) / bucketWidth)
		if idx >= numBuckets {
			idx = numBuckets - 1
		}
		counts[idx]++
		if m.Win {
			wins[idx]++
		}
	}

	var buckets []domain.CalibrationBucket
	for i := 0; i < numBuckets; i++ {
		if counts[i] == 0 {
			continue
		}
		lower := bucketFloor + float64(i)*bucketWidth
		upper := lower + bucketWidth
		expected := (lower + upper) / 2 / 100
		actual := float64(wins[i]) / float64(counts[i])
		calErr := actual - expected
		buckets = append(buckets, domain.CalibrationBucket{
			Min:              lower,
			Max:              upper,
			TradeCount:       counts[i],
			ExpectedWinRate:  expected,
			ActualWinRate:    actual,
			CalibrationError: calErr,
			IsOverconfident:  calErr < -confidenceTolerance,
			IsUnderconfident: calErr > confidenceTolerance,
		})
	}
	return buckets
}

// WeightedError is the trade-count weighted mean of the bucket errors, or 0
// for no buckets.
func WeightedError(buckets []domain.CalibrationBucket) float64 {
	var sum float64
	var n int
	for _, b := range buckets {
		sum += b.CalibrationError * float64(b.TradeCount)
		n += b.TradeCount
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func bucketTradeCount(buckets []domain.CalibrationBucket) int {
	n := 0
	for _, b := range buckets {
		n += b.TradeCount
	}
	return n
}
