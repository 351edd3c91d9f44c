package drift

import (
	"context"
	"fmt"
	"math"
	"time"

	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/logger"
	"trade-outcome-lab/internal/observability"
	"trade-outcome-lab/internal/storage"
)

const (
	driftDeltaThreshold  = 0.10
	driftBucketThreshold = 0.15

	minThresholdBucketTrades = 5
	minThreshold             = 0.50
	maxThreshold             = 0.90

	lowConfidenceTrades    = 20
	mediumConfidenceTrades = 50
)

// Confidence labels of a threshold recommendation.
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// Config holds the monitoring windows.
type Config struct {
	RecentDays       int     `yaml:"recent_days" default:"30" validate:"gt=0"`
	HistoricalDays   int     `yaml:"historical_days" default:"90" validate:"gt=0"`
	DefaultThreshold float64 `yaml:"default_threshold" default:"0.6" validate:"gte=0.5,lte=0.9"`
	// How far before a trade's exit its prediction may have been issued.
	LogLookbackDays int `yaml:"log_lookback_days" default:"365" validate:"gt=0"`
}

// Monitor computes calibration metrics, drift and threshold advice from a
// consistent snapshot of closed trades and prediction logs.
type Monitor struct {
	snapshots storage.SnapshotReader
	cfg       Config
	log       *logger.Logger
	now       func() time.Time
}

// NewMonitor creates a monitor. Zero-valued Config fields take defaults.
func NewMonitor(snapshots storage.SnapshotReader, cfg Config, log *logger.Logger) *Monitor {
	if cfg.RecentDays <= 0 {
		cfg.RecentDays = 30
	}
	if cfg.HistoricalDays <= 0 {
		cfg.HistoricalDays = 90
	}
	if cfg.DefaultThreshold <= 0 {
		cfg.DefaultThreshold = 0.60
	}
	if cfg.LogLookbackDays <= 0 {
		cfg.LogLookbackDays = 365
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Monitor{
		snapshots: snapshots,
		cfg:       cfg,
		log:       log.With(logger.String("component", "drift")),
		now:       time.Now,
	}
}

// matchedWindow reads a snapshot of trades closed in [start, end] and matches
// them to predictions.
func (m *Monitor) matchedWindow(ctx context.Context, start, end time.Time) ([]domain.MatchedTrade, int, error) {
	logStart := start.AddDate(0, 0, -m.cfg.LogLookbackDays)
	logEnd := end.AddDate(0, 0, MatchWindowDays)
	snap, err := m.snapshots.ReadSnapshot(ctx, start, end, logStart, logEnd)
	if err != nil {
		return nil, 0, fmt.Errorf("read snapshot: %w", err)
	}
	matched, unmatched := MatchTrades(snap.Trades, snap.Logs)
	return matched, len(matched) + unmatched, nil
}

// GetCalibrationMetrics buckets matched trades closed within [from, to]. A nil
// bound is open.
func (m *Monitor) GetCalibrationMetrics(ctx context.Context, from, to *time.Time) (*domain.CalibrationMetrics, error) {
	start := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	end := domain.Day(m.now())
	if from != nil {
		start = domain.Day(*from)
	}
	if to != nil {
		end = domain.Day(*to)
	}
	if end.Before(start) {
		return nil, domain.NewValidationError("to", fmt.Errorf("to %s is before from %s", end.Format("2006-01-02"), start.Format("2006-01-02")))
	}

	matched, total, err := m.matchedWindow(ctx, start, end)
	if err != nil {
		return nil, err
	}

	buckets := BuildBuckets(matched)
	metrics := &domain.CalibrationMetrics{
		From:          from,
		To:            to,
		Buckets:       buckets,
		TotalTrades:   total,
		MatchedTrades: len(matched),
		WeightedError: WeightedError(buckets),
	}
	if total > 0 {
		metrics.MatchRate = float64(len(matched)) / float64(total)
	}
	observability.RecordMatchRate(metrics.MatchRate)
	return metrics, nil
}

// CalibrationSamples returns one sample per matched trade closed within
// [from, to], labeled 1 for wins, along with the matched trades themselves.
func (m *Monitor) CalibrationSamples(ctx context.Context, from, to *time.Time) ([]domain.CalibrationSample, []domain.MatchedTrade, error) {
	start := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	end := domain.Day(m.now())
	if from != nil {
		start = domain.Day(*from)
	}
	if to != nil {
		end = domain.Day(*to)
	}
	matched, _, err := m.matchedWindow(ctx, start, end)
	if err != nil {
		return nil, nil, err
	}
	samples := make([]domain.CalibrationSample, len(matched))
	for i, mt := range matched {
		samples[i].Probability = mt.Probability
		if mt.Win {
			samples[i].Label = 1
		}
	}
	return samples, matched, nil
}

// DetectDrift compares trades closed in the last days (default RecentDays)
// with the HistoricalDays preceding them.
func (m *Monitor) DetectDrift(ctx context.Context, days int) (*domain.DriftDetection, error) {
	if days <= 0 {
		days = m.cfg.RecentDays
	}
	end := domain.Day(m.now())
	recentStart := end.AddDate(0, 0, -days)
	historicalStart := recentStart.AddDate(0, 0, -m.cfg.HistoricalDays)

	// One snapshot for both windows keeps them mutually consistent.
	matched, _, err := m.matchedWindow(ctx, historicalStart, end)
	if err != nil {
		return nil, err
	}

	var recent, historical []domain.MatchedTrade
	for _, mt := range matched {
		if mt.ExitDate.Before(recentStart) {
			historical = append(historical, mt)
		} else {
			recent = append(recent, mt)
		}
	}

	recentBuckets := BuildBuckets(recent)
	historicalBuckets := BuildBuckets(historical)
	d := &domain.DriftDetection{
		RecentWeightedError:     WeightedError(recentBuckets),
		HistoricalWeightedError: WeightedError(historicalBuckets),
		RecentTradeCount:        bucketTradeCount(recentBuckets),
		HistoricalTradeCount:    bucketTradeCount(historicalBuckets),
		RecentBuckets:           recentBuckets,
		HistoricalBuckets:       historicalBuckets,
	}
	d.ErrorDelta = d.RecentWeightedError - d.HistoricalWeightedError

	deltaDrift := d.RecentTradeCount > 0 && d.HistoricalTradeCount > 0 &&
		math.Abs(d.ErrorDelta) > driftDeltaThreshold
	bucketDrift := false
	for _, b := range recentBuckets {
		if math.Abs(b.CalibrationError) > driftBucketThreshold {
			bucketDrift = true
			break
		}
	}
	d.DriftDetected = deltaDrift || bucketDrift
	d.Recommendation = driftRecommendation(d)

	observability.RecordDriftCheck(d.DriftDetected, d.RecentWeightedError, d.HistoricalWeightedError, m.now().Unix())
	m.log.Info("drift checked",
		logger.Bool("drift", d.DriftDetected),
		logger.Int("recent_trades", d.RecentTradeCount),
		logger.Int("historical_trades", d.HistoricalTradeCount),
		logger.Float64("delta", d.ErrorDelta),
	)
	return d, nil
}

func driftRecommendation(d *domain.DriftDetection) string {
	if d.RecentTradeCount == 0 {
		return "Insufficient recent data: no matched trades closed in the recent window."
	}
	if !d.DriftDetected {
		if d.HistoricalTradeCount == 0 {
			return "No drift in recent buckets; no historical baseline to compare against yet."
		}
		return "Calibration is stable."
	}

	over, under := 0, 0
	for _, b := range d.RecentBuckets {
		if b.IsOverconfident {
			over++
		}
		if b.IsUnderconfident {
			under++
		}
	}
	switch {
	case over > under:
		return fmt.Sprintf("Model is overconfident in %d of %d buckets: raise the acceptance threshold and refit calibration.", over, len(d.RecentBuckets))
	case under > over:
		return fmt.Sprintf("Model is underconfident in %d of %d buckets: the acceptance threshold can be lowered after refitting calibration.", under, len(d.RecentBuckets))
	default:
		return "Calibration has shifted in both directions: refit calibration before adjusting the threshold."
	}
}

// GetThresholdRecommendation suggests a minimum acceptance probability
// (fraction) from trades closed over the recent and historical windows.
// current defaults to the configured threshold.
func (m *Monitor) GetThresholdRecommendation(ctx context.Context, current *float64) (*domain.ThresholdRecommendation, error) {
	cur := m.cfg.DefaultThreshold
	if current != nil {
		cur = *current
	}
	if cur < 0 || cur > 1 {
		return nil, domain.NewValidationError("current", fmt.Errorf("threshold %v outside [0, 1]", cur))
	}

	end := domain.Day(m.now())
	start := end.AddDate(0, 0, -(m.cfg.RecentDays + m.cfg.HistoricalDays))
	matched, _, err := m.matchedWindow(ctx, start, end)
	if err != nil {
		return nil, err
	}

	buckets := BuildBuckets(matched)
	rec := RecommendThreshold(buckets, cur, len(matched))
	observability.RecordThreshold(rec.RecommendedThreshold)
	return rec, nil
}

// RecommendThreshold picks the lowest bucket that is well calibrated (error
// within ±0.05) and has at least 5 trades. Failing that it shifts current by
// the weighted error, clamped to [0.50, 0.90]. Below 20 matched trades the
// recommendation is neutral and current is kept.
func RecommendThreshold(buckets []domain.CalibrationBucket, current float64, matched int) *domain.ThresholdRecommendation {
	rec := &domain.ThresholdRecommendation{
		CurrentThreshold: current,
		Confidence:       ConfidenceFor(matched),
		MatchedTrades:    matched,
	}

	if len(buckets) == 0 {
		rec.RecommendedThreshold = current
		rec.Reason = "No matched trades in calibrated range; keeping current threshold."
		return rec
	}
	if rec.Confidence == ConfidenceLow {
		rec.RecommendedThreshold = current
		rec.Reason = fmt.Sprintf("Only %d matched trades (need %d); keeping current threshold.",
			matched, lowConfidenceTrades)
		return rec
	}

	for _, b := range buckets {
		if b.TradeCount >= minThresholdBucketTrades && math.Abs(b.CalibrationError) <= confidenceTolerance {
			rec.RecommendedThreshold = b.Min / 100
			rec.Reason = fmt.Sprintf("Lowest well-calibrated bucket is %.0f-%.0f%% (%d trades, error %+.3f).",
				b.Min, b.Max, b.TradeCount, b.CalibrationError)
			return rec
		}
	}

	weighted := WeightedError(buckets)
	rec.RecommendedThreshold = clamp(current-weighted, minThreshold, maxThreshold)
	rec.Reason = fmt.Sprintf("No bucket is well calibrated with at least %d trades; shifted current threshold by weighted error %+.3f.",
		minThresholdBucketTrades, weighted)
	return rec
}

// ConfidenceFor labels a recommendation by the number of matched trades.
func ConfidenceFor(matched int) string {
	switch {
	case matched < lowConfidenceTrades:
		return ConfidenceLow
	case matched < mediumConfidenceTrades:
		return ConfidenceMedium
	default:
		return ConfidenceHigh
	}
}

func clamp(v, low, high float64) float64 {
	return math.Max(low, math.Min(high, v))
}
