// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultNamespace = "trade_outcome_lab"

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Lifecycle metrics
	TradesOpened     prometheus.Counter
	ExitsRecorded    *prometheus.CounterVec
	TradesClosed     prometheus.Counter
	ExcursionUpdates prometheus.Counter
	TradesAmended    prometheus.Counter

	// Simulation metrics
	SimulationsTotal     *prometheus.CounterVec
	SimulationErrors     *prometheus.CounterVec
	SimulationDuration   prometheus.Histogram
	ExitSignalsTotal     *prometheus.CounterVec
	ExitProbabilityScore prometheus.Histogram

	// Price feed metrics
	ProviderRequests  *prometheus.CounterVec
	ProviderLatency   *prometheus.HistogramVec
	RateLimitWait     prometheus.Histogram
	PriceCacheResults *prometheus.CounterVec
	StreamBars        prometheus.Counter
	StreamReconnects  prometheus.Counter

	// Calibration metrics
	DriftChecks             *prometheus.CounterVec
	RecentWeightedError     prometheus.Gauge
	HistoricalWeightedError prometheus.Gauge
	RecommendedThreshold    prometheus.Gauge
	MatchRate               prometheus.Gauge
	DriftAlertsPublished    *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulDriftCheck prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = defaultNamespace
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Lifecycle metrics
		TradesOpened: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "trades_opened_total",
			Help:      "Total number of trades opened",
		}),
		ExitsRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "exits_recorded_total",
			Help:      "Total number of partial exits recorded by reason",
		}, []string{"reason"}),
		TradesClosed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "trades_closed_total",
			Help:      "Total number of trades fully closed",
		}),
		ExcursionUpdates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "excursion_updates_total",
			Help:      "Total number of MFE/MAE changes applied",
		}),
		TradesAmended: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "trades_amended_total",
			Help:      "Total number of audited amendments of closed trades",
		}),

		// Simulation metrics
		SimulationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "runs_total",
			Help:      "Total number of exit simulations by exit reason",
		}, []string{"exit_reason"}),
		SimulationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "errors_total",
			Help:      "Total number of failed simulations by error type",
		}, []string{"error_type"}),
		SimulationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "duration_seconds",
			Help:      "Counterfactual simulation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		ExitSignalsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "exit_signals_total",
			Help:      "Total number of exit signals generated by decision",
		}, []string{"should_exit"}),
		ExitProbabilityScore: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "exit_probability",
			Help:      "Distribution of scored exit probabilities",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 9),
		}),

		// Price feed metrics
		ProviderRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricefeed",
			Name:      "requests_total",
			Help:      "Total number of provider requests by operation and outcome",
		}, []string{"op", "status"}),
		ProviderLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pricefeed",
			Name:      "request_latency_seconds",
			Help:      "Provider request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		RateLimitWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pricefeed",
			Name:      "rate_limit_wait_seconds",
			Help:      "Time spent waiting for a rate-limit slot",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60},
		}),
		PriceCacheResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricefeed",
			Name:      "cache_results_total",
			Help:      "Price cache lookups by result",
		}, []string{"result"}),
		StreamBars: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricefeed",
			Name:      "stream_bars_total",
			Help:      "Total number of bars received from the stream",
		}),
		StreamReconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricefeed",
			Name:      "stream_reconnects_total",
			Help:      "Total number of stream reconnect attempts",
		}),

		// Calibration metrics
		DriftChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "calibration",
			Name:      "drift_checks_total",
			Help:      "Total number of drift checks by outcome",
		}, []string{"drift"}),
		RecentWeightedError: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "calibration",
			Name:      "recent_weighted_error",
			Help:      "Trade-weighted calibration error of the recent window",
		}),
		HistoricalWeightedError: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "calibration",
			Name:      "historical_weighted_error",
			Help:      "Trade-weighted calibration error of the historical window",
		}),
		RecommendedThreshold: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "calibration",
			Name:      "recommended_threshold",
			Help:      "Last recommended probability threshold",
		}),
		MatchRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "calibration",
			Name:      "match_rate",
			Help:      "Share of closed trades matched to a prediction log",
		}),
		DriftAlertsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "calibration",
			Name:      "drift_alerts_published_total",
			Help:      "Total number of drift alerts published by status",
		}, []string{"status"}),

		// HTTP metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulDriftCheck: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_drift_check_timestamp",
			Help:      "Unix timestamp of last successful drift check",
		}),
	}
}

var (
	registry = newRegistry()

	// DefaultMetrics is the default metrics instance.
	DefaultMetrics = NewMetrics("", registry)
)

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Configure replaces the default metrics with a set under namespace.
// Call once at startup before serving traffic.
func Configure(namespace string) {
	if namespace == "" || namespace == defaultNamespace {
		return
	}
	registry = newRegistry()
	DefaultMetrics = NewMetrics(namespace, registry)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// RecordTradeOpened increments the trades opened counter.
func RecordTradeOpened() {
	DefaultMetrics.TradesOpened.Inc()
}

// RecordExit records a partial exit and, when closed is true, a closed trade.
func RecordExit(reason string, closed bool) {
	DefaultMetrics.ExitsRecorded.WithLabelValues(reason).Inc()
	if closed {
		DefaultMetrics.TradesClosed.Inc()
	}
}

func RecordExcursionUpdate() {
	DefaultMetrics.ExcursionUpdates.Inc()
}

func RecordAmendment() {
	DefaultMetrics.TradesAmended.Inc()
}

// RecordSimulation records one completed simulation.
func RecordSimulation(exitReason string, seconds float64) {
	DefaultMetrics.SimulationsTotal.WithLabelValues(exitReason).Inc()
	DefaultMetrics.SimulationDuration.Observe(seconds)
}

// RecordSimulationError records a failed simulation.
func RecordSimulationError(errorType string) {
	DefaultMetrics.SimulationErrors.WithLabelValues(errorType).Inc()
}

// RecordExitSignal records a generated exit signal.
func RecordExitSignal(shouldExit bool, probability float64) {
	label := "false"
	if shouldExit {
		label = "true"
	}
	DefaultMetrics.ExitSignalsTotal.WithLabelValues(label).Inc()
	DefaultMetrics.ExitProbabilityScore.Observe(probability)
}

// RecordProviderCall records provider request metrics.
func RecordProviderCall(op, status string, seconds float64) {
	DefaultMetrics.ProviderRequests.WithLabelValues(op, status).Inc()
	DefaultMetrics.ProviderLatency.WithLabelValues(op).Observe(seconds)
}

func RecordRateLimitWait(seconds float64) {
	DefaultMetrics.RateLimitWait.Observe(seconds)
}

// RecordCacheResult records a price cache lookup ("hit", "miss" or "error").
func RecordCacheResult(result string) {
	DefaultMetrics.PriceCacheResults.WithLabelValues(result).Inc()
}

func RecordStreamBar() {
	DefaultMetrics.StreamBars.Inc()
}

func RecordStreamReconnect() {
	DefaultMetrics.StreamReconnects.Inc()
}

// RecordDriftCheck records the outcome of a drift check.
func RecordDriftCheck(drift bool, recentErr, historicalErr float64, unixTime int64) {
	label := "false"
	if drift {
		label = "true"
	}
	DefaultMetrics.DriftChecks.WithLabelValues(label).Inc()
	DefaultMetrics.RecentWeightedError.Set(recentErr)
	DefaultMetrics.HistoricalWeightedError.Set(historicalErr)
	DefaultMetrics.LastSuccessfulDriftCheck.Set(float64(unixTime))
}

func RecordThreshold(threshold float64) {
	DefaultMetrics.RecommendedThreshold.Set(threshold)
}

func RecordMatchRate(rate float64) {
	DefaultMetrics.MatchRate.Set(rate)
}

// RecordDriftAlert records a drift alert publish attempt.
func RecordDriftAlert(status string) {
	DefaultMetrics.DriftAlertsPublished.WithLabelValues(status).Inc()
}

// RecordHTTPRequest records HTTP request metrics.
func RecordHTTPRequest(method, route, status string, seconds float64) {
	DefaultMetrics.HTTPRequests.WithLabelValues(method, route, status).Inc()
	DefaultMetrics.HTTPDuration.WithLabelValues(method, route).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
