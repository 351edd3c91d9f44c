package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_IsolatedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test_ns", reg)

	m.ExitsRecorded.WithLabelValues("STOP_LOSS").Inc()
	m.ExitsRecorded.WithLabelValues("STOP_LOSS").Inc()
	m.TradesClosed.Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ExitsRecorded.WithLabelValues("STOP_LOSS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TradesClosed))
}

func TestHandler_ExposesDefaultMetrics(t *testing.T) {
	RecordExit("TAKE_PROFIT_1", true)
	RecordDriftCheck(true, -0.12, 0.01, 1700000000)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, "trade_outcome_lab_lifecycle_exits_recorded_total"))
	assert.True(t, strings.Contains(text, "trade_outcome_lab_calibration_recent_weighted_error -0.12"))
}
