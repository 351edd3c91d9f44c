package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-outcome-lab/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

const aggregatesBody = `{"status":"OK","request_id":"r1","results":[
{"t":1704171600000,"o":100,"h":102,"l":99,"c":101,"v":1000},
{"t":1704258000000,"o":101,"h":104,"l":100,"c":103,"v":1200}]}`

func fastClient(url string, opts ...ClientOption) *HTTPClient {
	base := []ClientOption{
		WithRetryDelay(time.Millisecond),
		WithMaxDelay(5 * time.Millisecond),
		WithMaxRetries(3),
	}
	return NewHTTPClient(url, "secret", append(base, opts...)...)
}

func TestHTTPClient_GetHistoricalPrices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/aggs/ticker/AAPL/range/1/day/2024-01-01/2024-01-05", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("apiKey"))
		assert.Equal(t, "asc", r.URL.Query().Get("sort"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, aggregatesBody)
	}))
	defer server.Close()

	bars, err := fastClient(server.URL).GetHistoricalPrices(context.Background(), "aapl", day(2024, 1, 1), day(2024, 1, 5))
	require.NoError(t, err)

	require.Len(t, bars, 2)
	assert.Equal(t, "AAPL", bars[0].Ticker)
	assert.Equal(t, day(2024, 1, 2), bars[0].Date)
	assert.Equal(t, 102.0, bars[0].High)
	assert.Equal(t, day(2024, 1, 3), bars[1].Date)
}

func TestHTTPClient_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusBadGateway)
		default:
			fmt.Fprint(w, aggregatesBody)
		}
	}))
	defer server.Close()

	bars, err := fastClient(server.URL).GetHistoricalPrices(context.Background(), "AAPL", day(2024, 1, 1), day(2024, 1, 5))
	require.NoError(t, err)
	assert.Len(t, bars, 2)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPClient_ExhaustedRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := fastClient(server.URL, WithMaxRetries(2)).GetHistoricalPrices(context.Background(), "AAPL", day(2024, 1, 1), day(2024, 1, 5))

	var transient *domain.ProviderTransientError
	require.True(t, errors.As(err, &transient))
	assert.Equal(t, http.StatusServiceUnavailable, transient.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPClient_PermanentErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		checkFn func(t *testing.T, err error)
	}{
		{
			name:   "bad request",
			status: http.StatusBadRequest,
			body:   `{"status":"ERROR"}`,
			checkFn: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "unexpected status 400")
			},
		},
		{
			name:   "unknown ticker",
			status: http.StatusNotFound,
			checkFn: func(t *testing.T, err error) {
				var du *domain.DataUnavailableError
				assert.True(t, errors.As(err, &du))
			},
		},
		{
			name:   "error status in body",
			status: http.StatusOK,
			body:   `{"status":"ERROR","error":"bad key"}`,
			checkFn: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "bad key")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			_, err := fastClient(server.URL).GetHistoricalPrices(context.Background(), "AAPL", day(2024, 1, 1), day(2024, 1, 5))
			require.Error(t, err)
			tt.checkFn(t, err)
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestHTTPClient_ValidatesInput(t *testing.T) {
	c := NewHTTPClient("http://unused", "")

	_, err := c.GetHistoricalPrices(context.Background(), " ", day(2024, 1, 1), day(2024, 1, 2))
	var ve *domain.ValidationError
	assert.True(t, errors.As(err, &ve))

	_, err = c.GetHistoricalPrices(context.Background(), "AAPL", day(2024, 1, 2), day(2024, 1, 1))
	assert.True(t, errors.As(err, &ve))
}

func TestHTTPClient_UsesLimiter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.TrimSpace(aggregatesBody))
	}))
	defer server.Close()

	limiter := NewSlidingWindowLimiter(1, time.Hour)
	c := fastClient(server.URL, WithLimiter(limiter))

	_, err := c.GetHistoricalPrices(context.Background(), "AAPL", day(2024, 1, 1), day(2024, 1, 5))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.GetHistoricalPrices(ctx, "AAPL", day(2024, 1, 1), day(2024, 1, 5))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
