package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v4"

	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/observability"
)

// Default configuration values.
const (
	DefaultBaseURL     = "https://api.polygon.io"
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// HTTPClient fetches daily aggregates from a Polygon-compatible REST API.
// Every attempt, retries included, passes through the rate limiter.
type HTTPClient struct {
	baseURL     string
	apiKey      string
	client      *http.Client
	limiter     *SlidingWindowLimiter
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithLimiter throttles requests through l.
func WithLimiter(l *SlidingWindowLimiter) ClientOption {
	return func(c *HTTPClient) {
		c.limiter = l
	}
}

// NewHTTPClient creates a price API client.
func NewHTTPClient(baseURL, apiKey string, opts ...ClientOption) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &HTTPClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type aggregatesResponse struct {
	Status    string `json:"status"`
	RequestID string `json:"request_id"`
	Results   []struct {
		T int64   `json:"t"` // ms since epoch
		O float64 `json:"o"`
		H float64 `json:"h"`
		L float64 `json:"l"`
		C float64 `json:"c"`
		V float64 `json:"v"`
	} `json:"results"`
	Error string `json:"error"`
}

// GetHistoricalPrices fetches daily bars with retries and exponential backoff.
// Rate limiting, network failures and 5xx responses are retried; exhausted
// retries return a *domain.ProviderTransientError. Other failures are
// returned immediately.
func (c *HTTPClient) GetHistoricalPrices(ctx context.Context, ticker string, start, end time.Time) ([]domain.PriceBar, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, domain.NewValidationError("ticker", errors.New("ticker is required"))
	}
	if end.Before(start) {
		return nil, domain.NewValidationError("end", errors.New("end is before start"))
	}

	endpoint := fmt.Sprintf("%s/v2/aggs/ticker/%s/range/1/day/%s/%s",
		c.baseURL,
		url.PathEscape(ticker),
		start.UTC().Format("2006-01-02"),
		end.UTC().Format("2006-01-02"),
	)

	var bars []domain.PriceBar
	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		began := time.Now()
		result, err := c.fetch(ctx, endpoint, ticker)
		observability.RecordProviderCall("aggregates", callStatus(err), time.Since(began).Seconds())
		if err != nil {
			var transient *domain.ProviderTransientError
			if errors.As(err, &transient) {
				return err
			}
			return backoff.Permanent(err)
		}
		bars = result
		return nil
	}

	if err := backoff.Retry(op, c.backoffPolicy(ctx)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, ctxErr
		}
		return nil, err
	}
	return bars, nil
}

func (c *HTTPClient) backoffPolicy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.retryDelay
	exp.MaxInterval = c.maxDelay
	exp.Multiplier = c.backoffMult
	exp.MaxElapsedTime = 0
	exp.Reset()

	retries := c.maxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}

func (c *HTTPClient) fetch(ctx context.Context, endpoint, ticker string) ([]domain.PriceBar, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	q.Set("adjusted", "true")
	q.Set("sort", "asc")
	q.Set("limit", "50000")
	if c.apiKey != "" {
		q.Set("apiKey", c.apiKey)
	}
	req.URL.RawQuery = q.Encode()

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &domain.ProviderTransientError{Op: "aggregates", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.ProviderTransientError{Op: "aggregates", Err: fmt.Errorf("read response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &domain.ProviderTransientError{
			Op:         "aggregates",
			StatusCode: resp.StatusCode,
			Err:        errors.New(truncate(body)),
		}
	case resp.StatusCode == http.StatusNotFound:
		return nil, &domain.DataUnavailableError{Ticker: ticker, Reason: "unknown ticker"}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body))
	}

	var parsed aggregatesResponse
	if err := sonic.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Status != "OK" && parsed.Status != "DELAYED" {
		return nil, fmt.Errorf("provider status %q: %s", parsed.Status, parsed.Error)
	}

	bars := make([]domain.PriceBar, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		bars = append(bars, domain.PriceBar{
			Ticker: ticker,
			Date:   domain.Day(time.UnixMilli(r.T)),
			Open:   r.O,
			High:   r.H,
			Low:    r.L,
			Close:  r.C,
			Volume: r.V,
		})
	}
	return bars, nil
}

func callStatus(err error) string {
	var transient *domain.ProviderTransientError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &transient):
		return "transient"
	default:
		return "error"
	}
}

func truncate(body []byte) string {
	const maxBody = 256
	if len(body) > maxBody {
		return string(body[:maxBody]) + "..."
	}
	return string(body)
}
