package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/logger"
	"trade-outcome-lab/internal/observability"
)

// RedisConfig configures the price cache connection.
type RedisConfig struct {
	Addr     string        `yaml:"addr" default:"localhost:6379"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"pool_size" default:"10"`
	Prefix   string        `yaml:"prefix" default:"tol"`
	TTL      time.Duration `yaml:"ttl" default:"6h"`
}

// NewRedisClient connects and pings.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// CachedProvider serves repeated range requests from Redis. Cache failures
// are logged and fall through to the upstream provider.
type CachedProvider struct {
	next   Provider
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    *logger.Logger
}

// NewCachedProvider wraps next with a Redis cache.
func NewCachedProvider(next Provider, client *redis.Client, prefix string, ttl time.Duration, log *logger.Logger) *CachedProvider {
	if prefix == "" {
		prefix = "tol"
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CachedProvider{
		next:   next,
		client: client,
		prefix: prefix,
		ttl:    ttl,
		log:    log.With(logger.String("component", "price_cache")),
	}
}

func (c *CachedProvider) key(ticker string, start, end time.Time) string {
	return fmt.Sprintf("%s:bars:%s:%s:%s",
		c.prefix,
		strings.ToUpper(ticker),
		start.UTC().Format("20060102"),
		end.UTC().Format("20060102"),
	)
}

type cachedBar struct {
	Date   int64   `json:"d"` // unix seconds, UTC midnight
	Open   float64 `json:"o"`
	High   float64 `json:"h"`
	Low    float64 `json:"l"`
	Close  float64 `json:"c"`
	Volume float64 `json:"v"`
}

func (c *CachedProvider) GetHistoricalPrices(ctx context.Context, ticker string, start, end time.Time) ([]domain.PriceBar, error) {
	key := c.key(ticker, start, end)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached []cachedBar
		if err := sonic.Unmarshal(data, &cached); err == nil {
			observability.RecordCacheResult("hit")
			return fromCached(strings.ToUpper(ticker), cached), nil
		}
		observability.RecordCacheResult("error")
		c.log.Warn("discarding corrupt cache entry", logger.String("key", key))
	case errors.Is(err, redis.Nil):
		observability.RecordCacheResult("miss")
	default:
		observability.RecordCacheResult("error")
		c.log.Warn("price cache read failed", logger.String("key", key), logger.Error(err))
	}

	bars, err := c.next.GetHistoricalPrices(ctx, ticker, start, end)
	if err != nil {
		return nil, err
	}
	// Empty ranges are not cached so newly listed data shows up promptly.
	if len(bars) == 0 {
		return bars, nil
	}

	encoded, err := sonic.Marshal(toCached(bars))
	if err != nil {
		return bars, nil
	}
	if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
		c.log.Warn("price cache write failed", logger.String("key", key), logger.Error(err))
	}
	return bars, nil
}

// Invalidate drops every cached range for ticker.
func (c *CachedProvider) Invalidate(ctx context.Context, ticker string) error {
	pattern := fmt.Sprintf("%s:bars:%s:*", c.prefix, strings.ToUpper(ticker))
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Unlink(ctx, keys...).Err()
}

func toCached(bars []domain.PriceBar) []cachedBar {
	out := make([]cachedBar, len(bars))
	for i, b := range bars {
		out[i] = cachedBar{Date: b.Date.Unix(), Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
	}
	return out
}

func fromCached(ticker string, cached []cachedBar) []domain.PriceBar {
	out := make([]domain.PriceBar, len(cached))
	for i, b := range cached {
		out[i] = domain.PriceBar{
			Ticker: ticker,
			Date:   time.Unix(b.Date, 0).UTC(),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
	}
	return out
}
