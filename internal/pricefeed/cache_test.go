package pricefeed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"trade-outcome-lab/internal/logger"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := NewRedisClient(ctx, RedisConfig{Addr: fmt.Sprintf("%s:%s", host, port.Port()), PoolSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestCachedProvider_HitAfterMiss(t *testing.T) {
	client := setupRedis(t)
	up := &countingProvider{bars: weekdayBars("AAPL", day(2024, 1, 1), 10)}
	cache := NewCachedProvider(up, client, "test", time.Minute, logger.Nop())
	ctx := context.Background()

	first, err := cache.GetHistoricalPrices(ctx, "AAPL", day(2024, 1, 1), day(2024, 1, 12))
	require.NoError(t, err)
	second, err := cache.GetHistoricalPrices(ctx, "aapl", day(2024, 1, 1), day(2024, 1, 12))
	require.NoError(t, err)

	assert.Equal(t, 1, up.calls)
	assert.Equal(t, first, second)

	require.NoError(t, cache.Invalidate(ctx, "AAPL"))
	_, err = cache.GetHistoricalPrices(ctx, "AAPL", day(2024, 1, 1), day(2024, 1, 12))
	require.NoError(t, err)
	assert.Equal(t, 2, up.calls)
}

func TestCachedProvider_EmptyRangeNotCached(t *testing.T) {
	client := setupRedis(t)
	up := &countingProvider{}
	cache := NewCachedProvider(up, client, "test", time.Minute, logger.Nop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		bars, err := cache.GetHistoricalPrices(ctx, "NEW", day(2024, 1, 1), day(2024, 1, 5))
		require.NoError(t, err)
		assert.Empty(t, bars)
	}
	assert.Equal(t, 2, up.calls)
}
