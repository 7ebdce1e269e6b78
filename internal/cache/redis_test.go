package cache

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a throwaway Redis and returns its address
func setupRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("6379/tcp"),
				wait.ForLog("Ready to accept connections"),
			).WithDeadline(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate redis container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("failed to get redis port: %v", err)
	}
	return net.JoinHostPort(host, port.Port())
}

func TestRedisPriceCache(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	client, err := Connect(ctx, setupRedis(t), "", 0)
	require.NoError(t, err)
	defer client.Close()

	c := NewRedisPriceCache(client, time.Minute)

	t.Run("miss", func(t *testing.T) {
		_, ok, err := c.Get(ctx, 1)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("set then get keeps precision", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, 2, decimal.RequireFromString("123.4567")))
		price, ok, err := c.Get(ctx, 2)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "123.4567", price.String())

		ttl, err := client.TTL(ctx, key(2)).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
	})

	t.Run("invalidate", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, 3, decimal.NewFromInt(9)))
		require.NoError(t, c.Invalidate(ctx, 3))
		_, ok, err := c.Get(ctx, 3)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("corrupt value", func(t *testing.T) {
		require.NoError(t, client.Set(ctx, key(4), "not-a-number", 0).Err())
		_, _, err := c.Get(ctx, 4)
		assert.Error(t, err)
	})
}

func TestConnect_unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Connect(ctx, "127.0.0.1:1", "", 0)
	assert.Error(t, err)
}
