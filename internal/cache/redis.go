// Package cache provides the Redis-backed price cache used by the stock catalog.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const keyPrefix = "price:current:"

// RedisPriceCache stores the latest price per company as a decimal string
type RedisPriceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPriceCache creates a cache over an existing client
func NewRedisPriceCache(client *redis.Client, ttl time.Duration) *RedisPriceCache {
	return &RedisPriceCache{client: client, ttl: ttl}
}

// Connect opens a client for addr and verifies it with PING
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

func key(companyID int64) string {
	return keyPrefix + strconv.FormatInt(companyID, 10)
}

// Get returns the cached price and whether it was present
func (c *RedisPriceCache) Get(ctx context.Context, companyID int64) (decimal.Decimal, bool, error) {
	val, err := c.client.Get(ctx, key(companyID)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to read cached price for company %d: %w", companyID, err)
	}
	price, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("invalid cached price %q for company %d: %w", val, companyID, err)
	}
	return price, true, nil
}

// Set caches price for the configured TTL
func (c *RedisPriceCache) Set(ctx context.Context, companyID int64, price decimal.Decimal) error {
	if err := c.client.Set(ctx, key(companyID), price.String(), c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache price for company %d: %w", companyID, err)
	}
	return nil
}

// Invalidate drops the cached price
func (c *RedisPriceCache) Invalidate(ctx context.Context, companyID int64) error {
	if err := c.client.Del(ctx, key(companyID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached price for company %d: %w", companyID, err)
	}
	return nil
}
