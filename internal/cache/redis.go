// Package cache provides a Redis-backed scratch cache for in-progress flows.
//
// It implements store.CacheStore so deployments can keep fast-changing
// partial-progress records out of the relational store. Records carry no
// TTL by default: a scratch row lives until the flow commits or is canceled.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/labflowhq/labflow/internal/models"
)

const (
	bookingKeyPrefix   = "labflow:cache:booking:"
	uploadKeyPrefix    = "labflow:cache:upload:"
	retrievalKeyPrefix = "labflow:cache:retrieval:"
)

// Opts holds configuration options for the Redis cache.
type Opts struct {
	Addr string
	TTL  time.Duration
}

// Option defines a configuration option for the Redis cache.
type Option func(*Opts)

// WithAddr configures the Redis server address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithTTL configures an expiry for scratch records. Zero means no expiry.
func WithTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.TTL = ttl }
}

// RedisCache implements store.CacheStore over a Redis server.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed scratch cache and verifies connectivity.
func NewRedisCache(opts ...Option) (*RedisCache, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address not set")
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		slog.Error("RedisCache ping failed", "error", err, "addr", cfg.Addr)
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	slog.Debug("RedisCache connected", "addr", cfg.Addr, "ttl", cfg.TTL)
	return &RedisCache{client: client, ttl: cfg.TTL}, nil
}

// NewRedisCacheFromClient wraps an existing client; used by tests.
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Close closes the underlying Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) get(key string, dest interface{}) (bool, error) {
	raw, err := c.client.Get(context.Background(), key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		slog.Error("RedisCache get failed", "error", err, "key", key)
		return false, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		slog.Error("RedisCache unmarshal failed", "error", err, "key", key)
		return false, fmt.Errorf("failed to decode cache key %s: %w", key, err)
	}
	return true, nil
}

func (c *RedisCache) set(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache key %s: %w", key, err)
	}
	if err := c.client.Set(context.Background(), key, raw, c.ttl).Err(); err != nil {
		slog.Error("RedisCache set failed", "error", err, "key", key)
		return fmt.Errorf("failed to write cache key %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) delete(key string) error {
	if err := c.client.Del(context.Background(), key).Err(); err != nil {
		slog.Error("RedisCache delete failed", "error", err, "key", key)
		return fmt.Errorf("failed to delete cache key %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) GetBookingCache(userID string) (*models.BookingCache, error) {
	var rec models.BookingCache
	found, err := c.get(bookingKeyPrefix+userID, &rec)
	if err != nil || !found {
		return nil, err
	}
	return &rec, nil
}

func (c *RedisCache) SaveBookingCache(rec models.BookingCache) error {
	return c.set(bookingKeyPrefix+rec.UserID, rec)
}

func (c *RedisCache) DeleteBookingCache(userID string) error {
	return c.delete(bookingKeyPrefix + userID)
}

func (c *RedisCache) GetUploadCache(userID string) (*models.UploadCache, error) {
	var rec models.UploadCache
	found, err := c.get(uploadKeyPrefix+userID, &rec)
	if err != nil || !found {
		return nil, err
	}
	return &rec, nil
}

func (c *RedisCache) SaveUploadCache(rec models.UploadCache) error {
	return c.set(uploadKeyPrefix+rec.UserID, rec)
}

func (c *RedisCache) DeleteUploadCache(userID string) error {
	return c.delete(uploadKeyPrefix + userID)
}

func (c *RedisCache) GetRetrievalCache(userID string) (*models.RetrievalCache, error) {
	var rec models.RetrievalCache
	found, err := c.get(retrievalKeyPrefix+userID, &rec)
	if err != nil || !found {
		return nil, err
	}
	return &rec, nil
}

func (c *RedisCache) SaveRetrievalCache(rec models.RetrievalCache) error {
	return c.set(retrievalKeyPrefix+rec.UserID, rec)
}

func (c *RedisCache) DeleteRetrievalCache(userID string) error {
	return c.delete(retrievalKeyPrefix + userID)
}
