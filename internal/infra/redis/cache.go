// Package redis holds the Redis connection and the gallery query cache.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// clearBatch is the number of keys deleted per DEL during Clear.
const clearBatch = 500

// Config holds the Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewClient connects to Redis and verifies the connection with a PING.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}

	return client, nil
}

// Cache implements domain.Cache on Redis. All keys live under keyPrefix so
// Clear only touches this service's entries.
type Cache struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
}

// NewCache creates a new Redis cache instance.
// keyPrefix namespaces every key, so several deployments or other
// applications may share one Redis database.
func NewCache(client *redis.Client, logger *zap.Logger, keyPrefix string) *Cache {
	return &Cache{
		client:    client,
		logger:    logger,
		keyPrefix: keyPrefix,
	}
}

// Get retrieves a cached gallery page. Returns nil, nil on a miss.
// The key is automatically prefixed with the configured keyPrefix.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, c.buildKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		c.logger.Error("cache get failed", zap.String("key", key), zap.Error(err))
		return nil, err
	}

	c.logger.Debug("cache hit", zap.String("key", key), zap.Int("bytes", len(data)))

	return data, nil
}

// Set stores value under key for ttl.
// The key is automatically prefixed with the configured keyPrefix.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.buildKey(key), value, ttl).Err(); err != nil {
		c.logger.Error("cache set failed",
			zap.String("key", key),
			zap.Int("bytes", len(value)),
			zap.Error(err),
		)
		return err
	}

	return nil
}

// Delete removes key. Missing keys are not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.buildKey(key)).Err(); err != nil {
		c.logger.Error("cache delete failed", zap.String("key", key), zap.Error(err))
		return err
	}

	return nil
}

// Clear removes every key under the prefix. It is called after each
// snapshot reload, so keys are scanned and deleted in chunks rather than
// collected first.
func (c *Cache) Clear(ctx context.Context) error {
	pattern := c.keyPrefix + ":*"
	iter := c.client.Scan(ctx, 0, pattern, clearBatch).Iterator()

	var (
		keys    = make([]string, 0, clearBatch)
		removed int
	)
	flush := func() error {
		if len(keys) == 0 {
			return nil
		}
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return err
		}
		removed += len(keys)
		keys = keys[:0]
		return nil
	}

	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == clearBatch {
			if err := flush(); err != nil {
				c.logger.Error("cache clear delete failed", zap.Error(err))
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.Error("cache clear scan failed", zap.String("pattern", pattern), zap.Error(err))
		return err
	}
	if err := flush(); err != nil {
		c.logger.Error("cache clear delete failed", zap.Error(err))
		return err
	}

	c.logger.Info("query cache cleared", zap.Int("key_count", removed))

	return nil
}

func (c *Cache) buildKey(key string) string {
	return c.keyPrefix + ":" + key
}
