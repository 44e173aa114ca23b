package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis cache configuration
type RedisConfig struct {
	Addresses []string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// RedisCache stores read-model entries in Redis so several API nodes share them
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache creates a cache over a standalone or cluster client
func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("no Redis addresses configured")
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Addresses,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisCacheWithClient(client, cfg.KeyPrefix, cfg.TTL), nil
}

// NewRedisCacheWithClient wraps an existing client
func NewRedisCacheWithClient(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "pns:domain:"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) key(nameHash common.Hash) string {
	return c.prefix + nameHash.Hex()
}

func (c *RedisCache) Get(ctx context.Context, nameHash common.Hash) ([]byte, bool, error) {
	v, err := c.client.Get(ctx, c.key(nameHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return v, true, nil
}

func (c *RedisCache) Set(ctx context.Context, nameHash common.Hash, value []byte) error {
	if err := c.client.Set(ctx, c.key(nameHash), value, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, nameHash common.Hash) error {
	if err := c.client.Del(ctx, c.key(nameHash)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate %s: %w", nameHash.Hex(), err)
	}
	return nil
}

// Close closes the Redis client
func (c *RedisCache) Close() error {
	return c.client.Close()
}
