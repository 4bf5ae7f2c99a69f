package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/moweilong/tokenservice/pkg/encoding"
)

// RedisConfig holds the configuration for the redis backend.
type RedisConfig struct {
	Addr         string        `json:"addr" mapstructure:"addr"`
	Password     string        `json:"password" mapstructure:"password"`
	DB           int           `json:"db" mapstructure:"db"`
	DialTimeout  time.Duration `json:"dial-timeout" mapstructure:"dial-timeout"`
	ReadTimeout  time.Duration `json:"read-timeout" mapstructure:"read-timeout"`
	WriteTimeout time.Duration `json:"write-timeout" mapstructure:"write-timeout"`
	PoolSize     int           `json:"pool-size" mapstructure:"pool-size"`
	// KeyPrefix is prepended to every key so several services can share one database.
	KeyPrefix string `json:"key-prefix" mapstructure:"key-prefix"`
}

// DefaultRedisConfig returns a default redis configuration.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:         "localhost:6379",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		KeyPrefix:    "tokenservice:",
	}
}

// RedisCache is a Cache shared by every process pointing at the same redis database.
type RedisCache struct {
	client    redis.UniversalClient
	keyPrefix string
	encoding  encoding.Encoding
}

var _ Cache = (*RedisCache)(nil)

// NewRedisClient opens a client from cfg and verifies the connection.
func NewRedisClient(ctx context.Context, cfg *RedisConfig) (*redis.Client, error) {
	if cfg == nil {
		cfg = DefaultRedisConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client redis.UniversalClient, keyPrefix string, e encoding.Encoding) *RedisCache {
	if e == nil {
		e = encoding.JSONEncoding{}
	}
	return &RedisCache{client: client, keyPrefix: keyPrefix, encoding: e}
}

// Set data
func (r *RedisCache) Set(ctx context.Context, key string, val any, expiration time.Duration) error {
	if err := checkExpiration(expiration); err != nil {
		return err
	}
	buf, err := encoding.Marshal(r.encoding, val)
	if err != nil {
		return fmt.Errorf("encoding.Marshal error: %w, key=%s", err, key)
	}
	cacheKey, err := BuildCacheKey(r.keyPrefix, key)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, cacheKey, buf, expiration).Err(); err != nil {
		return fmt.Errorf("redis set key=%s: %w", cacheKey, err)
	}
	return nil
}

// Get data
func (r *RedisCache) Get(ctx context.Context, key string, val any) error {
	cacheKey, err := BuildCacheKey(r.keyPrefix, key)
	if err != nil {
		return err
	}

	data, err := r.client.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheNotFound
		}
		return fmt.Errorf("redis get key=%s: %w", cacheKey, err)
	}

	if err := encoding.Unmarshal(r.encoding, data, val); err != nil {
		return fmt.Errorf("encoding.Unmarshal error: %w, key=%s, type=%T", err, key, val)
	}
	return nil
}

// Del delete data
func (r *RedisCache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	cacheKeys := make([]string, 0, len(keys))
	for _, key := range keys {
		cacheKey, err := BuildCacheKey(r.keyPrefix, key)
		if err != nil {
			return err
		}
		cacheKeys = append(cacheKeys, cacheKey)
	}
	if err := r.client.Del(ctx, cacheKeys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (r *RedisCache) Close() error {
	return r.client.Close()
}
