package cache

import (
	"context"
	"fmt"
	"io"
)

// Type selects a cache backend.
type Type string

const (
	// MemoryType keeps tokens in process.
	MemoryType Type = "memory"
	// RedisType shares tokens through redis.
	RedisType Type = "redis"
)

// Config holds the configuration for creating a cache.
type Config struct {
	Type  Type         `json:"type" mapstructure:"type"`
	Redis *RedisConfig `json:"redis" mapstructure:"redis"`
}

// DefaultConfig returns a memory cache configuration.
func DefaultConfig() *Config {
	return &Config{Type: MemoryType}
}

// Validate checks the cache configuration.
func (c *Config) Validate() []error {
	errs := []error{}
	switch c.Type {
	case "", MemoryType:
	case RedisType:
		if c.Redis == nil || c.Redis.Addr == "" {
			errs = append(errs, fmt.Errorf("cache.redis.addr is required when cache.type is %q", RedisType))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported cache type: %s", c.Type))
	}
	return errs
}

// New creates a cache from cfg. The returned closer releases its resources.
func New(ctx context.Context, cfg *Config) (Cache, io.Closer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	switch cfg.Type {
	case "", MemoryType:
		m, err := NewMemoryCache()
		if err != nil {
			return nil, nil, err
		}
		return m, m, nil

	case RedisType:
		redisCfg := cfg.Redis
		if redisCfg == nil {
			redisCfg = DefaultRedisConfig()
		}
		client, err := NewRedisClient(ctx, redisCfg)
		if err != nil {
			return nil, nil, err
		}
		r := NewRedisCache(client, redisCfg.KeyPrefix, nil)
		return r, r, nil

	default:
		return nil, nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}
