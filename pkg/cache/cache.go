// Package cache provides TTL bound key/value caches used to hold access tokens.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrCacheNotFound is returned by Get when the key is absent or expired.
	ErrCacheNotFound = errors.New("cache: key not found")
	// ErrInvalidExpiration is returned by Set when the entry would already be expired.
	ErrInvalidExpiration = errors.New("cache: expiration must be positive")
	// ErrEmptyKey is returned when an empty key is used.
	ErrEmptyKey = errors.New("cache: key cannot be empty")
)

// Cache is a TTL bound cache. Implementations must never return an entry after its expiration.
type Cache interface {
	Set(ctx context.Context, key string, val any, expiration time.Duration) error
	Get(ctx context.Context, key string, val any) error
	Del(ctx context.Context, keys ...string) error
}

// BuildCacheKey joins prefix and key.
func BuildCacheKey(keyPrefix string, key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrEmptyKey
	}
	return keyPrefix + key, nil
}

// IsNotFound reports whether err is a cache miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCacheNotFound)
}

func checkExpiration(expiration time.Duration) error {
	if expiration <= 0 {
		return ErrInvalidExpiration
	}
	return nil
}
