package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/moweilong/tokenservice/pkg/encoding"
)

type options struct {
	numCounters int64
	maxCost     int64
	bufferItems int64
	keyPrefix   string
	encoding    encoding.Encoding
}

func defaultOptions() *options {
	return &options{
		numCounters: 1e4,     // number of keys to track frequency of (10k).
		maxCost:     1 << 24, // maximum cost of cache (16MB).
		bufferItems: 64,      // number of keys per Get buffer.
		encoding:    encoding.JSONEncoding{},
	}
}

// Option set the memory cache options.
type Option func(*options)

func (o *options) apply(opts ...Option) {
	for _, opt := range opts {
		opt(o)
	}
}

// WithNumCounters set number of keys.
func WithNumCounters(numCounters int64) Option {
	return func(o *options) {
		o.numCounters = numCounters
	}
}

// WithMaxCost set maximum cost of cache.
func WithMaxCost(maxCost int64) Option {
	return func(o *options) {
		o.maxCost = maxCost
	}
}

// WithBufferItems set number of keys per Get buffer.
func WithBufferItems(bufferItems int64) Option {
	return func(o *options) {
		o.bufferItems = bufferItems
	}
}

// WithKeyPrefix set the prefix prepended to every key.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.keyPrefix = prefix
	}
}

// WithEncoding set the value codec.
func WithEncoding(e encoding.Encoding) Option {
	return func(o *options) {
		if e != nil {
			o.encoding = e
		}
	}
}

// InitMemory create a ristretto cache
func InitMemory(opts ...Option) (*ristretto.Cache, error) {
	o := defaultOptions()
	o.apply(opts...)

	// see: https://dgraph.io/blog/post/introducing-ristretto-high-perf-go-cache/
	return ristretto.NewCache(&ristretto.Config{
		NumCounters: o.numCounters,
		MaxCost:     o.maxCost,
		BufferItems: o.bufferItems,
	})
}

// MemoryCache is a Cache backed by ristretto.
type MemoryCache struct {
	client    *ristretto.Cache
	keyPrefix string
	encoding  encoding.Encoding
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache create an in-process cache
func NewMemoryCache(opts ...Option) (*MemoryCache, error) {
	o := defaultOptions()
	o.apply(opts...)

	client, err := InitMemory(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}

	return &MemoryCache{
		client:    client,
		keyPrefix: o.keyPrefix,
		encoding:  o.encoding,
	}, nil
}

// Set data
func (m *MemoryCache) Set(_ context.Context, key string, val any, expiration time.Duration) error {
	if err := checkExpiration(expiration); err != nil {
		return err
	}
	buf, err := encoding.Marshal(m.encoding, val)
	if err != nil {
		return fmt.Errorf("encoding.Marshal error: %w, key=%s", err, key)
	}
	cacheKey, err := BuildCacheKey(m.keyPrefix, key)
	if err != nil {
		return err
	}
	if ok := m.client.SetWithTTL(cacheKey, buf, int64(len(buf)), expiration); !ok {
		return fmt.Errorf("memory cache rejected key=%s", key)
	}
	m.client.Wait()

	return nil
}

// Get data
func (m *MemoryCache) Get(_ context.Context, key string, val any) error {
	cacheKey, err := BuildCacheKey(m.keyPrefix, key)
	if err != nil {
		return err
	}

	data, ok := m.client.Get(cacheKey)
	if !ok {
		return ErrCacheNotFound
	}

	dataBytes, ok := data.([]byte)
	if !ok {
		return fmt.Errorf("data type error, key=%s, type=%T", key, data)
	}

	if err := encoding.Unmarshal(m.encoding, dataBytes, val); err != nil {
		return fmt.Errorf("encoding.Unmarshal error: %w, key=%s, type=%T", err, key, val)
	}
	return nil
}

// Del delete data
func (m *MemoryCache) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		cacheKey, err := BuildCacheKey(m.keyPrefix, key)
		if err != nil {
			return err
		}
		m.client.Del(cacheKey)
	}
	m.client.Wait()
	return nil
}

// Close stops the ristretto goroutines.
func (m *MemoryCache) Close() error {
	m.client.Close()
	return nil
}
