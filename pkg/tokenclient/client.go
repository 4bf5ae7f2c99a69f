// Package tokenclient acquires OAuth2 client-credentials access tokens and caches them until
// shortly before they expire. Concurrent callers of one client share a single remote request.
package tokenclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/moweilong/tokenservice/pkg/cache"
	"github.com/moweilong/tokenservice/pkg/encoding"
	"github.com/moweilong/tokenservice/pkg/httpcli"
	"github.com/moweilong/tokenservice/pkg/log"
	"github.com/moweilong/tokenservice/pkg/stat"
)

// maxResponseBytes bounds the token response body.
const maxResponseBytes = 1 << 20

// StatsRegistry hands out the statistics of a token source.
type StatsRegistry interface {
	GetOrCreate(key string) *stat.ServiceStats
}

// Client acquires tokens for the token source configured by T.
type Client[T OptionsProvider] struct {
	cache    cache.Cache
	options  T
	factory  httpcli.ClientFactory
	registry StatsRegistry
	logger   log.Logger
	codec    encoding.Encoding

	cacheKey string
	statsKey string

	// flight lets one caller fetch while the others wait for its result.
	flight singleflight.Group
}

// New creates a client. Every dependency is required.
func New[T OptionsProvider](
	c cache.Cache,
	options T,
	factory httpcli.ClientFactory,
	registry StatsRegistry,
	logger log.Logger,
) (*Client[T], error) {
	switch {
	case isNil(c):
		return nil, missingDependency("cache")
	case isNil(options) || options.TokenServiceOptions() == nil:
		return nil, missingDependency("options")
	case isNil(factory):
		return nil, missingDependency("factory")
	case isNil(registry):
		return nil, missingDependency("statsRegistry")
	case isNil(logger):
		return nil, missingDependency("logger")
	}

	return newClient(c, options, factory, registry, logger, TypeName[T]()), nil
}

// newClient derives the cache and statistics keys from name.
func newClient[T OptionsProvider](
	c cache.Cache,
	options T,
	factory httpcli.ClientFactory,
	registry StatsRegistry,
	logger log.Logger,
	name string,
) *Client[T] {
	return &Client[T]{
		cache:    c,
		options:  options,
		factory:  factory,
		registry: registry,
		logger:   logger,
		codec:    encoding.JSONEncoding{},
		cacheKey: name + ":AccessToken",
		statsKey: name + ":ServiceStats",
	}
}

// CacheKey is the key the token is cached under.
func (c *Client[T]) CacheKey() string { return c.cacheKey }

// StatsKey is the key of this client's statistics in the registry.
func (c *Client[T]) StatsKey() string { return c.statsKey }

// Options returns the bound options.
func (c *Client[T]) Options() T { return c.options }

// Stats returns this client's statistics.
func (c *Client[T]) Stats() *stat.ServiceStats { return c.registry.GetOrCreate(c.statsKey) }

// GetAccessToken returns a cached token, or fetches, caches and returns a fresh one.
// At most one fetch is in flight per client, concurrent callers receive its result or its error.
func (c *Client[T]) GetAccessToken(ctx context.Context) (string, error) {
	if token, ok := c.cached(ctx); ok {
		c.Stats().OnCacheHit()
		return token.AccessToken, nil
	}

	for {
		ch := c.flight.DoChan(c.cacheKey, func() (any, error) {
			token, err := c.refresh(ctx)
			if err != nil && ctx.Err() != nil {
				return nil, &abandonedError{err: err}
			}
			return token, err
		})

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case res := <-ch:
			var abandoned *abandonedError
			if errors.As(res.Err, &abandoned) {
				// The caller that started the flight went away. Live callers start another one.
				if ctx.Err() == nil {
					continue
				}
				return "", abandoned.err
			}
			if res.Err != nil {
				return "", res.Err
			}
			return res.Val.(string), nil
		}
	}
}

// abandonedError marks a flight that failed because the context of the caller that
// started it ended.
type abandonedError struct {
	err error
}

func (e *abandonedError) Error() string { return e.err.Error() }

func (e *abandonedError) Unwrap() error { return e.err }

func (c *Client[T]) refresh(ctx context.Context) (string, error) {
	// Another caller may have filled the cache while this one was waiting.
	if token, ok := c.cached(ctx); ok {
		c.Stats().OnCacheHit()
		return token.AccessToken, nil
	}

	token, err := c.RequestAccessToken(ctx)
	if err != nil {
		return "", err
	}

	ttl := time.Until(CalculateExpiration(token.ExpiresIn))
	if ttl <= 0 {
		c.logger.Warnw("Token lifetime too short to cache", "key", c.cacheKey, "expiresIn", token.ExpiresIn)
		return token.AccessToken, nil
	}
	if err := c.cache.Set(context.WithoutCancel(ctx), c.cacheKey, token, ttl); err != nil {
		c.logger.Errorw(err, "Failed to cache access token", "key", c.cacheKey)
	}
	return token.AccessToken, nil
}

func (c *Client[T]) cached(ctx context.Context) (*AccessToken, bool) {
	var token AccessToken
	if err := c.cache.Get(ctx, c.cacheKey, &token); err != nil {
		if !cache.IsNotFound(err) {
			c.logger.Warnw("Token cache lookup failed", "key", c.cacheKey, "err", err)
		}
		return nil, false
	}
	return &token, true
}

// RequestAccessToken fetches a fresh token from the token service, bypassing the cache.
func (c *Client[T]) RequestAccessToken(ctx context.Context) (*AccessToken, error) {
	stats := c.Stats()
	stats.OnAcquireAttemptStart()
	start := time.Now()

	opts := c.options.TokenServiceOptions()
	token, err := c.requestAccessToken(ctx, opts, stats, start)
	if err == nil {
		return token, nil
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return nil, err
	}

	stats.OnAcquireFailure(time.Since(start))
	wrapped := &RequestError{ServiceURL: opts.ServiceURL, Reason: reasonUnexpected, Err: err}
	c.logger.Errorw(err, wrapped.Error(), "serviceUrl", opts.ServiceURL)
	return nil, wrapped
}

func (c *Client[T]) requestAccessToken(ctx context.Context, opts *Options, stats *stat.ServiceStats, start time.Time) (*AccessToken, error) {
	encoded, err := opts.EncodedAuthToken()
	if err != nil {
		return nil, err
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.ServiceURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+encoded)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.factory.Client(ClientName).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		stats.OnAcquireFailure(time.Since(start))
		return nil, newStatusError(opts.ServiceURL, resp.StatusCode, reasonPhrase(resp))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	var token *AccessToken
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 {
		if err := c.codec.Unmarshal(trimmed, &token); err != nil {
			return nil, fmt.Errorf("failed to decode token response: %w", err)
		}
	}
	if token == nil {
		stats.OnAcquireFailure(time.Since(start))
		return nil, &RequestError{ServiceURL: opts.ServiceURL, Reason: reasonDeserialize}
	}

	stats.OnAcquireSuccess(time.Since(start), CalculateExpiration(token.ExpiresIn))
	return token, nil
}

// reasonPhrase extracts the text following the status code, e.g. "Bad Request" from "400 Bad Request".
func reasonPhrase(resp *http.Response) string {
	code := strconv.Itoa(resp.StatusCode)
	if phrase := strings.TrimSpace(strings.TrimPrefix(resp.Status, code)); phrase != "" {
		return phrase
	}
	return http.StatusText(resp.StatusCode)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
