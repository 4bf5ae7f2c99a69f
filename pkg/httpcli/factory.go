// Package httpcli hands out named HTTP clients whose transport retries transient failures.
package httpcli

import (
	"net/http"
	"sync"
	"time"

	"github.com/moweilong/tokenservice/pkg/log"
)

const (
	// DefaultRetryCount is the number of retries after the first attempt.
	DefaultRetryCount = 3
	// DefaultRetryDelay is the initial backoff interval.
	DefaultRetryDelay = 2 * time.Second
	// MinRetryDelay is the smallest accepted backoff interval.
	MinRetryDelay = 100 * time.Millisecond
	// DefaultTimeout bounds a whole request including retries.
	DefaultTimeout = time.Minute
)

// ClientFactory produces an HTTP client for a logical client name.
type ClientFactory interface {
	Client(name string) *http.Client
}

// Option set the factory options field.
type Option func(*options)

type options struct {
	retryCount int
	retryDelay time.Duration
	timeout    time.Duration
	transport  http.RoundTripper
	logger     log.Logger
}

func (o *options) apply(opts ...Option) {
	for _, opt := range opts {
		opt(o)
	}
}

// WithRetry set the retry count and initial delay, clamped to at least 1 retry and MinRetryDelay.
func WithRetry(count int, delay time.Duration) Option {
	return func(o *options) {
		o.retryCount = max(1, count)
		o.retryDelay = max(MinRetryDelay, delay)
	}
}

// WithTimeout set the client timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithTransport set the transport wrapped by the retry layer.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
	}
}

// WithLogger set the logger used to report retries.
func WithLogger(l log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Factory memoizes one *http.Client per name.
type Factory struct {
	o       *options
	mu      sync.Mutex
	clients map[string]*http.Client
}

var _ ClientFactory = (*Factory)(nil)

// NewFactory creates a client factory.
func NewFactory(opts ...Option) *Factory {
	o := &options{
		retryCount: DefaultRetryCount,
		retryDelay: DefaultRetryDelay,
		timeout:    DefaultTimeout,
		transport:  http.DefaultTransport,
		logger:     log.Std(),
	}
	o.apply(opts...)

	return &Factory{o: o, clients: map[string]*http.Client{}}
}

// Client returns the client registered under name, creating it on first use.
func (f *Factory) Client(name string) *http.Client {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[name]; ok {
		return c
	}

	c := &http.Client{
		Timeout: f.o.timeout,
		Transport: &RetryTransport{
			Base:        f.o.transport,
			MaxAttempts: f.o.retryCount + 1,
			Delay:       f.o.retryDelay,
			Logger:      f.o.logger,
		},
	}
	f.clients[name] = c
	return c
}
