// Package middleware contains the gin middleware of the tokenctl server.
package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Option set the access log options.
type Option func(*options)

type options struct {
	log          *zap.Logger
	ignoreRoutes map[string]struct{}
	errorCodes   map[int]struct{}
}

func defaultOptions() *options {
	return &options{
		log:          zap.NewNop(),
		ignoreRoutes: map[string]struct{}{},
		errorCodes: map[int]struct{}{
			http.StatusInternalServerError: {},
			http.StatusBadGateway:          {},
			http.StatusServiceUnavailable:  {},
		},
	}
}

func (o *options) apply(opts ...Option) {
	for _, opt := range opts {
		opt(o)
	}
}

// WithLog set log
func WithLog(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithIgnoreRoutes skips logging for the given paths, typically scrape endpoints.
func WithIgnoreRoutes(routes ...string) Option {
	return func(o *options) {
		for _, route := range routes {
			o.ignoreRoutes[route] = struct{}{}
		}
	}
}

// WithPrintErrorByCodes logs responses with these codes at error level.
func WithPrintErrorByCodes(codes ...int) Option {
	return func(o *options) {
		for _, c := range codes {
			o.errorCodes[c] = struct{}{}
		}
	}
}

// Logging writes one access log line per request. Bodies are never logged since
// responses may carry token metadata.
func Logging(opts ...Option) gin.HandlerFunc {
	o := defaultOptions()
	o.apply(opts...)

	return func(c *gin.Context) {
		if _, ok := o.ignoreRoutes[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		code := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("code", code),
			zap.String("method", c.Request.Method),
			zap.String("url", c.Request.URL.Path),
			zap.Int64("time_us", time.Since(start).Microseconds()),
			zap.Int("size", c.Writer.Size()),
		}
		if id := RequestIDFrom(c); id != "" {
			fields = append(fields, zap.String("request_id", id))
		}

		if _, ok := o.errorCodes[code]; ok {
			o.log.Error("http response", fields...)
			return
		}
		o.log.Info("http response", fields...)
	}
}
