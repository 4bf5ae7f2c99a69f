package httpcli

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/moweilong/tokenservice/pkg/log"
)

// RetryTransport retries network errors and transient statuses with exponential backoff and jitter.
type RetryTransport struct {
	// Base performs the requests. http.DefaultTransport is used when nil.
	Base http.RoundTripper
	// MaxAttempts includes the first attempt.
	MaxAttempts int
	// Delay is the initial backoff interval.
	Delay  time.Duration
	Logger log.Logger
}

var _ http.RoundTripper = (*RetryTransport)(nil)

type retryableStatusError struct {
	resp *http.Response
}

func (e *retryableStatusError) Error() string {
	return fmt.Sprintf("retryable response status %d", e.resp.StatusCode)
}

// IsRetryableStatus reports whether a response with this status may succeed on a later attempt.
func IsRetryableStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// RoundTrip implements http.RoundTripper.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	attempts := t.MaxAttempts
	// A body that cannot be replayed gets exactly one attempt.
	if attempts < 1 || (req.Body != nil && req.Body != http.NoBody && req.GetBody == nil) {
		attempts = 1
	}

	ctx := req.Context()
	attempt := 0
	operation := func() (*http.Response, error) {
		attempt++
		r, err := t.prepare(req, attempt)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		resp, err := base.RoundTrip(r)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if IsRetryableStatus(resp.StatusCode) {
			return nil, &retryableStatusError{resp: resp}
		}
		return resp, nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = t.delay()
	expBackoff.Multiplier = 2
	expBackoff.MaxInterval = 30 * t.delay()
	expBackoff.Reset()

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(uint(attempts)), // #nosec G115 -- attempts is at least 1
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, d time.Duration) {
			var se *retryableStatusError
			if errors.As(err, &se) {
				drain(se.resp)
			}
			if t.Logger != nil {
				t.Logger.Warnw("Retrying token service request", "url", req.URL.Redacted(), "attempt", attempt, "delay", d, "reason", err.Error())
			}
		}),
	)
	if err != nil {
		var se *retryableStatusError
		if errors.As(err, &se) {
			// Out of attempts, hand the last response to the caller.
			return se.resp, nil
		}
		return nil, err
	}
	return resp, nil
}

func (t *RetryTransport) delay() time.Duration {
	if t.Delay <= 0 {
		return DefaultRetryDelay
	}
	return t.Delay
}

func (t *RetryTransport) prepare(req *http.Request, attempt int) (*http.Request, error) {
	if attempt == 1 || req.GetBody == nil {
		return req, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("failed to replay request body: %w", err)
	}
	r := req.Clone(req.Context())
	r.Body = body
	return r, nil
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
