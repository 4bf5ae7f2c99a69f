// Package stat records per token source acquisition statistics and reports them.
package stat

import (
	"sync"
	"sync/atomic"
	"time"
)

// ServiceStats tracks the acquisition history of one token source.
// All methods are safe for concurrent use.
type ServiceStats struct {
	mu                      sync.Mutex
	hasToken                bool
	expiresAt               *time.Time
	lastAcquireDuration     *time.Duration
	lastSuccessfulAcquireAt *time.Time
	lastAcquireAttemptAt    *time.Time

	// failedAttempts is cumulative since process start, a success does not reset it.
	failedAttempts atomic.Int64

	now func() time.Time
}

// Values is a consistent copy of a ServiceStats.
type Values struct {
	HasToken                bool           `json:"hasToken"`
	ExpiresAt               *time.Time     `json:"expiresAtUtc,omitempty"`
	LastAcquireDuration     *time.Duration `json:"lastAcquireDuration,omitempty"`
	LastSuccessfulAcquireAt *time.Time     `json:"lastSuccessfulAcquireAtUtc,omitempty"`
	LastAcquireAttemptAt    *time.Time     `json:"lastAcquireAttemptAtUtc,omitempty"`
	FailedAttempts          int64          `json:"failedAttempts"`
}

// NewServiceStats returns an empty ServiceStats.
func NewServiceStats() *ServiceStats {
	return &ServiceStats{now: func() time.Time { return time.Now().UTC() }}
}

// OnCacheHit marks the source as holding a token. Other fields are left untouched.
func (s *ServiceStats) OnCacheHit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasToken = true
}

// OnAcquireAttemptStart records the start of a remote acquisition.
func (s *ServiceStats) OnAcquireAttemptStart() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAcquireAttemptAt = &now
}

// OnAcquireSuccess records a successful remote acquisition.
func (s *ServiceStats) OnAcquireSuccess(duration time.Duration, expiresAt time.Time) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasToken = true
	s.lastAcquireDuration = &duration
	s.lastSuccessfulAcquireAt = &now
	s.expiresAt = &expiresAt
}

// OnAcquireFailure records a failed remote acquisition.
func (s *ServiceStats) OnAcquireFailure(duration time.Duration) {
	s.failedAttempts.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasToken = false
	s.expiresAt = nil
	s.lastAcquireDuration = &duration
}

// FailedAttempts returns the number of failed acquisitions since process start.
func (s *ServiceStats) FailedAttempts() int64 {
	return s.failedAttempts.Load()
}

// Snapshot copies the current values.
func (s *ServiceStats) Snapshot() Values {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Values{
		HasToken:                s.hasToken,
		ExpiresAt:               copyTime(s.expiresAt),
		LastAcquireDuration:     copyDuration(s.lastAcquireDuration),
		LastSuccessfulAcquireAt: copyTime(s.lastSuccessfulAcquireAt),
		LastAcquireAttemptAt:    copyTime(s.lastAcquireAttemptAt),
		FailedAttempts:          s.failedAttempts.Load(),
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyDuration(d *time.Duration) *time.Duration {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}
