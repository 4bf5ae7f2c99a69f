// Package health turns token source statistics into a health report.
package health

import (
	"time"

	"github.com/moweilong/tokenservice/pkg/stat"
)

// Status is the health of one token source or of the whole process.
type Status int

const (
	Healthy Status = iota
	Degraded
	Unhealthy
)

// SlowAcquireThreshold marks an acquisition as degraded when it took longer.
const SlowAcquireThreshold = 5 * time.Second

const (
	descNoClients = "No Token Service clients have been used yet."
	descUnhealthy = "One or more Token Service clients are unhealthy."
	descDegraded  = "One or more Token Service clients are degraded."
	descHealthy   = "All Token Service clients are healthy."
)

func (s Status) String() string {
	switch s {
	case Healthy:
		return "Healthy"
	case Degraded:
		return "Degraded"
	case Unhealthy:
		return "Unhealthy"
	default:
		return "Unknown"
	}
}

// MarshalText renders the status by name in JSON reports.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Report is the outcome of Check.
type Report struct {
	Status      Status                    `json:"status"`
	Description string                    `json:"description"`
	Data        map[string]map[string]any `json:"data,omitempty"`
}

// Check evaluates every entry in view against now.
func Check(view stat.View, now time.Time) Report {
	report := Report{Status: Healthy, Data: map[string]map[string]any{}}

	view.Range(func(key string, s *stat.ServiceStats) bool {
		v := s.Snapshot()
		if st := evaluate(v, now); st > report.Status {
			report.Status = st
		}
		report.Data[key] = entryData(v)
		return true
	})

	switch {
	case len(report.Data) == 0:
		report.Status = Degraded
		report.Description = descNoClients
		report.Data = nil
	case report.Status == Unhealthy:
		report.Description = descUnhealthy
	case report.Status == Degraded:
		report.Description = descDegraded
	default:
		report.Description = descHealthy
	}
	return report
}

func evaluate(v stat.Values, now time.Time) Status {
	if !v.HasToken || v.ExpiresAt == nil || !v.ExpiresAt.After(now) {
		return Unhealthy
	}
	if v.LastSuccessfulAcquireAt == nil {
		return Degraded
	}
	if v.LastAcquireDuration != nil && *v.LastAcquireDuration > SlowAcquireThreshold {
		return Degraded
	}
	return Healthy
}

func entryData(v stat.Values) map[string]any {
	data := map[string]any{
		"hasToken":       v.HasToken,
		"failedAttempts": v.FailedAttempts,
	}
	if v.ExpiresAt != nil {
		data["expiresAtUtc"] = v.ExpiresAt.UTC()
	}
	if v.LastAcquireDuration != nil {
		data["lastAcquireDurationMs"] = v.LastAcquireDuration.Milliseconds()
	}
	if v.LastSuccessfulAcquireAt != nil {
		data["lastSuccessfulAcquireAtUtc"] = v.LastSuccessfulAcquireAt.UTC()
	}
	if v.LastAcquireAttemptAt != nil {
		data["lastAcquireAttemptAtUtc"] = v.LastAcquireAttemptAt.UTC()
	}
	return data
}
