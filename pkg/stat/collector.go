package stat

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tokenservice"

// Collector exports the registry as prometheus metrics, labelled by source key.
type Collector struct {
	registry *Registry

	hasToken       *prometheus.Desc
	expiresAt      *prometheus.Desc
	acquireSeconds *prometheus.Desc
	lastSuccess    *prometheus.Desc
	lastAttempt    *prometheus.Desc
	failedAttempts *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector reading registry at scrape time.
func NewCollector(registry *Registry) *Collector {
	labels := []string{"source"}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "client", name), help, labels, nil)
	}

	return &Collector{
		registry:       registry,
		hasToken:       desc("has_token", "Whether the source currently holds a token (1) or not (0)."),
		expiresAt:      desc("token_expires_at_seconds", "Unix time at which the cached token is treated as expired."),
		acquireSeconds: desc("last_acquire_duration_seconds", "Duration of the last remote acquisition."),
		lastSuccess:    desc("last_success_timestamp_seconds", "Unix time of the last successful acquisition."),
		lastAttempt:    desc("last_attempt_timestamp_seconds", "Unix time of the last acquisition attempt."),
		failedAttempts: desc("failed_attempts_total", "Failed acquisitions since process start."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hasToken
	ch <- c.expiresAt
	ch <- c.acquireSeconds
	ch <- c.lastSuccess
	ch <- c.lastAttempt
	ch <- c.failedAttempts
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.registry.Snapshot().Range(func(key string, s *ServiceStats) bool {
		v := s.Snapshot()

		hasToken := 0.0
		if v.HasToken {
			hasToken = 1
		}
		ch <- prometheus.MustNewConstMetric(c.hasToken, prometheus.GaugeValue, hasToken, key)
		ch <- prometheus.MustNewConstMetric(c.failedAttempts, prometheus.CounterValue, float64(v.FailedAttempts), key)

		if v.ExpiresAt != nil {
			ch <- prometheus.MustNewConstMetric(c.expiresAt, prometheus.GaugeValue, float64(v.ExpiresAt.Unix()), key)
		}
		if v.LastAcquireDuration != nil {
			ch <- prometheus.MustNewConstMetric(c.acquireSeconds, prometheus.GaugeValue, v.LastAcquireDuration.Seconds(), key)
		}
		if v.LastSuccessfulAcquireAt != nil {
			ch <- prometheus.MustNewConstMetric(c.lastSuccess, prometheus.GaugeValue, float64(v.LastSuccessfulAcquireAt.Unix()), key)
		}
		if v.LastAcquireAttemptAt != nil {
			ch <- prometheus.MustNewConstMetric(c.lastAttempt, prometheus.GaugeValue, float64(v.LastAcquireAttemptAt.Unix()), key)
		}
		return true
	})
}
