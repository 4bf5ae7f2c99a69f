package stat

import (
	"sort"
	"time"
)

// AlarmOption set the alarm options field.
type AlarmOption func(*alarmOptions)

type alarmOptions struct {
	failureThreshold int64
	triggerInterval  time.Duration
}

func defaultAlarmOptions() *alarmOptions {
	return &alarmOptions{
		failureThreshold: 3,
		triggerInterval:  15 * time.Minute,
	}
}

func (o *alarmOptions) apply(opts ...AlarmOption) {
	for _, opt := range opts {
		opt(o)
	}
}

// WithFailureThreshold set how many new failures between two reports raise an alarm.
func WithFailureThreshold(n int64) AlarmOption {
	return func(o *alarmOptions) {
		if n < 1 {
			return
		}
		o.failureThreshold = n
	}
}

// WithTriggerInterval set the minimum time between two alarms for the same source.
func WithTriggerInterval(d time.Duration) AlarmOption {
	return func(o *alarmOptions) {
		if d < 0 {
			return
		}
		o.triggerInterval = d
	}
}

type alarmGroup struct {
	o        *alarmOptions
	previous map[string]int64
	alarmAt  map[string]time.Time
}

func newAlarmGroup(o *alarmOptions) *alarmGroup {
	return &alarmGroup{
		o:        o,
		previous: map[string]int64{},
		alarmAt:  map[string]time.Time{},
	}
}

// check returns the keys whose failure counter grew by at least the threshold since the last report.
func (g *alarmGroup) check(sd *StatData) []string {
	var keys []string
	for key, v := range sd.Sources {
		prev, seen := g.previous[key]
		g.previous[key] = v.FailedAttempts
		if !seen {
			prev = 0
		}
		if v.FailedAttempts-prev < g.o.failureThreshold {
			continue
		}

		last := g.alarmAt[key]
		if last.IsZero() || sd.At.Sub(last) >= g.o.triggerInterval {
			g.alarmAt[key] = sd.At
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}
