package stat

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const minPrintInterval = time.Second

// Option set the reporter options field.
type Option func(*options)

type options struct {
	printInterval time.Duration
	zapLog        *zap.Logger
	zapFields     []zap.Field
	enableAlarm   bool
	alarm         *alarmOptions
	customHandler func(ctx context.Context, sd *StatData) error
}

func defaultOptions() *options {
	return &options{
		printInterval: time.Minute,
		zapLog:        zap.NewNop(),
		alarm:         defaultAlarmOptions(),
	}
}

func (o *options) apply(opts ...Option) {
	for _, opt := range opts {
		opt(o)
	}
}

// WithPrintInterval set print interval, minimum 1 second
func WithPrintInterval(d time.Duration) Option {
	return func(o *options) {
		if d < minPrintInterval {
			return
		}
		o.printInterval = d
	}
}

// WithLog set zapLog
func WithLog(l *zap.Logger) Option {
	return func(o *options) {
		if l == nil {
			return
		}
		o.zapLog = l
	}
}

// WithPrintField set print field
func WithPrintField(fields ...zap.Field) Option {
	return func(o *options) {
		o.zapFields = fields
	}
}

// WithAlarm enable failure alarms, delivered through Reporter.Notify.
func WithAlarm(opts ...AlarmOption) Option {
	return func(o *options) {
		o.alarm.apply(opts...)
		o.enableAlarm = true
	}
}

// WithCustomHandler set custom handler, will replace default print stat data handler
func WithCustomHandler(handler func(ctx context.Context, sd *StatData) error) Option {
	return func(o *options) {
		o.customHandler = handler
	}
}

// StatData is the periodic report of every registered token source.
type StatData struct {
	At      time.Time         `json:"at"`
	Sources map[string]Values `json:"sources"`
}

// Reporter periodically logs the registry content and raises failure alarms.
type Reporter struct {
	registry *Registry
	o        *options
	notifyCh chan string
	group    *alarmGroup
}

// NewReporter creates a reporter over registry.
func NewReporter(registry *Registry, opts ...Option) *Reporter {
	o := defaultOptions()
	o.apply(opts...)

	return &Reporter{
		registry: registry,
		o:        o,
		notifyCh: make(chan string, 1),
		group:    newAlarmGroup(o.alarm),
	}
}

// Notify delivers the key of a token source whose failures crossed the alarm threshold.
// Alarms are dropped when nobody is receiving.
func (r *Reporter) Notify() <-chan string {
	return r.notifyCh
}

// Run reports every print interval until ctx is done.
func (r *Reporter) Run(ctx context.Context) {
	printTick := time.NewTicker(r.o.printInterval)
	defer printTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-printTick.C:
			r.tick(ctx)
		}
	}
}

func (r *Reporter) tick(ctx context.Context) {
	data := r.Collect()
	if r.o.enableAlarm {
		for _, key := range r.group.check(data) {
			r.sendAlarm(key)
		}
	}
	if r.o.customHandler == nil {
		r.printUsageInfo(data)
	} else {
		r.handleCustom(ctx, data)
	}
}

// Collect snapshots every registered token source.
func (r *Reporter) Collect() *StatData {
	data := &StatData{At: time.Now().UTC(), Sources: map[string]Values{}}
	r.registry.Snapshot().Range(func(key string, s *ServiceStats) bool {
		data.Sources[key] = s.Snapshot()
		return true
	})
	return data
}

func (r *Reporter) handleCustom(ctx context.Context, data *StatData) {
	ctx, cancel := context.WithTimeout(ctx, r.o.printInterval)
	defer cancel()
	defer func() {
		if e := recover(); e != nil {
			r.o.zapLog.Warn("custom handler panic", zap.Any("panic", e))
		}
	}()
	if err := r.o.customHandler(ctx, data); err != nil {
		r.o.zapLog.Warn("custom handler error", zap.Error(err))
	}
}

func (r *Reporter) sendAlarm(key string) {
	select {
	case r.notifyCh <- key:
	default:
	}
}

func (r *Reporter) printUsageInfo(data *StatData) {
	fields := make([]zap.Field, 0, len(r.o.zapFields)+1)
	fields = append(fields, r.o.zapFields...)
	fields = append(fields, zap.Any("sources", data.Sources))
	r.o.zapLog.Info("token service statistics", fields...)
}
