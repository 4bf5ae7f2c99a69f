package stat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReporter_RunWithCustomHandler(t *testing.T) {
	r := NewRegistry()
	r.GetOrCreate("svc:ServiceStats").OnCacheHit()

	got := make(chan *StatData, 4)
	l, _ := zap.NewDevelopment()
	rep := NewReporter(r,
		// ignored
		WithLog(nil),
		WithPrintInterval(0),

		WithLog(l),
		WithPrintInterval(time.Second),
		WithPrintField(zap.String("host", "127.0.0.1")),
		WithCustomHandler(func(ctx context.Context, sd *StatData) error {
			got <- sd
			return nil
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rep.Run(ctx)
		close(done)
	}()

	select {
	case sd := <-got:
		require.Contains(t, sd.Sources, "svc:ServiceStats")
		assert.True(t, sd.Sources["svc:ServiceStats"].HasToken)
	case <-time.After(3 * time.Second):
		t.Fatal("custom handler was not called")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reporter did not stop")
	}
}

func TestReporter_TickPrintsAndSurvivesHandlerFailures(t *testing.T) {
	r := NewRegistry()
	r.GetOrCreate("svc:ServiceStats")

	rep := NewReporter(r, WithLog(zap.NewNop()))
	rep.tick(context.Background())

	rep = NewReporter(r, WithCustomHandler(func(context.Context, *StatData) error {
		return errors.New("sink unavailable")
	}))
	rep.tick(context.Background())

	rep = NewReporter(r, WithCustomHandler(func(context.Context, *StatData) error {
		panic("boom")
	}))
	assert.NotPanics(t, func() { rep.tick(context.Background()) })
}

func TestReporter_Alarm(t *testing.T) {
	r := NewRegistry()
	s := r.GetOrCreate("svc:ServiceStats")
	rep := NewReporter(r, WithAlarm(WithFailureThreshold(2), WithTriggerInterval(0)))

	s.OnAcquireFailure(time.Millisecond)
	rep.tick(context.Background())
	select {
	case key := <-rep.Notify():
		t.Fatalf("unexpected alarm for %s", key)
	default:
	}

	s.OnAcquireFailure(time.Millisecond)
	s.OnAcquireFailure(time.Millisecond)
	rep.tick(context.Background())
	select {
	case key := <-rep.Notify():
		assert.Equal(t, "svc:ServiceStats", key)
	default:
		t.Fatal("expected an alarm")
	}
}

func TestAlarmGroup_TriggerInterval(t *testing.T) {
	o := defaultAlarmOptions()
	WithFailureThreshold(1)(o)
	WithTriggerInterval(time.Hour)(o)
	g := newAlarmGroup(o)

	now := time.Now()
	assert.Equal(t, []string{"a"}, g.check(&StatData{At: now, Sources: map[string]Values{"a": {FailedAttempts: 1}}}))
	assert.Empty(t, g.check(&StatData{At: now.Add(time.Minute), Sources: map[string]Values{"a": {FailedAttempts: 5}}}))
	assert.Equal(t, []string{"a"}, g.check(&StatData{At: now.Add(2 * time.Hour), Sources: map[string]Values{"a": {FailedAttempts: 6}}}))
	assert.Empty(t, g.check(&StatData{At: now.Add(5 * time.Hour), Sources: map[string]Values{"a": {FailedAttempts: 6}}}))
}

func TestAlarmOptions_IgnoreInvalid(t *testing.T) {
	o := defaultAlarmOptions()
	WithFailureThreshold(0)(o)
	WithTriggerInterval(-time.Second)(o)
	assert.EqualValues(t, 3, o.failureThreshold)
	assert.Equal(t, 15*time.Minute, o.triggerInterval)
}
