package stat

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceStats_OnCacheHit(t *testing.T) {
	s := NewServiceStats()
	s.OnCacheHit()

	v := s.Snapshot()
	assert.True(t, v.HasToken)
	assert.Nil(t, v.ExpiresAt)
	assert.Nil(t, v.LastAcquireAttemptAt)
	assert.Nil(t, v.LastSuccessfulAcquireAt)
	assert.Zero(t, v.FailedAttempts)
}

func TestServiceStats_AcquireLifecycle(t *testing.T) {
	s := NewServiceStats()

	s.OnAcquireAttemptStart()
	v := s.Snapshot()
	require.NotNil(t, v.LastAcquireAttemptAt)
	assert.False(t, v.HasToken)

	expiresAt := time.Now().UTC().Add(time.Hour)
	s.OnAcquireSuccess(150*time.Millisecond, expiresAt)
	v = s.Snapshot()
	assert.True(t, v.HasToken)
	require.NotNil(t, v.ExpiresAt)
	assert.Equal(t, expiresAt, *v.ExpiresAt)
	require.NotNil(t, v.LastAcquireDuration)
	assert.Equal(t, 150*time.Millisecond, *v.LastAcquireDuration)
	assert.NotNil(t, v.LastSuccessfulAcquireAt)

	s.OnAcquireFailure(2 * time.Second)
	v = s.Snapshot()
	assert.False(t, v.HasToken)
	assert.Nil(t, v.ExpiresAt)
	assert.Equal(t, 2*time.Second, *v.LastAcquireDuration)
	assert.NotNil(t, v.LastSuccessfulAcquireAt, "last success is kept after a failure")
	assert.EqualValues(t, 1, v.FailedAttempts)
}

func TestServiceStats_FailedAttemptsNotReset(t *testing.T) {
	s := NewServiceStats()

	s.OnAcquireFailure(time.Millisecond)
	s.OnAcquireFailure(time.Millisecond)
	s.OnAcquireSuccess(time.Millisecond, time.Now().Add(time.Minute))

	assert.EqualValues(t, 2, s.FailedAttempts())
	assert.EqualValues(t, 2, s.Snapshot().FailedAttempts)
}

func TestServiceStats_ConcurrentFailures(t *testing.T) {
	s := NewServiceStats()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.OnAcquireAttemptStart()
			s.OnAcquireFailure(time.Millisecond)
			s.OnCacheHit()
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 100, s.FailedAttempts())
}

func TestServiceStats_SnapshotIsCopy(t *testing.T) {
	s := NewServiceStats()
	expiresAt := time.Now().UTC().Add(time.Hour)
	s.OnAcquireSuccess(time.Second, expiresAt)

	v := s.Snapshot()
	*v.ExpiresAt = time.Time{}
	*v.LastAcquireDuration = 0

	again := s.Snapshot()
	assert.Equal(t, expiresAt, *again.ExpiresAt)
	assert.Equal(t, time.Second, *again.LastAcquireDuration)
}
