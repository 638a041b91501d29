package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePurger struct {
	mu      sync.Mutex
	cutoffs []time.Time
	count   int64
	err     error
}

func (f *fakePurger) DeleteExpiredUnused(ctx context.Context, olderThan time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, olderThan)
	return f.count, f.err
}

func (f *fakePurger) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

func TestCleanupJob(t *testing.T) {
	t.Run("creates job with correct interval", func(t *testing.T) {
		job := NewCleanupJob(&fakePurger{}, 24*time.Hour, 5*time.Minute)

		assert.NotNil(t, job)
		assert.Equal(t, 5*time.Minute, job.interval)
		assert.Equal(t, 24*time.Hour, job.retention)
	})

	t.Run("runs cleanup on start and stops", func(t *testing.T) {
		purger := &fakePurger{count: 3}
		job := NewCleanupJob(purger, time.Hour, time.Hour)

		job.Start()
		assert.Eventually(t, func() bool { return purger.calls() == 1 }, time.Second, 5*time.Millisecond)
		job.Stop()
	})

	t.Run("sweeps on every tick", func(t *testing.T) {
		purger := &fakePurger{}
		job := NewCleanupJob(purger, time.Hour, 10*time.Millisecond)

		job.Start()
		assert.Eventually(t, func() bool { return purger.calls() >= 3 }, time.Second, 5*time.Millisecond)
		job.Stop()
	})
}

func TestCleanupJob_RunOnce(t *testing.T) {
	t.Run("uses retention cutoff", func(t *testing.T) {
		purger := &fakePurger{count: 2}
		job := NewCleanupJob(purger, 7*24*time.Hour, time.Hour)
		now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
		job.now = func() time.Time { return now }

		count, err := job.RunOnce(context.Background())

		require.NoError(t, err)
		assert.EqualValues(t, 2, count)
		require.Len(t, purger.cutoffs, 1)
		assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), purger.cutoffs[0])
	})

	t.Run("returns store error", func(t *testing.T) {
		purger := &fakePurger{err: errors.New("connection reset")}
		job := NewCleanupJob(purger, time.Hour, time.Hour)

		_, err := job.RunOnce(context.Background())
		assert.EqualError(t, err, "connection reset")
	})
}
