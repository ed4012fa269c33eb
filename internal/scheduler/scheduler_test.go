package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/marketmitra/stockly/internal/scheduler"
)

func TestScheduler_RunsJobsOnInterval(t *testing.T) {
	var runs atomic.Int64

	s := scheduler.New(scheduler.Job{
		Name:     "counter",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context, now time.Time) error {
			runs.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	assert.Eventually(t, func() bool { return runs.Load() >= 3 },
		time.Second, 5*time.Millisecond)

	cancel()
	s.Wait()
}

func TestScheduler_FailingJobKeepsTicking(t *testing.T) {
	var runs atomic.Int64

	s := scheduler.New(scheduler.Job{
		Name:     "flaky",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context, now time.Time) error {
			runs.Add(1)
			return errors.New("transient failure")
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	assert.Eventually(t, func() bool { return runs.Load() >= 2 },
		time.Second, 5*time.Millisecond)

	cancel()
	s.Wait()
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	s := scheduler.New(scheduler.Job{
		Name:     "idle",
		Interval: time.Hour,
		Run: func(ctx context.Context, now time.Time) error {
			t.Error("job must not run before the first tick")
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after context cancellation")
	}
}

func TestScheduler_RunReceivesTickTime(t *testing.T) {
	got := make(chan time.Time, 1)

	s := scheduler.New(scheduler.Job{
		Name:     "clock",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context, now time.Time) error {
			select {
			case got <- now:
			default:
			}
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	select {
	case now := <-got:
		assert.WithinDuration(t, time.Now(), now, time.Second)
		assert.Equal(t, time.UTC, now.Location())
	case <-time.After(time.Second):
		t.Fatal("job never ran")
	}

	cancel()
	s.Wait()
}
