package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSchedulerRunsTaskImmediatelyAndOnTicks(t *testing.T) {
	var runs int32
	s := NewScheduler(nil)
	s.Add(Task{
		Name:     "count",
		Interval: 20 * time.Millisecond,
		Run: func(context.Context) error {
			atomic.AddInt32(&runs, 1)
			return nil
		},
	})

	s.Start(context.Background())
	time.Sleep(70 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, atomic.LoadInt32(&runs), int32(2))
}

func TestSchedulerIgnoresInvalidTasks(t *testing.T) {
	s := NewScheduler(nil)
	s.Add(Task{Name: "no-run", Interval: time.Second})
	s.Add(Task{Name: "no-interval", Run: func(context.Context) error { return nil }})

	s.Start(context.Background())
	s.Stop()

	assert.Empty(t, s.tasks)
}

func TestSchedulerStopWaitsForTasks(t *testing.T) {
	done := make(chan struct{})
	s := NewScheduler(nil)
	s.Add(Task{
		Name:     "slow",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			select {
			case <-ctx.Done():
			case <-time.After(5 * time.Millisecond):
			}
			return nil
		},
	})

	s.Start(context.Background())
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
