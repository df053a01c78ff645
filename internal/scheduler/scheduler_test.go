package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRunAtStartAndTick(t *testing.T) {
	var runs atomic.Int32
	done := make(chan struct{}, 8)
	s := New(Job{
		Name:       "tick",
		Interval:   10 * time.Millisecond,
		RunAtStart: true,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			select {
			case done <- struct{}{}:
			default:
			}
			return nil
		},
	})
	s.Start(context.Background())

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("job did not run %d times", i+1)
		}
	}
	s.Stop()

	if got := runs.Load(); got < 3 {
		t.Fatalf("runs got=%d want>=3", got)
	}
}

func TestFailingAndPanickingJobsKeepRunning(t *testing.T) {
	var calls atomic.Int32
	done := make(chan struct{})
	s := New(Job{
		Name:     "flaky",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			switch calls.Add(1) {
			case 1:
				return errors.New("boom")
			case 2:
				panic("kaboom")
			case 3:
				close(done)
			}
			return nil
		},
	})
	s.Start(context.Background())
	defer s.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("job stopped after a failure, calls=%d", calls.Load())
	}
}

func TestStopWithoutStartAndSkipsInvalidJobs(t *testing.T) {
	s := New(Job{Name: "no-interval", Run: func(context.Context) error { return nil }})
	s.Stop()

	s.Start(context.Background())
	s.Start(context.Background()) // 二重起動は無視
	s.Stop()
	s.Stop()
}

func TestStopCancelsRunningJob(t *testing.T) {
	started := make(chan struct{})
	s := New(Job{
		Name:       "long",
		Interval:   time.Hour,
		RunAtStart: true,
		Run: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
	})
	s.Start(context.Background())
	<-started
	s.Stop()
}
