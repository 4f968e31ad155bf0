package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nextlevelbuilder/agentmemory/internal/apperr"
)

func TestStartTwiceFails(t *testing.T) {
	s := New(10*time.Millisecond, 100*time.Millisecond)
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer s.Shutdown(ctx)

	if err := s.Start(ctx); err == nil {
		t.Fatalf("expected an error starting an already-Running scheduler")
	} else if !apperr.Is(err, apperr.KindSchedulerState) {
		t.Errorf("error kind = %v, want KindSchedulerState", err)
	}
}

func TestShutdownWhenIdleFails(t *testing.T) {
	s := New(10*time.Millisecond, 100*time.Millisecond)
	if err := s.Shutdown(context.Background()); err == nil {
		t.Fatalf("expected an error shutting down an Idle scheduler")
	}
}

func TestJobFiresEveryMinuteCronAndRecordsSuccess(t *testing.T) {
	s := New(5*time.Millisecond, time.Second)

	var runs atomic.Int32
	s.Register(JobSpec{
		Name:     "every_minute",
		CronExpr: "* * * * *",
		Location: time.UTC,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Shutdown(ctx)

	deadline := time.Now().Add(200 * time.Millisecond)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if runs.Load() == 0 {
		t.Fatalf("job never ran")
	}

	stats := s.Stats()
	if len(stats) != 1 || stats[0].Name != "every_minute" {
		t.Fatalf("Stats = %+v", stats)
	}
}

func TestOverlapSkipPreventsConcurrentRuns(t *testing.T) {
	s := New(5*time.Millisecond, time.Second)

	// Advance a fake clock across several minute boundaries while the job
	// is still in flight, so the Skip policy actually gets exercised
	// against repeated due-ness rather than the firedMinute dedupe alone
	// hiding the second attempt.
	var nowMs atomic.Int64
	nowMs.Store(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli())
	s.clock = func() time.Time { return time.UnixMilli(nowMs.Load()) }

	started := make(chan struct{}, 10)
	release := make(chan struct{})
	var concurrentRuns atomic.Int32

	s.Register(JobSpec{
		Name:          "slow",
		CronExpr:      "* * * * *",
		Location:      time.UTC,
		OverlapPolicy: OverlapSkip,
		Run: func(ctx context.Context) error {
			concurrentRuns.Add(1)
			started <- struct{}{}
			<-release
			concurrentRuns.Add(-1)
			return nil
		},
	})

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatalf("job never started")
	}

	for i := 0; i < 5; i++ {
		nowMs.Add(int64(time.Minute / time.Millisecond))
		time.Sleep(10 * time.Millisecond)
		if n := concurrentRuns.Load(); n > 1 {
			t.Errorf("concurrentRuns = %d, want at most 1 under Skip overlap policy", n)
		}
	}

	close(release)
	s.Shutdown(ctx)
}

func TestPauseSkipsExecutionAndResumeReenables(t *testing.T) {
	s := New(5*time.Millisecond, time.Second)

	// A fake, test-driven clock: the job fires once per matching minute
	// bucket (see maybeFire's firedMinute dedupe), so re-firing after
	// Resume needs a fresh minute, not just wall-clock passage.
	var nowMs atomic.Int64
	nowMs.Store(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli())
	s.clock = func() time.Time { return time.UnixMilli(nowMs.Load()) }

	var runs atomic.Int32
	s.Register(JobSpec{
		Name:     "pausable",
		CronExpr: "* * * * *",
		Location: time.UTC,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	if err := s.Pause("pausable"); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Shutdown(ctx)

	time.Sleep(50 * time.Millisecond)
	if runs.Load() != 0 {
		t.Errorf("runs = %d while paused, want 0", runs.Load())
	}

	stats := s.Stats()
	if len(stats) != 1 || !stats[0].IsPaused {
		t.Errorf("Stats = %+v, want IsPaused=true", stats)
	}

	if err := s.Resume("pausable"); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	nowMs.Add(int64(time.Minute / time.Millisecond))

	deadline := time.Now().Add(200 * time.Millisecond)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if runs.Load() == 0 {
		t.Errorf("job never ran after Resume")
	}
}

func TestFailedJobIncrementsErrorCount(t *testing.T) {
	s := New(5*time.Millisecond, time.Second)

	s.Register(JobSpec{
		Name:     "failing",
		CronExpr: "* * * * *",
		Location: time.UTC,
		Run: func(ctx context.Context) error {
			return errors.New("boom")
		},
	})

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Shutdown(ctx)

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		stats := s.Stats()
		if len(stats) == 1 && stats[0].ErrorCount > 0 {
			if stats[0].LastResult != ResultFailed {
				t.Errorf("LastResult = %v, want Failed", stats[0].LastResult)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("error count never incremented")
}

func TestPauseUnknownJobFails(t *testing.T) {
	s := New(time.Second, time.Second)
	if err := s.Pause("nope"); err == nil {
		t.Fatalf("expected an error for an unregistered job")
	}
}
