// Package scheduler runs the engine's background jobs on cron schedules
// (spec.md §4.9): outbox drain, the four rollup levels, and compaction. It
// tracks overlap, jitter, pause/resume, and graceful shutdown against a
// shared cancellation token.
package scheduler

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/agentmemory/internal/apperr"
)

// State is the scheduler service's own lifecycle state (spec.md §4.9).
type State string

const (
	StateIdle      State = "Idle"
	StateRunning   State = "Running"
	StateStopping  State = "Stopping"
)

// JobResult is what a tick recorded for a job (spec.md §4.9's job states).
type JobResult string

const (
	ResultPending JobResult = "Pending"
	ResultRunning JobResult = "Running"
	ResultSuccess JobResult = "Success"
	ResultFailed  JobResult = "Failed"
	ResultSkipped JobResult = "Skipped"
)

// OverlapPolicy selects what happens when a job's previous run is still
// in flight at the next tick (spec.md §4.9).
type OverlapPolicy string

const (
	OverlapSkip       OverlapPolicy = "Skip"
	OverlapConcurrent OverlapPolicy = "Concurrent"
)

// RunFunc is the work a registered job performs. It must honor ctx
// cancellation at its coarsest safe granularity (spec.md §5).
type RunFunc func(ctx context.Context) error

// JobSpec describes one job at registration time.
type JobSpec struct {
	Name          string
	CronExpr      string
	Location      *time.Location
	MaxJitter     time.Duration
	OverlapPolicy OverlapPolicy
	Run           RunFunc
}

// job is a JobSpec plus its live scheduling state.
type job struct {
	spec JobSpec

	running atomic.Bool
	paused  atomic.Bool

	// firedMinute is the last cron-minute bucket this job was evaluated
	// for, so a sub-minute tick interval fires a "* * * * *" job once per
	// matching minute rather than once per tick.
	mu             sync.RWMutex
	firedMinute    time.Time
	lastRun        time.Time
	lastDuration   time.Duration
	lastResult     JobResult
	nextRun        time.Time
	runCount       int64
	errorCount     int64
	lastSkipReason string
}

// Stats is a point-in-time snapshot of one job's registry entry (spec.md
// §4.9: "per job, records {name, cron_expr, timezone, last_run,
// last_duration_ms, last_result, next_run, run_count, error_count,
// is_running, is_paused}"). The scheduler never computes a job's next fire
// time, so NextRun is always the zero time.
type Stats struct {
	Name           string
	CronExpr       string
	Timezone       string
	LastRun        time.Time
	LastDurationMs int64
	LastResult     JobResult
	NextRun        time.Time
	RunCount       int64
	ErrorCount     int64
	IsRunning      bool
	IsPaused       bool
}

// Scheduler runs registered jobs on their cron schedules (spec.md §4.9).
type Scheduler struct {
	tickInterval time.Duration
	graceWindow  time.Duration
	evaluator    gronx.Gronx
	clock        func() time.Time

	mu    sync.RWMutex
	state State
	jobs  map[string]*job

	cancel   context.CancelFunc
	stopped  chan struct{}
	inFlight sync.WaitGroup
}

// New builds a Scheduler. tickInterval bounds how finely cron due-ness is
// checked (a tickInterval coarser than a minute can miss every-minute
// jobs); graceWindow bounds how long Shutdown waits for in-flight jobs
// before forcing cancellation.
func New(tickInterval, graceWindow time.Duration) *Scheduler {
	return &Scheduler{
		tickInterval: tickInterval,
		graceWindow:  graceWindow,
		evaluator:    gronx.New(),
		clock:        time.Now,
		state:        StateIdle,
		jobs:         make(map[string]*job),
	}
}

// Register adds a job. Must be called before Start.
func (s *Scheduler) Register(spec JobSpec) {
	if spec.Location == nil {
		spec.Location = time.Local
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[spec.Name] = &job{spec: spec, lastResult: ResultPending}
}

// Start transitions Idle → Running and begins ticking. It fails if the
// scheduler is not Idle (spec.md §4.9: "start() on non-Idle fails").
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return apperr.Newf(apperr.KindSchedulerState, "scheduler.Start", "cannot start from state %q", state)
	}
	s.state = StateRunning
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.stopped = make(chan struct{})
	s.mu.Unlock()

	go s.run(runCtx)
	return nil
}

// Shutdown transitions Running → Stopping → Idle. It flips the shared
// cancellation token (which also stops the tick loop), then waits up to
// graceWindow for in-flight jobs to return; once graceWindow has passed it
// returns without waiting for jobs that are still running (spec.md §4.9:
// "shutdown() on non-Running fails").
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateRunning {
		state := s.state
		s.mu.Unlock()
		return apperr.Newf(apperr.KindSchedulerState, "scheduler.Shutdown", "cannot shut down from state %q", state)
	}
	s.state = StateStopping
	cancel := s.cancel
	s.mu.Unlock()

	cancel()    // flips the shared token: ends the tick loop and signals in-flight jobs
	<-s.stopped // signals the tick loop has exited and stops scheduling new ticks

	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.graceWindow):
		slog.Warn("scheduler.shutdown.grace_expired", "grace_window", s.graceWindow)
	}
	cancel()

	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()
	return nil
}

// Pause stops a job from executing on future ticks; the tick is still
// recorded as Skipped("paused") (spec.md §4.9).
func (s *Scheduler) Pause(name string) error {
	j, err := s.lookup(name)
	if err != nil {
		return err
	}
	j.paused.Store(true)
	return nil
}

// Resume re-enables a paused job.
func (s *Scheduler) Resume(name string) error {
	j, err := s.lookup(name)
	if err != nil {
		return err
	}
	j.paused.Store(false)
	return nil
}

// Stats returns a snapshot of every registered job's registry entry.
func (s *Scheduler) Stats() []Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Stats, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.snapshot())
	}
	return out
}

func (s *Scheduler) lookup(name string) (*job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[name]
	if !ok {
		return nil, apperr.Newf(apperr.KindNotFound, "scheduler.lookup", "no such job %q", name)
	}
	return j, nil
}

func (j *job) snapshot() Stats {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return Stats{
		Name:           j.spec.Name,
		CronExpr:       j.spec.CronExpr,
		Timezone:       j.spec.Location.String(),
		LastRun:        j.lastRun,
		LastDurationMs: j.lastDuration.Milliseconds(),
		LastResult:     j.lastResult,
		NextRun:        j.nextRun,
		RunCount:       j.runCount,
		ErrorCount:     j.errorCount,
		IsRunning:      j.running.Load(),
		IsPaused:       j.paused.Load(),
	}
}

// run is the tick loop: it polls every job every tickInterval and fires
// whichever are due, per cron expression (spec.md §4.9).
func (s *Scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	defer close(s.stopped)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	s.mu.RLock()
	jobs := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.RUnlock()

	now := s.clock()
	for _, j := range jobs {
		s.maybeFire(ctx, j, now)
	}
}

func (s *Scheduler) maybeFire(ctx context.Context, j *job, now time.Time) {
	local := now.In(j.spec.Location)
	due, err := s.evaluator.IsDue(j.spec.CronExpr, local)
	if err != nil {
		slog.Error("scheduler.cron_expr_invalid", "job", j.spec.Name, "expr", j.spec.CronExpr, "error", err)
		return
	}
	if !due {
		return
	}

	bucket := local.Truncate(time.Minute)
	j.mu.Lock()
	alreadyFired := j.firedMinute.Equal(bucket)
	j.firedMinute = bucket
	j.mu.Unlock()
	if alreadyFired {
		return
	}

	if j.paused.Load() {
		j.recordSkipped("paused")
		return
	}

	if j.spec.OverlapPolicy != OverlapConcurrent {
		if !j.running.CompareAndSwap(false, true) {
			j.recordSkipped("overlap")
			return
		}
	}

	s.inFlight.Add(1)
	go s.execute(ctx, j)
}

func (s *Scheduler) execute(ctx context.Context, j *job) {
	defer s.inFlight.Done()
	if j.spec.OverlapPolicy != OverlapConcurrent {
		defer j.running.Store(false)
	}

	if j.spec.MaxJitter > 0 {
		delay := time.Duration(rand.Int63n(int64(j.spec.MaxJitter) + 1))
		select {
		case <-ctx.Done():
			j.recordSkipped("canceled_before_run")
			return
		case <-time.After(delay):
		}
	}

	start := s.clock()
	j.markRunning(start)

	err := j.spec.Run(ctx)

	duration := s.clock().Sub(start)
	j.recordFinished(duration, err)
	if err != nil {
		slog.Error("scheduler.job_failed", "job", j.spec.Name, "duration_ms", duration.Milliseconds(), "error", err)
	} else {
		slog.Info("scheduler.job_succeeded", "job", j.spec.Name, "duration_ms", duration.Milliseconds())
	}
}

func (j *job) recordSkipped(reason string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lastResult = ResultSkipped
	j.lastSkipReason = reason
}

func (j *job) markRunning(start time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lastRun = start
	j.lastResult = ResultRunning
	j.runCount++
}

func (j *job) recordFinished(duration time.Duration, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lastDuration = duration
	if err != nil {
		j.lastResult = ResultFailed
		j.errorCount++
		return
	}
	j.lastResult = ResultSuccess
}
