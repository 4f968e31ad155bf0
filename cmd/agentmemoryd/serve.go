package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/agentmemory/internal/compaction"
	"github.com/nextlevelbuilder/agentmemory/internal/config"
	"github.com/nextlevelbuilder/agentmemory/internal/ingest"
	"github.com/nextlevelbuilder/agentmemory/internal/model"
	"github.com/nextlevelbuilder/agentmemory/internal/outbox"
	"github.com/nextlevelbuilder/agentmemory/internal/query"
	"github.com/nextlevelbuilder/agentmemory/internal/rollup"
	"github.com/nextlevelbuilder/agentmemory/internal/scheduler"
	"github.com/nextlevelbuilder/agentmemory/internal/segment"
	"github.com/nextlevelbuilder/agentmemory/internal/storage"
	"github.com/nextlevelbuilder/agentmemory/internal/summarizer"
	"github.com/nextlevelbuilder/agentmemory/internal/toc"
)

// engine bundles every long-lived component the daemon wires together. It
// exists so serve's call chain stays readable; nothing outside this file
// reaches into it.
type engine struct {
	store      *storage.Engine
	ingestSvc  *ingest.Service
	querySvc   *query.Service
	sched      *scheduler.Scheduler
	registry   *segment.Registry
	tocBuilder *toc.Builder
}

// Shutdown flushes every session's in-progress segment through the TOC
// builder before the caller closes storage, so no partially-accumulated
// segment is silently lost (spec.md §4.3: the segmenter only emits on the
// next event's boundary, so the open segment at shutdown has not emitted
// yet).
func (e *engine) Shutdown(ctx context.Context) error {
	for sessionID, emission := range e.registry.FlushAll() {
		if _, err := e.tocBuilder.BuildSegment(ctx, emission.Segment); err != nil {
			return fmt.Errorf("flush session %s: %w", sessionID, err)
		}
	}
	return nil
}

func runServe() error {
	bootID := uuid.NewString()[:8]

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.MultiAgentMode == config.MultiAgentUnified && !cfg.HasAgentID() {
		return fmt.Errorf("unified multi-agent mode requires agent_id")
	}

	eng, err := buildEngine(cfg)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer eng.store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	slog.Info("agentmemoryd.started",
		"boot_id", bootID,
		"version", Version,
		"database_dir", cfg.DatabaseDir,
		"multi_agent_mode", string(cfg.MultiAgentMode),
	)

	sig := <-sigCh
	slog.Info("agentmemoryd.shutdown_initiated", "signal", sig)

	if err := eng.sched.Shutdown(context.Background()); err != nil {
		slog.Error("agentmemoryd.shutdown_failed", "error", err)
	}
	if err := eng.Shutdown(context.Background()); err != nil {
		slog.Error("agentmemoryd.flush_failed", "error", err)
	}
	cancel()
	return nil
}

func buildEngine(cfg *config.Config) (*engine, error) {
	store, err := storage.Open(config.ExpandHome(cfg.DatabaseDir))
	if err != nil {
		return nil, err
	}

	seq, err := outbox.NewSequencer(store)
	if err != nil {
		store.Close()
		return nil, err
	}

	ingestSvc := ingest.New(store, seq)
	registry := segment.NewRegistry(cfg.Segmentation, segment.ApproxTokenCounter{})

	var capa summarizer.Capability = summarizer.LocalCapability{}
	if cfg.Summarizer.Provider == "mock" {
		capa = summarizer.MockCapability{}
	}
	retryingCapa := summarizer.NewRetrying(capa, cfg.Summarizer)

	tocBuilder := toc.NewBuilder(store, retryingCapa, nil)
	outboxProc := outbox.NewProcessor(store, registry, tocBuilder, 0)
	compactionJob := compaction.NewJob(store)
	querySvc := query.New(store)

	sched := scheduler.New(5*time.Second, time.Duration(cfg.Scheduler.GraceWindowMs)*time.Millisecond)

	dayRollup := rollup.NewJob(store, retryingCapa, model.LevelDay, "day_rollup", time.Duration(cfg.Scheduler.DayRollup.MinAgeMs)*time.Millisecond, nil)
	weekRollup := rollup.NewJob(store, retryingCapa, model.LevelWeek, "week_rollup", time.Duration(cfg.Scheduler.WeekRollup.MinAgeMs)*time.Millisecond, nil)
	monthRollup := rollup.NewJob(store, retryingCapa, model.LevelMonth, "month_rollup", time.Duration(cfg.Scheduler.MonthRollup.MinAgeMs)*time.Millisecond, nil)
	yearRollup := rollup.NewJob(store, retryingCapa, model.LevelYear, "year_rollup", time.Duration(cfg.Scheduler.YearRollup.MinAgeMs)*time.Millisecond, nil)

	registerJob(sched, "outbox_drain", cfg.Scheduler.OutboxDrain, dropCount(outboxProc.Drain))
	registerJob(sched, "day_rollup", cfg.Scheduler.DayRollup, dropCount(dayRollup.Run))
	registerJob(sched, "week_rollup", cfg.Scheduler.WeekRollup, dropCount(weekRollup.Run))
	registerJob(sched, "month_rollup", cfg.Scheduler.MonthRollup, dropCount(monthRollup.Run))
	registerJob(sched, "year_rollup", cfg.Scheduler.YearRollup, dropCount(yearRollup.Run))
	registerJob(sched, "compaction", cfg.Scheduler.Compaction, compactionJob.Run)

	return &engine{
		store:      store,
		ingestSvc:  ingestSvc,
		querySvc:   querySvc,
		sched:      sched,
		registry:   registry,
		tocBuilder: tocBuilder,
	}, nil
}

// dropCount adapts a (int, error)-returning job runner, like outbox.Drain or
// rollup.Job.Run, to scheduler.RunFunc's error-only shape. The counts are
// still visible via slog inside each runner.
func dropCount(f func(context.Context) (int, error)) scheduler.RunFunc {
	return func(ctx context.Context) error {
		_, err := f(ctx)
		return err
	}
}

func registerJob(sched *scheduler.Scheduler, name string, jc config.JobConfig, run scheduler.RunFunc) {
	sched.Register(scheduler.JobSpec{
		Name:          name,
		CronExpr:      jc.CronExpr,
		Location:      resolveLocation(jc.Timezone),
		MaxJitter:     time.Duration(jc.MaxJitterMs) * time.Millisecond,
		OverlapPolicy: toSchedulerOverlap(jc.OverlapPolicy),
		Run:           run,
	})
}

func resolveLocation(tz string) *time.Location {
	if tz == "" || tz == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		slog.Warn("agentmemoryd.timezone_fallback", "timezone", tz, "error", err)
		return time.Local
	}
	return loc
}

func toSchedulerOverlap(p config.OverlapPolicy) scheduler.OverlapPolicy {
	if p == config.OverlapConcurrent {
		return scheduler.OverlapConcurrent
	}
	return scheduler.OverlapSkip
}
