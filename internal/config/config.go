// Package config defines the engine's configuration data model (spec.md
// §6) and a JSON5-based loader. Reading config from flags, remote sources,
// or live-reloading it is the embedding environment's job (spec.md §1);
// this package only owns the struct and a minimal file+env loader so the
// engine is runnable standalone and under test.
package config

import "sync"

// MultiAgentMode selects whether events from different agents are indexed
// into separate TOC trees or a single unified one (spec.md §6).
type MultiAgentMode string

const (
	MultiAgentSeparate MultiAgentMode = "separate"
	MultiAgentUnified  MultiAgentMode = "unified"
)

// LogLevel mirrors spec.md §6's enumerated verbosity options.
type LogLevel string

const (
	LogTrace LogLevel = "trace"
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// OverlapPolicy selects what the scheduler does when a job's previous run
// is still in flight at the next tick (spec.md §4.9).
type OverlapPolicy string

const (
	OverlapSkip       OverlapPolicy = "Skip"
	OverlapConcurrent OverlapPolicy = "Concurrent"
)

// SegmentationConfig carries the segmenter's tunables (spec.md §4.3).
type SegmentationConfig struct {
	TimeThresholdMs    int64 `json:"time_threshold_ms"`
	TokenThreshold     int   `json:"token_threshold"`
	OverlapTimeMs      int64 `json:"overlap_time_ms"`
	OverlapTokens      int   `json:"overlap_tokens"`
	MaxToolResultChars int   `json:"max_tool_result_chars"`
}

// JobConfig carries one scheduled job's cron expression, timezone, jitter
// bound, minimum period-close age, and overlap policy (spec.md §4.9, §6).
type JobConfig struct {
	CronExpr      string        `json:"cron_expr"`
	Timezone      string        `json:"timezone"`
	MaxJitterMs   int64         `json:"max_jitter_ms"`
	MinAgeMs      int64         `json:"min_age_ms,omitempty"`
	OverlapPolicy OverlapPolicy `json:"overlap_policy"`
}

// SchedulerConfig carries every registered job's tunables plus the
// shutdown grace window (spec.md §4.9, §6).
type SchedulerConfig struct {
	OutboxDrain   JobConfig `json:"outbox_drain"`
	DayRollup     JobConfig `json:"day_rollup"`
	WeekRollup    JobConfig `json:"week_rollup"`
	MonthRollup   JobConfig `json:"month_rollup"`
	YearRollup    JobConfig `json:"year_rollup"`
	Compaction    JobConfig `json:"compaction"`
	GraceWindowMs int64     `json:"grace_window_ms"`
}

// SummarizerConfig names the pluggable summarizer capability provider and
// model; the core treats both as opaque strings (spec.md §4.4, §6).
type SummarizerConfig struct {
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	APIKey        string `json:"-"` // never persisted to the config file; env only
	TimeoutMs     int64  `json:"timeout_ms"`
	MaxRetries    int    `json:"max_retries"`
	BackoffBaseMs int64  `json:"backoff_base_ms"`
}

// Config is the root configuration for the memory engine (spec.md §6).
type Config struct {
	DatabaseDir    string             `json:"database_dir"`
	BindAddress    string             `json:"bind_address"`
	MultiAgentMode MultiAgentMode     `json:"multi_agent_mode"`
	AgentID        string             `json:"agent_id,omitempty"`
	LogVerbosity   LogLevel           `json:"log_verbosity"`
	Summarizer     SummarizerConfig   `json:"summarizer"`
	Segmentation   SegmentationConfig `json:"segmentation"`
	Scheduler      SchedulerConfig    `json:"scheduler"`

	mu sync.RWMutex
}

// Default returns a Config populated with the defaults spec.md enumerates:
// segmentation thresholds (§4.3), rollup min-ages and cadences (§4.7,
// §4.9's job table), and a loopback bind address for the single local
// trusted user (§1 Non-goals).
func Default() *Config {
	return &Config{
		DatabaseDir:    "~/.agentmemory/db",
		BindAddress:    "127.0.0.1:0",
		MultiAgentMode: MultiAgentSeparate,
		LogVerbosity:   LogInfo,
		Summarizer: SummarizerConfig{
			Provider:      "mock",
			TimeoutMs:     30_000,
			MaxRetries:    5,
			BackoffBaseMs: 500,
		},
		Segmentation: SegmentationConfig{
			TimeThresholdMs:    1_800_000,
			TokenThreshold:     4000,
			OverlapTimeMs:      300_000,
			OverlapTokens:      500,
			MaxToolResultChars: 2000,
		},
		Scheduler: SchedulerConfig{
			OutboxDrain:   JobConfig{CronExpr: "* * * * *", Timezone: "Local", MaxJitterMs: 60_000, OverlapPolicy: OverlapSkip},
			DayRollup:     JobConfig{CronExpr: "0 1 * * *", Timezone: "Local", MaxJitterMs: 300_000, MinAgeMs: 3_600_000, OverlapPolicy: OverlapSkip},
			WeekRollup:    JobConfig{CronExpr: "0 2 * * 0", Timezone: "Local", MaxJitterMs: 300_000, MinAgeMs: 86_400_000, OverlapPolicy: OverlapSkip},
			MonthRollup:   JobConfig{CronExpr: "0 3 1 * *", Timezone: "Local", MaxJitterMs: 300_000, MinAgeMs: 86_400_000, OverlapPolicy: OverlapSkip},
			YearRollup:    JobConfig{CronExpr: "0 4 * * 0", Timezone: "Local", MaxJitterMs: 600_000, MinAgeMs: 604_800_000, OverlapPolicy: OverlapSkip},
			Compaction:    JobConfig{CronExpr: "0 4 * * 0", Timezone: "Local", MaxJitterMs: 600_000, OverlapPolicy: OverlapSkip},
			GraceWindowMs: 10_000,
		},
	}
}

// HasAgentID reports whether AgentID is set, required in unified
// multi-agent mode (spec.md §6).
func (c *Config) HasAgentID() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.AgentID != ""
}
