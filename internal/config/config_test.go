package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json5"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Segmentation.TimeThresholdMs != 1_800_000 {
		t.Errorf("TimeThresholdMs = %d, want 1800000", cfg.Segmentation.TimeThresholdMs)
	}
	if cfg.Scheduler.DayRollup.CronExpr != "0 1 * * *" {
		t.Errorf("DayRollup.CronExpr = %q", cfg.Scheduler.DayRollup.CronExpr)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	content := `{
		// trailing comments and unquoted keys are the point of json5
		database_dir: "/tmp/mem-db",
		segmentation: { token_threshold: 2000 },
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseDir != "/tmp/mem-db" {
		t.Errorf("DatabaseDir = %q, want /tmp/mem-db", cfg.DatabaseDir)
	}
	if cfg.Segmentation.TokenThreshold != 2000 {
		t.Errorf("TokenThreshold = %d, want 2000", cfg.Segmentation.TokenThreshold)
	}
	// Unoverridden nested defaults survive the partial overlay.
	if cfg.Segmentation.OverlapTokens != 500 {
		t.Errorf("OverlapTokens = %d, want 500 (untouched default)", cfg.Segmentation.OverlapTokens)
	}
}

func TestExpandHome(t *testing.T) {
	home, _ := os.UserHomeDir()
	got := ExpandHome("~/foo/bar")
	want := home + "/foo/bar"
	if got != want {
		t.Errorf("ExpandHome = %q, want %q", got, want)
	}
	if ExpandHome("/abs/path") != "/abs/path" {
		t.Errorf("ExpandHome should not touch absolute paths")
	}
}
