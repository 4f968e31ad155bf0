package config

import (
	"fmt"
	"os"

	"github.com/titanous/json5"
)

// Load reads config from a JSON5 file, then overlays env vars. A missing
// file is not an error: it simply yields Default() with env overrides
// applied, which is enough to run standalone or under test.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays secrets and host-specific values from the
// environment. These never round-trip through the config file, matching
// the teacher's rule that provider API keys are env-only.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AGENTMEMORY_SUMMARIZER_API_KEY"); v != "" {
		c.Summarizer.APIKey = v
	}
	if v := os.Getenv("AGENTMEMORY_DATABASE_DIR"); v != "" {
		c.DatabaseDir = v
	}
	if v := os.Getenv("AGENTMEMORY_AGENT_ID"); v != "" {
		c.AgentID = v
	}
	c.DatabaseDir = ExpandHome(c.DatabaseDir)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
