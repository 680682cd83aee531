package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aristath/butler/internal/backend"
)

// Load reads and merges configuration from global and project paths, then
// applies BUTLER_* environment overrides.
// Order of precedence (highest to lowest): environment, project config,
// global config, defaults. Missing files are not errors; malformed files
// return an error. Files ending in .yaml or .yml are parsed as YAML,
// anything else as JSON.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultPaths returns the conventional config locations.
// Global: ~/.butler/config.json
// Project: .butler/config.json (relative to cwd)
func DefaultPaths() (global, project string, err error) {
	dir, err := DataDir()
	if err != nil {
		return "", "", err
	}
	return filepath.Join(dir, "config.json"), filepath.Join(".butler", "config.json"), nil
}

// DataDir is the directory holding the default database and work areas.
func DataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, ".butler"), nil
}

// LoadDefault loads configuration from the conventional paths.
func LoadDefault() (*Config, error) {
	global, project, err := DefaultPaths()
	if err != nil {
		return nil, err
	}
	return Load(global, project)
}

// ResolvePaths fills an empty store DSN and work area root from dataDir.
func (c *Config) ResolvePaths(dataDir string) {
	if c.Store.DSN == "" && (c.Store.Driver == "" || c.Store.Driver == "sqlite") {
		c.Store.DSN = filepath.Join(dataDir, "butler.db")
	}
	if c.WorkAreas.Root == "" {
		c.WorkAreas.Root = filepath.Join(dataDir, "work")
	}
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	if c.Scheduler.MaxConcurrent < 1 {
		return fmt.Errorf("scheduler.max_concurrent must be at least 1, got %d", c.Scheduler.MaxConcurrent)
	}
	if t := c.Planning.OversplitThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("planning.oversplit_threshold must be in (0, 1], got %v", t)
	}
	switch c.Store.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" && c.Store.DSN == "" {
		return errors.New("store.dsn is required for postgres")
	}
	for name, agent := range c.Agents {
		if _, ok := c.Providers[agent.Provider]; !ok {
			return fmt.Errorf("agent %q uses unknown provider %q", name, agent.Provider)
		}
	}
	return nil
}

// Backend resolves a role to the backend configuration it runs with.
func (c *Config) Backend(role string) (backend.Config, error) {
	agent, ok := c.Agents[role]
	if !ok {
		return backend.Config{}, fmt.Errorf("no agent configured for role %q", role)
	}
	provider, ok := c.Providers[agent.Provider]
	if !ok {
		return backend.Config{}, fmt.Errorf("agent %q uses unknown provider %q", role, agent.Provider)
	}
	return backend.Config{
		Type:         provider.Type,
		Command:      provider.Command,
		Args:         append([]string(nil), provider.Args...),
		Model:        agent.Model,
		SystemPrompt: agent.SystemPrompt,
		Timeout:      time.Duration(agent.TimeoutSec) * time.Second,
	}, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// mergeConfigFile reads a config file and merges it into the base config.
// Missing files are silently skipped.
func mergeConfigFile(base *Config, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded Config
	if isYAML(path) {
		err = yaml.Unmarshal(data, &loaded)
	} else {
		err = json.Unmarshal(data, &loaded)
	}
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	merge(base, &loaded)
	return nil
}

// merge overlays the set fields of loaded onto base. Map entries replace
// entries with the same key.
func merge(base, loaded *Config) {
	for key, provider := range loaded.Providers {
		base.Providers[key] = provider
	}
	for key, agent := range loaded.Agents {
		base.Agents[key] = agent
	}

	if loaded.Scheduler.MaxConcurrent != 0 {
		base.Scheduler.MaxConcurrent = loaded.Scheduler.MaxConcurrent
	}

	p := loaded.Planning
	if p.ThreadID != "" {
		base.Planning.ThreadID = p.ThreadID
	}
	if p.OversplitThreshold != 0 {
		base.Planning.OversplitThreshold = p.OversplitThreshold
	}
	if p.HistoryTurns != 0 {
		base.Planning.HistoryTurns = p.HistoryTurns
	}
	if p.RecentRounds != 0 {
		base.Planning.RecentRounds = p.RecentRounds
	}
	if p.HabitAddendum != "" {
		base.Planning.HabitAddendum = p.HabitAddendum
	}
	if p.WorkspaceRoot != "" {
		base.Planning.WorkspaceRoot = p.WorkspaceRoot
	}

	if loaded.Store.Driver != "" {
		base.Store.Driver = loaded.Store.Driver
	}
	if loaded.Store.DSN != "" {
		base.Store.DSN = loaded.Store.DSN
	}
	if loaded.WorkAreas.Root != "" {
		base.WorkAreas.Root = loaded.WorkAreas.Root
	}
	if loaded.Server.Addr != "" {
		base.Server.Addr = loaded.Server.Addr
	}
	if loaded.Log.Level != "" {
		base.Log.Level = loaded.Log.Level
	}
}
