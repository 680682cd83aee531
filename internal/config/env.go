package config

import (
	"fmt"
	"log/slog"

	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "BUTLER"

// Env holds environment overrides. Unset variables leave the file value.
type Env struct {
	MaxConcurrent      int     `envconfig:"MAX_CONCURRENT"`
	OversplitThreshold float64 `envconfig:"OVERSPLIT_THRESHOLD"`
	StoreDriver        string  `envconfig:"STORE_DRIVER"`
	StoreDSN           string  `envconfig:"STORE_DSN"`
	WorkRoot           string  `envconfig:"WORK_ROOT"`
	Addr               string  `envconfig:"ADDR"`
	LogLevel           string  `envconfig:"LOG_LEVEL"`
	HabitAddendum      string  `envconfig:"HABIT_ADDENDUM"`
	WorkspaceRoot      string  `envconfig:"WORKSPACE_ROOT"`
}

// ApplyEnv overlays BUTLER_* variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var env Env
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return fmt.Errorf("failed to load env: %w", err)
	}

	merge(cfg, &Config{
		Scheduler: SchedulerConfig{MaxConcurrent: env.MaxConcurrent},
		Planning: PlanningConfig{
			OversplitThreshold: env.OversplitThreshold,
			HabitAddendum:      env.HabitAddendum,
			WorkspaceRoot:      env.WorkspaceRoot,
		},
		Store:     StoreConfig{Driver: env.StoreDriver, DSN: env.StoreDSN},
		WorkAreas: WorkAreaConfig{Root: env.WorkRoot},
		Server:    ServerConfig{Addr: env.Addr},
		Log:       LogConfig{Level: env.LogLevel},
	})
	return nil
}

// SlogLevel parses the configured level, defaulting to info.
func (c LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}
