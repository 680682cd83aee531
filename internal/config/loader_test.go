package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshaling config: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name            string
		globalConfig    *Config
		projectConfig   *Config
		expectProviders int
		expectAgents    int
		checkAgent      string
		expectProvider  string
		expectModel     string
		expectMax       int
	}{
		{
			name:            "No config files - returns defaults",
			expectProviders: 1,
			expectAgents:    3,
			expectMax:       2,
		},
		{
			name: "Global only - adds provider and overrides planner",
			globalConfig: &Config{
				Providers: map[string]ProviderConfig{
					"local": {Command: "llm-run", Type: "command"},
				},
				Agents: map[string]AgentConfig{
					RolePlanner: {Provider: "local", Model: "small"},
				},
			},
			expectProviders: 2,
			expectAgents:    3,
			checkAgent:      RolePlanner,
			expectProvider:  "local",
			expectModel:     "small",
			expectMax:       2,
		},
		{
			name:            "Project only - raises concurrency",
			projectConfig:   &Config{Scheduler: SchedulerConfig{MaxConcurrent: 6}},
			expectProviders: 1,
			expectAgents:    3,
			expectMax:       6,
		},
		{
			name: "Project overrides global - project wins",
			globalConfig: &Config{
				Agents:    map[string]AgentConfig{RoleExecutor: {Provider: "claude", Model: "model-x"}},
				Scheduler: SchedulerConfig{MaxConcurrent: 3},
			},
			projectConfig: &Config{
				Agents:    map[string]AgentConfig{RoleExecutor: {Provider: "claude", Model: "model-y"}},
				Scheduler: SchedulerConfig{MaxConcurrent: 4},
			},
			expectProviders: 1,
			expectAgents:    3,
			checkAgent:      RoleExecutor,
			expectProvider:  "claude",
			expectModel:     "model-y",
			expectMax:       4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()

			globalPath := ""
			if tt.globalConfig != nil {
				globalPath = filepath.Join(tmpDir, "global.json")
				writeJSON(t, globalPath, tt.globalConfig)
			}
			projectPath := ""
			if tt.projectConfig != nil {
				projectPath = filepath.Join(tmpDir, "project.json")
				writeJSON(t, projectPath, tt.projectConfig)
			}

			cfg, err := Load(globalPath, projectPath)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if got := len(cfg.Providers); got != tt.expectProviders {
				t.Errorf("providers count = %d, want %d", got, tt.expectProviders)
			}
			if got := len(cfg.Agents); got != tt.expectAgents {
				t.Errorf("agents count = %d, want %d", got, tt.expectAgents)
			}
			if got := cfg.Scheduler.MaxConcurrent; got != tt.expectMax {
				t.Errorf("max concurrent = %d, want %d", got, tt.expectMax)
			}
			if cfg.Planning.OversplitThreshold != 0.6 {
				t.Errorf("oversplit threshold = %v, want 0.6", cfg.Planning.OversplitThreshold)
			}

			if tt.checkAgent != "" {
				agent, exists := cfg.Agents[tt.checkAgent]
				if !exists {
					t.Fatalf("expected agent %q not found", tt.checkAgent)
				}
				if agent.Provider != tt.expectProvider {
					t.Errorf("agent %q provider = %q, want %q", tt.checkAgent, agent.Provider, tt.expectProvider)
				}
				if agent.Model != tt.expectModel {
					t.Errorf("agent %q model = %q, want %q", tt.checkAgent, agent.Model, tt.expectModel)
				}
			}
		})
	}
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlDoc := `
scheduler:
  max_concurrent: 5
planning:
  oversplit_threshold: 0.75
  habit_addendum: Reply in English.
  workspace_root: /srv/projects
store:
  driver: postgres
  dsn: postgres://localhost/butler
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Scheduler.MaxConcurrent != 5 {
		t.Errorf("max concurrent = %d, want 5", cfg.Scheduler.MaxConcurrent)
	}
	if cfg.Planning.OversplitThreshold != 0.75 {
		t.Errorf("threshold = %v, want 0.75", cfg.Planning.OversplitThreshold)
	}
	if cfg.Planning.HabitAddendum != "Reply in English." {
		t.Errorf("habit addendum = %q", cfg.Planning.HabitAddendum)
	}
	if cfg.Planning.WorkspaceRoot != "/srv/projects" {
		t.Errorf("workspace root = %q, want /srv/projects", cfg.Planning.WorkspaceRoot)
	}
	if cfg.Store.Driver != "postgres" || cfg.Store.DSN != "postgres://localhost/butler" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if len(cfg.Agents) != 3 {
		t.Errorf("defaults lost: %d agents", len(cfg.Agents))
	}
}

func TestLoad_MalformedJSON(t *testing.T) {
	globalPath := filepath.Join(t.TempDir(), "global.json")
	if err := os.WriteFile(globalPath, []byte("{invalid json"), 0644); err != nil {
		t.Fatalf("writing malformed config: %v", err)
	}

	if _, err := Load(globalPath, ""); err == nil {
		t.Fatal("expected error for malformed JSON, got nil")
	}
}

func TestLoad_MissingFilesNotError(t *testing.T) {
	cfg, err := Load("/nonexistent/global.json", "/nonexistent/project.yaml")
	if err != nil {
		t.Fatalf("expected no error for missing files, got: %v", err)
	}
	if len(cfg.Providers) != 1 || len(cfg.Agents) != 3 {
		t.Errorf("expected defaults, got %d providers and %d agents", len(cfg.Providers), len(cfg.Agents))
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"threshold above one", &Config{Planning: PlanningConfig{OversplitThreshold: 1.5}}},
		{"negative concurrency", &Config{Scheduler: SchedulerConfig{MaxConcurrent: -1}}},
		{"unknown driver", &Config{Store: StoreConfig{Driver: "mongo"}}},
		{"postgres without dsn", &Config{Store: StoreConfig{Driver: "postgres"}}},
		{"unknown provider", &Config{Agents: map[string]AgentConfig{RolePlanner: {Provider: "nope"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			writeJSON(t, path, tt.cfg)
			if _, err := Load(path, ""); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoad_EnvOverridesFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeJSON(t, path, &Config{Scheduler: SchedulerConfig{MaxConcurrent: 3}, Log: LogConfig{Level: "warn"}})

	t.Setenv("BUTLER_MAX_CONCURRENT", "7")
	t.Setenv("BUTLER_ADDR", ":9000")
	t.Setenv("BUTLER_OVERSPLIT_THRESHOLD", "0.9")
	t.Setenv("BUTLER_WORKSPACE_ROOT", "/srv/work")

	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Scheduler.MaxConcurrent != 7 {
		t.Errorf("max concurrent = %d, want 7", cfg.Scheduler.MaxConcurrent)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("addr = %q, want :9000", cfg.Server.Addr)
	}
	if cfg.Planning.OversplitThreshold != 0.9 {
		t.Errorf("threshold = %v, want 0.9", cfg.Planning.OversplitThreshold)
	}
	if cfg.Planning.WorkspaceRoot != "/srv/work" {
		t.Errorf("workspace root = %q, want /srv/work", cfg.Planning.WorkspaceRoot)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("unset env must keep the file value, got level %q", cfg.Log.Level)
	}
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("BUTLER_MAX_CONCURRENT", "many")
	if _, err := Load("", ""); err == nil {
		t.Fatal("expected error for non-numeric env value")
	}
}

func TestBackendResolvesRole(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers["local"] = ProviderConfig{Command: "llm", Args: []string{"--json"}, Type: "command"}
	cfg.Agents[RoleClassifier] = AgentConfig{Provider: "local", Model: "tiny", TimeoutSec: 30}

	bc, err := cfg.Backend(RoleClassifier)
	if err != nil {
		t.Fatalf("Backend failed: %v", err)
	}
	if bc.Type != "command" || bc.Command != "llm" || bc.Model != "tiny" {
		t.Errorf("unexpected backend config: %+v", bc)
	}
	if bc.Timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", bc.Timeout)
	}
	if len(bc.Args) != 1 || bc.Args[0] != "--json" {
		t.Errorf("args = %v", bc.Args)
	}

	if _, err := cfg.Backend("nobody"); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestResolvePaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ResolvePaths("/data")

	if cfg.Store.DSN != filepath.Join("/data", "butler.db") {
		t.Errorf("dsn = %q", cfg.Store.DSN)
	}
	if cfg.WorkAreas.Root != filepath.Join("/data", "work") {
		t.Errorf("work root = %q", cfg.WorkAreas.Root)
	}

	cfg = DefaultConfig()
	cfg.Store = StoreConfig{Driver: "postgres", DSN: "postgres://db"}
	cfg.ResolvePaths("/data")
	if cfg.Store.DSN != "postgres://db" {
		t.Errorf("postgres dsn overwritten: %q", cfg.Store.DSN)
	}
}

func TestSlogLevel(t *testing.T) {
	if got := (LogConfig{Level: "debug"}).SlogLevel().String(); got != "DEBUG" {
		t.Errorf("debug level = %s", got)
	}
	if got := (LogConfig{Level: "loud"}).SlogLevel().String(); got != "INFO" {
		t.Errorf("invalid level should default to INFO, got %s", got)
	}
}
