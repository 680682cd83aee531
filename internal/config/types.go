package config

// ProviderConfig defines a transport layer (CLI command, args, backend type).
// Providers are separate from agents -- multiple agents can share one provider.
type ProviderConfig struct {
	Command string   `json:"command" yaml:"command"`               // CLI binary name (e.g., "claude")
	Args    []string `json:"args,omitempty" yaml:"args,omitempty"` // Default args for command backends
	Type    string   `json:"type" yaml:"type"`                     // Backend type matching backend.Config.Type: "claude", "command"
}

// AgentConfig binds a role to a provider and model.
type AgentConfig struct {
	Provider     string `json:"provider" yaml:"provider"`                               // Key into Providers map
	Model        string `json:"model,omitempty" yaml:"model,omitempty"`                 // Model override
	SystemPrompt string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"` // Role-specific system prompt
	TimeoutSec   int    `json:"timeout_sec,omitempty" yaml:"timeout_sec,omitempty"`     // Per-call deadline; zero means none
}

// Agent roles the binary wires.
const (
	RolePlanner    = "planner"    // Plan proposer
	RoleClassifier = "classifier" // Oversplit classifier
	RoleExecutor   = "executor"   // Runs scheduled tasks
)

// SchedulerConfig bounds task execution.
type SchedulerConfig struct {
	MaxConcurrent int `json:"max_concurrent,omitempty" yaml:"max_concurrent,omitempty"`
}

// PlanningConfig tunes turn processing.
type PlanningConfig struct {
	ThreadID           string  `json:"thread_id,omitempty" yaml:"thread_id,omitempty"`
	OversplitThreshold float64 `json:"oversplit_threshold,omitempty" yaml:"oversplit_threshold,omitempty"`
	HistoryTurns       int     `json:"history_turns,omitempty" yaml:"history_turns,omitempty"`
	RecentRounds       int     `json:"recent_rounds,omitempty" yaml:"recent_rounds,omitempty"`
	HabitAddendum      string  `json:"habit_addendum,omitempty" yaml:"habit_addendum,omitempty"`
	WorkspaceRoot      string  `json:"workspace_root,omitempty" yaml:"workspace_root,omitempty"` // Base for relative task workspaces
}

// StoreConfig selects the task store. An empty DSN uses the data directory.
type StoreConfig struct {
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty"` // "sqlite" or "postgres"
	DSN    string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// WorkAreaConfig locates per-task working directories.
type WorkAreaConfig struct {
	Root string `json:"root,omitempty" yaml:"root,omitempty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `json:"level,omitempty" yaml:"level,omitempty"` // debug, info, warn, error
}

// Config is the top-level configuration.
type Config struct {
	Providers map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Agents    map[string]AgentConfig    `json:"agents" yaml:"agents"`
	Scheduler SchedulerConfig           `json:"scheduler" yaml:"scheduler"`
	Planning  PlanningConfig            `json:"planning" yaml:"planning"`
	Store     StoreConfig               `json:"store" yaml:"store"`
	WorkAreas WorkAreaConfig            `json:"work_areas" yaml:"work_areas"`
	Server    ServerConfig              `json:"server" yaml:"server"`
	Log       LogConfig                 `json:"log" yaml:"log"`
}
