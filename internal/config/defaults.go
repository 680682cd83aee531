package config

// DefaultConfig returns the default configuration: every role on the
// claude provider, two concurrent tasks and a SQLite store.
func DefaultConfig() *Config {
	return &Config{
		Providers: map[string]ProviderConfig{
			"claude": {
				Command: "claude",
				Type:    "claude",
			},
		},
		Agents: map[string]AgentConfig{
			RolePlanner: {
				Provider:     "claude",
				SystemPrompt: "You turn user requests into executable task plans.",
				TimeoutSec:   120,
			},
			RoleClassifier: {
				Provider:     "claude",
				SystemPrompt: "You judge whether a task plan is split more than the request needs.",
				TimeoutSec:   60,
			},
			RoleExecutor: {
				Provider:     "claude",
				SystemPrompt: "You carry out one task and report the result.",
			},
		},
		Scheduler: SchedulerConfig{MaxConcurrent: 2},
		Planning: PlanningConfig{
			ThreadID:           "main",
			OversplitThreshold: 0.6,
			HistoryTurns:       6,
			RecentRounds:       5,
		},
		Store:  StoreConfig{Driver: "sqlite"},
		Server: ServerConfig{Addr: "127.0.0.1:7420"},
		Log:    LogConfig{Level: "info"},
	}
}
