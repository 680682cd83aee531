package backend

import "time"

// Message represents a message sent to the backend.
type Message struct {
	Content string
	Role    string // "user" or "system"
	WorkDir string // Overrides the configured work dir for this call
}

// Response represents a response from the backend.
type Response struct {
	Content   string
	SessionID string
	Error     string
}

// Config defines the configuration for a backend.
type Config struct {
	Type         string // "claude" or "command"
	WorkDir      string
	SessionID    string
	Model        string
	SystemPrompt string

	// Command backends only.
	Command string   // Executable to run
	Args    []string // Arguments placed before the prompt is written to stdin

	Timeout time.Duration // Per-call deadline; zero means none
}
