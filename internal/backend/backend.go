package backend

import (
	"context"
	"fmt"
	"time"
)

// Backend is the completion-service boundary: it sends one prompt and
// returns the reply.
type Backend interface {
	// Send sends a message to the backend and returns the response.
	Send(ctx context.Context, msg Message) (Response, error)

	// Close releases any resources held by the backend.
	Close() error

	// SessionID returns the current session identifier.
	SessionID() string
}

// New creates a new backend based on the provided configuration.
func New(cfg Config, pm *ProcessManager) (Backend, error) {
	var (
		b   Backend
		err error
	)
	switch cfg.Type {
	case "", "claude":
		b, err = NewClaudeAdapter(cfg, pm)
	case "command":
		b, err = NewCommandAdapter(cfg, pm)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Factory returns a constructor bound to pm, suitable for executors that
// build one backend per destination.
func Factory(pm *ProcessManager) func(Config) (Backend, error) {
	return func(cfg Config) (Backend, error) {
		return New(cfg, pm)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
