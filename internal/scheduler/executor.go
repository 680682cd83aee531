package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sourcegraph/conc/panics"

	"github.com/aristath/butler/internal/backend"
)

// Executor runs one task's prompt and returns its result.
type Executor interface {
	Execute(ctx context.Context, task *Task) (string, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, task *Task) (string, error)

func (f ExecutorFunc) Execute(ctx context.Context, task *Task) (string, error) {
	return f(ctx, task)
}

// BackendFactory builds a backend for a destination.
type BackendFactory func(cfg backend.Config) (backend.Backend, error)

// BackendExecutor runs tasks through a backend. Each destination keeps its
// own backend so reused destinations continue the same session, while every
// call runs in the work dir of the task being executed.
type BackendExecutor struct {
	factory BackendFactory
	base    backend.Config

	mu       sync.Mutex
	backends map[string]backend.Backend // destinationID -> backend
}

// NewBackendExecutor creates an executor that builds backends from base,
// overriding the session per destination.
func NewBackendExecutor(factory BackendFactory, base backend.Config) *BackendExecutor {
	return &BackendExecutor{
		factory:  factory,
		base:     base,
		backends: make(map[string]backend.Backend),
	}
}

// Execute sends the task prompt to the destination's backend.
func (e *BackendExecutor) Execute(ctx context.Context, task *Task) (string, error) {
	b, err := e.backendFor(task)
	if err != nil {
		return "", err
	}

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context cancelled before execution: %w", err)
	}

	resp, err := b.Send(ctx, backend.Message{Content: task.Prompt, Role: "user", WorkDir: task.WorkDir})
	if err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", errors.New(resp.Error)
	}
	return strings.TrimSpace(resp.Content), nil
}

func (e *BackendExecutor) backendFor(task *Task) (backend.Backend, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if b, ok := e.backends[task.DestinationID]; ok {
		return b, nil
	}

	cfg := e.base
	cfg.SessionID = task.DestinationID
	if task.WorkDir != "" {
		cfg.WorkDir = task.WorkDir
	}
	b, err := e.factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("create backend for destination %q: %w", task.DestinationID, err)
	}
	e.backends[task.DestinationID] = b
	return b, nil
}

// Close closes every backend the executor created.
func (e *BackendExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	for dest, b := range e.backends {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close backend %q: %w", dest, err))
		}
		delete(e.backends, dest)
	}
	return errors.Join(errs...)
}

// safeExecute runs the executor and converts a panic into an error.
func safeExecute(ctx context.Context, exec Executor, task *Task) (result string, err error) {
	var pc panics.Catcher
	pc.Try(func() {
		result, err = exec.Execute(ctx, task)
	})
	if r := pc.Recovered(); r != nil {
		return "", fmt.Errorf("executor panicked: %v", r.Value)
	}
	return result, err
}
