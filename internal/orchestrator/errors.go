package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/aristath/butler/internal/plan"
)

// ValidationError is a malformed plan. It is reported to the user as a
// clarification and never partially applied.
type ValidationError = plan.ValidationError

// ClassifierError wraps a failed oversplit classification. The arbiter
// treats it as a confident oversplit so the user is asked.
type ClassifierError struct {
	Err error
}

func (e *ClassifierError) Error() string { return "classifier failed: " + e.Err.Error() }
func (e *ClassifierError) Unwrap() error { return e.Err }

// CascadeError describes a task that never ran because an upstream task did
// not complete. It is reported but never retried.
type CascadeError struct {
	TaskID   string
	Title    string
	ParentID string
	Reason   string
}

func (e *CascadeError) Error() string {
	return fmt.Sprintf("task %q cancelled: %s", e.Title, e.Reason)
}

// ExecutionError is a task that ran and failed.
type ExecutionError struct {
	TaskID string
	Title  string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("task %q failed: %v", e.Title, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// WorkspaceError is an intent workspace path that cannot be used. It is
// reported to the user as a clarification.
type WorkspaceError struct {
	TaskKey string
	Path    string
	Reason  string
	Err     error
}

func (e *WorkspaceError) Error() string {
	msg := fmt.Sprintf("task %s workspace %s %s", e.TaskKey, e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *WorkspaceError) Unwrap() error { return e.Err }

// ChoiceParseError is an answer that matches none of the open choice's
// options. The choice stays open.
type ChoiceParseError struct {
	Kind  ChoiceKind
	Input string
}

func (e *ChoiceParseError) Error() string {
	return fmt.Sprintf("answer %q does not match a %s choice", e.Input, e.Kind)
}

// IsRetryable reports whether a task failure may trigger a retry
// reassignment. Dependency cascades and runs cancelled on shutdown do not
// qualify. A nil error is an unexplained failure and qualifies.
func IsRetryable(err error) bool {
	var cascade *CascadeError
	if errors.As(err, &cascade) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}
