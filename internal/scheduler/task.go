package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/aristath/butler/internal/plan"
)

// TaskStatus represents the current state of a task.
type TaskStatus int

const (
	TaskQueued    TaskStatus = iota // Waiting for parents or a free slot
	TaskRunning                     // Currently executing
	TaskCompleted                   // Finished successfully
	TaskFailed                      // Ran and the executor reported an error
	TaskCancelled                   // Settled without running because a parent did not complete
)

var statusNames = [...]string{"queued", "running", "completed", "failed", "cancelled"}

func (s TaskStatus) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// IsTerminal reports whether the status can no longer change.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// ParseTaskStatus converts a stored status name back to a TaskStatus.
func ParseTaskStatus(s string) (TaskStatus, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range statusNames {
		if n == name {
			return TaskStatus(i), nil
		}
	}
	return TaskQueued, fmt.Errorf("unknown task status %q", s)
}

// Task is a unit of work owned by the scheduler once submitted.
type Task struct {
	ID                string
	DestinationID     string // Execution thread; at most one running task per destination
	Mode              plan.Mode
	Title             string
	Prompt            string // Rendered prompt, before any upstream context is added
	Status            TaskStatus
	DependsOn         []string // Task IDs from the same batch
	GroupID           string
	TaskKey           string
	SourceTurnID      string
	OriginUserMessage string
	Handoff           *plan.HandoffSpec
	WorkDir           string

	RetryOfTaskID string
	RetryAttempt  int  // 0 for originals, 1 for a reassignment
	Cascade       bool // Settled through dependency propagation

	ResultBrief  string
	ResultDetail string

	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// Clone returns a deep copy safe to hand out of the scheduler.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.DependsOn != nil {
		c.DependsOn = append([]string(nil), t.DependsOn...)
	}
	if t.Handoff != nil {
		h := *t.Handoff
		h.RequiredArtifacts = append([]string(nil), t.Handoff.RequiredArtifacts...)
		c.Handoff = &h
	}
	return &c
}

// HandoffMethod returns the task's handoff method, defaulting to both.
func (t *Task) HandoffMethod() plan.HandoffMethod {
	if t.Handoff == nil || t.Handoff.Method == "" {
		return plan.HandoffBoth
	}
	return t.Handoff.Method
}

const briefLimit = 240

// Brief shortens a result to its first non-empty line, capped at a few
// hundred runes, for task cards and upstream summaries.
func Brief(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	r := []rune(s)
	if len(r) > briefLimit {
		return string(r[:briefLimit-1]) + "…"
	}
	return s
}
