package plan

import (
	"fmt"
	"regexp"
	"strings"
)

// Mode selects how a task is executed by the downstream collaborator.
type Mode string

const (
	ModeImmediate Mode = "immediate" // One-shot work item
	ModeIterative Mode = "iterative" // Loops until acceptance criteria hold
	ModeMessaging Mode = "messaging" // Composes or sends a message
	ModeRecurring Mode = "recurring" // Handed to the recurring-trigger runner
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeImmediate, ModeIterative, ModeMessaging, ModeRecurring:
		return true
	}
	return false
}

// ThreadStrategy decides whether a task gets a fresh destination or reuses one.
type ThreadStrategy string

const (
	ThreadNew           ThreadStrategy = "new"
	ThreadReuseLastSame ThreadStrategy = "reuse-last-compatible"
)

// HandoffMethod selects how upstream results reach a dependent task.
type HandoffMethod string

const (
	HandoffContext    HandoffMethod = "context"
	HandoffFilesystem HandoffMethod = "filesystem"
	HandoffBoth       HandoffMethod = "both"
)

// IncludesContext reports whether the method injects a prompt prefix.
// The zero value behaves like HandoffBoth.
func (m HandoffMethod) IncludesContext() bool {
	return m == "" || m == HandoffContext || m == HandoffBoth
}

// IncludesFilesystem reports whether the method writes an artifact.
// The zero value behaves like HandoffBoth.
func (m HandoffMethod) IncludesFilesystem() bool {
	return m == "" || m == HandoffFilesystem || m == HandoffBoth
}

// HandoffSpec configures the handoff for a task with dependencies.
type HandoffSpec struct {
	Method            HandoffMethod `json:"method"`
	Note              string        `json:"note,omitempty"`
	RequiredArtifacts []string      `json:"required_artifacts,omitempty"`
}

// Recurrence is the payload of a recurring-mode intent.
type Recurrence struct {
	Cron            string `json:"cron"`
	ContentTemplate string `json:"content_template,omitempty"`
	MergeWindowSec  int    `json:"merge_window_sec,omitempty"`
}

// Intent is a proposed, not yet persisted task produced by one planning call.
type Intent struct {
	TaskKey        string         `json:"task_key"`
	Title          string         `json:"title"`
	Mode           Mode           `json:"mode"`
	InitialPrompt  string         `json:"initial_prompt"`
	ThreadStrategy ThreadStrategy `json:"thread_strategy,omitempty"`
	DependsOn      []string       `json:"depends_on,omitempty"`
	Handoff        *HandoffSpec   `json:"handoff,omitempty"`
	WorkspacePath  string         `json:"workspace_path,omitempty"` // Absolute, or relative to the workspace root

	// iterative
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
	MaxIterations      int      `json:"max_iterations,omitempty"`

	// messaging
	MessagingIntent string   `json:"messaging_intent,omitempty"`
	RecipientHints  []string `json:"recipient_hints,omitempty"`
	Tone            string   `json:"tone,omitempty"`

	// recurring
	Recurrence *Recurrence `json:"recurrence,omitempty"`
}

var taskKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Normalize trims the intent in place and checks its field-level constraints.
func (in *Intent) Normalize() error {
	in.TaskKey = strings.TrimSpace(in.TaskKey)
	in.Title = strings.TrimSpace(in.Title)
	in.InitialPrompt = strings.TrimSpace(in.InitialPrompt)
	in.WorkspacePath = strings.TrimSpace(in.WorkspacePath)
	in.Mode = Mode(strings.ToLower(strings.TrimSpace(string(in.Mode))))

	if in.TaskKey == "" {
		return &ValidationError{Msg: "task key is required"}
	}
	if !taskKeyPattern.MatchString(in.TaskKey) {
		return &ValidationError{Msg: fmt.Sprintf("task key %q must be alphanumeric, underscore or hyphen", in.TaskKey)}
	}
	if !in.Mode.Valid() {
		return &ValidationError{Msg: fmt.Sprintf("task %s has unknown mode %q", in.TaskKey, in.Mode)}
	}
	if in.InitialPrompt == "" {
		return &ValidationError{Msg: fmt.Sprintf("task %s has an empty prompt", in.TaskKey)}
	}
	if in.Title == "" {
		in.Title = BuildTitle(in.Mode, in.InitialPrompt)
	}

	switch in.ThreadStrategy {
	case ThreadNew, ThreadReuseLastSame:
	default:
		in.ThreadStrategy = ThreadNew
	}

	deps := make([]string, 0, len(in.DependsOn))
	for _, dep := range in.DependsOn {
		if dep = strings.TrimSpace(dep); dep != "" {
			deps = append(deps, dep)
		}
	}
	in.DependsOn = deps

	if in.Handoff != nil {
		in.Handoff.Note = strings.TrimSpace(in.Handoff.Note)
		switch in.Handoff.Method {
		case HandoffContext, HandoffFilesystem, HandoffBoth:
		default:
			in.Handoff.Method = HandoffBoth
		}
	}

	if in.Mode == ModeIterative && len(in.AcceptanceCriteria) == 0 {
		return &ValidationError{Msg: fmt.Sprintf("iterative task %s needs acceptance criteria", in.TaskKey)}
	}
	if in.Mode == ModeRecurring && (in.Recurrence == nil || strings.TrimSpace(in.Recurrence.Cron) == "") {
		return &ValidationError{Msg: fmt.Sprintf("recurring task %s needs a schedule", in.TaskKey)}
	}
	return nil
}

// NormalizeAll normalizes every intent, stopping at the first error.
func NormalizeAll(intents []Intent) error {
	for i := range intents {
		if err := intents[i].Normalize(); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy of the intents.
func Clone(intents []Intent) []Intent {
	if intents == nil {
		return nil
	}
	out := make([]Intent, len(intents))
	for i, in := range intents {
		cp := in
		cp.DependsOn = append([]string(nil), in.DependsOn...)
		cp.AcceptanceCriteria = append([]string(nil), in.AcceptanceCriteria...)
		cp.RecipientHints = append([]string(nil), in.RecipientHints...)
		if in.Handoff != nil {
			h := *in.Handoff
			h.RequiredArtifacts = append([]string(nil), in.Handoff.RequiredArtifacts...)
			cp.Handoff = &h
		}
		if in.Recurrence != nil {
			r := *in.Recurrence
			cp.Recurrence = &r
		}
		out[i] = cp
	}
	return out
}

// BuildTitle derives a short title from the prompt when the planner gave none.
func BuildTitle(mode Mode, prompt string) string {
	cleaned := strings.Join(strings.Fields(prompt), " ")
	prefix := "Task"
	switch mode {
	case ModeMessaging:
		prefix = "Message Task"
	case ModeRecurring:
		prefix = "Recurring Task"
	case ModeIterative:
		prefix = "Iterative Task"
	}
	if cleaned == "" {
		return prefix
	}
	runes := []rune(cleaned)
	if len(runes) <= 36 {
		return prefix + ": " + cleaned
	}
	return prefix + ": " + string(runes[:35]) + "…"
}
