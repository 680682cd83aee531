package orchestrator

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/aristath/butler/internal/plan"
	"github.com/aristath/butler/internal/scheduler"
)

const (
	hintOversplit = "A plan is waiting for your choice: reply A or B."
	hintRetry     = "A retry plan is waiting for confirmation: reply confirm or cancel."
	hintWorkspace = "A workspace directory is missing: reply create or reenter."
)

// summarizeOption describes a candidate plan for a choice prompt.
func summarizeOption(intents []plan.Intent) string {
	if len(intents) == 0 {
		return "No tasks."
	}

	var modes []plan.Mode
	counts := make(map[plan.Mode]int)
	dependent := 0
	lines := make([]string, 0, len(intents))
	for i, in := range intents {
		if counts[in.Mode] == 0 {
			modes = append(modes, in.Mode)
		}
		counts[in.Mode]++

		deps := "independent"
		if len(in.DependsOn) > 0 {
			dependent++
			deps = "dependsOn=" + strings.Join(in.DependsOn, ",")
		}
		lines = append(lines, fmt.Sprintf("%d. [%s] %s (%s)", i+1, in.Mode, in.Title, deps))
	}

	dist := make([]string, 0, len(modes))
	for _, mode := range modes {
		dist = append(dist, fmt.Sprintf("%s:%d", mode, counts[mode]))
	}

	header := []string{
		fmt.Sprintf("Tasks: %d", len(intents)),
		"Modes: " + strings.Join(dist, ", "),
		fmt.Sprintf("Dependent tasks: %d/%d", dependent, len(intents)),
	}
	return strings.Join(append(header, lines...), "\n")
}

func oversplitPrompt(c *Choice) string {
	pct := int(math.Round(c.Confidence * 100))
	return strings.Join([]string{
		"This plan may be split into more tasks than the request needs. Please choose how to run it.",
		"Reason: " + c.Reason,
		fmt.Sprintf("Confidence: %d%%", pct),
		"",
		"Plan A (single task first)",
		c.Options[AnswerA].Summary,
		"",
		"Plan B (original split)",
		c.Options[AnswerB].Summary,
		"",
		"Reply A or B.",
	}, "\n")
}

func retryPrompt(task *scheduler.Task, errMsg string, confirm Option) string {
	return strings.Join([]string{
		"A task failed and a reassignment plan is ready.",
		fmt.Sprintf("Failed task: [%s] %s", task.Mode, task.Title),
		"Error: " + errMsg,
		"",
		"Suggested plan (single task, same mode)",
		confirm.Summary,
		"",
		"Reply confirm or cancel.",
	}, "\n")
}

func workspacePrompt(missing []string, create Option) string {
	lines := []string{
		"Some task workspaces do not exist yet.",
		"",
		"[Missing Directories]",
	}
	for i, p := range missing {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, p))
	}
	return strings.Join(append(lines,
		"",
		"[Planned Tasks]",
		create.Summary,
		"",
		"Reply create or reenter.",
		"create: create the directories and continue.",
		"reenter: cancel and wait for a new path.",
	), "\n")
}

// clarification explains why a plan was not dispatched, with a follow-up
// that matches the kind of problem.
func clarification(assistantText string, err error) string {
	if assistantText == "" {
		assistantText = "This plan cannot be dispatched."
	}

	followUp := "Please correct the request and try again."
	var verr *ValidationError
	var werr *WorkspaceError
	switch {
	case errors.As(err, &werr):
		followUp = "Please enter a valid directory and try again."
	case errors.As(err, &verr) && verr.Graph:
		followUp = "Please fix the task dependencies and try again."
	case errors.As(err, &verr):
		followUp = "Please add the missing task details and try again."
	}

	return strings.Join([]string{
		assistantText,
		"Reason: " + err.Error(),
		followUp,
	}, "\n")
}

func dispatchReply(assistantText string, res *dispatchResult) string {
	if assistantText == "" {
		assistantText = "Tasks planned and started."
	}
	lines := []string{
		assistantText,
		"Group: " + res.GroupID,
		fmt.Sprintf("Created %d task(s).", len(res.Tasks)),
	}
	for i, t := range res.Tasks {
		deps := "independent"
		if n := len(t.DependsOn); n > 0 {
			deps = fmt.Sprintf("depends:%d", n)
		}
		lines = append(lines, fmt.Sprintf("%d. [%s] %s (%s)", i+1, t.Mode, t.Title, deps))
	}
	if len(res.Notes) > 0 {
		lines = append(lines, "[Scheduling Notes]")
		lines = append(lines, res.Notes...)
	}
	return strings.Join(lines, "\n")
}

func failureReport(task *scheduler.Task, errMsg, outcome string) string {
	return strings.Join([]string{
		"Task failed: " + task.Title,
		"Error: " + errMsg,
		outcome,
	}, "\n")
}
