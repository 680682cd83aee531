package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/aristath/butler/internal/plan"
	"github.com/aristath/butler/internal/planner"
	"github.com/aristath/butler/internal/scheduler"
)

// handleFailure offers a one-shot reassignment for a task that ran and
// failed. It is idempotent per task ID.
func (m *Manager) handleFailure(ctx context.Context, taskID string, cause error) {
	m.mu.Lock()
	if m.retried[taskID] {
		m.mu.Unlock()
		return
	}
	m.retried[taskID] = true
	m.mu.Unlock()

	task, ok := m.lookupTask(ctx, taskID)
	if !ok {
		m.logger.Warn("failed task not found", "task", taskID)
		return
	}
	if task.Status != scheduler.TaskFailed {
		return
	}

	errMsg := task.ResultDetail
	if cause != nil {
		errMsg = cause.Error()
	}
	if errMsg == "" {
		errMsg = "unknown error"
	}

	m.logger.Info("task failed", "task", task.ID, "error", &ExecutionError{TaskID: task.ID, Title: task.Title, Err: errors.New(errMsg)})
	if !IsRetryable(cause) {
		m.reply(ctx, failureReport(task, errMsg, "It was stopped before it finished, so it will not be retried."))
		return
	}

	if retryDepth(task) >= 1 {
		m.reply(ctx, failureReport(task, errMsg, "This task was already reassigned once, so it will not be retried again."))
		return
	}

	confirm, err := m.retryOption(ctx, task, errMsg)
	if err != nil {
		m.logger.Info("retry reassignment abandoned", "task", task.ID, "reason", err)
		m.reply(ctx, failureReport(task, errMsg, "No replacement plan could be prepared: "+err.Error()))
		return
	}

	c := &Choice{
		ID:           ulid.Make().String(),
		Kind:         ChoiceRetry,
		Hint:         hintRetry,
		FailedTaskID: task.ID,
		CreatedAt:    time.Now(),
		Options: map[Answer]Option{
			AnswerConfirm: confirm,
			AnswerCancel:  {AssistantText: "Retry cancelled. You can restate the request later."},
		},
	}
	c.Prompt = retryPrompt(task, errMsg, confirm)
	m.scheduleChoice(ctx, c)
}

// retryDepth is the task's reassignment depth. The depth is stored on the
// task when it is created, so the retry chain is never walked.
func retryDepth(task *scheduler.Task) int {
	if task.RetryOfTaskID != "" {
		return max(task.RetryAttempt, 1)
	}
	return task.RetryAttempt
}

// retryOption asks the proposer for exactly one replacement task of the
// failed task's mode.
func (m *Manager) retryOption(ctx context.Context, task *scheduler.Task, errMsg string) (Option, error) {
	origin := task.OriginUserMessage
	for _, s := range []string{task.Prompt, task.Title, "none"} {
		if origin != "" {
			break
		}
		origin = s
	}

	proposal, err := m.proposer.Propose(ctx, planner.ProposalRequest{
		UserMessage: origin,
		Policy:      planner.PolicyRetryReassign,
		Retry: &planner.RetryContext{
			FailedTaskTitle:   task.Title,
			FailedTaskMode:    task.Mode,
			FailedTaskPrompt:  task.Prompt,
			FailureError:      errMsg,
			OriginUserMessage: origin,
		},
	})
	if err != nil {
		return Option{}, err
	}

	intents := plan.Clone(proposal.Intents)
	if len(intents) != 1 {
		return Option{}, fmt.Errorf("expected 1 task, got %d", len(intents))
	}
	if err := checkPlan(intents); err != nil {
		return Option{}, err
	}
	if intents[0].Mode != task.Mode {
		return Option{}, fmt.Errorf("replacement mode %s does not match %s", intents[0].Mode, task.Mode)
	}
	if intents[0].WorkspacePath == "" && m.isWorkspace(task.WorkDir) {
		intents[0].WorkspacePath = task.WorkDir
	}

	return Option{
		Dispatch:      true,
		Intents:       intents,
		AssistantText: orDefault(proposal.AssistantText, "Retry plan confirmed and started."),
		Summary:       summarizeOption(intents),
		creation: creation{
			OriginUserMessage: origin,
			HabitAddendum:     m.habitAddendum,
			RetryOfTaskID:     task.ID,
			RetryAttempt:      task.RetryAttempt + 1,
		},
	}, nil
}

// reportCascade tells the user a task never ran. Cascades are never retried.
func (m *Manager) reportCascade(ctx context.Context, taskID, parentID, reason string) {
	m.mu.Lock()
	if m.retried[taskID] {
		m.mu.Unlock()
		return
	}
	m.retried[taskID] = true
	m.mu.Unlock()

	title := taskID
	if task, ok := m.lookupTask(ctx, taskID); ok {
		title = task.Title
	}
	cerr := &CascadeError{TaskID: taskID, Title: title, ParentID: parentID, Reason: reason}
	m.logger.Info("task cancelled by dependency", "task", taskID, "parent", parentID, "error", cerr)
	m.reply(ctx, "Task cancelled: "+title+"\nReason: "+reason+"\nTasks cancelled by a dependency are not retried.")
}
