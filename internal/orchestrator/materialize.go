package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/aristath/butler/internal/plan"
	"github.com/aristath/butler/internal/scheduler"
)

type dispatchResult struct {
	GroupID string
	Tasks   []*scheduler.Task // in submission order
	Notes   []string
}

// materialize turns validated intents into tasks and submits them as one
// batch. Nothing is submitted unless every intent converts. Tasks with a
// workspace run there; the rest get a fresh work area.
func (m *Manager) materialize(ctx context.Context, intents []plan.Intent, cr creation) (*dispatchResult, error) {
	intents = plan.Clone(intents)
	if err := checkPlan(intents); err != nil {
		return nil, err
	}
	order, err := plan.Order(intents)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]plan.Intent, len(intents))
	for _, in := range intents {
		byKey[in.TaskKey] = in
	}

	res := &dispatchResult{GroupID: ulid.Make().String()}
	turnID := ulid.Make().String()
	now := time.Now()
	existing := m.sched.Tasks()
	keyToID := make(map[string]string, len(intents))
	var created []string

	for _, key := range order {
		in := byKey[key]

		deps := make([]string, 0, len(in.DependsOn))
		for _, dep := range in.DependsOn {
			deps = append(deps, keyToID[dep])
		}

		destination, note := m.destinationFor(in, existing, res.Tasks)
		if note != "" {
			res.Notes = append(res.Notes, note)
		}

		task := &scheduler.Task{
			ID:                uuid.NewString(),
			DestinationID:     destination,
			Mode:              in.Mode,
			Title:             in.Title,
			Prompt:            plan.RenderPrompt(in, plan.RenderContext{OriginUserMessage: cr.OriginUserMessage, HabitAddendum: cr.HabitAddendum}),
			DependsOn:         deps,
			GroupID:           res.GroupID,
			TaskKey:           in.TaskKey,
			SourceTurnID:      turnID,
			OriginUserMessage: cr.OriginUserMessage,
			RetryOfTaskID:     cr.RetryOfTaskID,
			RetryAttempt:      cr.RetryAttempt,
			CreatedAt:         now,
		}
		if in.Handoff != nil {
			h := *in.Handoff
			h.RequiredArtifacts = append([]string(nil), in.Handoff.RequiredArtifacts...)
			task.Handoff = &h
		}

		switch {
		case in.WorkspacePath != "":
			task.WorkDir = in.WorkspacePath
		case m.workareas != nil:
			info, err := m.workareas.Create(string(in.Mode))
			if err != nil {
				m.removeWorkAreas(created)
				return nil, fmt.Errorf("create work area for %s: %w", in.TaskKey, err)
			}
			task.WorkDir = info.Path
			created = append(created, info.Path)
		}

		keyToID[key] = task.ID
		res.Tasks = append(res.Tasks, task)
	}

	// The scheduler owns what it is given; the result keeps its own copies.
	batch := make([]*scheduler.Task, len(res.Tasks))
	for i, t := range res.Tasks {
		batch[i] = t.Clone()
	}
	if err := m.sched.Submit(ctx, batch); err != nil {
		m.removeWorkAreas(created)
		return nil, fmt.Errorf("submit tasks: %w", err)
	}

	m.logger.Info("plan dispatched", "group", res.GroupID, "tasks", len(res.Tasks), "retry_of", cr.RetryOfTaskID)
	return res, nil
}

// destinationFor picks the task's execution destination. Reuse takes the
// newest task of the same mode, including tasks earlier in this batch, and
// prefers destinations whose last task did not fail or get cancelled.
func (m *Manager) destinationFor(in plan.Intent, existing, batch []*scheduler.Task) (string, string) {
	if in.ThreadStrategy != plan.ThreadReuseLastSame {
		return uuid.NewString(), ""
	}

	var newest, newestHealthy *scheduler.Task
	consider := func(t *scheduler.Task) {
		if t.Mode != in.Mode || t.DestinationID == "" {
			return
		}
		if newest == nil || !t.CreatedAt.Before(newest.CreatedAt) {
			newest = t
		}
		healthy := t.Status != scheduler.TaskFailed && t.Status != scheduler.TaskCancelled
		if healthy && (newestHealthy == nil || !t.CreatedAt.Before(newestHealthy.CreatedAt)) {
			newestHealthy = t
		}
	}
	for _, t := range existing {
		consider(t)
	}
	for _, t := range batch {
		consider(t)
	}

	switch {
	case newestHealthy != nil:
		return newestHealthy.DestinationID, ""
	case newest != nil:
		return newest.DestinationID, ""
	default:
		return uuid.NewString(), fmt.Sprintf("No reusable %s destination for %q; a new one was created.", in.Mode, in.Title)
	}
}

func (m *Manager) removeWorkAreas(paths []string) {
	for _, p := range paths {
		if err := m.workareas.Remove(p); err != nil {
			m.logger.Warn("failed to remove work area", "path", p, "error", err)
		}
	}
}
