package httpapi

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/butler/internal/plan"
	"github.com/aristath/butler/internal/scheduler"
)

type taskView struct {
	ID                string            `json:"id"`
	Title             string            `json:"title"`
	Mode              plan.Mode         `json:"mode"`
	Status            string            `json:"status"`
	DestinationID     string            `json:"destination_id"`
	GroupID           string            `json:"group_id"`
	TaskKey           string            `json:"task_key"`
	DependsOn         []string          `json:"depends_on,omitempty"`
	Handoff           *plan.HandoffSpec `json:"handoff,omitempty"`
	OriginUserMessage string            `json:"origin_user_message,omitempty"`
	RetryOfTaskID     string            `json:"retry_of_task_id,omitempty"`
	RetryAttempt      int               `json:"retry_attempt"`
	Cascade           bool              `json:"cascade,omitempty"`
	ResultBrief       string            `json:"result_brief,omitempty"`
	ResultDetail      string            `json:"result_detail,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	StartedAt         *time.Time        `json:"started_at,omitempty"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
}

func newTaskView(t *scheduler.Task, detail bool) taskView {
	v := taskView{
		ID:                t.ID,
		Title:             t.Title,
		Mode:              t.Mode,
		Status:            t.Status.String(),
		DestinationID:     t.DestinationID,
		GroupID:           t.GroupID,
		TaskKey:           t.TaskKey,
		DependsOn:         t.DependsOn,
		Handoff:           t.Handoff,
		OriginUserMessage: t.OriginUserMessage,
		RetryOfTaskID:     t.RetryOfTaskID,
		RetryAttempt:      t.RetryAttempt,
		Cascade:           t.Cascade,
		ResultBrief:       t.ResultBrief,
		CreatedAt:         t.CreatedAt,
	}
	if detail {
		v.ResultDetail = t.ResultDetail
	}
	if !t.StartedAt.IsZero() {
		started := t.StartedAt
		v.StartedAt = &started
	}
	if !t.CompletedAt.IsZero() {
		completed := t.CompletedAt
		v.CompletedAt = &completed
	}
	return v
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	var (
		filter    scheduler.TaskStatus
		hasFilter bool
	)
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		st, err := scheduler.ParseTaskStatus(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		filter, hasFilter = st, true
	}

	tasks := s.orch.Tasks()
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].CreatedAt.After(tasks[j].CreatedAt) })

	out := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		if hasFilter && t.Status != filter {
			continue
		}
		out = append(out, newTaskView(t, false))
	}
	respondJSON(w, http.StatusOK, map[string]any{"tasks": out})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, t := range s.orch.Tasks() {
		if t.ID == id {
			respondJSON(w, http.StatusOK, newTaskView(t, true))
			return
		}
	}
	respondError(w, http.StatusNotFound, "task_not_found", "task "+id+" not found")
}

func (s *Server) handleClearTasks(w http.ResponseWriter, r *http.Request) {
	n, err := s.orch.ClearTasks(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "clear_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"removed": n})
}
