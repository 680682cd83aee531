// Package handoff passes upstream task results to dependent tasks, inline in
// the prompt, as a JSON artifact in the task's work area, or both.
package handoff

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aristath/butler/internal/plan"
	"github.com/aristath/butler/internal/scheduler"
)

// ArtifactName is the file written into a task's work area.
const ArtifactName = ".handoff.json"

// Artifact is the JSON payload written for filesystem handoffs.
type Artifact struct {
	TaskID      string       `json:"task_id"`
	TaskKey     string       `json:"task_key"`
	GeneratedAt time.Time    `json:"generated_at"`
	Handoff     ArtifactSpec `json:"handoff"`
	Upstream    []Upstream   `json:"upstream"`
}

// ArtifactSpec mirrors the task's handoff settings.
type ArtifactSpec struct {
	Method            plan.HandoffMethod `json:"method"`
	Note              string             `json:"note,omitempty"`
	RequiredArtifacts []string           `json:"required_artifacts"`
}

// Upstream describes one parent task.
type Upstream struct {
	TaskID        string    `json:"task_id"`
	TaskKey       string    `json:"task_key"`
	Title         string    `json:"title"`
	Mode          plan.Mode `json:"mode"`
	DestinationID string    `json:"destination_id"`
	WorkDir       string    `json:"work_dir,omitempty"`
	ResultBrief   string    `json:"result_brief"`
	ResultDetail  string    `json:"result_detail"`
	CompletedAt   time.Time `json:"completed_at"`
}

// Builder implements scheduler.PromptPreparer.
type Builder struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewBuilder creates a Builder. A nil logger uses slog.Default.
func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{logger: logger, now: time.Now}
}

// Prepare returns the prompt to execute for task. Tasks without dependencies
// run their prompt verbatim. A failed artifact write is logged and does not
// fail the task.
func (b *Builder) Prepare(task *scheduler.Task, parents []*scheduler.Task) (string, error) {
	if len(task.DependsOn) == 0 || len(parents) == 0 {
		return task.Prompt, nil
	}

	method := task.HandoffMethod()
	if method.IncludesFilesystem() {
		if err := b.WriteArtifact(task, parents); err != nil {
			b.logger.Warn("failed to write handoff artifact", "task", task.ID, "error", err)
		}
	}

	if !method.IncludesContext() {
		return task.Prompt, nil
	}
	return ContextPrefix(task, parents) + "\n\n" + task.Prompt, nil
}

// ContextPrefix renders the upstream context block for task.
func ContextPrefix(task *scheduler.Task, parents []*scheduler.Task) string {
	blocks := []string{"[Upstream Context]"}
	for i, p := range parents {
		blocks = append(blocks, fmt.Sprintf("%d. %s\nmode=%s\nthread=%s\nresult_brief=%s\nresult_detail=%s",
			i+1, p.Title, p.Mode, p.DestinationID, p.ResultBrief, p.ResultDetail))
	}
	if task.Handoff != nil && strings.TrimSpace(task.Handoff.Note) != "" {
		blocks = append(blocks, "[Handoff Note]\n"+strings.TrimSpace(task.Handoff.Note))
	}
	return strings.Join(blocks, "\n\n")
}

// WriteArtifact writes the handoff payload into the task's work area.
func (b *Builder) WriteArtifact(task *scheduler.Task, parents []*scheduler.Task) error {
	if task.WorkDir == "" {
		return fmt.Errorf("task %s has no work area", task.ID)
	}

	art := Artifact{
		TaskID:      task.ID,
		TaskKey:     task.TaskKey,
		GeneratedAt: b.now().UTC(),
		Handoff: ArtifactSpec{
			Method:            task.HandoffMethod(),
			RequiredArtifacts: []string{},
		},
		Upstream: make([]Upstream, 0, len(parents)),
	}
	if task.Handoff != nil {
		art.Handoff.Note = task.Handoff.Note
		if len(task.Handoff.RequiredArtifacts) > 0 {
			art.Handoff.RequiredArtifacts = task.Handoff.RequiredArtifacts
		}
	}
	for _, p := range parents {
		art.Upstream = append(art.Upstream, Upstream{
			TaskID:        p.ID,
			TaskKey:       p.TaskKey,
			Title:         p.Title,
			Mode:          p.Mode,
			DestinationID: p.DestinationID,
			WorkDir:       p.WorkDir,
			ResultBrief:   p.ResultBrief,
			ResultDetail:  p.ResultDetail,
			CompletedAt:   p.CompletedAt,
		})
	}

	data, err := json.MarshalIndent(art, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal handoff: %w", err)
	}
	return writeFileAtomic(filepath.Join(task.WorkDir, ArtifactName), data)
}

// ReadArtifact loads a previously written artifact from dir.
func ReadArtifact(dir string) (*Artifact, error) {
	data, err := os.ReadFile(filepath.Join(dir, ArtifactName))
	if err != nil {
		return nil, fmt.Errorf("failed to read handoff: %w", err)
	}
	var art Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("failed to parse handoff: %w", err)
	}
	return &art, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
