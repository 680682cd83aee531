package orchestrator

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/aristath/butler/internal/plan"
)

// resolveWorkspaces rewrites every intent's workspace path to an absolute
// path, resolving relative ones against root, and returns the resolved paths
// that do not exist yet. Intents without a workspace path are left alone.
func resolveWorkspaces(intents []plan.Intent, root string) ([]string, error) {
	var missing []string
	seen := make(map[string]bool)

	for i := range intents {
		in := &intents[i]
		if in.WorkspacePath == "" {
			continue
		}

		path := in.WorkspacePath
		if !filepath.IsAbs(path) {
			if root == "" {
				return nil, &WorkspaceError{TaskKey: in.TaskKey, Path: path, Reason: "is relative but no workspace root is configured; use an absolute path"}
			}
			path = filepath.Join(root, path)
		}
		path, err := filepath.Abs(path)
		if err != nil {
			return nil, &WorkspaceError{TaskKey: in.TaskKey, Path: in.WorkspacePath, Reason: "cannot be resolved", Err: err}
		}

		info, err := os.Stat(path)
		switch {
		case err == nil && !info.IsDir():
			return nil, &WorkspaceError{TaskKey: in.TaskKey, Path: path, Reason: "is not a directory"}
		case errors.Is(err, fs.ErrNotExist):
			if !seen[path] {
				seen[path] = true
				missing = append(missing, path)
			}
		case err != nil:
			return nil, &WorkspaceError{TaskKey: in.TaskKey, Path: path, Reason: "cannot be checked", Err: err}
		}
		in.WorkspacePath = path
	}
	return missing, nil
}

// createWorkspaces creates each directory, stopping at the first failure.
func createWorkspaces(paths []string) error {
	for _, p := range paths {
		if err := os.MkdirAll(p, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", p, err)
		}
		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("check %s: %w", p, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%s exists but is not a directory", p)
		}
	}
	return nil
}

// workspaceChoice asks whether to create the missing directories of an
// otherwise dispatchable option.
func workspaceChoice(opt Option, resolved []plan.Intent, missing []string) *Choice {
	create := Option{
		Dispatch:      true,
		Intents:       resolved,
		AssistantText: opt.AssistantText,
		Summary:       summarizeOption(resolved),
		MissingPaths:  missing,
		creation:      opt.creation,
	}
	c := &Choice{
		ID:        ulid.Make().String(),
		Kind:      ChoiceWorkspace,
		Hint:      hintWorkspace,
		CreatedAt: time.Now(),
		Options: map[Answer]Option{
			AnswerCreate:  create,
			AnswerReenter: {AssistantText: "Dispatch cancelled. Send the request again with the workspace path you want."},
		},
	}
	c.Prompt = workspacePrompt(missing, create)
	return c
}

// isWorkspace reports whether dir is a user workspace rather than a work
// area the manager created.
func (m *Manager) isWorkspace(dir string) bool {
	if dir == "" {
		return false
	}
	return m.workareas == nil || !m.workareas.Owns(dir)
}
