package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ClaudeAdapter implements the Backend interface for the Claude Code CLI.
type ClaudeAdapter struct {
	command      string
	extraArgs    []string
	sessionID    string
	workDir      string
	model        string
	systemPrompt string
	timeout      time.Duration
	procMgr      *ProcessManager

	mu      sync.Mutex
	started bool
}

// claudeResponse is the JSON printed by `claude -p --output-format json`.
// Newer CLIs print result as a string; older ones as a content array.
type claudeResponse struct {
	SessionID string          `json:"session_id"`
	IsError   bool            `json:"is_error"`
	Result    json.RawMessage `json:"result"`
}

type claudeContent struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// NewClaudeAdapter creates a new Claude Code backend adapter.
// If cfg.SessionID is empty, a new UUID will be generated.
// The ProcessManager is optional - if nil, subprocesses won't be tracked.
func NewClaudeAdapter(cfg Config, procMgr *ProcessManager) (*ClaudeAdapter, error) {
	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	} else if _, err := uuid.Parse(sessionID); err != nil {
		return nil, fmt.Errorf("claude session ID must be a UUID: %w", err)
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
	}

	command := cfg.Command
	if command == "" {
		command = "claude"
	}

	return &ClaudeAdapter{
		command:      command,
		extraArgs:    append([]string(nil), cfg.Args...),
		sessionID:    sessionID,
		workDir:      workDir,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		timeout:      cfg.Timeout,
		procMgr:      procMgr,
	}, nil
}

// Send sends a message to Claude Code CLI and returns the response.
// The first call uses --session-id, subsequent calls use --resume.
func (a *ClaudeAdapter) Send(ctx context.Context, msg Message) (Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ctx, cancel := withTimeout(ctx, a.timeout)
	defer cancel()

	cmd := newCommand(ctx, a.command, a.buildArgs(msg, a.started)...)
	cmd.Dir = a.workDir
	if msg.WorkDir != "" {
		cmd.Dir = msg.WorkDir
	}

	stdout, stderr, err := executeCommand(ctx, cmd, a.procMgr)
	if err != nil {
		return Response{
			Error: fmt.Sprintf("claude command failed: %v", err),
		}, err
	}

	resp, err := parseClaudeResponse(stdout)
	if err != nil {
		return Response{
			Error: fmt.Sprintf("failed to parse claude response: %v (stderr: %s)", err, string(stderr)),
		}, err
	}

	a.started = true
	if resp.SessionID == "" {
		resp.SessionID = a.sessionID
	}
	return resp, nil
}

// Close is a no-op: the CLI runs once per message.
func (a *ClaudeAdapter) Close() error {
	return nil
}

// SessionID returns the current session identifier.
func (a *ClaudeAdapter) SessionID() string {
	return a.sessionID
}

// buildArgs constructs the command-line arguments for the claude CLI.
// Configured extra args come first so they cannot displace the prompt.
func (a *ClaudeAdapter) buildArgs(msg Message, isResume bool) []string {
	args := append([]string(nil), a.extraArgs...)
	args = append(args, "-p", msg.Content, "--output-format", "json")

	if isResume {
		args = append(args, "--resume", a.sessionID)
	} else {
		args = append(args, "--session-id", a.sessionID)
	}

	if a.model != "" {
		args = append(args, "--model", a.model)
	}

	if a.systemPrompt != "" {
		args = append(args, "--append-system-prompt", a.systemPrompt)
	}

	return args
}

// parseClaudeResponse extracts the reply text from the CLI's JSON output.
func parseClaudeResponse(data []byte) (Response, error) {
	var cr claudeResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return Response{}, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	var content string
	if len(cr.Result) > 0 {
		if err := json.Unmarshal(cr.Result, &content); err != nil {
			var cc claudeContent
			if err := json.Unmarshal(cr.Result, &cc); err != nil {
				return Response{}, fmt.Errorf("unexpected result shape: %w", err)
			}
			for _, item := range cc.Content {
				if item.Type == "text" {
					content += item.Text
				}
			}
		}
	}

	resp := Response{Content: content, SessionID: cr.SessionID}
	if cr.IsError {
		resp.Error = content
		if resp.Error == "" {
			resp.Error = "claude reported an error"
		}
		return resp, errors.New(resp.Error)
	}
	return resp, nil
}
