package backend

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// CommandAdapter runs an arbitrary executable per message, writing the
// prompt to stdin and returning trimmed stdout as the reply. The session ID
// and work dir are exported as BUTLER_SESSION_ID and BUTLER_WORK_DIR.
type CommandAdapter struct {
	command   string
	args      []string
	sessionID string
	workDir   string
	cfg       Config
	procMgr   *ProcessManager
}

// NewCommandAdapter creates a command backend.
func NewCommandAdapter(cfg Config, procMgr *ProcessManager) (*CommandAdapter, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, fmt.Errorf("command backend requires a command")
	}
	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return &CommandAdapter{
		command:   cfg.Command,
		args:      append([]string(nil), cfg.Args...),
		sessionID: sessionID,
		workDir:   cfg.WorkDir,
		cfg:       cfg,
		procMgr:   procMgr,
	}, nil
}

// Send runs the command once with msg.Content on stdin.
func (c *CommandAdapter) Send(ctx context.Context, msg Message) (Response, error) {
	ctx, cancel := withTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	workDir := c.workDir
	if msg.WorkDir != "" {
		workDir = msg.WorkDir
	}

	cmd := newCommand(ctx, c.command, c.args...)
	cmd.Dir = workDir
	cmd.Stdin = strings.NewReader(msg.Content)
	cmd.Env = append(os.Environ(),
		"BUTLER_SESSION_ID="+c.sessionID,
		"BUTLER_WORK_DIR="+workDir,
		"BUTLER_MODEL="+c.cfg.Model,
	)

	stdout, _, err := executeCommand(ctx, cmd, c.procMgr)
	if err != nil {
		return Response{
			Error: fmt.Sprintf("%s failed: %v", c.command, err),
		}, err
	}

	return Response{
		Content:   strings.TrimSpace(string(stdout)),
		SessionID: c.sessionID,
	}, nil
}

// Close is a no-op: the command runs once per message.
func (c *CommandAdapter) Close() error {
	return nil
}

// SessionID returns the session identifier exported to the command.
func (c *CommandAdapter) SessionID() string {
	return c.sessionID
}
