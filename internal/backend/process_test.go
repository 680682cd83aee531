package backend

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func TestExecuteCommand_BasicExecution(t *testing.T) {
	ctx := context.Background()
	cmd := newCommand(ctx, "echo", "hello")

	stdout, stderr, err := executeCommand(ctx, cmd, nil)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !strings.Contains(string(stdout), "hello") {
		t.Errorf("expected stdout to contain 'hello', got: %s", stdout)
	}
	if len(stderr) > 0 {
		t.Errorf("expected empty stderr, got: %s", stderr)
	}
}

// Output well above the 64KB pipe buffer must not deadlock.
func TestExecuteCommand_LargeOutput(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := newCommand(ctx, "bash", "-c", `for i in $(seq 1 20000); do echo "line $i padding padding"; done; for i in $(seq 1 2000); do echo "err $i" >&2; done`)

	stdout, stderr, err := executeCommand(ctx, cmd, nil)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(stdout)), "\n")
	if len(lines) != 20000 {
		t.Errorf("expected 20000 lines, got %d", len(lines))
	}
	if !strings.Contains(string(stderr), "err 2000") {
		t.Error("expected stderr to be fully drained")
	}
}

func TestExecuteCommand_StderrCapture(t *testing.T) {
	ctx := context.Background()
	cmd := newCommand(ctx, "bash", "-c", "echo error >&2; echo ok")

	stdout, stderr, err := executeCommand(ctx, cmd, nil)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !strings.Contains(string(stdout), "ok") {
		t.Errorf("expected stdout to contain 'ok', got: %s", stdout)
	}
	if !strings.Contains(string(stderr), "error") {
		t.Errorf("expected stderr to contain 'error', got: %s", stderr)
	}
}

func TestExecuteCommand_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	// The child sleep inherits the pipes; killing only bash would leave
	// the copy goroutines blocked.
	cmd := newCommand(ctx, "bash", "-c", "sleep 30 & sleep 30")

	start := time.Now()
	_, _, err := executeCommand(ctx, cmd, nil)
	if err == nil {
		t.Fatal("expected error due to context cancellation, got nil")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("process group was not killed promptly (%v)", elapsed)
	}
}

func TestExecuteCommand_NonZeroExitCode(t *testing.T) {
	ctx := context.Background()
	cmd := newCommand(ctx, "bash", "-c", "echo test-output; echo boom >&2; exit 3")

	stdout, _, err := executeCommand(ctx, cmd, nil)
	if err == nil {
		t.Fatal("expected error due to non-zero exit code, got nil")
	}
	if !strings.Contains(string(stdout), "test-output") {
		t.Errorf("expected stdout to be captured despite error, got: %s", stdout)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected stderr in error, got: %v", err)
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected error to wrap *exec.ExitError, got %T: %v", err, err)
	}
	if code := exitErr.ExitCode(); code != 3 {
		t.Errorf("expected exit code 3, got %d", code)
	}
}

func TestExecuteCommand_TracksWhileRunning(t *testing.T) {
	pm := NewProcessManager()
	ctx := context.Background()

	done := make(chan error, 1)
	cmd := newCommand(ctx, "bash", "-c", "sleep 0.3")
	go func() {
		_, _, err := executeCommand(ctx, cmd, pm)
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for pm.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if pm.Count() != 1 {
		t.Fatalf("expected 1 tracked process, got %d", pm.Count())
	}

	if err := <-done; err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if pm.Count() != 0 {
		t.Errorf("expected 0 tracked processes after exit, got %d", pm.Count())
	}
}

func TestProcessManager_KillAllTerminatesTree(t *testing.T) {
	pm := NewProcessManager()

	cmd := newCommand(context.Background(), "bash", "-c", "sleep 300 & sleep 300")
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start process: %v", err)
	}
	pgid := cmd.Process.Pid
	pm.Track(cmd)

	time.Sleep(100 * time.Millisecond)
	if err := pm.KillAll(); err != nil {
		t.Fatalf("KillAll failed: %v", err)
	}

	if err := cmd.Wait(); err == nil {
		t.Error("expected process to be killed (non-nil error), got nil")
	}
	pm.Untrack(cmd)

	if pm.Count() != 0 {
		t.Errorf("expected 0 tracked processes after Untrack, got %d", pm.Count())
	}

	time.Sleep(100 * time.Millisecond)
	out, err := exec.Command("pgrep", "-g", fmt.Sprintf("%d", pgid)).CombinedOutput()
	if err == nil && len(strings.TrimSpace(string(out))) > 0 {
		t.Errorf("processes still running in group %d: %s", pgid, out)
	}
}

func TestProcessManager_IgnoresUnstarted(t *testing.T) {
	pm := NewProcessManager()
	cmd := newCommand(context.Background(), "true")

	pm.Track(cmd)
	if pm.Count() != 0 {
		t.Errorf("expected unstarted command to be ignored, got %d", pm.Count())
	}
}

func TestExecuteCommand_CancelSendsTerm(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Exits cleanly on SIGTERM; only a forced kill would take longer than
	// the grace period.
	cmd := newCommand(ctx, "bash", "-c", `trap "exit 0" TERM; sleep 300 & wait`)

	time.AfterFunc(100*time.Millisecond, cancel)
	start := time.Now()
	_, _, err := executeCommand(ctx, cmd, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed >= terminateGrace {
		t.Errorf("expected graceful exit before the grace period, took %v", elapsed)
	}
}
