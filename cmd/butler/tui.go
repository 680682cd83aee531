package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/aristath/butler/internal/observability"
	"github.com/aristath/butler/internal/tui"
)

func newTUICmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Run the interactive terminal UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), opts)
		},
	}
}

func runTUI(parent context.Context, opts *rootOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	// The screen belongs to the TUI; logs go to a file.
	if err := os.MkdirAll(opts.dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	logFile, err := os.OpenFile(filepath.Join(opts.dataDir, "butler.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logFile.Close()
	logger := observability.NewLogger(cfg.Log.SlogLevel(), logFile)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	model := tui.New(a.manager, a.bus, cfg, opts.globalConfig, opts.projectConfig)

	// Run Bubble Tea in a goroutine so a signal can still shut down cleanly.
	p := tea.NewProgram(model, tea.WithAltScreen())

	errChan := make(chan error, 1)
	go func() {
		_, err := p.Run()
		errChan <- err
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		// Restore default signal handling so a second Ctrl+C forces exit.
		stop()
		logger.Info("shutdown signal received, cleaning up")

		if err := a.pm.KillAll(); err != nil {
			logger.Warn("killing subprocesses", "error", err)
		}
		p.Quit()

		select {
		case err := <-errChan:
			if err != nil {
				logger.Warn("TUI exit error", "error", err)
			}
		case <-time.After(10 * time.Second):
			logger.Warn("shutdown timeout exceeded, forcing exit")
		}
	}
	return nil
}
