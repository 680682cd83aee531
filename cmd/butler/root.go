package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aristath/butler/internal/config"
)

type rootOptions struct {
	globalConfig  string
	projectConfig string
	dataDir       string
	logLevel      string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "butler",
		Short: "Conversational task orchestrator",
		Long: `butler turns requests into a graph of tasks, checks the plan,
asks before running a plan that looks oversplit, and runs the tasks
under a concurrency limit with results handed from task to task.

Running 'butler' without a subcommand is equivalent to 'butler tui'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.globalConfig, "config", "", "Global config file (default: ~/.butler/config.json)")
	flags.StringVar(&opts.projectConfig, "project-config", "", "Project config file (default: .butler/config.json)")
	flags.StringVar(&opts.dataDir, "data-dir", "", "Directory for the database, work areas and logs (default: ~/.butler)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level override: debug, info, warn, error")

	tui := newTUICmd(opts)
	root.RunE = tui.RunE
	root.AddCommand(tui, newServeCmd(opts), newTasksCmd(opts))
	return root
}

// resolve fills unset paths with the conventional locations.
func (o *rootOptions) resolve() error {
	global, project, err := config.DefaultPaths()
	if err != nil {
		return err
	}
	if o.globalConfig == "" {
		o.globalConfig = global
	}
	if o.projectConfig == "" {
		o.projectConfig = project
	}
	if o.dataDir == "" {
		o.dataDir = filepath.Dir(global)
	}
	return nil
}

// loadConfig reads, overrides and resolves the configuration.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	if err := o.resolve(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(o.globalConfig, o.projectConfig)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	cfg.ResolvePaths(o.dataDir)
	return cfg, nil
}
