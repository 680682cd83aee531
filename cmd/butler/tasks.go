package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/aristath/butler/internal/persistence"
	"github.com/aristath/butler/internal/scheduler"
)

func newTasksCmd(opts *rootOptions) *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List stored tasks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			store, err := persistence.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
			if err != nil {
				return fmt.Errorf("opening task store: %w", err)
			}
			defer store.Close()

			tasks, err := listTasks(ctx, store, status)
			if err != nil {
				return err
			}
			if limit > 0 && len(tasks) > limit {
				tasks = tasks[:limit]
			}
			printTasks(cmd.OutOrStdout(), tasks)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only show tasks with this status (queued, running, completed, failed, cancelled)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of tasks to show (0 for all)")
	return cmd
}

func listTasks(ctx context.Context, store persistence.Store, status string) ([]*scheduler.Task, error) {
	var (
		tasks []*scheduler.Task
		err   error
	)
	if status == "" {
		tasks, err = store.ListTasks(ctx)
	} else {
		st, perr := scheduler.ParseTaskStatus(status)
		if perr != nil {
			return nil, perr
		}
		tasks, err = store.ListByStatus(ctx, st)
	}
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].CreatedAt.After(tasks[j].CreatedAt) })
	return tasks, nil
}

func statusColor(st scheduler.TaskStatus) *color.Color {
	switch st {
	case scheduler.TaskRunning:
		return color.New(color.FgYellow, color.Bold)
	case scheduler.TaskCompleted:
		return color.New(color.FgGreen)
	case scheduler.TaskFailed:
		return color.New(color.FgRed, color.Bold)
	case scheduler.TaskCancelled:
		return color.New(color.FgMagenta)
	default:
		return color.New(color.FgCyan)
	}
}

func printTasks(w io.Writer, tasks []*scheduler.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "No tasks.")
		return
	}
	dim := color.New(color.Faint)
	for _, t := range tasks {
		fmt.Fprintf(w, "%s  %-10s %s  %s\n",
			dim.Sprint(shortID(t.ID)),
			statusColor(t.Status).Sprint(t.Status.String()),
			dim.Sprint(t.CreatedAt.Local().Format(time.DateTime)),
			t.Title,
		)
		var notes []string
		if t.RetryOfTaskID != "" {
			notes = append(notes, "retry of "+shortID(t.RetryOfTaskID))
		}
		if t.Cascade {
			notes = append(notes, "cancelled by dependency")
		}
		if len(notes) > 0 {
			fmt.Fprintf(w, "          %s\n", dim.Sprint(strings.Join(notes, ", ")))
		}
		if t.ResultBrief != "" {
			fmt.Fprintf(w, "          %s\n", t.ResultBrief)
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
