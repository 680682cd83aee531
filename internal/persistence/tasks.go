package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/aristath/butler/internal/plan"
	"github.com/aristath/butler/internal/scheduler"
)

const sqliteTaskColumns = `id, destination_id, mode, title, prompt, status, group_id, task_key,
	source_turn_id, origin_user_message, handoff, work_dir, retry_of_task_id, retry_attempt,
	cascade, result_brief, result_detail, created_at, started_at, completed_at`

// SaveTask saves or updates a task and its dependencies.
// Uses ON CONFLICT to make saves idempotent.
func (s *SQLiteStore) SaveTask(ctx context.Context, task *scheduler.Task) error {
	handoff, err := encodeHandoff(task.Handoff)
	if err != nil {
		return err
	}

	// Begin transaction with serializable isolation (BEGIN IMMEDIATE)
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (`+sqliteTaskColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			destination_id = excluded.destination_id,
			mode = excluded.mode,
			title = excluded.title,
			prompt = excluded.prompt,
			status = excluded.status,
			group_id = excluded.group_id,
			task_key = excluded.task_key,
			source_turn_id = excluded.source_turn_id,
			origin_user_message = excluded.origin_user_message,
			handoff = excluded.handoff,
			work_dir = excluded.work_dir,
			retry_of_task_id = excluded.retry_of_task_id,
			retry_attempt = excluded.retry_attempt,
			cascade = excluded.cascade,
			result_brief = excluded.result_brief,
			result_detail = excluded.result_detail,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			updated_at = CURRENT_TIMESTAMP
	`,
		task.ID, task.DestinationID, string(task.Mode), task.Title, task.Prompt, task.Status.String(),
		task.GroupID, task.TaskKey, task.SourceTurnID, task.OriginUserMessage, handoff, task.WorkDir,
		task.RetryOfTaskID, task.RetryAttempt, task.Cascade, task.ResultBrief, task.ResultDetail,
		unixNano(task.CreatedAt), unixNano(task.StartedAt), unixNano(task.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert task: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM task_dependencies WHERE task_id = ?`, task.ID); err != nil {
		return fmt.Errorf("failed to delete old dependencies: %w", err)
	}

	for i, depID := range task.DependsOn {
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO task_dependencies (task_id, depends_on_id, position)
			VALUES (?, ?, ?)
		`, task.ID, depID, i)
		if err != nil {
			return fmt.Errorf("failed to insert dependency %s -> %s: %w", task.ID, depID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetTask retrieves a task by ID, including its dependencies.
func (s *SQLiteStore) GetTask(ctx context.Context, taskID string) (*scheduler.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteTaskColumns+` FROM tasks WHERE id = ?`, taskID)
	task, err := scanSQLiteTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}

	if err := s.loadDependencies(ctx, []*scheduler.Task{task}); err != nil {
		return nil, err
	}
	return task, nil
}

// ListTasks returns all tasks with their dependencies, oldest first.
func (s *SQLiteStore) ListTasks(ctx context.Context) ([]*scheduler.Task, error) {
	return s.queryTasks(ctx, `SELECT `+sqliteTaskColumns+` FROM tasks ORDER BY created_at, id`)
}

// ListByStatus returns tasks in any of the given statuses, oldest first.
func (s *SQLiteStore) ListByStatus(ctx context.Context, statuses ...scheduler.TaskStatus) ([]*scheduler.Task, error) {
	if len(statuses) == 0 {
		return []*scheduler.Task{}, nil
	}
	names := statusNames(statuses)
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(names)), ",")
	return s.queryTasks(ctx, `SELECT `+sqliteTaskColumns+` FROM tasks WHERE status IN (`+placeholders+`) ORDER BY created_at, id`, args...)
}

// ListByGroup returns the tasks created by one planning turn.
func (s *SQLiteStore) ListByGroup(ctx context.Context, groupID string) ([]*scheduler.Task, error) {
	return s.queryTasks(ctx, `SELECT `+sqliteTaskColumns+` FROM tasks WHERE group_id = ? ORDER BY created_at, id`, groupID)
}

// ListByDestination returns the tasks that ran against one destination.
func (s *SQLiteStore) ListByDestination(ctx context.Context, destinationID string) ([]*scheduler.Task, error) {
	return s.queryTasks(ctx, `SELECT `+sqliteTaskColumns+` FROM tasks WHERE destination_id = ? ORDER BY created_at, id`, destinationID)
}

// DeleteTasks removes tasks and their dependency rows. It returns how many
// task records were deleted.
func (s *SQLiteStore) DeleteTasks(ctx context.Context, taskIDs []string) (int, error) {
	if len(taskIDs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	deleted := 0
	for _, id := range taskIDs {
		// Foreign keys are only enabled on the first pooled connection.
		if _, err := tx.ExecContext(ctx, `DELETE FROM task_dependencies WHERE task_id = ?`, id); err != nil {
			return 0, fmt.Errorf("failed to delete dependencies of %s: %w", id, err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
		if err != nil {
			return 0, fmt.Errorf("failed to delete task %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected: %w", err)
		}
		deleted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return deleted, nil
}

// queryTasks runs a task query and loads dependencies once the rows are
// closed, so the pool never needs a second connection mid-iteration.
func (s *SQLiteStore) queryTasks(ctx context.Context, query string, args ...any) ([]*scheduler.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	tasks := []*scheduler.Task{}
	for rows.Next() {
		task, err := scanSQLiteTask(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	rows.Close()

	if err := s.loadDependencies(ctx, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *SQLiteStore) loadDependencies(ctx context.Context, tasks []*scheduler.Task) error {
	for _, task := range tasks {
		rows, err := s.db.QueryContext(ctx, `
			SELECT depends_on_id
			FROM task_dependencies
			WHERE task_id = ?
			ORDER BY position
		`, task.ID)
		if err != nil {
			return fmt.Errorf("failed to query dependencies for task %s: %w", task.ID, err)
		}

		task.DependsOn = []string{}
		for rows.Next() {
			var depID string
			if err := rows.Scan(&depID); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan dependency: %w", err)
			}
			task.DependsOn = append(task.DependsOn, depID)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return fmt.Errorf("error iterating dependencies: %w", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTask(row rowScanner) (*scheduler.Task, error) {
	var (
		task                        scheduler.Task
		mode, status, handoff       string
		created, started, completed int64
	)
	err := row.Scan(
		&task.ID, &task.DestinationID, &mode, &task.Title, &task.Prompt, &status,
		&task.GroupID, &task.TaskKey, &task.SourceTurnID, &task.OriginUserMessage, &handoff,
		&task.WorkDir, &task.RetryOfTaskID, &task.RetryAttempt, &task.Cascade,
		&task.ResultBrief, &task.ResultDetail, &created, &started, &completed,
	)
	if err != nil {
		return nil, err
	}

	task.Mode = plan.Mode(mode)
	if task.Status, err = scheduler.ParseTaskStatus(status); err != nil {
		return nil, err
	}
	if task.Handoff, err = decodeHandoff(handoff); err != nil {
		return nil, err
	}
	task.CreatedAt = fromUnixNano(created)
	task.StartedAt = fromUnixNano(started)
	task.CompletedAt = fromUnixNano(completed)
	return &task, nil
}
