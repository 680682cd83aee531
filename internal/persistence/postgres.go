package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aristath/butler/internal/plan"
	"github.com/aristath/butler/internal/scheduler"
)

const pgTaskColumns = `id, destination_id, mode, title, prompt, status, group_id, task_key,
	source_turn_id, origin_user_message, handoff, work_dir, retry_of_task_id, retry_attempt,
	cascade, result_brief, result_detail, created_at, started_at, completed_at`

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initPostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initPostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS butler_tasks (
			id TEXT PRIMARY KEY,
			destination_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			title TEXT NOT NULL,
			prompt TEXT NOT NULL,
			status TEXT NOT NULL,
			group_id TEXT NOT NULL DEFAULT '',
			task_key TEXT NOT NULL DEFAULT '',
			source_turn_id TEXT NOT NULL DEFAULT '',
			origin_user_message TEXT NOT NULL DEFAULT '',
			handoff TEXT NOT NULL DEFAULT '',
			work_dir TEXT NOT NULL DEFAULT '',
			retry_of_task_id TEXT NOT NULL DEFAULT '',
			retry_attempt INTEGER NOT NULL DEFAULT 0,
			cascade BOOLEAN NOT NULL DEFAULT FALSE,
			result_brief TEXT NOT NULL DEFAULT '',
			result_detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			started_at TIMESTAMPTZ NULL,
			completed_at TIMESTAMPTZ NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_butler_tasks_status ON butler_tasks (status);`,
		`CREATE INDEX IF NOT EXISTS idx_butler_tasks_group ON butler_tasks (group_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_butler_tasks_destination ON butler_tasks (destination_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS butler_task_dependencies (
			task_id TEXT NOT NULL REFERENCES butler_tasks(id) ON DELETE CASCADE,
			depends_on_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			PRIMARY KEY (task_id, depends_on_id)
		);`,
		`CREATE TABLE IF NOT EXISTS butler_conversation_log (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL,
			thread_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_butler_conversation_thread ON butler_conversation_log (thread_id, seq);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveTask(ctx context.Context, task *scheduler.Task) error {
	handoff, err := encodeHandoff(task.Handoff)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO butler_tasks (`+pgTaskColumns+`, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,NOW())
		ON CONFLICT (id) DO UPDATE SET
			destination_id=EXCLUDED.destination_id,
			mode=EXCLUDED.mode,
			title=EXCLUDED.title,
			prompt=EXCLUDED.prompt,
			status=EXCLUDED.status,
			group_id=EXCLUDED.group_id,
			task_key=EXCLUDED.task_key,
			source_turn_id=EXCLUDED.source_turn_id,
			origin_user_message=EXCLUDED.origin_user_message,
			handoff=EXCLUDED.handoff,
			work_dir=EXCLUDED.work_dir,
			retry_of_task_id=EXCLUDED.retry_of_task_id,
			retry_attempt=EXCLUDED.retry_attempt,
			cascade=EXCLUDED.cascade,
			result_brief=EXCLUDED.result_brief,
			result_detail=EXCLUDED.result_detail,
			started_at=EXCLUDED.started_at,
			completed_at=EXCLUDED.completed_at,
			updated_at=NOW()`,
		task.ID,
		task.DestinationID,
		string(task.Mode),
		task.Title,
		task.Prompt,
		task.Status.String(),
		task.GroupID,
		task.TaskKey,
		task.SourceTurnID,
		task.OriginUserMessage,
		handoff,
		task.WorkDir,
		task.RetryOfTaskID,
		task.RetryAttempt,
		task.Cascade,
		task.ResultBrief,
		task.ResultDetail,
		task.CreatedAt,
		nullableTime(task.StartedAt),
		nullableTime(task.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert task: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM butler_task_dependencies WHERE task_id=$1`, task.ID); err != nil {
		return fmt.Errorf("delete prior dependencies: %w", err)
	}
	for i, depID := range task.DependsOn {
		_, err := tx.Exec(ctx,
			`INSERT INTO butler_task_dependencies (task_id, depends_on_id, position)
			VALUES ($1,$2,$3) ON CONFLICT DO NOTHING`,
			task.ID, depID, i,
		)
		if err != nil {
			return fmt.Errorf("insert dependency %s -> %s: %w", task.ID, depID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTask(ctx context.Context, taskID string) (*scheduler.Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgTaskColumns+` FROM butler_tasks WHERE id=$1`, taskID)
	task, err := scanPostgresTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	if err := s.loadDependencies(ctx, []*scheduler.Task{task}); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *PostgresStore) ListTasks(ctx context.Context) ([]*scheduler.Task, error) {
	return s.queryTasks(ctx, `SELECT `+pgTaskColumns+` FROM butler_tasks ORDER BY created_at, id`)
}

func (s *PostgresStore) ListByStatus(ctx context.Context, statuses ...scheduler.TaskStatus) ([]*scheduler.Task, error) {
	if len(statuses) == 0 {
		return []*scheduler.Task{}, nil
	}
	return s.queryTasks(ctx,
		`SELECT `+pgTaskColumns+` FROM butler_tasks WHERE status = ANY($1) ORDER BY created_at, id`,
		statusNames(statuses),
	)
}

func (s *PostgresStore) ListByGroup(ctx context.Context, groupID string) ([]*scheduler.Task, error) {
	return s.queryTasks(ctx, `SELECT `+pgTaskColumns+` FROM butler_tasks WHERE group_id=$1 ORDER BY created_at, id`, groupID)
}

func (s *PostgresStore) ListByDestination(ctx context.Context, destinationID string) ([]*scheduler.Task, error) {
	return s.queryTasks(ctx, `SELECT `+pgTaskColumns+` FROM butler_tasks WHERE destination_id=$1 ORDER BY created_at, id`, destinationID)
}

func (s *PostgresStore) DeleteTasks(ctx context.Context, taskIDs []string) (int, error) {
	if len(taskIDs) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM butler_tasks WHERE id = ANY($1)`, taskIDs)
	if err != nil {
		return 0, fmt.Errorf("delete tasks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) queryTasks(ctx context.Context, query string, args ...any) ([]*scheduler.Task, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	out := []*scheduler.Task{}
	for rows.Next() {
		task, err := scanPostgresTask(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		out = append(out, task)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task rows: %w", err)
	}

	if err := s.loadDependencies(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) loadDependencies(ctx context.Context, tasks []*scheduler.Task) error {
	for _, task := range tasks {
		rows, err := s.pool.Query(ctx,
			`SELECT depends_on_id FROM butler_task_dependencies WHERE task_id=$1 ORDER BY position`,
			task.ID,
		)
		if err != nil {
			return fmt.Errorf("list dependencies: %w", err)
		}
		deps, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("scan dependencies: %w", err)
		}
		task.DependsOn = deps
	}
	return nil
}

func (s *PostgresStore) SaveMessage(ctx context.Context, msg Message) error {
	msg = withMessageDefaults(msg)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO butler_conversation_log (id, thread_id, role, content, created_at)
		VALUES ($1,$2,$3,$4,$5)`,
		msg.ID, msg.ThreadID, msg.Role, msg.Content, msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetHistory(ctx context.Context, threadID string, limit int) ([]Message, error) {
	query := `SELECT id, thread_id, role, content, created_at FROM butler_conversation_log
		WHERE thread_id=$1 ORDER BY seq DESC`
	args := []any{threadID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	history := []Message{}
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ThreadID, &msg.Role, &msg.Content, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		history = append(history, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	reverseMessages(history)
	return history, nil
}

func (s *PostgresStore) ClearHistory(ctx context.Context, threadID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM butler_conversation_log WHERE thread_id=$1`, threadID); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPostgresTask(row pgx.Row) (*scheduler.Task, error) {
	var (
		task                  scheduler.Task
		mode, status, handoff string
		started, completed    *time.Time
	)
	if err := row.Scan(
		&task.ID,
		&task.DestinationID,
		&mode,
		&task.Title,
		&task.Prompt,
		&status,
		&task.GroupID,
		&task.TaskKey,
		&task.SourceTurnID,
		&task.OriginUserMessage,
		&handoff,
		&task.WorkDir,
		&task.RetryOfTaskID,
		&task.RetryAttempt,
		&task.Cascade,
		&task.ResultBrief,
		&task.ResultDetail,
		&task.CreatedAt,
		&started,
		&completed,
	); err != nil {
		return nil, err
	}

	var err error
	task.Mode = plan.Mode(mode)
	if task.Status, err = scheduler.ParseTaskStatus(status); err != nil {
		return nil, err
	}
	if task.Handoff, err = decodeHandoff(handoff); err != nil {
		return nil, err
	}
	task.StartedAt = derefTime(started)
	task.CompletedAt = derefTime(completed)
	return &task, nil
}
