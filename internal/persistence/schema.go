package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
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
		cascade INTEGER NOT NULL DEFAULT 0,
		result_brief TEXT NOT NULL DEFAULT '',
		result_detail TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		started_at INTEGER NOT NULL DEFAULT 0,
		completed_at INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_group ON tasks(group_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_tasks_destination ON tasks(destination_id, created_at);

	CREATE TABLE IF NOT EXISTS task_dependencies (
		task_id TEXT NOT NULL,
		depends_on_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (task_id, depends_on_id),
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_task_dependencies_task_id ON task_dependencies(task_id);

	CREATE TABLE IF NOT EXISTS conversation_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		thread_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_conversation_log_thread ON conversation_log(thread_id, seq);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
