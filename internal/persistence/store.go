package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/aristath/butler/internal/scheduler"
)

// ErrTaskNotFound is returned when a task ID has no stored record.
var ErrTaskNotFound = errors.New("task not found")

// Message is one entry of a conversation thread's append-only log.
type Message struct {
	ID        string
	ThreadID  string
	Role      string // "user" or "assistant"
	Content   string
	Timestamp time.Time
}

// Store defines the persistence interface for tasks and conversation logs.
type Store interface {
	// Tasks
	SaveTask(ctx context.Context, task *scheduler.Task) error
	GetTask(ctx context.Context, taskID string) (*scheduler.Task, error)
	ListTasks(ctx context.Context) ([]*scheduler.Task, error)
	ListByStatus(ctx context.Context, statuses ...scheduler.TaskStatus) ([]*scheduler.Task, error)
	ListByGroup(ctx context.Context, groupID string) ([]*scheduler.Task, error)
	ListByDestination(ctx context.Context, destinationID string) ([]*scheduler.Task, error)
	DeleteTasks(ctx context.Context, taskIDs []string) (int, error)

	// Conversation log
	SaveMessage(ctx context.Context, msg Message) error
	GetHistory(ctx context.Context, threadID string, limit int) ([]Message, error)
	ClearHistory(ctx context.Context, threadID string) error

	// Lifecycle
	Close() error
}

// Open returns a store for the given driver: "sqlite" (default) with dsn as
// a file path, or "postgres" with dsn as a connection URL.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "", "sqlite":
		s, err := NewSQLiteStore(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := NewPostgresStore(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", driver)
	}
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode, foreign keys, and busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	return openSQLite(ctx, connStr)
}

// NewMemoryStore creates an in-memory SQLite store for testing.
// Each store gets its own named database; the shared cache lets the pool's
// connections see the same data.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	connStr := fmt.Sprintf("file:butler-%s?mode=memory&cache=shared", uuid.NewString())
	return openSQLite(ctx, connStr)
}

func openSQLite(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc.org/sqlite doesn't accept _foreign_keys in the connection string
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
