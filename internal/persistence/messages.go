package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// SaveMessage appends a message to a thread's conversation log.
// Missing IDs and timestamps are filled in.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	msg = withMessageDefaults(msg)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversation_log (id, thread_id, role, content, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, msg.ID, msg.ThreadID, msg.Role, msg.Content, msg.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetHistory returns a thread's messages in chronological order. A positive
// limit keeps only the most recent messages.
// Returns empty slice (not nil) if no history exists.
func (s *SQLiteStore) GetHistory(ctx context.Context, threadID string, limit int) ([]Message, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if limit <= 0 {
		limit = -1
	}

	// Newest first with a limit, then reversed below.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, role, content, timestamp
		FROM conversation_log
		WHERE thread_id = ?
		ORDER BY seq DESC
		LIMIT ?
	`, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	history := []Message{}
	for rows.Next() {
		var (
			msg Message
			ts  int64
		)
		if err := rows.Scan(&msg.ID, &msg.ThreadID, &msg.Role, &msg.Content, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Timestamp = time.Unix(0, ts)
		history = append(history, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}

	reverseMessages(history)
	return history, nil
}

// ClearHistory deletes a thread's conversation log.
func (s *SQLiteStore) ClearHistory(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversation_log WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

func withMessageDefaults(msg Message) Message {
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return msg
}

func reverseMessages(msgs []Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
