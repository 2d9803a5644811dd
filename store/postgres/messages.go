package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	acontext "github.com/slyt3/Acontext"
)

// FetchPendingMessages returns the session's messages not yet consumed by
// task extraction, in creation order.
func (s *Store) FetchPendingMessages(ctx context.Context, sessionID string) ([]acontext.Message, error) {
	return s.queryMessages(ctx,
		`SELECT id, session_id, role, parts, task_id, session_task_process_status, created_at
		 FROM messages
		 WHERE session_id = $1 AND session_task_process_status = 'pending'
		 ORDER BY created_at ASC`, sessionID)
}

// FetchTaskMessages returns the messages linked to a task, in creation order.
func (s *Store) FetchTaskMessages(ctx context.Context, taskID string) ([]acontext.Message, error) {
	return s.queryMessages(ctx,
		`SELECT id, session_id, role, parts, task_id, session_task_process_status, created_at
		 FROM messages
		 WHERE task_id = $1
		 ORDER BY created_at ASC`, taskID)
}

// SetMessagesProcessStatus updates the process status of the given messages.
func (s *Store) SetMessagesProcessStatus(ctx context.Context, messageIDs []string, status string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx,
		`UPDATE messages SET session_task_process_status = $2 WHERE id = ANY($1)`,
		messageIDs, status); err != nil {
		return fmt.Errorf("postgres: set message process status: %w", err)
	}
	return nil
}

func (s *Store) queryMessages(ctx context.Context, query string, args ...any) ([]acontext.Message, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch messages: %w", err)
	}
	defer rows.Close()

	var out []acontext.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMessage(rows pgx.Rows) (acontext.Message, error) {
	var m acontext.Message
	var parts []byte
	err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &parts, &m.TaskID, &m.ProcessStatus, &m.CreatedAt)
	if err != nil {
		return m, fmt.Errorf("postgres: scan message: %w", err)
	}
	if len(parts) > 0 {
		if err := json.Unmarshal(parts, &m.Parts); err != nil {
			return m, fmt.Errorf("postgres: unmarshal parts: %w", err)
		}
	}
	return m, nil
}
