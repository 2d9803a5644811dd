package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	acontext "github.com/slyt3/Acontext"
)

// planningTaskDescription matches the payload the outer system expects on
// the reserved order-0 task.
const planningTaskDescription = "collecting planning&requirments"

// FetchTask returns a task by id with its message ids loaded.
func (s *Store) FetchTask(ctx context.Context, taskID string) (acontext.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, session_id, task_order, task_status, data, is_planning, space_digested, created_at, updated_at
		 FROM tasks WHERE id = $1`, taskID)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return t, acontext.NotFoundf("task %s not found", taskID)
	}
	if err != nil {
		return t, err
	}
	t.RawMessageIDs, err = s.taskMessageIDs(ctx, t.ID)
	return t, err
}

// FetchPlanningTask returns the session's planning task, or nil if none
// exists yet.
func (s *Store) FetchPlanningTask(ctx context.Context, sessionID string) (*acontext.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, session_id, task_order, task_status, data, is_planning, space_digested, created_at, updated_at
		 FROM tasks WHERE session_id = $1 AND is_planning`, sessionID)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.RawMessageIDs, err = s.taskMessageIDs(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FetchCurrentTasks returns the session's non-planning tasks in ascending
// order, with message ids loaded.
func (s *Store) FetchCurrentTasks(ctx context.Context, sessionID string) ([]acontext.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, task_order, task_status, data, is_planning, space_digested, created_at, updated_at
		 FROM tasks WHERE session_id = $1 AND NOT is_planning
		 ORDER BY task_order ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch tasks: %w", err)
	}
	defer rows.Close()

	var tasks []acontext.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate tasks: %w", err)
	}
	for i := range tasks {
		tasks[i].RawMessageIDs, err = s.taskMessageIDs(ctx, tasks[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

// FetchPreviousTasks returns the closest limit non-planning tasks with
// order below beforeOrder, in ascending order, without message ids.
func (s *Store) FetchPreviousTasks(ctx context.Context, sessionID string, beforeOrder, limit int) ([]acontext.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, task_order, task_status, data, is_planning, space_digested, created_at, updated_at
		 FROM tasks WHERE session_id = $1 AND NOT is_planning AND task_order < $2
		 ORDER BY task_order DESC LIMIT $3`, sessionID, beforeOrder, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch previous tasks: %w", err)
	}
	defer rows.Close()

	var tasks []acontext.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate tasks: %w", err)
	}
	// Reverse to chronological order.
	for i, j := 0, len(tasks)-1; i < j; i, j = i+1, j-1 {
		tasks[i], tasks[j] = tasks[j], tasks[i]
	}
	return tasks, nil
}

// InsertTask creates a task at afterOrder+1, shifting successors by one.
// The shift runs in two phases through negative orders so the
// (session_id, task_order) unique constraint holds at every point.
func (s *Store) InsertTask(ctx context.Context, projectID, sessionID string, afterOrder int, data acontext.TaskData, status acontext.TaskStatus) (acontext.Task, error) {
	var out acontext.Task
	if !acontext.ValidTaskStatus(status) {
		return out, acontext.Validationf("invalid task status: %s", status)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return out, fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`SELECT id FROM tasks WHERE session_id = $1 FOR UPDATE`, sessionID); err != nil {
		return out, fmt.Errorf("postgres: lock tasks: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE tasks SET task_order = -(task_order + 1) WHERE session_id = $1 AND task_order > $2`,
		sessionID, afterOrder); err != nil {
		return out, fmt.Errorf("postgres: shift tasks: %w", err)
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		return out, fmt.Errorf("postgres: marshal task data: %w", err)
	}
	now := acontext.NowUnix()
	out = acontext.Task{
		ID:        acontext.NewID(),
		SessionID: sessionID,
		Order:     afterOrder + 1,
		Status:    status,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO tasks (id, project_id, session_id, task_order, task_status, data, is_planning, space_digested, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, FALSE, FALSE, $7, $8)`,
		out.ID, projectID, sessionID, out.Order, string(status), string(dataJSON), now, now); err != nil {
		return out, fmt.Errorf("postgres: insert task: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE tasks SET task_order = -task_order WHERE session_id = $1 AND task_order < 0`,
		sessionID); err != nil {
		return out, fmt.Errorf("postgres: unshift tasks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return out, fmt.Errorf("postgres: commit tx: %w", err)
	}
	return out, nil
}

// UpdateTask applies the non-nil fields of upd. A task already in success
// rejects any further status change.
func (s *Store) UpdateTask(ctx context.Context, taskID string, upd acontext.TaskUpdate) (acontext.Task, error) {
	var out acontext.Task

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return out, fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	row := tx.QueryRow(ctx,
		`SELECT id, session_id, task_order, task_status, data, is_planning, space_digested, created_at, updated_at
		 FROM tasks WHERE id = $1 FOR UPDATE`, taskID)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return out, acontext.NotFoundf("task %s not found", taskID)
	}
	if err != nil {
		return out, err
	}

	if upd.Status != nil {
		if !acontext.ValidTaskStatus(*upd.Status) {
			return out, acontext.Validationf("invalid task status: %s", *upd.Status)
		}
		if t.Status == acontext.TaskSuccess && *upd.Status != acontext.TaskSuccess {
			return out, acontext.Validationf("task %s is already success and cannot transition to %s", taskID, *upd.Status)
		}
		t.Status = *upd.Status
	}
	if upd.Order != nil {
		t.Order = *upd.Order
	}
	if upd.Data != nil {
		t.Data = *upd.Data
	}
	if upd.Description != nil {
		t.Data.TaskDescription = *upd.Description
	}

	dataJSON, err := json.Marshal(t.Data)
	if err != nil {
		return out, fmt.Errorf("postgres: marshal task data: %w", err)
	}
	t.UpdatedAt = acontext.NowUnix()
	if _, err := tx.Exec(ctx,
		`UPDATE tasks SET task_order = $2, task_status = $3, data = $4::jsonb, updated_at = $5 WHERE id = $1`,
		t.ID, t.Order, string(t.Status), string(dataJSON), t.UpdatedAt); err != nil {
		return out, fmt.Errorf("postgres: update task: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return out, fmt.Errorf("postgres: commit tx: %w", err)
	}
	return t, nil
}

// SetTaskSpaceDigested marks a task as digested into its space.
func (s *Store) SetTaskSpaceDigested(ctx context.Context, taskID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET space_digested = TRUE, updated_at = $2 WHERE id = $1`,
		taskID, acontext.NowUnix())
	if err != nil {
		return fmt.Errorf("postgres: set space digested: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return acontext.NotFoundf("task %s not found", taskID)
	}
	return nil
}

// AppendMessagesToTask re-targets the messages' task_id. Success tasks are
// immutable for extension.
func (s *Store) AppendMessagesToTask(ctx context.Context, messageIDs []string, taskID string) error {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT task_status FROM tasks WHERE id = $1`, taskID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return acontext.NotFoundf("task %s not found", taskID)
	}
	if err != nil {
		return fmt.Errorf("postgres: fetch task status: %w", err)
	}
	if status == string(acontext.TaskSuccess) {
		return acontext.Validationf("task %s is success and cannot receive new messages", taskID)
	}

	if _, err := s.pool.Exec(ctx,
		`UPDATE messages SET task_id = $2 WHERE id = ANY($1)`, messageIDs, taskID); err != nil {
		return fmt.Errorf("postgres: append messages to task: %w", err)
	}
	return nil
}

// AppendProgressToTask appends one progress string and an optional user
// preference to the task data.
func (s *Store) AppendProgressToTask(ctx context.Context, taskID, progress string, userPreference *string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	row := tx.QueryRow(ctx,
		`SELECT id, session_id, task_order, task_status, data, is_planning, space_digested, created_at, updated_at
		 FROM tasks WHERE id = $1 FOR UPDATE`, taskID)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return acontext.NotFoundf("task %s not found", taskID)
	}
	if err != nil {
		return err
	}

	t.Data.Progresses = append(t.Data.Progresses, progress)
	if userPreference != nil {
		t.Data.UserPreferences = append(t.Data.UserPreferences, *userPreference)
	}
	dataJSON, err := json.Marshal(t.Data)
	if err != nil {
		return fmt.Errorf("postgres: marshal task data: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE tasks SET data = $2::jsonb, updated_at = $3 WHERE id = $1`,
		taskID, string(dataJSON), acontext.NowUnix()); err != nil {
		return fmt.Errorf("postgres: append progress: %w", err)
	}
	return tx.Commit(ctx)
}

// AppendMessagesToPlanningSection links messages to the session's planning
// task, creating it at the reserved order 0 when missing.
func (s *Store) AppendMessagesToPlanningSection(ctx context.Context, projectID, sessionID string, messageIDs []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var taskID string
	err = tx.QueryRow(ctx,
		`SELECT id FROM tasks WHERE session_id = $1 AND is_planning FOR UPDATE`, sessionID).Scan(&taskID)
	if errors.Is(err, pgx.ErrNoRows) {
		taskID = acontext.NewID()
		now := acontext.NowUnix()
		dataJSON, _ := json.Marshal(acontext.TaskData{TaskDescription: planningTaskDescription})
		if _, err := tx.Exec(ctx,
			`INSERT INTO tasks (id, project_id, session_id, task_order, task_status, data, is_planning, space_digested, created_at, updated_at)
			 VALUES ($1, $2, $3, 0, 'pending', $4::jsonb, TRUE, FALSE, $5, $6)`,
			taskID, projectID, sessionID, string(dataJSON), now, now); err != nil {
			return fmt.Errorf("postgres: insert planning task: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("postgres: fetch planning task: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE messages SET task_id = $2 WHERE id = ANY($1)`, messageIDs, taskID); err != nil {
		return fmt.Errorf("postgres: append messages to planning: %w", err)
	}
	return tx.Commit(ctx)
}

// AppendSOPThinking merges a sop_thinking entry into the task data.
func (s *Store) AppendSOPThinking(ctx context.Context, taskID, thinking string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET data = data || jsonb_build_object('sop_thinking', $2::text), updated_at = $3 WHERE id = $1`,
		taskID, thinking, acontext.NowUnix())
	if err != nil {
		return fmt.Errorf("postgres: append sop thinking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return acontext.NotFoundf("task %s not found", taskID)
	}
	return nil
}

// CountLearningStatus counts digested vs not-digested over the session's
// non-planning success tasks.
func (s *Store) CountLearningStatus(ctx context.Context, sessionID string) (int, int, error) {
	var digested, notDigested int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(space_digested::int), 0),
		        COALESCE(SUM(1 - space_digested::int), 0)
		 FROM tasks
		 WHERE session_id = $1 AND NOT is_planning AND task_status = 'success'`,
		sessionID).Scan(&digested, &notDigested)
	if err != nil {
		return 0, 0, fmt.Errorf("postgres: count learning status: %w", err)
	}
	return digested, notDigested, nil
}

// --- helpers ---

func scanTask(row rowScanner) (acontext.Task, error) {
	var t acontext.Task
	var status string
	var data []byte
	err := row.Scan(&t.ID, &t.SessionID, &t.Order, &status, &data, &t.IsPlanning, &t.SpaceDigested, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	t.Status = acontext.TaskStatus(status)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &t.Data); err != nil {
			return t, fmt.Errorf("postgres: unmarshal task data: %w", err)
		}
	}
	return t, nil
}

func (s *Store) taskMessageIDs(ctx context.Context, taskID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM messages WHERE task_id = $1 ORDER BY created_at ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch task message ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan message id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
