package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"hexmem/internal/types"
)

// =============================================================================
// TASKS
// =============================================================================

const taskColumns = `id, agent_id, project_id, title, description, status, priority, assignee,
	due_date, blocked_by, session_id, tags, decay_status, access_count, last_accessed_at,
	created_at, updated_at`

// InsertTask persists a task row; embedding may be nil.
func (s *Store) InsertTask(ctx context.Context, t *types.Task) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.DecayStatus = types.DecayActive
	if t.Status == "" {
		t.Status = types.TaskNotStarted
	}
	if t.Priority == 0 {
		t.Priority = 50
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, agent_id, project_id, title, description, status, priority,
			assignee, due_date, blocked_by, session_id, tags, embedding, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.AgentID, nullString(t.ProjectID), t.Title, nullString(t.Description),
		t.Status, t.Priority, nullString(t.Assignee), nullTime(t.DueDate),
		nullString(t.BlockedBy), nullString(t.SessionID), encodeJSON(t.Tags),
		EncodeVector(t.Embedding), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// GetTask fetches a task by id regardless of decay status.
func (s *Store) GetTask(ctx context.Context, id string) (*types.Task, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %q: %w", id, ErrNotFound)
	}
	return t, err
}

// ListTasks returns an agent's tasks filtered by optional status, highest
// priority first.
func (s *Store) ListTasks(ctx context.Context, agentID, status string, limit int) ([]*types.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	q := "SELECT " + taskColumns + " FROM tasks WHERE agent_id = ?"
	args := []interface{}{agentID}
	if status != "" {
		q += " AND status = ?"
		args = append(args, status)
	}
	q += " ORDER BY priority DESC, created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*types.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// TaskUpdate holds mutable task attributes. A title change re-embeds, so the
// caller passes the new embedding.
type TaskUpdate struct {
	Title       *string
	Embedding   []float32
	Description *string
	Status      *string
	Priority    *int
	Assignee    *string
	DueDate     *time.Time
	BlockedBy   *string
	ProjectID   *string
	Tags        []string
}

// UpdateTask applies a partial update. Status transitions are free within the
// enum; the CHECK constraint rejects unknown values.
func (s *Store) UpdateTask(ctx context.Context, id string, upd TaskUpdate) (*types.Task, error) {
	set := "updated_at = ?"
	args := []interface{}{time.Now().UTC()}
	if upd.Title != nil {
		set += ", title = ?, embedding = ?"
		args = append(args, *upd.Title, EncodeVector(upd.Embedding))
	}
	if upd.Description != nil {
		set += ", description = ?"
		args = append(args, *upd.Description)
	}
	if upd.Status != nil {
		set += ", status = ?"
		args = append(args, *upd.Status)
	}
	if upd.Priority != nil {
		set += ", priority = ?"
		args = append(args, *upd.Priority)
	}
	if upd.Assignee != nil {
		set += ", assignee = ?"
		args = append(args, *upd.Assignee)
	}
	if upd.DueDate != nil {
		set += ", due_date = ?"
		args = append(args, upd.DueDate.UTC())
	}
	if upd.BlockedBy != nil {
		set += ", blocked_by = ?"
		args = append(args, *upd.BlockedBy)
	}
	if upd.ProjectID != nil {
		set += ", project_id = ?"
		args = append(args, *upd.ProjectID)
	}
	if upd.Tags != nil {
		set += ", tags = ?"
		args = append(args, encodeJSON(upd.Tags))
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, "UPDATE tasks SET "+set+" WHERE id = ?", args...)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("task %q: %w", id, ErrNotFound)
	}
	return s.GetTask(ctx, id)
}

// DeleteTask removes a task by id.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "tasks", id)
}

func scanTask(row rowScanner) (*types.Task, error) {
	var t types.Task
	var projectID, description, assignee, blockedBy, sessionID sql.NullString
	var tags string
	var dueDate, lastAccessed sql.NullTime
	err := row.Scan(&t.ID, &t.AgentID, &projectID, &t.Title, &description, &t.Status,
		&t.Priority, &assignee, &dueDate, &blockedBy, &sessionID, &tags,
		&t.DecayStatus, &t.AccessCount, &lastAccessed, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.ProjectID = strPtr(projectID)
	t.Description = strPtr(description)
	t.Assignee = strPtr(assignee)
	t.BlockedBy = strPtr(blockedBy)
	t.SessionID = strPtr(sessionID)
	t.Tags = decodeStrings(tags)
	t.DueDate = timePtr(dueDate)
	t.LastAccessedAt = timePtr(lastAccessed)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}
