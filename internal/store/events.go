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
// EVENTS
// =============================================================================

const eventColumns = `id, agent_id, project_id, title, event_type, description, outcome,
	caused_by, severity, session_id, tags, occurred_at, resolved_at,
	decay_status, access_count, last_accessed_at, created_at`

// InsertEvent persists an event row; embedding may be nil.
func (s *Store) InsertEvent(ctx context.Context, e *types.Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.DecayStatus = types.DecayActive
	if e.Severity == "" {
		e.Severity = types.SeverityInfo
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = now
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, agent_id, project_id, title, event_type, description, outcome,
			caused_by, severity, session_id, tags, embedding, occurred_at, resolved_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.AgentID, nullString(e.ProjectID), e.Title, e.EventType,
		nullString(e.Description), nullString(e.Outcome), nullString(e.CausedBy),
		e.Severity, nullString(e.SessionID), encodeJSON(e.Tags), EncodeVector(e.Embedding),
		e.OccurredAt.UTC(), nullTime(e.ResolvedAt), now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// GetEvent fetches an event by id regardless of decay status.
func (s *Store) GetEvent(ctx context.Context, id string) (*types.Event, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM events WHERE id = ?", id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %q: %w", id, ErrNotFound)
	}
	return e, err
}

// ListEvents returns an agent's events, most recent occurrence first.
func (s *Store) ListEvents(ctx context.Context, agentID string, limit int) ([]*types.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE agent_id = ? ORDER BY occurred_at DESC LIMIT ?",
		agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*types.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// EventUpdate holds mutable event attributes.
type EventUpdate struct {
	Description *string
	Outcome     *string
	Severity    *string
	ResolvedAt  *time.Time
	Tags        []string
}

// UpdateEvent applies a partial update.
func (s *Store) UpdateEvent(ctx context.Context, id string, upd EventUpdate) (*types.Event, error) {
	set := ""
	var args []interface{}
	appendSet := func(clause string, v interface{}) {
		if set != "" {
			set += ", "
		}
		set += clause
		args = append(args, v)
	}
	if upd.Description != nil {
		appendSet("description = ?", *upd.Description)
	}
	if upd.Outcome != nil {
		appendSet("outcome = ?", *upd.Outcome)
	}
	if upd.Severity != nil {
		appendSet("severity = ?", *upd.Severity)
	}
	if upd.ResolvedAt != nil {
		appendSet("resolved_at = ?", upd.ResolvedAt.UTC())
	}
	if upd.Tags != nil {
		appendSet("tags = ?", encodeJSON(upd.Tags))
	}
	if set == "" {
		return s.GetEvent(ctx, id)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, "UPDATE events SET "+set+" WHERE id = ?", args...)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("event %q: %w", id, ErrNotFound)
	}
	return s.GetEvent(ctx, id)
}

// DeleteEvent removes an event by id.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "events", id)
}

func scanEvent(row rowScanner) (*types.Event, error) {
	var e types.Event
	var projectID, description, outcome, causedBy, sessionID sql.NullString
	var tags string
	var resolvedAt, lastAccessed sql.NullTime
	err := row.Scan(&e.ID, &e.AgentID, &projectID, &e.Title, &e.EventType, &description,
		&outcome, &causedBy, &e.Severity, &sessionID, &tags, &e.OccurredAt, &resolvedAt,
		&e.DecayStatus, &e.AccessCount, &lastAccessed, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.ProjectID = strPtr(projectID)
	e.Description = strPtr(description)
	e.Outcome = strPtr(outcome)
	e.CausedBy = strPtr(causedBy)
	e.SessionID = strPtr(sessionID)
	e.Tags = decodeStrings(tags)
	e.ResolvedAt = timePtr(resolvedAt)
	e.LastAccessedAt = timePtr(lastAccessed)
	e.OccurredAt = e.OccurredAt.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}
