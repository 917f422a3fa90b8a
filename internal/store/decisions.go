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
// DECISIONS
// =============================================================================

const decisionColumns = `id, agent_id, title, decision, rationale, alternatives, context,
	session_id, project_id, tags, decay_status, access_count, last_accessed_at,
	created_at, updated_at`

// InsertDecision persists a decision row; embedding may be nil.
func (s *Store) InsertDecision(ctx context.Context, d *types.Decision) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	d.DecayStatus = types.DecayActive
	if d.Alternatives == nil {
		d.Alternatives = []string{}
	}
	if d.Tags == nil {
		d.Tags = []string{}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO decisions (id, agent_id, title, decision, rationale, alternatives, context,
			session_id, project_id, tags, embedding, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.AgentID, d.Title, d.Decision, nullString(d.Rationale), encodeJSON(d.Alternatives),
		nullString(d.Context), nullString(d.SessionID), nullString(d.ProjectID),
		encodeJSON(d.Tags), EncodeVector(d.Embedding), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert decision: %w", err)
	}
	return nil
}

// GetDecision fetches a decision by id regardless of decay status.
func (s *Store) GetDecision(ctx context.Context, id string) (*types.Decision, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+decisionColumns+" FROM decisions WHERE id = ?", id)
	d, err := scanDecision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("decision %q: %w", id, ErrNotFound)
	}
	return d, err
}

// ListDecisions returns an agent's decisions, newest first.
func (s *Store) ListDecisions(ctx context.Context, agentID string, limit int) ([]*types.Decision, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+decisionColumns+" FROM decisions WHERE agent_id = ? ORDER BY created_at DESC LIMIT ?",
		agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var decisions []*types.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// DecisionUpdate holds mutable decision attributes. The decision body is
// append-only; only rationale, context, tags, and project linkage may change.
type DecisionUpdate struct {
	Rationale *string
	Context   *string
	Tags      []string
	ProjectID *string
}

// UpdateDecision applies a partial update.
func (s *Store) UpdateDecision(ctx context.Context, id string, upd DecisionUpdate) (*types.Decision, error) {
	set := "updated_at = ?"
	args := []interface{}{time.Now().UTC()}
	if upd.Rationale != nil {
		set += ", rationale = ?"
		args = append(args, *upd.Rationale)
	}
	if upd.Context != nil {
		set += ", context = ?"
		args = append(args, *upd.Context)
	}
	if upd.Tags != nil {
		set += ", tags = ?"
		args = append(args, encodeJSON(upd.Tags))
	}
	if upd.ProjectID != nil {
		set += ", project_id = ?"
		args = append(args, *upd.ProjectID)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, "UPDATE decisions SET "+set+" WHERE id = ?", args...)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("decision %q: %w", id, ErrNotFound)
	}
	return s.GetDecision(ctx, id)
}

// DeleteDecision removes a decision by id.
func (s *Store) DeleteDecision(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "decisions", id)
}

func scanDecision(row rowScanner) (*types.Decision, error) {
	var d types.Decision
	var rationale, dctx, sessionID, projectID sql.NullString
	var alternatives, tags string
	var lastAccessed sql.NullTime
	err := row.Scan(&d.ID, &d.AgentID, &d.Title, &d.Decision, &rationale, &alternatives, &dctx,
		&sessionID, &projectID, &tags, &d.DecayStatus, &d.AccessCount, &lastAccessed,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Rationale = strPtr(rationale)
	d.Context = strPtr(dctx)
	d.SessionID = strPtr(sessionID)
	d.ProjectID = strPtr(projectID)
	d.Alternatives = decodeStrings(alternatives)
	d.Tags = decodeStrings(tags)
	d.LastAccessedAt = timePtr(lastAccessed)
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return &d, nil
}
