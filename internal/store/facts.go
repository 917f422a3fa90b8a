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
// FACTS
// =============================================================================

const factColumns = `id, agent_id, content, subject, confidence, source, tags, valid_from,
	valid_until, superseded_by, session_id, decay_status, access_count, last_accessed_at,
	created_at, updated_at`

// InsertFact persists a fact row; embedding may be nil.
func (s *Store) InsertFact(ctx context.Context, f *types.Fact) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now
	f.DecayStatus = types.DecayActive
	if f.ValidFrom.IsZero() {
		f.ValidFrom = now
	}
	if f.Confidence == 0 {
		f.Confidence = 1.0
	}
	if f.Tags == nil {
		f.Tags = []string{}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO facts (id, agent_id, content, subject, confidence, source, tags, embedding,
			valid_from, valid_until, superseded_by, session_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.AgentID, f.Content, nullString(f.Subject), f.Confidence, nullString(f.Source),
		encodeJSON(f.Tags), EncodeVector(f.Embedding), f.ValidFrom.UTC(), nullTime(f.ValidUntil),
		nullString(f.SupersededBy), nullString(f.SessionID), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert fact: %w", err)
	}
	return nil
}

// GetFact fetches a fact by id regardless of decay status.
func (s *Store) GetFact(ctx context.Context, id string) (*types.Fact, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+factColumns+" FROM facts WHERE id = ?", id)
	f, err := scanFact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("fact %q: %w", id, ErrNotFound)
	}
	return f, err
}

// ListFacts returns an agent's facts, newest first.
func (s *Store) ListFacts(ctx context.Context, agentID string, limit int) ([]*types.Fact, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+factColumns+" FROM facts WHERE agent_id = ? ORDER BY created_at DESC LIMIT ?",
		agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var facts []*types.Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// FactUpdate holds mutable fact attributes. A content change re-embeds, so
// the caller passes the new embedding (or nil when the provider is down).
type FactUpdate struct {
	Content      *string
	Embedding    []float32
	Subject      *string
	Confidence   *float64
	Source       *string
	Tags         []string
	ValidUntil   *time.Time
	SupersededBy *string
}

// UpdateFact applies a partial update.
func (s *Store) UpdateFact(ctx context.Context, id string, upd FactUpdate) (*types.Fact, error) {
	set := "updated_at = ?"
	args := []interface{}{time.Now().UTC()}
	if upd.Content != nil {
		set += ", content = ?, embedding = ?"
		args = append(args, *upd.Content, EncodeVector(upd.Embedding))
	}
	if upd.Subject != nil {
		set += ", subject = ?"
		args = append(args, *upd.Subject)
	}
	if upd.Confidence != nil {
		set += ", confidence = ?"
		args = append(args, *upd.Confidence)
	}
	if upd.Source != nil {
		set += ", source = ?"
		args = append(args, *upd.Source)
	}
	if upd.Tags != nil {
		set += ", tags = ?"
		args = append(args, encodeJSON(upd.Tags))
	}
	if upd.ValidUntil != nil {
		set += ", valid_until = ?"
		args = append(args, upd.ValidUntil.UTC())
	}
	if upd.SupersededBy != nil {
		set += ", superseded_by = ?"
		args = append(args, *upd.SupersededBy)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, "UPDATE facts SET "+set+" WHERE id = ?", args...)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("fact %q: %w", id, ErrNotFound)
	}
	return s.GetFact(ctx, id)
}

// DeleteFact removes a fact by id.
func (s *Store) DeleteFact(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "facts", id)
}

func (s *Store) deleteByID(ctx context.Context, table, id string) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %q: %w", table, id, ErrNotFound)
	}
	return nil
}

func scanFact(row rowScanner) (*types.Fact, error) {
	var f types.Fact
	var subject, source, supersededBy, sessionID sql.NullString
	var tags string
	var validUntil, lastAccessed sql.NullTime
	err := row.Scan(&f.ID, &f.AgentID, &f.Content, &subject, &f.Confidence, &source, &tags,
		&f.ValidFrom, &validUntil, &supersededBy, &sessionID,
		&f.DecayStatus, &f.AccessCount, &lastAccessed, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	f.Subject = strPtr(subject)
	f.Source = strPtr(source)
	f.SupersededBy = strPtr(supersededBy)
	f.SessionID = strPtr(sessionID)
	f.Tags = decodeStrings(tags)
	f.ValidUntil = timePtr(validUntil)
	f.LastAccessedAt = timePtr(lastAccessed)
	f.ValidFrom = f.ValidFrom.UTC()
	f.CreatedAt = f.CreatedAt.UTC()
	f.UpdatedAt = f.UpdatedAt.UTC()
	return &f, nil
}
