package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hexmem/internal/types"
)

// =============================================================================
// SESSIONS AND MESSAGES
// =============================================================================

// CreateSession starts a new session for an agent.
func (s *Store) CreateSession(ctx context.Context, agentID, externalID string, metadata map[string]interface{}) (*types.Session, error) {
	sess := &types.Session{
		ID:         uuid.NewString(),
		AgentID:    agentID,
		ExternalID: externalID,
		Metadata:   metadata,
		StartedAt:  time.Now().UTC(),
	}
	if sess.Metadata == nil {
		sess.Metadata = map[string]interface{}{}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, agent_id, external_id, metadata, started_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.AgentID, sess.ExternalID, encodeJSON(sess.Metadata), sess.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

// GetSession fetches a session including its message count.
func (s *Store) GetSession(ctx context.Context, id string) (*types.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT s.id, s.agent_id, s.external_id, s.metadata, s.summary, s.started_at, s.ended_at,
			(SELECT COUNT(*) FROM session_messages m WHERE m.session_id = s.id)
		 FROM sessions s WHERE s.id = ?`, id)

	var sess types.Session
	var meta string
	var summary sql.NullString
	var endedAt sql.NullTime
	err := row.Scan(&sess.ID, &sess.AgentID, &sess.ExternalID, &meta, &summary,
		&sess.StartedAt, &endedAt, &sess.MessageCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	sess.Metadata = decodeMap(meta)
	sess.Summary = strPtr(summary)
	sess.EndedAt = timePtr(endedAt)
	sess.StartedAt = sess.StartedAt.UTC()
	return &sess, nil
}

// ListSessions returns an agent's sessions, newest first.
func (s *Store) ListSessions(ctx context.Context, agentID string) ([]*types.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, external_id, metadata, summary, started_at, ended_at
		 FROM sessions WHERE agent_id = ? ORDER BY started_at DESC`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*types.Session
	for rows.Next() {
		var sess types.Session
		var meta string
		var summary sql.NullString
		var endedAt sql.NullTime
		if err := rows.Scan(&sess.ID, &sess.AgentID, &sess.ExternalID, &meta,
			&summary, &sess.StartedAt, &endedAt); err != nil {
			return nil, err
		}
		sess.Metadata = decodeMap(meta)
		sess.Summary = strPtr(summary)
		sess.EndedAt = timePtr(endedAt)
		sess.StartedAt = sess.StartedAt.UTC()
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}

// EndSession marks a session ended and stores the optional summary. Ending an
// already-ended session fails; the caller maps that onto InvalidArgument.
func (s *Store) EndSession(ctx context.Context, id string, summary *string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET ended_at = ?, summary = ? WHERE id = ? AND ended_at IS NULL",
		time.Now().UTC(), nullString(summary), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Distinguish unknown session from double-end.
		var exists int
		if err := s.db.QueryRowContext(ctx, "SELECT 1 FROM sessions WHERE id = ?", id).Scan(&exists); errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("session %q: %w", id, ErrNotFound)
		}
		return fmt.Errorf("session %q: %w", id, ErrSessionEnded)
	}
	return nil
}

// InsertMessage persists an immutable session message.
func (s *Store) InsertMessage(ctx context.Context, m *types.SessionMessage) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = time.Now().UTC()
	m.DecayStatus = types.DecayActive
	if m.Metadata == nil {
		m.Metadata = map[string]interface{}{}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_messages (id, session_id, agent_id, role, content, embedding, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, m.AgentID, m.Role, m.Content,
		EncodeVector(m.Embedding), encodeJSON(m.Metadata), m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	s.log.Debug("message persisted",
		zap.String("session_id", m.SessionID),
		zap.String("role", m.Role),
		zap.Bool("embedded", len(m.Embedding) > 0))
	return nil
}

// ListMessages returns a session's messages oldest-first.
func (s *Store) ListMessages(ctx context.Context, sessionID string, limit int) ([]*types.SessionMessage, error) {
	q := `SELECT id, session_id, agent_id, role, content, metadata,
		decay_status, access_count, last_accessed_at, created_at
		FROM session_messages WHERE session_id = ? ORDER BY created_at`
	args := []interface{}{sessionID}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*types.SessionMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// RecentMessages returns up to limit messages of the session written strictly
// before the given message id, oldest-first. Used to assemble extraction
// context.
func (s *Store) RecentMessages(ctx context.Context, sessionID, beforeID string, limit int) ([]*types.SessionMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, agent_id, role, content, metadata,
			decay_status, access_count, last_accessed_at, created_at
		 FROM session_messages
		 WHERE session_id = ? AND id != ?
		 ORDER BY created_at DESC LIMIT ?`,
		sessionID, beforeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*types.SessionMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse newest-first into oldest-first.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// GetMessage fetches one message by id.
func (s *Store) GetMessage(ctx context.Context, id string) (*types.SessionMessage, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, agent_id, role, content, metadata,
			decay_status, access_count, last_accessed_at, created_at
		 FROM session_messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %q: %w", id, ErrNotFound)
	}
	return m, err
}

func scanMessage(row rowScanner) (*types.SessionMessage, error) {
	var m types.SessionMessage
	var meta string
	var lastAccessed sql.NullTime
	err := row.Scan(&m.ID, &m.SessionID, &m.AgentID, &m.Role, &m.Content, &meta,
		&m.DecayStatus, &m.AccessCount, &lastAccessed, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.Metadata = decodeMap(meta)
	m.LastAccessedAt = timePtr(lastAccessed)
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}
