package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"hexmem/internal/types"
)

// =============================================================================
// SEARCH ARMS
// =============================================================================

// SearchHit is one candidate row from a semantic or lexical arm.
type SearchHit struct {
	ID         string
	Type       types.MemoryType
	Content    string
	Similarity float64
	CreatedAt  time.Time
}

// SemanticSearch returns up to limit active rows of the agent with non-null
// embeddings, most similar first. Similarity is cosine (1 − cosine distance).
func (s *Store) SemanticSearch(ctx context.Context, t types.MemoryType, agentID string, queryVec []float32, limit int) ([]SearchHit, error) {
	info, err := types.Info(t)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	encoded := EncodeVector(queryVec)
	if encoded == nil {
		return nil, fmt.Errorf("empty query vector")
	}

	// Table and column names come from the closed type registry, never from
	// request input.
	q := fmt.Sprintf(
		`SELECT id, %s, cosine_sim(embedding, ?), %s FROM %s
		 WHERE agent_id = ? AND decay_status = 'active' AND embedding IS NOT NULL
		 ORDER BY 3 DESC LIMIT ?`,
		info.ContentExpr, info.TimeColumn, info.Table)

	return s.collectHits(ctx, t, q, encoded, agentID, limit)
}

// LexicalSearch returns up to limit active rows whose canonical content has
// trigram similarity above floor, most similar first.
func (s *Store) LexicalSearch(ctx context.Context, t types.MemoryType, agentID, query string, floor float64, limit int) ([]SearchHit, error) {
	info, err := types.Info(t)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	q := fmt.Sprintf(
		`SELECT id, %s, trigram_sim(%s, ?), %s FROM %s
		 WHERE agent_id = ? AND decay_status = 'active' AND trigram_sim(%s, ?) > ?
		 ORDER BY 3 DESC LIMIT ?`,
		info.ContentExpr, info.ContentExpr, info.TimeColumn, info.Table, info.ContentExpr)

	return s.collectHits(ctx, t, q, query, agentID, query, floor, limit)
}

func (s *Store) collectHits(ctx context.Context, t types.MemoryType, q string, args ...interface{}) ([]SearchHit, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		if err := rows.Scan(&h.ID, &h.Content, &h.Similarity, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.Type = t
		h.CreatedAt = h.CreatedAt.UTC()
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// GetNodeSummary fetches the canonical content and timestamp of one node for
// graph expansion. Unknown nodes return ErrNotFound so callers can skip
// dangling edges.
func (s *Store) GetNodeSummary(ctx context.Context, t types.MemoryType, id string) (*SearchHit, error) {
	info, err := types.Info(t)
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf("SELECT id, %s, %s FROM %s WHERE id = ?", info.ContentExpr, info.TimeColumn, info.Table)
	var h SearchHit
	err = s.db.QueryRowContext(ctx, q, id).Scan(&h.ID, &h.Content, &h.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %q: %w", t, id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	h.Type = t
	h.CreatedAt = h.CreatedAt.UTC()
	return &h, nil
}
