package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hexmem/internal/types"
)

// =============================================================================
// MEMORY EDGE GRAPH
// =============================================================================

const edgeColumns = `id, agent_id, source_type, source_id, target_type, target_id,
	relation, weight, metadata, created_at`

// UpsertEdge creates a typed directed edge. On conflict with the same
// (source_type, source_id, target_type, target_id, relation) tuple the
// existing row keeps its id and takes the new weight and metadata.
func (s *Store) UpsertEdge(ctx context.Context, e *types.Edge) error {
	if e.SourceID == "" || e.TargetID == "" || e.Relation == "" {
		return fmt.Errorf("edge endpoints and relation must be non-empty")
	}
	if math.IsNaN(e.Weight) || math.IsInf(e.Weight, 0) || e.Weight < 0 {
		return fmt.Errorf("invalid edge weight: %v", e.Weight)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}

	row := s.db.QueryRowContext(ctx,
		`INSERT INTO memory_edges (id, agent_id, source_type, source_id, target_type, target_id, relation, weight, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (source_type, source_id, target_type, target_id, relation)
		 DO UPDATE SET weight = excluded.weight, metadata = excluded.metadata
		 RETURNING id, created_at`,
		e.ID, e.AgentID, string(e.SourceType), e.SourceID, string(e.TargetType), e.TargetID,
		e.Relation, e.Weight, encodeJSON(e.Metadata), time.Now().UTC(),
	)
	if err := row.Scan(&e.ID, &e.CreatedAt); err != nil {
		return fmt.Errorf("failed to upsert edge: %w", err)
	}
	e.CreatedAt = e.CreatedAt.UTC()

	s.log.Debug("edge upserted",
		zap.String("source", string(e.SourceType)+":"+e.SourceID),
		zap.String("relation", e.Relation),
		zap.String("target", string(e.TargetType)+":"+e.TargetID),
		zap.Float64("weight", e.Weight))
	return nil
}

// GetEdge fetches an edge by id.
func (s *Store) GetEdge(ctx context.Context, id string) (*types.Edge, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+edgeColumns+" FROM memory_edges WHERE id = ?", id)
	e, err := scanEdge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("edge %q: %w", id, ErrNotFound)
	}
	return e, err
}

// EdgeFilter narrows ListEdges. Zero-valued fields are ignored.
type EdgeFilter struct {
	AgentID    string
	SourceType types.MemoryType
	SourceID   string
	TargetType types.MemoryType
	TargetID   string
	Relation   string
	Limit      int
}

// ListEdges returns edges matching any subset of the filter fields.
func (s *Store) ListEdges(ctx context.Context, f EdgeFilter) ([]*types.Edge, error) {
	q := "SELECT " + edgeColumns + " FROM memory_edges WHERE 1=1"
	var args []interface{}
	if f.AgentID != "" {
		q += " AND agent_id = ?"
		args = append(args, f.AgentID)
	}
	if f.SourceType != "" {
		q += " AND source_type = ?"
		args = append(args, string(f.SourceType))
	}
	if f.SourceID != "" {
		q += " AND source_id = ?"
		args = append(args, f.SourceID)
	}
	if f.TargetType != "" {
		q += " AND target_type = ?"
		args = append(args, string(f.TargetType))
	}
	if f.TargetID != "" {
		q += " AND target_id = ?"
		args = append(args, f.TargetID)
	}
	if f.Relation != "" {
		q += " AND relation = ?"
		args = append(args, f.Relation)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " ORDER BY created_at LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []*types.Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// NodeEdges returns the edges incident to one node, split by direction. A
// self-edge appears in both slices; callers render it twice.
func (s *Store) NodeEdges(ctx context.Context, agentID string, nodeType types.MemoryType, nodeID string) (outgoing, incoming []*types.Edge, err error) {
	outgoing, err = s.ListEdges(ctx, EdgeFilter{AgentID: agentID, SourceType: nodeType, SourceID: nodeID})
	if err != nil {
		return nil, nil, err
	}
	incoming, err = s.ListEdges(ctx, EdgeFilter{AgentID: agentID, TargetType: nodeType, TargetID: nodeID})
	if err != nil {
		return nil, nil, err
	}
	return outgoing, incoming, nil
}

// DeleteEdge removes an edge by id; unknown ids return ErrNotFound.
func (s *Store) DeleteEdge(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "memory_edges", id)
}

func scanEdge(row rowScanner) (*types.Edge, error) {
	var e types.Edge
	var srcType, dstType, meta string
	err := row.Scan(&e.ID, &e.AgentID, &srcType, &e.SourceID, &dstType, &e.TargetID,
		&e.Relation, &e.Weight, &meta, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.SourceType = types.MemoryType(srcType)
	e.TargetType = types.MemoryType(dstType)
	e.Metadata = decodeMap(meta)
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}
