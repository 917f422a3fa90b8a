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
// AGENTS
// =============================================================================

const agentColumns = "id, slug, display_name, description, core_memory, config, created_at, updated_at"

// CreateAgent inserts a new agent. A duplicate slug returns ErrDuplicate.
func (s *Store) CreateAgent(ctx context.Context, a *types.Agent) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.CoreMemory == nil {
		a.CoreMemory = map[string]interface{}{}
	}
	if a.Config == nil {
		a.Config = map[string]interface{}{}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (id, slug, display_name, description, core_memory, config, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Slug, a.DisplayName, a.Description,
		encodeJSON(a.CoreMemory), encodeJSON(a.Config), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("agent slug %q: %w", a.Slug, ErrDuplicate)
		}
		return fmt.Errorf("failed to create agent: %w", err)
	}

	s.slugCache.Store(a.Slug, a.ID)
	s.log.Debug("agent created", zap.String("id", a.ID), zap.String("slug", a.Slug))
	return nil
}

// ResolveAgentID maps a UUID or slug onto the agent's UUID. Slug lookups are
// cached; the cache is never invalidated (slug renames are unsupported).
func (s *Store) ResolveAgentID(ctx context.Context, idOrSlug string) (string, error) {
	if _, err := uuid.Parse(idOrSlug); err == nil {
		return idOrSlug, nil
	}
	if cached, ok := s.slugCache.Load(idOrSlug); ok {
		return cached.(string), nil
	}

	var id string
	err := s.db.QueryRowContext(ctx, "SELECT id FROM agents WHERE slug = ?", idOrSlug).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("agent %q: %w", idOrSlug, ErrNotFound)
	}
	if err != nil {
		return "", err
	}

	s.slugCache.Store(idOrSlug, id)
	return id, nil
}

// GetAgent fetches an agent by UUID or slug.
func (s *Store) GetAgent(ctx context.Context, idOrSlug string) (*types.Agent, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+agentColumns+" FROM agents WHERE id = ? OR slug = ?", idOrSlug, idOrSlug)
	a, err := scanAgent(row)
	if err != nil {
		return nil, err
	}
	s.slugCache.Store(a.Slug, a.ID)
	return a, nil
}

// ListAgents returns all agents ordered by creation time.
func (s *Store) ListAgents(ctx context.Context) ([]*types.Agent, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+agentColumns+" FROM agents ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []*types.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// AgentUpdate holds the mutable agent attributes for PATCH.
type AgentUpdate struct {
	DisplayName *string
	Description *string
	Config      map[string]interface{}
}

// UpdateAgent applies a partial update.
func (s *Store) UpdateAgent(ctx context.Context, idOrSlug string, upd AgentUpdate) (*types.Agent, error) {
	id, err := s.ResolveAgentID(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}

	set := "updated_at = ?"
	args := []interface{}{time.Now().UTC()}
	if upd.DisplayName != nil {
		set += ", display_name = ?"
		args = append(args, *upd.DisplayName)
	}
	if upd.Description != nil {
		set += ", description = ?"
		args = append(args, *upd.Description)
	}
	if upd.Config != nil {
		set += ", config = ?"
		args = append(args, encodeJSON(upd.Config))
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, "UPDATE agents SET "+set+" WHERE id = ?", args...)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("agent %q: %w", idOrSlug, ErrNotFound)
	}
	return s.GetAgent(ctx, id)
}

// PatchCoreMemory applies a JSON merge-patch with null-stripping to the
// agent's core memory. The read-modify-write runs in one transaction.
func (s *Store) PatchCoreMemory(ctx context.Context, idOrSlug string, patch map[string]interface{}) (map[string]interface{}, error) {
	id, err := s.ResolveAgentID(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, "SELECT core_memory FROM agents WHERE id = ?", id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent %q: %w", idOrSlug, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	merged := MergePatch(decodeMap(raw), patch)
	if _, err := tx.ExecContext(ctx,
		"UPDATE agents SET core_memory = ?, updated_at = ? WHERE id = ?",
		encodeJSON(merged), time.Now().UTC(), id,
	); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return merged, nil
}

// AgentCounts returns per-table row counts for one agent.
func (s *Store) AgentCounts(ctx context.Context, agentID string) (map[string]int, error) {
	counts := make(map[string]int)
	tables := []string{"sessions", "session_messages", "facts", "decisions", "tasks", "events", "projects", "memory_edges"}
	for _, table := range tables {
		var n int
		if err := s.db.QueryRowContext(ctx,
			fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE agent_id = ?", table), agentID,
		).Scan(&n); err != nil {
			return nil, err
		}
		counts[table] = n
	}
	return counts, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAgent(row rowScanner) (*types.Agent, error) {
	var a types.Agent
	var coreMem, cfg string
	err := row.Scan(&a.ID, &a.Slug, &a.DisplayName, &a.Description, &coreMem, &cfg, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	a.CoreMemory = decodeMap(coreMem)
	a.Config = decodeMap(cfg)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}
