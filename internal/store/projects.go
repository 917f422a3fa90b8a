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
// PROJECTS
// =============================================================================

const projectColumns = `id, agent_id, slug, name, description, status, tags, metadata,
	created_at, updated_at`

// InsertProject persists a project. The slug is derived from the name when
// empty; a per-agent slug collision returns ErrDuplicate.
func (s *Store) InsertProject(ctx context.Context, p *types.Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Slug == "" {
		p.Slug = types.Slugify(p.Name)
	}
	if p.Status == "" {
		p.Status = types.ProjectActive
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if p.Metadata == nil {
		p.Metadata = map[string]interface{}{}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, agent_id, slug, name, description, status, tags, embedding, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.AgentID, p.Slug, p.Name, p.Description, p.Status,
		encodeJSON(p.Tags), EncodeVector(p.Embedding), encodeJSON(p.Metadata), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("project slug %q: %w", p.Slug, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

// GetProject fetches a project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*types.Project, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+projectColumns+" FROM projects WHERE id = ?", id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %q: %w", id, ErrNotFound)
	}
	return p, err
}

// ListProjects returns an agent's projects.
func (s *Store) ListProjects(ctx context.Context, agentID string, limit int) ([]*types.Project, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+projectColumns+" FROM projects WHERE agent_id = ? ORDER BY created_at DESC LIMIT ?",
		agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*types.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// ProjectUpdate holds mutable project attributes. Slugs never change.
type ProjectUpdate struct {
	Name        *string
	Description *string
	Status      *string
	Tags        []string
	Metadata    map[string]interface{}
}

// UpdateProject applies a partial update.
func (s *Store) UpdateProject(ctx context.Context, id string, upd ProjectUpdate) (*types.Project, error) {
	set := "updated_at = ?"
	args := []interface{}{time.Now().UTC()}
	if upd.Name != nil {
		set += ", name = ?"
		args = append(args, *upd.Name)
	}
	if upd.Description != nil {
		set += ", description = ?"
		args = append(args, *upd.Description)
	}
	if upd.Status != nil {
		set += ", status = ?"
		args = append(args, *upd.Status)
	}
	if upd.Tags != nil {
		set += ", tags = ?"
		args = append(args, encodeJSON(upd.Tags))
	}
	if upd.Metadata != nil {
		set += ", metadata = ?"
		args = append(args, encodeJSON(upd.Metadata))
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, "UPDATE projects SET "+set+" WHERE id = ?", args...)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("project %q: %w", id, ErrNotFound)
	}
	return s.GetProject(ctx, id)
}

// DeleteProject removes a project by id.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "projects", id)
}

func scanProject(row rowScanner) (*types.Project, error) {
	var p types.Project
	var tags, meta string
	err := row.Scan(&p.ID, &p.AgentID, &p.Slug, &p.Name, &p.Description, &p.Status,
		&tags, &meta, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Tags = decodeStrings(tags)
	p.Metadata = decodeMap(meta)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}
