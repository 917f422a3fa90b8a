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
// DECAY POLICIES AND LIFECYCLE TRANSITIONS
// =============================================================================

const decayPolicyColumns = "id, agent_id, memory_type, ttl_days, access_boost, min_accesses, created_at"

// ResolvePolicy returns the most specific policy for (agent, type): an
// agent-scoped row wins over the global default. No policy at all means the
// type never decays.
func (s *Store) ResolvePolicy(ctx context.Context, agentID string, t types.MemoryType) (*types.DecayPolicy, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+decayPolicyColumns+` FROM decay_policies
		 WHERE memory_type = ? AND (agent_id = ? OR agent_id IS NULL)
		 ORDER BY agent_id IS NULL LIMIT 1`,
		string(t), agentID)
	p, err := scanPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("decay policy for %s: %w", t, ErrNotFound)
	}
	return p, err
}

// ListPolicies returns the global defaults plus any agent-scoped overrides.
func (s *Store) ListPolicies(ctx context.Context, agentID string) ([]*types.DecayPolicy, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+decayPolicyColumns+` FROM decay_policies
		 WHERE agent_id IS NULL OR agent_id = ?
		 ORDER BY memory_type, agent_id IS NULL`,
		agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []*types.DecayPolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

// SetPolicy upserts an agent-scoped or global policy row.
func (s *Store) SetPolicy(ctx context.Context, p *types.DecayPolicy) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	var ttl interface{}
	if p.TTLDays != nil {
		ttl = *p.TTLDays
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO decay_policies (id, agent_id, memory_type, ttl_days, access_boost, min_accesses)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (agent_id, memory_type)
		 DO UPDATE SET ttl_days = excluded.ttl_days, access_boost = excluded.access_boost, min_accesses = excluded.min_accesses`,
		p.ID, nullString(p.AgentID), string(p.MemoryType), ttl, p.AccessBoost, p.MinAccesses)
	return err
}

// MarkCooling transitions stale active rows to cooling. A row is stale when
// its access count is below the policy minimum and it has not been touched
// within the TTL window (falling back to its time column when never accessed).
// The transition stamps decayed_at, which starts the archival clock.
// Returns the number of rows transitioned.
func (s *Store) MarkCooling(ctx context.Context, t types.MemoryType, agentID string, ttlDays, minAccesses int) (int64, error) {
	info, err := types.Info(t)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	cutoff := now.AddDate(0, 0, -ttlDays)

	q := fmt.Sprintf(
		`UPDATE %s SET decay_status = 'cooling', decayed_at = ?
		 WHERE decay_status = 'active' AND access_count < ?
		 AND ((last_accessed_at IS NULL AND %s < ?) OR last_accessed_at < ?)`,
		info.Table, info.TimeColumn)
	args := []interface{}{now, minAccesses, cutoff, cutoff}
	if agentID != "" {
		q += " AND agent_id = ?"
		args = append(args, agentID)
	}

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkArchived transitions rows that have been cooling for at least
// archiveAfter into archived, measured from decayed_at. Returns the number of
// rows transitioned.
func (s *Store) MarkArchived(ctx context.Context, t types.MemoryType, agentID string, archiveAfter time.Duration) (int64, error) {
	info, err := types.Info(t)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	cutoff := now.Add(-archiveAfter)

	q := fmt.Sprintf(
		`UPDATE %s SET decay_status = 'archived', decayed_at = ?
		 WHERE decay_status = 'cooling' AND decayed_at IS NOT NULL AND decayed_at < ?`,
		info.Table)
	args := []interface{}{now, cutoff}
	if agentID != "" {
		q += " AND agent_id = ?"
		args = append(args, agentID)
	}

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountImmune counts active rows whose access count meets the policy minimum.
func (s *Store) CountImmune(ctx context.Context, t types.MemoryType, agentID string, minAccesses int) (int64, error) {
	info, err := types.Info(t)
	if err != nil {
		return 0, err
	}

	q := fmt.Sprintf(
		"SELECT COUNT(*) FROM %s WHERE decay_status = 'active' AND access_count >= ?",
		info.Table)
	args := []interface{}{minAccesses}
	if agentID != "" {
		q += " AND agent_id = ?"
		args = append(args, agentID)
	}

	var n int64
	err = s.db.QueryRowContext(ctx, q, args...).Scan(&n)
	return n, err
}

// DecayStatusCounts returns per-table decay status counts, optionally scoped
// to one agent.
func (s *Store) DecayStatusCounts(ctx context.Context, agentID string) (map[string]map[string]int, error) {
	out := make(map[string]map[string]int)
	for _, t := range types.RecallTypes(nil) {
		info, err := types.Info(t)
		if err != nil {
			return nil, err
		}
		q := fmt.Sprintf("SELECT decay_status, COUNT(*) FROM %s", info.Table)
		var args []interface{}
		if agentID != "" {
			q += " WHERE agent_id = ?"
			args = append(args, agentID)
		}
		q += " GROUP BY decay_status"

		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, err
		}
		counts := map[string]int{}
		for rows.Next() {
			var status string
			var n int
			if err := rows.Scan(&status, &n); err != nil {
				rows.Close()
				return nil, err
			}
			counts[status] = n
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
		out[info.Table] = counts
	}
	return out, nil
}

// DecayAgentIDs returns the distinct agent ids present in a table, for
// per-agent policy resolution during sweeps.
func (s *Store) DecayAgentIDs(ctx context.Context, t types.MemoryType) ([]string, error) {
	info, err := types.Info(t)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT DISTINCT agent_id FROM %s", info.Table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanPolicy(row rowScanner) (*types.DecayPolicy, error) {
	var p types.DecayPolicy
	var agentID sql.NullString
	var ttl sql.NullInt64
	var memType string
	err := row.Scan(&p.ID, &agentID, &memType, &ttl, &p.AccessBoost, &p.MinAccesses, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.AgentID = strPtr(agentID)
	p.MemoryType = types.MemoryType(memType)
	if ttl.Valid {
		v := int(ttl.Int64)
		p.TTLDays = &v
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}
