package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hexmem/internal/types"
)

// =============================================================================
// ACCESS ACCOUNTING
// =============================================================================

// BumpAccess atomically increments access_count and stamps last_accessed_at
// for the given rows. Read-through callers invoke this best-effort.
func (s *Store) BumpAccess(ctx context.Context, t types.MemoryType, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	info, err := types.Info(t)
	if err != nil {
		return err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, time.Now().UTC())
	for _, id := range ids {
		args = append(args, id)
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(
		"UPDATE %s SET access_count = access_count + 1, last_accessed_at = ? WHERE id IN (%s)",
		info.Table, placeholders), args...)
	return err
}

// Revive returns a cooling or archived item to active, counting the revival
// as an access.
func (s *Store) Revive(ctx context.Context, t types.MemoryType, id string) error {
	info, err := types.Info(t)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET decay_status = 'active', decayed_at = NULL,
			access_count = access_count + 1, last_accessed_at = ?
		 WHERE id = ? AND decay_status != 'active'`, info.Table),
		time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %q not revivable: %w", t, id, ErrNotFound)
	}
	return nil
}
