package store

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"hexmem/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", DefaultOptions(), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestAgent(t *testing.T, s *Store, slug string) *types.Agent {
	t.Helper()
	a := &types.Agent{Slug: slug, DisplayName: slug}
	if err := s.CreateAgent(context.Background(), a); err != nil {
		t.Fatalf("failed to create agent %q: %v", slug, err)
	}
	return a
}

func TestOpenRunsMigrations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	applied, err := s.AppliedMigrations(ctx)
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(applied) != len(migrations) {
		t.Fatalf("applied %d migrations, want %d", len(applied), len(migrations))
	}

	// Spot-check that key tables exist.
	for _, table := range []string{"agents", "facts", "memory_edges", "decay_policies", "query_log"} {
		var n int
		err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n)
		if err != nil || n != 1 {
			t.Errorf("table %s missing (n=%d, err=%v)", table, n, err)
		}
	}
}

func TestMigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	applied, err := s.AppliedMigrations(ctx)
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(applied) != len(migrations) {
		t.Fatalf("applied %d migrations after rerun, want %d", len(applied), len(migrations))
	}
}

func TestDefaultDecayPoliciesSeeded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	policies, err := s.ListPolicies(ctx, "")
	if err != nil {
		t.Fatalf("ListPolicies: %v", err)
	}
	byType := map[types.MemoryType]*types.DecayPolicy{}
	for _, p := range policies {
		if p.AgentID == nil {
			byType[p.MemoryType] = p
		}
	}

	wantTTL := map[types.MemoryType]*int{
		types.TypeSessionMessage: intPtr(30),
		types.TypeFact:           intPtr(90),
		types.TypeEvent:          intPtr(60),
		types.TypeDecision:       nil,
		types.TypeTask:           nil,
	}
	for mt, ttl := range wantTTL {
		p, ok := byType[mt]
		if !ok {
			t.Errorf("no default policy for %s", mt)
			continue
		}
		switch {
		case ttl == nil && p.TTLDays != nil:
			t.Errorf("%s: ttl = %d, want nil", mt, *p.TTLDays)
		case ttl != nil && (p.TTLDays == nil || *p.TTLDays != *ttl):
			t.Errorf("%s: ttl = %v, want %d", mt, p.TTLDays, *ttl)
		}
		if p.MinAccesses != 3 {
			t.Errorf("%s: min_accesses = %d, want 3", mt, p.MinAccesses)
		}
	}
}

func intPtr(v int) *int { return &v }
