package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"hexmem/internal/types"
)

func TestResolvePolicyMostSpecificWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := newTestAgent(t, s, "decay-bot")

	global, err := s.ResolvePolicy(ctx, a.ID, types.TypeFact)
	if err != nil {
		t.Fatalf("ResolvePolicy (global): %v", err)
	}
	if global.AgentID != nil {
		t.Fatal("expected global default before override exists")
	}
	if global.TTLDays == nil || *global.TTLDays != 90 {
		t.Errorf("global fact ttl = %v, want 90", global.TTLDays)
	}

	ttl := 7
	override := &types.DecayPolicy{
		AgentID:     &a.ID,
		MemoryType:  types.TypeFact,
		TTLDays:     &ttl,
		AccessBoost: 2.0,
		MinAccesses: 5,
	}
	if err := s.SetPolicy(ctx, override); err != nil {
		t.Fatalf("SetPolicy: %v", err)
	}

	got, err := s.ResolvePolicy(ctx, a.ID, types.TypeFact)
	if err != nil {
		t.Fatalf("ResolvePolicy (override): %v", err)
	}
	if got.AgentID == nil || *got.AgentID != a.ID {
		t.Error("agent override did not win over global default")
	}
	if got.TTLDays == nil || *got.TTLDays != 7 {
		t.Errorf("ttl = %v, want 7", got.TTLDays)
	}

	// Another agent still sees the global default.
	b := newTestAgent(t, s, "other-bot")
	theirs, err := s.ResolvePolicy(ctx, b.ID, types.TypeFact)
	if err != nil {
		t.Fatalf("ResolvePolicy (other agent): %v", err)
	}
	if theirs.AgentID != nil {
		t.Error("other agent picked up a foreign override")
	}
}

func TestMarkCoolingAndArchived(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := newTestAgent(t, s, "decay-bot")

	stale := &types.Fact{AgentID: a.ID, Content: "stale"}
	fresh := &types.Fact{AgentID: a.ID, Content: "fresh"}
	immune := &types.Fact{AgentID: a.ID, Content: "immune"}
	for _, f := range []*types.Fact{stale, fresh, immune} {
		if err := s.InsertFact(ctx, f); err != nil {
			t.Fatalf("InsertFact: %v", err)
		}
	}

	old := time.Now().UTC().AddDate(0, 0, -120)
	if _, err := s.db.ExecContext(ctx,
		"UPDATE facts SET created_at = ?, updated_at = ? WHERE id IN (?, ?)",
		old, old, stale.ID, immune.ID); err != nil {
		t.Fatalf("age rows: %v", err)
	}
	// Enough accesses to clear the immunity bar.
	if _, err := s.db.ExecContext(ctx,
		"UPDATE facts SET access_count = 5 WHERE id = ?", immune.ID); err != nil {
		t.Fatalf("bump immune: %v", err)
	}

	n, err := s.MarkCooling(ctx, types.TypeFact, a.ID, 90, 3)
	if err != nil {
		t.Fatalf("MarkCooling: %v", err)
	}
	if n != 1 {
		t.Fatalf("cooled %d rows, want 1", n)
	}

	check := func(id, want string) {
		t.Helper()
		var status string
		if err := s.db.QueryRowContext(ctx,
			"SELECT decay_status FROM facts WHERE id = ?", id).Scan(&status); err != nil {
			t.Fatalf("read status: %v", err)
		}
		if status != want {
			t.Errorf("fact %q status = %q, want %q", id, status, want)
		}
	}
	check(stale.ID, types.DecayCooling)
	check(fresh.ID, types.DecayActive)
	check(immune.ID, types.DecayActive)

	// A freshly cooled row is inside the archival grace window.
	n, err = s.MarkArchived(ctx, types.TypeFact, a.ID, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("MarkArchived (fresh): %v", err)
	}
	if n != 0 {
		t.Fatalf("archived %d freshly cooled rows, want 0", n)
	}

	// Second phase: rows cooling longer than the grace window archive.
	if _, err := s.db.ExecContext(ctx,
		"UPDATE facts SET decayed_at = ? WHERE id = ?",
		time.Now().UTC().AddDate(0, 0, -45), stale.ID); err != nil {
		t.Fatalf("backdate decayed_at: %v", err)
	}
	n, err = s.MarkArchived(ctx, types.TypeFact, a.ID, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("MarkArchived: %v", err)
	}
	if n != 1 {
		t.Fatalf("archived %d rows, want 1", n)
	}
	check(stale.ID, types.DecayArchived)
}

func TestCountImmune(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := newTestAgent(t, s, "decay-bot")

	f := &types.Fact{AgentID: a.ID, Content: "hot"}
	if err := s.InsertFact(ctx, f); err != nil {
		t.Fatalf("InsertFact: %v", err)
	}
	if err := s.BumpAccess(ctx, types.TypeFact, []string{f.ID, f.ID, f.ID}); err != nil {
		t.Fatalf("BumpAccess: %v", err)
	}
	// One IN-list update counts once; repeat to cross the bar.
	for i := 0; i < 2; i++ {
		if err := s.BumpAccess(ctx, types.TypeFact, []string{f.ID}); err != nil {
			t.Fatalf("BumpAccess: %v", err)
		}
	}

	n, err := s.CountImmune(ctx, types.TypeFact, a.ID, 3)
	if err != nil {
		t.Fatalf("CountImmune: %v", err)
	}
	if n != 1 {
		t.Errorf("immune count = %d, want 1", n)
	}
}

func TestReviveRestoresActive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := newTestAgent(t, s, "decay-bot")

	f := &types.Fact{AgentID: a.ID, Content: "cooled off"}
	if err := s.InsertFact(ctx, f); err != nil {
		t.Fatalf("InsertFact: %v", err)
	}
	if _, err := s.db.ExecContext(ctx,
		"UPDATE facts SET decay_status = 'cooling' WHERE id = ?", f.ID); err != nil {
		t.Fatalf("cool fact: %v", err)
	}

	if err := s.Revive(ctx, types.TypeFact, f.ID); err != nil {
		t.Fatalf("Revive: %v", err)
	}

	got, err := s.GetFact(ctx, f.ID)
	if err != nil {
		t.Fatalf("GetFact: %v", err)
	}
	if got.DecayStatus != types.DecayActive {
		t.Errorf("status = %q, want active", got.DecayStatus)
	}
	if got.AccessCount != 1 {
		t.Errorf("access count = %d, want 1 (revival counts as access)", got.AccessCount)
	}
	if got.LastAccessedAt == nil {
		t.Error("last_accessed_at not stamped")
	}

	// Already-active rows are not revivable.
	if err := s.Revive(ctx, types.TypeFact, f.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("revive active: err = %v, want ErrNotFound", err)
	}
}
