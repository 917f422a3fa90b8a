package decay

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"

	"hexmem/internal/store"
	"hexmem/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newFixture(t *testing.T) (*store.Store, *Engine, string) {
	t.Helper()
	s, err := store.Open(":memory:", store.DefaultOptions(), zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	a := &types.Agent{Slug: "decay-bot", DisplayName: "Decay Bot"}
	if err := s.CreateAgent(context.Background(), a); err != nil {
		t.Fatalf("create agent: %v", err)
	}
	return s, NewEngine(s, zap.NewNop()), a.ID
}

func ageFact(t *testing.T, s *store.Store, id string, days int) {
	t.Helper()
	old := time.Now().UTC().AddDate(0, 0, -days)
	if _, err := s.DB().ExecContext(context.Background(),
		"UPDATE facts SET created_at = ?, updated_at = ? WHERE id = ?", old, old, id); err != nil {
		t.Fatalf("age fact: %v", err)
	}
}

func factStatus(t *testing.T, s *store.Store, id string) string {
	t.Helper()
	f, err := s.GetFact(context.Background(), id)
	if err != nil {
		t.Fatalf("get fact: %v", err)
	}
	return f.DecayStatus
}

func TestSweepCoolsStaleRows(t *testing.T) {
	s, e, agentID := newFixture(t)
	ctx := context.Background()

	stale := &types.Fact{AgentID: agentID, Content: "stale knowledge"}
	fresh := &types.Fact{AgentID: agentID, Content: "fresh knowledge"}
	for _, f := range []*types.Fact{stale, fresh} {
		if err := s.InsertFact(ctx, f); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	// Default fact TTL is 90 days.
	ageFact(t, s, stale.ID, 120)

	stats, err := e.Sweep(ctx, "")
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if stats.TransitionedToCooling != 1 {
		t.Errorf("cooled = %d, want 1", stats.TransitionedToCooling)
	}
	if got := factStatus(t, s, stale.ID); got != types.DecayCooling {
		t.Errorf("stale status = %q, want cooling", got)
	}
	if got := factStatus(t, s, fresh.ID); got != types.DecayActive {
		t.Errorf("fresh status = %q, want active", got)
	}
}

func TestSweepSparesAccessedRows(t *testing.T) {
	s, e, agentID := newFixture(t)
	ctx := context.Background()

	hot := &types.Fact{AgentID: agentID, Content: "frequently read"}
	if err := s.InsertFact(ctx, hot); err != nil {
		t.Fatalf("insert: %v", err)
	}
	ageFact(t, s, hot.ID, 120)
	// Cross the default min_accesses bar of 3.
	for i := 0; i < 3; i++ {
		if err := s.BumpAccess(ctx, types.TypeFact, []string{hot.ID}); err != nil {
			t.Fatalf("bump: %v", err)
		}
	}

	stats, err := e.Sweep(ctx, "")
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if got := factStatus(t, s, hot.ID); got != types.DecayActive {
		t.Errorf("hot row status = %q, want active", got)
	}
	if stats.ImmuneItems != 1 {
		t.Errorf("immune = %d, want 1", stats.ImmuneItems)
	}
}

func TestSweepArchivesLongCooledRows(t *testing.T) {
	s, e, agentID := newFixture(t)
	ctx := context.Background()

	f := &types.Fact{AgentID: agentID, Content: "long forgotten"}
	if err := s.InsertFact(ctx, f); err != nil {
		t.Fatalf("insert: %v", err)
	}
	ageFact(t, s, f.ID, 200)
	if _, err := s.DB().ExecContext(ctx,
		"UPDATE facts SET decay_status = 'cooling', decayed_at = ? WHERE id = ?",
		time.Now().UTC().AddDate(0, 0, -45), f.ID); err != nil {
		t.Fatalf("cool row: %v", err)
	}

	stats, err := e.Sweep(ctx, "")
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if stats.TransitionedToArchived != 1 {
		t.Errorf("archived = %d, want 1", stats.TransitionedToArchived)
	}
	if got := factStatus(t, s, f.ID); got != types.DecayArchived {
		t.Errorf("status = %q, want archived", got)
	}
}

func TestSweepHonorsNullTTL(t *testing.T) {
	s, e, agentID := newFixture(t)
	ctx := context.Background()

	// Decisions ship with a null-TTL default policy: they never decay.
	d := &types.Decision{AgentID: agentID, Title: "keep forever", Decision: "decisions are permanent"}
	if err := s.InsertDecision(ctx, d); err != nil {
		t.Fatalf("insert: %v", err)
	}
	old := time.Now().UTC().AddDate(-2, 0, 0)
	if _, err := s.DB().ExecContext(ctx,
		"UPDATE decisions SET created_at = ?, updated_at = ? WHERE id = ?", old, old, d.ID); err != nil {
		t.Fatalf("age decision: %v", err)
	}

	if _, err := e.Sweep(ctx, ""); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	got, err := s.GetDecision(ctx, d.ID)
	if err != nil {
		t.Fatalf("get decision: %v", err)
	}
	if got.DecayStatus != types.DecayActive {
		t.Errorf("decision status = %q, want active", got.DecayStatus)
	}
}

func TestSweepUsesAgentOverride(t *testing.T) {
	s, e, agentID := newFixture(t)
	ctx := context.Background()

	f := &types.Fact{AgentID: agentID, Content: "moderately old"}
	if err := s.InsertFact(ctx, f); err != nil {
		t.Fatalf("insert: %v", err)
	}
	// 30 days old: inside the global 90-day TTL, outside a 7-day override.
	ageFact(t, s, f.ID, 30)

	if _, err := e.Sweep(ctx, ""); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if got := factStatus(t, s, f.ID); got != types.DecayActive {
		t.Fatalf("global policy cooled a 30-day row: %q", got)
	}

	ttl := 7
	if err := s.SetPolicy(ctx, &types.DecayPolicy{
		AgentID:     &agentID,
		MemoryType:  types.TypeFact,
		TTLDays:     &ttl,
		AccessBoost: 1.5,
		MinAccesses: 3,
	}); err != nil {
		t.Fatalf("set policy: %v", err)
	}

	if _, err := e.Sweep(ctx, ""); err != nil {
		t.Fatalf("Sweep with override: %v", err)
	}
	if got := factStatus(t, s, f.ID); got != types.DecayCooling {
		t.Errorf("override did not apply: status = %q, want cooling", got)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	_, e, _ := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx, time.Hour)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestSweepFreshDatabaseIsNoop(t *testing.T) {
	s, e, agentID := newFixture(t)
	ctx := context.Background()

	f := &types.Fact{AgentID: agentID, Content: "brand new"}
	if err := s.InsertFact(ctx, f); err != nil {
		t.Fatalf("insert: %v", err)
	}

	stats, err := e.Sweep(ctx, "")
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if stats.TransitionedToCooling != 0 || stats.TransitionedToArchived != 0 {
		t.Errorf("fresh sweep transitioned rows: %+v", stats)
	}
}
