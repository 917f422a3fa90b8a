package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"hexmem/internal/dedup"
	"hexmem/internal/extraction"
	"hexmem/internal/store"
	"hexmem/internal/types"
)

// fakeExtractor returns a canned extraction for every message.
type fakeExtractor struct {
	result *extraction.Extraction
	err    error
	// lastContext records the context window of the most recent call.
	lastContext []*types.SessionMessage
}

func (f *fakeExtractor) Extract(_ context.Context, _ *types.SessionMessage, recent []*types.SessionMessage) (*extraction.Extraction, error) {
	f.lastContext = recent
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// hashEmbedder is a deterministic offline engine: identical text embeds
// identically.
type hashEmbedder struct{}

func (hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 8)
	for i, r := range strings.ToLower(text) {
		vec[i%8] += float32(r % 31)
	}
	return vec, nil
}

func (h hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := h.Embed(ctx, t)
		out[i] = v
	}
	return out, nil
}

func (hashEmbedder) Dimensions() int { return 8 }
func (hashEmbedder) Name() string    { return "test:hash" }

func newFixture(t *testing.T, ext extraction.Extractor) (*store.Store, *Pipeline, string, string) {
	t.Helper()
	s, err := store.Open(":memory:", store.DefaultOptions(), zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	a := &types.Agent{Slug: "ingest-bot", DisplayName: "Ingest Bot"}
	if err := s.CreateAgent(ctx, a); err != nil {
		t.Fatalf("create agent: %v", err)
	}
	sess, err := s.CreateSession(ctx, a.ID, "", nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	p := New(s, hashEmbedder{}, ext, zap.NewNop())
	return s, p, a.ID, sess.ID
}

func TestAddMessagePersistsAndExtracts(t *testing.T) {
	ext := &fakeExtractor{result: &extraction.Extraction{
		Facts: []extraction.CandidateFact{{Content: "the build runs on jenkins", Subject: "ci"}},
		Decisions: []extraction.CandidateDecision{{
			Title:        "ci platform",
			Decision:     "stay on jenkins",
			Alternatives: []string{"github actions", "circleci"},
			Tags:         []string{"ci"},
		}},
	}}
	s, p, agentID, sessID := newFixture(t, ext)
	ctx := context.Background()

	msg, counts, err := p.AddMessage(ctx, agentID, sessID, types.RoleUser,
		"we are keeping jenkins for ci", nil)
	if err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if msg.ID == "" {
		t.Fatal("message not assigned an id")
	}
	if counts.Facts != 1 || counts.Decisions != 1 {
		t.Errorf("counts = %+v, want 1 fact and 1 decision", counts)
	}

	// Derivation edges point from the extracted items back to the session.
	derived, err := s.ListEdges(ctx, store.EdgeFilter{AgentID: agentID, Relation: types.RelDerivedFrom})
	if err != nil {
		t.Fatalf("ListEdges: %v", err)
	}
	if len(derived) != 1 || derived[0].TargetType != types.TypeSession || derived[0].TargetID != sessID {
		t.Errorf("derived_from edges = %+v", derived)
	}
	decided, err := s.ListEdges(ctx, store.EdgeFilter{AgentID: agentID, Relation: types.RelDecidedIn})
	if err != nil {
		t.Fatalf("ListEdges: %v", err)
	}
	if len(decided) != 1 || decided[0].TargetType != types.TypeSession || decided[0].TargetID != sessID {
		t.Errorf("decided_in edges = %+v", decided)
	}

	facts, err := s.ListFacts(ctx, agentID, 0)
	if err != nil {
		t.Fatalf("ListFacts: %v", err)
	}
	if len(facts) != 1 || facts[0].SessionID == nil || *facts[0].SessionID != sessID {
		t.Errorf("fact not linked to session: %+v", facts)
	}

	decisions, err := s.ListDecisions(ctx, agentID, 0)
	if err != nil {
		t.Fatalf("ListDecisions: %v", err)
	}
	if len(decisions) != 1 {
		t.Fatalf("decisions stored = %d, want 1", len(decisions))
	}
	if len(decisions[0].Alternatives) != 2 || len(decisions[0].Tags) != 1 {
		t.Errorf("decision lost extracted fields: %+v", decisions[0])
	}
}

func TestAddMessageExtractionFailureIsSoft(t *testing.T) {
	ext := &fakeExtractor{err: errors.New("model unavailable")}
	s, p, agentID, sessID := newFixture(t, ext)
	ctx := context.Background()

	msg, counts, err := p.AddMessage(ctx, agentID, sessID, types.RoleUser, "hello there", nil)
	if err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if counts != (types.ExtractionCounts{}) {
		t.Errorf("counts = %+v, want zero", counts)
	}

	// The message itself is durable regardless.
	if _, err := s.GetMessage(ctx, msg.ID); err != nil {
		t.Errorf("message not persisted: %v", err)
	}
}

func TestAddMessageContextWindow(t *testing.T) {
	ext := &fakeExtractor{result: &extraction.Extraction{}}
	_, p, agentID, sessID := newFixture(t, ext)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		if _, _, err := p.AddMessage(ctx, agentID, sessID, types.RoleUser,
			"message number "+strings.Repeat("x", i+1), nil); err != nil {
			t.Fatalf("AddMessage %d: %v", i, err)
		}
	}
	if len(ext.lastContext) != contextWindow {
		t.Errorf("context window = %d messages, want %d", len(ext.lastContext), contextWindow)
	}
}

func TestAddMessageStoresRepeatedExtractions(t *testing.T) {
	// Extraction output is authoritative: a fact restated in a later message
	// is stored again, not deduplicated away.
	ext := &fakeExtractor{result: &extraction.Extraction{
		Facts: []extraction.CandidateFact{{Content: "the deploy pipeline uses blue-green rollouts"}},
	}}
	s, p, agentID, sessID := newFixture(t, ext)
	ctx := context.Background()

	_, counts, err := p.AddMessage(ctx, agentID, sessID, types.RoleUser, "first mention", nil)
	if err != nil {
		t.Fatalf("first AddMessage: %v", err)
	}
	if counts.Facts != 1 {
		t.Fatalf("first pass stored %d facts, want 1", counts.Facts)
	}

	_, counts, err = p.AddMessage(ctx, agentID, sessID, types.RoleUser, "second mention", nil)
	if err != nil {
		t.Fatalf("second AddMessage: %v", err)
	}
	if counts.Facts != 1 {
		t.Errorf("second pass stored %d facts, want 1", counts.Facts)
	}

	facts, err := s.ListFacts(ctx, agentID, 0)
	if err != nil {
		t.Fatalf("ListFacts: %v", err)
	}
	if len(facts) != 2 {
		t.Errorf("fact table has %d rows, want 2", len(facts))
	}

	// Each copy still gets its own derivation edge.
	derived, err := s.ListEdges(ctx, store.EdgeFilter{AgentID: agentID, Relation: types.RelDerivedFrom})
	if err != nil {
		t.Fatalf("ListEdges: %v", err)
	}
	if len(derived) != 2 {
		t.Errorf("derivation edges = %d, want 2", len(derived))
	}
}

func TestAddMessageRejectsInvalidRole(t *testing.T) {
	_, p, agentID, sessID := newFixture(t, nil)

	_, _, err := p.AddMessage(context.Background(), agentID, sessID, "narrator", "once upon a time", nil)
	if !errors.Is(err, ErrInvalidRole) {
		t.Errorf("invalid role: err = %v, want ErrInvalidRole", err)
	}
}

func TestAddMessageRejectsEndedSession(t *testing.T) {
	s, p, agentID, sessID := newFixture(t, nil)
	ctx := context.Background()

	if err := s.EndSession(ctx, sessID, nil); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if _, _, err := p.AddMessage(ctx, agentID, sessID, types.RoleUser, "too late", nil); !errors.Is(err, store.ErrSessionEnded) {
		t.Errorf("ended session write: err = %v, want ErrSessionEnded", err)
	}
}

func TestAddMessageRejectsForeignSession(t *testing.T) {
	s, p, _, sessID := newFixture(t, nil)
	ctx := context.Background()

	other := &types.Agent{Slug: "other-bot", DisplayName: "Other"}
	if err := s.CreateAgent(ctx, other); err != nil {
		t.Fatalf("create agent: %v", err)
	}
	if _, _, err := p.AddMessage(ctx, other.ID, sessID, types.RoleUser, "not mine", nil); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("foreign session write: err = %v, want ErrNotFound", err)
	}
}

func TestStoreFactDirectRejectsDuplicate(t *testing.T) {
	_, p, agentID, _ := newFixture(t, nil)
	ctx := context.Background()

	f := &types.Fact{AgentID: agentID, Content: "grafana lives at grafana.internal"}
	if err := p.StoreFact(ctx, f); err != nil {
		t.Fatalf("StoreFact: %v", err)
	}
	if len(f.Embedding) == 0 {
		t.Error("direct write not embedded")
	}

	dup := &types.Fact{AgentID: agentID, Content: "grafana lives at grafana.internal"}
	err := p.StoreFact(ctx, dup)
	var conflict *dedup.Conflict
	if !errors.As(err, &conflict) {
		t.Fatalf("duplicate write: err = %v, want *dedup.Conflict", err)
	}
	if conflict.ExistingID != f.ID {
		t.Errorf("conflict points at %q, want %q", conflict.ExistingID, f.ID)
	}
}
