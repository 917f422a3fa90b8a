package recall

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"hexmem/internal/embedding"
	"hexmem/internal/store"
	"hexmem/internal/types"
)

// axisEmbedder maps known phrases onto fixed axes so tests control cosine
// similarity exactly.
type axisEmbedder struct {
	axes map[string][]float32
}

func (a *axisEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	key := strings.ToLower(text)
	if vec, ok := a.axes[key]; ok {
		return vec, nil
	}
	return []float32{0, 0, 1}, nil
}

func (a *axisEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := a.Embed(ctx, t)
		out[i] = v
	}
	return out, nil
}

func (a *axisEmbedder) Dimensions() int { return 3 }
func (a *axisEmbedder) Name() string    { return "test:axis" }

func newFixture(t *testing.T, emb embedding.Engine) (*store.Store, *Planner, string) {
	t.Helper()
	s, err := store.Open(":memory:", store.DefaultOptions(), zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	a := &types.Agent{Slug: "recall-bot", DisplayName: "Recall Bot"}
	if err := s.CreateAgent(context.Background(), a); err != nil {
		t.Fatalf("create agent: %v", err)
	}
	return s, NewPlanner(s, emb, zap.NewNop()), a.ID
}

func TestRecallFusesSignals(t *testing.T) {
	emb := &axisEmbedder{axes: map[string][]float32{
		"rollout strategy": {1, 0, 0},
	}}
	s, p, agentID := newFixture(t, emb)
	ctx := context.Background()

	// Semantically aligned and lexically overlapping with the query.
	strong := &types.Fact{AgentID: agentID, Content: "rollout strategy is blue-green", Embedding: []float32{1, 0, 0}}
	// Only semantically aligned.
	semOnly := &types.Fact{AgentID: agentID, Content: "canary weights double hourly", Embedding: []float32{0.9, 0.1, 0}}
	// Neither arm matches.
	noise := &types.Fact{AgentID: agentID, Content: "lunch is at noon", Embedding: []float32{0, 1, 0}}
	for _, f := range []*types.Fact{strong, semOnly, noise} {
		if err := s.InsertFact(ctx, f); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	resp, err := p.Recall(ctx, Request{AgentID: agentID, Query: "rollout strategy"})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if resp.Total < 2 {
		t.Fatalf("total = %d, want >= 2", resp.Total)
	}
	if resp.Results[0].ID != strong.ID {
		t.Errorf("top result = %q, want the dual-signal fact", resp.Results[0].ID)
	}

	top := resp.Results[0]
	if top.Signals.Semantic == nil || top.Signals.Keyword == nil || top.Signals.Recency == nil {
		t.Fatalf("top result missing signals: %+v", top.Signals)
	}
	wantScore := WeightSemantic**top.Signals.Semantic +
		WeightKeyword**top.Signals.Keyword +
		WeightRecency**top.Signals.Recency
	if math.Abs(top.Score-wantScore) > 1e-9 {
		t.Errorf("score = %v, want %v from its own signals", top.Score, wantScore)
	}

	if resp.Weights != (types.RecallWeights{Semantic: 0.7, Keyword: 0.2, Recency: 0.1}) {
		t.Errorf("weights echo = %+v", resp.Weights)
	}
}

func TestRecallLexicalOnlyWithoutEmbedder(t *testing.T) {
	s, p, agentID := newFixture(t, nil)
	ctx := context.Background()

	f := &types.Fact{AgentID: agentID, Content: "rollout strategy is blue-green"}
	if err := s.InsertFact(ctx, f); err != nil {
		t.Fatalf("insert: %v", err)
	}

	resp, err := p.Recall(ctx, Request{AgentID: agentID, Query: "rollout strategy"})
	if err != nil {
		t.Fatalf("Recall without embedder: %v", err)
	}
	if resp.Total != 1 {
		t.Fatalf("total = %d, want 1", resp.Total)
	}
	r := resp.Results[0]
	if r.Signals.Semantic != nil {
		t.Error("semantic signal fired without an embedder")
	}
	if r.Signals.Keyword == nil || r.Signals.Recency == nil {
		t.Errorf("missing lexical/recency signals: %+v", r.Signals)
	}
}

func TestRecallTypeFilter(t *testing.T) {
	s, p, agentID := newFixture(t, nil)
	ctx := context.Background()

	f := &types.Fact{AgentID: agentID, Content: "shared query phrase"}
	if err := s.InsertFact(ctx, f); err != nil {
		t.Fatalf("insert fact: %v", err)
	}
	task := &types.Task{AgentID: agentID, Title: "shared query phrase"}
	if err := s.InsertTask(ctx, task); err != nil {
		t.Fatalf("insert task: %v", err)
	}

	resp, err := p.Recall(ctx, Request{
		AgentID: agentID,
		Query:   "shared query phrase",
		Types:   []types.MemoryType{types.TypeTask},
	})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	for _, r := range resp.Results {
		if r.Type != types.TypeTask {
			t.Errorf("type filter leaked %s row %q", r.Type, r.ID)
		}
	}
	if resp.Total != 1 {
		t.Errorf("total = %d, want 1", resp.Total)
	}
}

func TestRecallExpandsGraphNeighbors(t *testing.T) {
	s, p, agentID := newFixture(t, nil)
	ctx := context.Background()

	fact := &types.Fact{AgentID: agentID, Content: "incident retro findings"}
	if err := s.InsertFact(ctx, fact); err != nil {
		t.Fatalf("insert fact: %v", err)
	}
	dec := &types.Decision{AgentID: agentID, Title: "paging policy", Decision: "page on p1 only"}
	if err := s.InsertDecision(ctx, dec); err != nil {
		t.Fatalf("insert decision: %v", err)
	}
	edge := &types.Edge{
		AgentID:    agentID,
		SourceType: types.TypeFact, SourceID: fact.ID,
		TargetType: types.TypeDecision, TargetID: dec.ID,
		Relation: types.RelLedTo, Weight: 0.8,
	}
	if err := s.UpsertEdge(ctx, edge); err != nil {
		t.Fatalf("upsert edge: %v", err)
	}
	// Dangling edge must be skipped, not fail the expansion.
	dangling := &types.Edge{
		AgentID:    agentID,
		SourceType: types.TypeFact, SourceID: fact.ID,
		TargetType: types.TypeEvent, TargetID: "gone",
		Relation: types.RelCausedBy, Weight: 1,
	}
	if err := s.UpsertEdge(ctx, dangling); err != nil {
		t.Fatalf("upsert dangling edge: %v", err)
	}

	resp, err := p.Recall(ctx, Request{AgentID: agentID, Query: "incident retro findings", Expand: true})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if resp.Total == 0 {
		t.Fatal("no results")
	}
	related := resp.Results[0].Related
	if len(related) != 1 {
		t.Fatalf("related = %d entries, want 1 (dangling edge skipped)", len(related))
	}
	r := related[0]
	if r.ID != dec.ID {
		t.Errorf("related id = %q, want %q", r.ID, dec.ID)
	}
	if r.Score != 0.8 {
		t.Errorf("related score = %v, want the edge weight", r.Score)
	}
	if r.Metadata["relation"] != types.RelLedTo || r.Metadata["direction"] != "outgoing" {
		t.Errorf("related metadata = %v", r.Metadata)
	}
}

func TestRecallWeightOverridesEcho(t *testing.T) {
	s, p, agentID := newFixture(t, nil)
	ctx := context.Background()

	f := &types.Fact{AgentID: agentID, Content: "fastify handles routing"}
	if err := s.InsertFact(ctx, f); err != nil {
		t.Fatalf("insert: %v", err)
	}

	custom := types.RecallWeights{Semantic: 0.3, Keyword: 0.6, Recency: 0.1}
	resp, err := p.Recall(ctx, Request{AgentID: agentID, Query: "fastify", Weights: &custom})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if resp.Weights != custom {
		t.Errorf("weights echo = %+v, want %+v", resp.Weights, custom)
	}
	if resp.Total > 0 {
		r := resp.Results[0]
		want := custom.Keyword**r.Signals.Keyword + custom.Recency**r.Signals.Recency
		if math.Abs(r.Score-want) > 1e-9 {
			t.Errorf("score = %v, want %v under custom weights", r.Score, want)
		}
	}
}

func TestRecallRequiresAgent(t *testing.T) {
	_, p, _ := newFixture(t, nil)
	if _, err := p.Recall(context.Background(), Request{Query: "anything"}); err == nil {
		t.Error("missing agent_id accepted")
	}
}

func TestRecallBumpsAccess(t *testing.T) {
	s, p, agentID := newFixture(t, nil)
	ctx := context.Background()

	f := &types.Fact{AgentID: agentID, Content: "access counted content"}
	if err := s.InsertFact(ctx, f); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if _, err := p.Recall(ctx, Request{AgentID: agentID, Query: "access counted content"}); err != nil {
		t.Fatalf("Recall: %v", err)
	}

	got, err := s.GetFact(ctx, f.ID)
	if err != nil {
		t.Fatalf("GetFact: %v", err)
	}
	if got.AccessCount != 1 {
		t.Errorf("access count = %d, want 1", got.AccessCount)
	}
	if got.LastAccessedAt == nil {
		t.Error("last_accessed_at not stamped")
	}
}

func TestRecallRecencyOrdersTies(t *testing.T) {
	s, p, agentID := newFixture(t, nil)
	ctx := context.Background()

	older := &types.Fact{AgentID: agentID, Content: "release checklist for api"}
	newer := &types.Fact{AgentID: agentID, Content: "release checklist for web"}
	for _, f := range []*types.Fact{older, newer} {
		if err := s.InsertFact(ctx, f); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	// Push one row well into the past.
	past := time.Now().UTC().AddDate(0, 0, -60)
	if _, err := s.DB().ExecContext(ctx,
		"UPDATE facts SET created_at = ? WHERE id = ?", past, older.ID); err != nil {
		t.Fatalf("age row: %v", err)
	}

	resp, err := p.Recall(ctx, Request{AgentID: agentID, Query: "release checklist"})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if resp.Total != 2 {
		t.Fatalf("total = %d, want 2", resp.Total)
	}
	if resp.Results[0].ID != newer.ID {
		t.Error("fresher row did not outrank the stale one")
	}
	oldRec := *resp.Results[1].Signals.Recency
	if oldRec <= 0 || oldRec >= *resp.Results[0].Signals.Recency {
		t.Errorf("recency signals not ordered: old=%v new=%v", oldRec, *resp.Results[0].Signals.Recency)
	}
}

func TestSearchRequiresEmbedder(t *testing.T) {
	_, p, agentID := newFixture(t, nil)

	_, err := p.Search(context.Background(), agentID, "anything", 10, 0, nil)
	if !errors.Is(err, embedding.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestSearchAppliesThreshold(t *testing.T) {
	emb := &axisEmbedder{axes: map[string][]float32{"find similar": {1, 0, 0}}}
	s, p, agentID := newFixture(t, emb)
	ctx := context.Background()

	near := &types.Fact{AgentID: agentID, Content: "near neighbor", Embedding: []float32{0.95, 0.05, 0}}
	far := &types.Fact{AgentID: agentID, Content: "far neighbor", Embedding: []float32{0, 1, 0}}
	for _, f := range []*types.Fact{near, far} {
		if err := s.InsertFact(ctx, f); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	results, err := p.Search(ctx, agentID, "find similar", 10, 0, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != near.ID {
		t.Fatalf("results = %+v, want only the near neighbor", results)
	}
	if results[0].Score <= DirectSearchThreshold {
		t.Errorf("score = %v, not above threshold", results[0].Score)
	}
}

func TestSearchThresholdIsExclusive(t *testing.T) {
	emb := &axisEmbedder{axes: map[string][]float32{"exact match": {1, 0, 0}}}
	s, p, agentID := newFixture(t, emb)
	ctx := context.Background()

	f := &types.Fact{AgentID: agentID, Content: "exact match", Embedding: []float32{1, 0, 0}}
	if err := s.InsertFact(ctx, f); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// Similarity is exactly 1.0; a threshold of 1.0 must exclude it.
	results, err := p.Search(ctx, agentID, "exact match", 10, 1.0, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("tie with the threshold matched anyway: %+v", results)
	}
}
