package store

import (
	"context"
	"fmt"
	"testing"

	"hexmem/internal/types"
)

func TestUpsertEdgeIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := newTestAgent(t, s, "graph-bot")

	e := &types.Edge{
		AgentID:    a.ID,
		SourceType: types.TypeFact,
		SourceID:   "fact-1",
		TargetType: types.TypeSessionMessage,
		TargetID:   "msg-1",
		Relation:   types.RelDerivedFrom,
		Weight:     1.0,
	}
	if err := s.UpsertEdge(ctx, e); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	firstID := e.ID

	// Same tuple with a new weight keeps the row id and updates the weight.
	again := &types.Edge{
		AgentID:    a.ID,
		SourceType: types.TypeFact,
		SourceID:   "fact-1",
		TargetType: types.TypeSessionMessage,
		TargetID:   "msg-1",
		Relation:   types.RelDerivedFrom,
		Weight:     0.5,
	}
	if err := s.UpsertEdge(ctx, again); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if again.ID != firstID {
		t.Errorf("upsert changed edge id: %q -> %q", firstID, again.ID)
	}

	edges, err := s.ListEdges(ctx, EdgeFilter{AgentID: a.ID})
	if err != nil {
		t.Fatalf("ListEdges: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("got %d edges, want 1", len(edges))
	}
	if edges[0].Weight != 0.5 {
		t.Errorf("weight = %v, want 0.5", edges[0].Weight)
	}
}

func TestUpsertEdgeValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bad := []*types.Edge{
		{SourceType: types.TypeFact, TargetType: types.TypeFact, TargetID: "b", Relation: types.RelRelatesTo},
		{SourceType: types.TypeFact, SourceID: "a", TargetType: types.TypeFact, TargetID: "b"},
		{SourceType: types.TypeFact, SourceID: "a", TargetType: types.TypeFact, TargetID: "b", Relation: types.RelRelatesTo, Weight: -1},
	}
	for i, e := range bad {
		if err := s.UpsertEdge(ctx, e); err == nil {
			t.Errorf("case %d: invalid edge accepted", i)
		}
	}
}

func TestNodeEdges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := newTestAgent(t, s, "graph-bot")

	mk := func(srcID, dstID, rel string) {
		t.Helper()
		e := &types.Edge{
			AgentID:    a.ID,
			SourceType: types.TypeFact, SourceID: srcID,
			TargetType: types.TypeFact, TargetID: dstID,
			Relation: rel, Weight: 1,
		}
		if err := s.UpsertEdge(ctx, e); err != nil {
			t.Fatalf("upsert %s-%s: %v", srcID, dstID, err)
		}
	}
	mk("hub", "spoke-1", types.RelRelatesTo)
	mk("hub", "spoke-2", types.RelSupersedes)
	mk("spoke-3", "hub", types.RelDependsOn)

	out, in, err := s.NodeEdges(ctx, a.ID, types.TypeFact, "hub")
	if err != nil {
		t.Fatalf("NodeEdges: %v", err)
	}
	if len(out) != 2 {
		t.Errorf("outgoing = %d, want 2", len(out))
	}
	if len(in) != 1 {
		t.Errorf("incoming = %d, want 1", len(in))
	}
}

func TestListEdgesRelationFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := newTestAgent(t, s, "graph-bot")

	for i, rel := range []string{types.RelDerivedFrom, types.RelDecidedIn, types.RelDerivedFrom} {
		e := &types.Edge{
			AgentID:    a.ID,
			SourceType: types.TypeFact, SourceID: fmt.Sprintf("src-%d", i),
			TargetType: types.TypeSessionMessage, TargetID: "dst",
			Relation: rel, Weight: 1,
		}
		if err := s.UpsertEdge(ctx, e); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	derived, err := s.ListEdges(ctx, EdgeFilter{AgentID: a.ID, Relation: types.RelDerivedFrom})
	if err != nil {
		t.Fatalf("ListEdges: %v", err)
	}
	if len(derived) != 2 {
		t.Errorf("derived_from edges = %d, want 2", len(derived))
	}
}
