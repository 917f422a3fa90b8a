package server

import (
	"net/http"

	"hexmem/internal/store"
	"hexmem/internal/types"
)

// =============================================================================
// EDGE GRAPH HANDLERS
// =============================================================================

type upsertEdgeRequest struct {
	AgentID    string                 `json:"agent_id"`
	SourceType string                 `json:"source_type"`
	SourceID   string                 `json:"source_id"`
	TargetType string                 `json:"target_type"`
	TargetID   string                 `json:"target_id"`
	Relation   string                 `json:"relation"`
	Weight     *float64               `json:"weight"`
	Metadata   map[string]interface{} `json:"metadata"`
}

// handleUpsertEdge creates or refreshes an edge. Repeating the same
// (source, target, relation) tuple updates weight and metadata in place.
func (s *Server) handleUpsertEdge(w http.ResponseWriter, r *http.Request) {
	var req upsertEdgeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if !types.ValidRelation(req.Relation) {
		s.writeError(w, r, badRequest("unknown relation %q", req.Relation))
		return
	}
	for _, t := range []string{req.SourceType, req.TargetType} {
		if !types.IsRecallable(types.MemoryType(t)) && types.MemoryType(t) != types.TypeProject {
			s.writeError(w, r, badRequest("unknown node type %q", t))
			return
		}
	}
	agentID, err := s.resolveAgent(r.Context(), req.AgentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	edge := &types.Edge{
		AgentID:    agentID,
		SourceType: types.MemoryType(req.SourceType),
		SourceID:   req.SourceID,
		TargetType: types.MemoryType(req.TargetType),
		TargetID:   req.TargetID,
		Relation:   req.Relation,
		Metadata:   req.Metadata,
	}
	if req.Weight != nil {
		edge.Weight = *req.Weight
	}
	if err := s.store.UpsertEdge(r.Context(), edge); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, edge)
}

func (s *Server) handleListEdges(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.EdgeFilter{
		SourceType: types.MemoryType(q.Get("source_type")),
		SourceID:   q.Get("source_id"),
		TargetType: types.MemoryType(q.Get("target_type")),
		TargetID:   q.Get("target_id"),
		Relation:   q.Get("relation"),
		Limit:      queryInt(r, "limit", 0),
	}
	if raw := q.Get("agent_id"); raw != "" {
		agentID, err := s.resolveAgent(r.Context(), raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		filter.AgentID = agentID
	}

	edges, err := s.store.ListEdges(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"edges": edges,
		"total": len(edges),
	})
}

// handleNodeGraph returns a node's summary plus its outgoing and incoming
// edges in one shot.
func (s *Server) handleNodeGraph(w http.ResponseWriter, r *http.Request) {
	nodeType := types.MemoryType(r.PathValue("type"))
	if !types.IsRecallable(nodeType) {
		s.writeError(w, r, badRequest("unknown node type %q", r.PathValue("type")))
		return
	}
	nodeID := r.PathValue("id")

	node, err := s.store.GetNodeSummary(r.Context(), nodeType, nodeID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	agentID := ""
	if raw := r.URL.Query().Get("agent_id"); raw != "" {
		agentID, err = s.resolveAgent(r.Context(), raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	outgoing, incoming, err := s.store.NodeEdges(r.Context(), agentID, nodeType, nodeID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"node": map[string]interface{}{
			"id":         node.ID,
			"type":       node.Type,
			"content":    node.Content,
			"created_at": node.CreatedAt,
		},
		"outgoing": outgoing,
		"incoming": incoming,
		"total":    len(outgoing) + len(incoming),
	})
}

func (s *Server) handleDeleteEdge(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteEdge(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
