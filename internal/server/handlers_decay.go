package server

import (
	"net/http"

	"hexmem/internal/types"
)

// =============================================================================
// DECAY AND ANALYTICS HANDLERS
// =============================================================================

// handleDecayStatus reports per-table decay state counts and the effective
// policies, optionally scoped to one agent.
func (s *Server) handleDecayStatus(w http.ResponseWriter, r *http.Request) {
	agentID := ""
	if raw := r.URL.Query().Get("agent_id"); raw != "" {
		id, err := s.resolveAgent(r.Context(), raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		agentID = id
	}

	counts, err := s.store.DecayStatusCounts(r.Context(), agentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	policies, err := s.store.ListPolicies(r.Context(), agentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"counts":   counts,
		"policies": policies,
	})
}

type sweepRequest struct {
	AgentID string `json:"agent_id"`
}

// handleDecaySweep triggers a synchronous decay pass, optionally scoped to
// one agent.
func (s *Server) handleDecaySweep(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	agentID := ""
	if req.AgentID != "" {
		id, err := s.resolveAgent(r.Context(), req.AgentID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		agentID = id
	}

	stats, err := s.decay.Sweep(r.Context(), agentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

type setPolicyRequest struct {
	AgentID     *string  `json:"agent_id"`
	MemoryType  string   `json:"memory_type"`
	TTLDays     *int     `json:"ttl_days"`
	MinAccesses *int     `json:"min_accesses"`
	AccessBoost *float64 `json:"access_boost"`
}

// handleSetPolicy upserts a decay policy. A null agent_id targets the global
// default for the type.
func (s *Server) handleSetPolicy(w http.ResponseWriter, r *http.Request) {
	var req setPolicyRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	t := types.MemoryType(req.MemoryType)
	if !types.IsRecallable(t) {
		s.writeError(w, r, badRequest("unknown memory type %q", req.MemoryType))
		return
	}
	if req.TTLDays != nil && *req.TTLDays <= 0 {
		s.writeError(w, r, badRequest("ttl_days must be positive; omit it to disable decay"))
		return
	}
	if req.AccessBoost != nil && *req.AccessBoost <= 0 {
		s.writeError(w, r, badRequest("access_boost must be positive"))
		return
	}
	if req.AgentID != nil {
		id, err := s.resolveAgent(r.Context(), *req.AgentID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		req.AgentID = &id
	}

	p := &types.DecayPolicy{
		AgentID:    req.AgentID,
		MemoryType: t,
		TTLDays:    req.TTLDays,
	}
	p.MinAccesses = 3
	if req.MinAccesses != nil {
		p.MinAccesses = *req.MinAccesses
	}
	p.AccessBoost = 1.5
	if req.AccessBoost != nil {
		p.AccessBoost = *req.AccessBoost
	}
	if err := s.store.SetPolicy(r.Context(), p); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

// handleAnalytics summarizes the query log.
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	agentID := ""
	if raw := r.URL.Query().Get("agent_id"); raw != "" {
		id, err := s.resolveAgent(r.Context(), raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		agentID = id
	}
	stats, err := s.store.QueryLogStats(r.Context(), agentID, queryInt(r, "limit", 0))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}
