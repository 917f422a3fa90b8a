package server

import (
	"net/http"

	"hexmem/internal/store"
	"hexmem/internal/types"
)

// =============================================================================
// AGENT HANDLERS
// =============================================================================

type createAgentRequest struct {
	Slug        string                 `json:"slug"`
	DisplayName string                 `json:"display_name"`
	Description string                 `json:"description"`
	CoreMemory  map[string]interface{} `json:"core_memory"`
	Config      map[string]interface{} `json:"config"`
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Slug == "" {
		s.writeError(w, r, badRequest("slug is required"))
		return
	}
	if !types.ValidSlug(req.Slug) {
		s.writeError(w, r, badRequest("invalid slug %q: must be lowercase alphanumeric with hyphens", req.Slug))
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Slug
	}

	agent := &types.Agent{
		Slug:        req.Slug,
		DisplayName: req.DisplayName,
		Description: req.Description,
		CoreMemory:  req.CoreMemory,
		Config:      req.Config,
	}
	if err := s.store.CreateAgent(r.Context(), agent); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, agent)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.store.ListAgents(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"agents": agents,
		"total":  len(agents),
	})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.store.GetAgent(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	counts, err := s.store.AgentCounts(r.Context(), agent.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent":  agent,
		"counts": counts,
	})
}

type updateAgentRequest struct {
	DisplayName *string                `json:"display_name"`
	Description *string                `json:"description"`
	Config      map[string]interface{} `json:"config"`
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var req updateAgentRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	agent, err := s.store.UpdateAgent(r.Context(), r.PathValue("id"), store.AgentUpdate{
		DisplayName: req.DisplayName,
		Description: req.Description,
		Config:      req.Config,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, agent)
}

// handlePatchCoreMemory applies an RFC 7396 merge patch to the agent's core
// memory block and returns the merged document.
func (s *Server) handlePatchCoreMemory(w http.ResponseWriter, r *http.Request) {
	var patch map[string]interface{}
	if err := decodeJSON(r, &patch); err != nil {
		s.writeError(w, r, err)
		return
	}
	merged, err := s.store.PatchCoreMemory(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"core_memory": merged})
}
