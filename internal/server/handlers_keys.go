package server

import (
	"net/http"
	"time"
)

// =============================================================================
// API KEY HANDLERS
// =============================================================================

type createKeyRequest struct {
	Name        string     `json:"name"`
	AgentID     *string    `json:"agent_id"`
	Permissions []string   `json:"permissions"`
	RateLimit   int        `json:"rate_limit"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

// handleCreateKey mints a new API key. The raw key appears once in this
// response and is never recoverable afterwards.
func (s *Server) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Name == "" {
		s.writeError(w, r, badRequest("name is required"))
		return
	}
	for _, p := range req.Permissions {
		if p != PermRead && p != PermWrite && p != PermAdmin {
			s.writeError(w, r, badRequest("unknown permission %q", p))
			return
		}
	}
	if req.AgentID != nil {
		id, err := s.resolveAgent(r.Context(), *req.AgentID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		req.AgentID = &id
	}

	key, raw, err := s.store.CreateAPIKey(r.Context(), req.Name, req.AgentID, req.Permissions, req.RateLimit, req.ExpiresAt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"key":     key,
		"raw_key": raw,
	})
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.store.ListAPIKeys(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"keys":  keys,
		"total": len(keys),
	})
}

func (s *Server) handleRevokeKey(w http.ResponseWriter, r *http.Request) {
	if err := s.store.RevokeAPIKey(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
