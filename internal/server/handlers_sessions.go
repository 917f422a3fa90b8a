package server

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// =============================================================================
// SESSION HANDLERS
// =============================================================================

type createSessionRequest struct {
	AgentID    string                 `json:"agent_id"`
	ExternalID string                 `json:"external_id"`
	Metadata   map[string]interface{} `json:"metadata"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	agentID, err := s.resolveAgent(r.Context(), req.AgentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.store.CreateSession(r.Context(), agentID, req.ExternalID, req.Metadata)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	agentID, err := s.resolveAgent(r.Context(), r.URL.Query().Get("agent_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sessions, err := s.store.ListSessions(r.Context(), agentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

type addMessageRequest struct {
	Role     string                 `json:"role"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
}

// handleAddMessage is the ingestion hot path: persist the message, then run
// the best-effort extraction pass and report what it produced.
func (s *Server) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	var req addMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Content == "" {
		s.writeError(w, r, badRequest("content is required"))
		return
	}

	sessionID := r.PathValue("id")
	sess, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	msg, counts, err := s.pipeline.AddMessage(r.Context(), sess.AgentID, sessionID, req.Role, req.Content, req.Metadata)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":   msg,
		"extracted": counts,
	})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	msgs, err := s.store.ListMessages(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"messages": msgs,
		"total":    len(msgs),
	})
}

// handleEndSession closes a session. When a summarizer is configured the
// transcript is summarized best-effort; a summarization failure still ends the
// session.
func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var summary *string
	if s.summarizer != nil {
		msgs, err := s.store.ListMessages(r.Context(), sessionID, 0)
		if err == nil && len(msgs) > 0 {
			text, err := s.summarizer.Summarize(r.Context(), msgs)
			if err != nil {
				s.log.Warn("session summarization failed", zap.String("session_id", sessionID), zap.Error(err))
			} else if text != "" {
				summary = &text
			}
		}
	}

	if err := s.store.EndSession(r.Context(), sessionID, summary); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

// queryInt parses an integer query parameter, falling back on absence or junk.
func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
