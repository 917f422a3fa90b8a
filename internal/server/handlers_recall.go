package server

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"hexmem/internal/recall"
	"hexmem/internal/store"
	"hexmem/internal/types"
)

// =============================================================================
// SEARCH AND RECALL HANDLERS
// =============================================================================

type searchRequest struct {
	AgentID   string   `json:"agent_id"`
	Query     string   `json:"query"`
	Limit     int      `json:"limit"`
	Threshold float64  `json:"threshold"`
	Types     []string `json:"types"`
}

// handleSearch is the direct vector search path. It requires a configured
// embedder and returns 503 without one.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Query == "" {
		s.writeError(w, r, badRequest("query is required"))
		return
	}
	agentID, err := s.resolveAgent(r.Context(), req.AgentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	filter, err := parseTypeFilter(req.Types)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	results, err := s.planner.Search(r.Context(), agentID, req.Query, req.Limit, req.Threshold, filter)
	status := http.StatusOK
	if err != nil {
		status = statusFor(classify(err))
	}
	s.logQuery(r, "search", agentID, req.Query, started, status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"total":   len(results),
		"query":   req.Query,
	})
}

type recallRequest struct {
	AgentID        string   `json:"agent_id"`
	Query          string   `json:"query"`
	Limit          int      `json:"limit"`
	Types          []string `json:"types"`
	IncludeRelated *bool    `json:"include_related"`
	SemanticWeight *float64 `json:"semantic_weight"`
	KeywordWeight  *float64 `json:"keyword_weight"`
	RecencyWeight  *float64 `json:"recency_weight"`
}

// handleRecall runs the hybrid recall plan. Graph expansion defaults on;
// weight overrides apply only when all three are provided.
func (s *Server) handleRecall(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var req recallRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Query == "" {
		s.writeError(w, r, badRequest("query is required"))
		return
	}
	agentID, err := s.resolveAgent(r.Context(), req.AgentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	filter, err := parseTypeFilter(req.Types)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	plan := recall.Request{
		AgentID: agentID,
		Query:   req.Query,
		Limit:   req.Limit,
		Types:   filter,
		Expand:  req.IncludeRelated == nil || *req.IncludeRelated,
	}
	if req.SemanticWeight != nil || req.KeywordWeight != nil || req.RecencyWeight != nil {
		if req.SemanticWeight == nil || req.KeywordWeight == nil || req.RecencyWeight == nil {
			s.writeError(w, r, badRequest("weight overrides require semantic_weight, keyword_weight, and recency_weight together"))
			return
		}
		if *req.SemanticWeight < 0 || *req.KeywordWeight < 0 || *req.RecencyWeight < 0 {
			s.writeError(w, r, badRequest("weights must be non-negative"))
			return
		}
		plan.Weights = &types.RecallWeights{
			Semantic: *req.SemanticWeight,
			Keyword:  *req.KeywordWeight,
			Recency:  *req.RecencyWeight,
		}
	}

	resp, err := s.planner.Recall(r.Context(), plan)
	status := http.StatusOK
	if err != nil {
		status = statusFor(classify(err))
	}
	s.logQuery(r, "recall", agentID, req.Query, started, status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// parseTypeFilter validates a type whitelist against the recallable set.
func parseTypeFilter(raw []string) ([]types.MemoryType, error) {
	var filter []types.MemoryType
	for _, t := range raw {
		mt := types.MemoryType(t)
		if !types.IsRecallable(mt) {
			return nil, badRequest("unknown memory type %q", t)
		}
		filter = append(filter, mt)
	}
	return filter, nil
}

// logQuery records a search/recall request in the analytics log. Failures are
// logged and swallowed; analytics never fail a request.
func (s *Server) logQuery(r *http.Request, endpoint, agentID, query string, started time.Time, status int) {
	entry := &store.QueryLogEntry{
		Endpoint:  endpoint,
		QueryText: &query,
		LatencyMS: time.Since(started).Milliseconds(),
		Metadata: map[string]interface{}{
			"method":      r.Method,
			"status_code": status,
		},
	}
	if agentID != "" {
		entry.AgentID = &agentID
	}
	if err := s.store.AppendQueryLog(r.Context(), entry); err != nil {
		s.log.Warn("query log append failed", zap.Error(err))
	}
}
