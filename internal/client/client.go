// Package client is a thin HTTP client for the hexmem API, used by the CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hexmem/internal/store"
	"hexmem/internal/types"
)

// APIError is a non-2xx response decoded from the server's error body.
type APIError struct {
	StatusCode int
	Message    string
	ExistingID string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to one hexmem server with one bearer key.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// do issues one request and decodes the JSON response into out (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(data)}
		var parsed struct {
			Error      string `json:"error"`
			ExistingID string `json:"existing_id"`
		}
		if json.Unmarshal(data, &parsed) == nil && parsed.Error != "" {
			apiErr.Message = parsed.Error
			apiErr.ExistingID = parsed.ExistingID
		}
		return apiErr
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// Health reports server liveness.
func (c *Client) Health(ctx context.Context) (map[string]interface{}, error) {
	var out map[string]interface{}
	err := c.do(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

// ====== agents ======

func (c *Client) CreateAgent(ctx context.Context, slug, displayName, description string) (*types.Agent, error) {
	var out types.Agent
	err := c.do(ctx, http.MethodPost, "/api/v1/agents", map[string]interface{}{
		"slug":         slug,
		"display_name": displayName,
		"description":  description,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListAgents(ctx context.Context) ([]*types.Agent, error) {
	var out struct {
		Agents []*types.Agent `json:"agents"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/agents", nil, &out)
	return out.Agents, err
}

// AgentDetail is one agent plus its memory counts.
type AgentDetail struct {
	Agent  *types.Agent   `json:"agent"`
	Counts map[string]int `json:"counts"`
}

func (c *Client) GetAgent(ctx context.Context, idOrSlug string) (*AgentDetail, error) {
	var out AgentDetail
	err := c.do(ctx, http.MethodGet, "/api/v1/agents/"+url.PathEscape(idOrSlug), nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ====== sessions ======

func (c *Client) CreateSession(ctx context.Context, agent, externalID string) (*types.Session, error) {
	var out types.Session
	err := c.do(ctx, http.MethodPost, "/api/v1/sessions", map[string]interface{}{
		"agent_id":    agent,
		"external_id": externalID,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListSessions(ctx context.Context, agent string) ([]*types.Session, error) {
	var out struct {
		Sessions []*types.Session `json:"sessions"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/sessions?agent_id="+url.QueryEscape(agent), nil, &out)
	return out.Sessions, err
}

// IngestResult is the message plus what extraction produced from it.
type IngestResult struct {
	Message   *types.SessionMessage  `json:"message"`
	Extracted types.ExtractionCounts `json:"extracted"`
}

func (c *Client) AddMessage(ctx context.Context, sessionID, role, content string) (*IngestResult, error) {
	var out IngestResult
	err := c.do(ctx, http.MethodPost, "/api/v1/sessions/"+url.PathEscape(sessionID)+"/messages",
		map[string]interface{}{"role": role, "content": content}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) EndSession(ctx context.Context, sessionID string) (*types.Session, error) {
	var out types.Session
	err := c.do(ctx, http.MethodPost, "/api/v1/sessions/"+url.PathEscape(sessionID)+"/end", nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ====== memory writes ======

func (c *Client) StoreFact(ctx context.Context, agent, content string, tags []string) (*types.Fact, error) {
	var out types.Fact
	err := c.do(ctx, http.MethodPost, "/api/v1/facts", map[string]interface{}{
		"agent_id": agent,
		"content":  content,
		"tags":     tags,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) StoreTask(ctx context.Context, agent, title, description string, priority int, tags []string) (*types.Task, error) {
	body := map[string]interface{}{
		"agent_id": agent,
		"title":    title,
		"priority": priority,
		"tags":     tags,
	}
	if description != "" {
		body["description"] = description
	}
	var out types.Task
	if err := c.do(ctx, http.MethodPost, "/api/v1/tasks", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) StoreDecision(ctx context.Context, agent, title, decision, rationale string, tags []string) (*types.Decision, error) {
	body := map[string]interface{}{
		"agent_id": agent,
		"title":    title,
		"decision": decision,
		"tags":     tags,
	}
	if rationale != "" {
		body["rationale"] = rationale
	}
	var out types.Decision
	if err := c.do(ctx, http.MethodPost, "/api/v1/decisions", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) StoreEvent(ctx context.Context, agent, title, eventType, description, severity string, tags []string) (*types.Event, error) {
	body := map[string]interface{}{
		"agent_id":   agent,
		"title":      title,
		"event_type": eventType,
		"tags":       tags,
	}
	if description != "" {
		body["description"] = description
	}
	if severity != "" {
		body["severity"] = severity
	}
	var out types.Event
	if err := c.do(ctx, http.MethodPost, "/api/v1/events", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ====== retrieval ======

// SearchResponse is the direct vector search payload.
type SearchResponse struct {
	Results []types.RecallResult `json:"results"`
	Total   int                  `json:"total"`
	Query   string               `json:"query"`
}

func (c *Client) Search(ctx context.Context, agent, query string, limit int, threshold float64, memTypes []string) (*SearchResponse, error) {
	var out SearchResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/search", map[string]interface{}{
		"agent_id":  agent,
		"query":     query,
		"limit":     limit,
		"threshold": threshold,
		"types":     memTypes,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RecallOptions tunes one recall request. Zero-valued fields take server
// defaults.
type RecallOptions struct {
	Limit          int
	Types          []string
	NoRelated      bool
	SemanticWeight *float64
	KeywordWeight  *float64
	RecencyWeight  *float64
}

func (c *Client) Recall(ctx context.Context, agent, query string, opts RecallOptions) (*types.RecallResponse, error) {
	body := map[string]interface{}{
		"agent_id": agent,
		"query":    query,
	}
	if opts.Limit > 0 {
		body["limit"] = opts.Limit
	}
	if len(opts.Types) > 0 {
		body["types"] = opts.Types
	}
	if opts.NoRelated {
		body["include_related"] = false
	}
	if opts.SemanticWeight != nil {
		body["semantic_weight"] = *opts.SemanticWeight
		body["keyword_weight"] = *opts.KeywordWeight
		body["recency_weight"] = *opts.RecencyWeight
	}
	var out types.RecallResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/recall", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ====== decay and analytics ======

// DecayStatus is the per-table lifecycle report.
type DecayStatus struct {
	Counts   map[string]map[string]int `json:"counts"`
	Policies []*types.DecayPolicy      `json:"policies"`
}

func (c *Client) DecayStatus(ctx context.Context, agent string) (*DecayStatus, error) {
	path := "/api/v1/decay/status"
	if agent != "" {
		path += "?agent_id=" + url.QueryEscape(agent)
	}
	var out DecayStatus
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SweepStats mirrors the server's sweep report.
type SweepStats struct {
	TransitionedToCooling  int64 `json:"transitioned_to_cooling"`
	TransitionedToArchived int64 `json:"transitioned_to_archived"`
	ImmuneItems            int64 `json:"immune_items"`
}

func (c *Client) Sweep(ctx context.Context, agent string) (*SweepStats, error) {
	var body interface{}
	if agent != "" {
		body = map[string]interface{}{"agent_id": agent}
	}
	var out SweepStats
	if err := c.do(ctx, http.MethodPost, "/api/v1/decay/sweep", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) QueryStats(ctx context.Context, agent string) (*store.QueryLogSummary, error) {
	path := "/api/v1/analytics/queries"
	if agent != "" {
		path += "?agent_id=" + url.QueryEscape(agent)
	}
	var out store.QueryLogSummary
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
