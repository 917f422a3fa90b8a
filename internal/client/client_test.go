package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakeAPI records the last request and serves a canned response.
type fakeAPI struct {
	lastMethod string
	lastPath   string
	lastAuth   string
	lastBody   map[string]interface{}

	status int
	body   string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.lastMethod = r.Method
	f.lastPath = r.URL.RequestURI()
	f.lastAuth = r.Header.Get("Authorization")
	f.lastBody = nil
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&f.lastBody)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.status)
	_, _ = w.Write([]byte(f.body))
}

func newFake(t *testing.T, status int, body string) (*fakeAPI, *Client) {
	t.Helper()
	api := &fakeAPI{status: status, body: body}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return api, New(srv.URL, "hm_test_key")
}

func TestClientSendsBearerToken(t *testing.T) {
	api, c := newFake(t, http.StatusOK, `{"agents":[],"total":0}`)

	if _, err := c.ListAgents(context.Background()); err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	if api.lastAuth != "Bearer hm_test_key" {
		t.Errorf("auth header = %q, want bearer token", api.lastAuth)
	}
	if api.lastMethod != http.MethodGet || api.lastPath != "/api/v1/agents" {
		t.Errorf("request = %s %s", api.lastMethod, api.lastPath)
	}
}

func TestClientDecodesAPIErrors(t *testing.T) {
	_, c := newFake(t, http.StatusConflict,
		`{"error":"duplicate memory detected","existing_id":"abc-123","similarity":0.97}`)

	_, err := c.StoreFact(context.Background(), "agent", "some fact", nil)
	if err == nil {
		t.Fatal("expected error for 409 response")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", apiErr.StatusCode)
	}
	if apiErr.Message != "duplicate memory detected" {
		t.Errorf("message = %q", apiErr.Message)
	}
	if apiErr.ExistingID != "abc-123" {
		t.Errorf("existing_id = %q, want abc-123", apiErr.ExistingID)
	}
}

func TestRecallOptionsShapeRequestBody(t *testing.T) {
	api, c := newFake(t, http.StatusOK, `{"results":[],"total":0,"query":"q","weights":{}}`)

	sw, kw, rw := 0.5, 0.4, 0.1
	_, err := c.Recall(context.Background(), "agent-1", "deploy history", RecallOptions{
		Limit:          5,
		Types:          []string{"fact", "event"},
		NoRelated:      true,
		SemanticWeight: &sw,
		KeywordWeight:  &kw,
		RecencyWeight:  &rw,
	})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}

	if api.lastBody["agent_id"] != "agent-1" {
		t.Errorf("agent_id = %v", api.lastBody["agent_id"])
	}
	if api.lastBody["include_related"] != false {
		t.Errorf("include_related = %v, want false", api.lastBody["include_related"])
	}
	if api.lastBody["semantic_weight"] != 0.5 {
		t.Errorf("semantic_weight = %v", api.lastBody["semantic_weight"])
	}
	if got := api.lastBody["limit"]; got != float64(5) {
		t.Errorf("limit = %v", got)
	}
}

func TestSweepScopesToAgent(t *testing.T) {
	api, c := newFake(t, http.StatusOK,
		`{"transitioned_to_cooling":2,"transitioned_to_archived":1,"immune_items":4}`)

	stats, err := c.Sweep(context.Background(), "deploy-bot")
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if api.lastBody["agent_id"] != "deploy-bot" {
		t.Errorf("agent_id = %v", api.lastBody["agent_id"])
	}
	if stats.TransitionedToCooling != 2 || stats.ImmuneItems != 4 {
		t.Errorf("stats = %+v", stats)
	}
}
