package server

import (
	"context"
	"net/http"
	"strings"
)

// Permission names carried by API keys.
const (
	PermRead  = "read"
	PermWrite = "write"
	PermAdmin = "admin"
)

type principalKey struct{}

// principal is the authenticated caller attached to the request context.
type principal struct {
	Name        string
	AgentID     *string
	Permissions []string
}

func (p *principal) has(perm string) bool {
	for _, got := range p.Permissions {
		if got == perm || got == PermAdmin {
			return true
		}
	}
	return false
}

// authenticate resolves the bearer token against the configured development
// key first, then persisted API keys.
func (s *Server) authenticate(r *http.Request) (*principal, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, unauthenticated("missing authorization header")
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil, unauthenticated("authorization header must be a bearer token")
	}

	if s.cfg.Auth.DevKey != "" && token == s.cfg.Auth.DevKey {
		return &principal{
			Name:        "dev",
			Permissions: []string{PermRead, PermWrite, PermAdmin},
		}, nil
	}

	key, err := s.store.LookupAPIKey(r.Context(), token)
	if err != nil {
		return nil, unauthenticated("invalid api key")
	}
	return &principal{
		Name:        key.Name,
		AgentID:     key.AgentID,
		Permissions: key.Permissions,
	}, nil
}

// requireAuth wraps a handler with bearer auth and a permission check.
func (s *Server) requireAuth(perm string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.authenticate(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if !p.has(perm) {
			s.writeError(w, r, forbidden("key lacks the "+perm+" permission"))
			return
		}
		ctx := context.WithValue(r.Context(), principalKey{}, p)
		next(w, r.WithContext(ctx))
	}
}

// caller returns the authenticated principal, if any.
func caller(ctx context.Context) *principal {
	p, _ := ctx.Value(principalKey{}).(*principal)
	return p
}

// resolveAgent turns a UUID or slug into an agent id.
func (s *Server) resolveAgent(ctx context.Context, idOrSlug string) (string, error) {
	if idOrSlug == "" {
		return "", badRequest("agent_id is required")
	}
	return s.store.ResolveAgentID(ctx, idOrSlug)
}
