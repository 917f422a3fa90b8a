// Package server exposes the memory service over HTTP+JSON with bearer
// authentication, and owns the background lifecycle tasks (decay sweeps and
// analytics pruning).
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"hexmem/internal/config"
	"hexmem/internal/decay"
	"hexmem/internal/embedding"
	"hexmem/internal/extraction"
	"hexmem/internal/ingest"
	"hexmem/internal/recall"
	"hexmem/internal/store"
)

// analyticsRetention is how long query_log rows are kept.
const analyticsRetention = 30 * 24 * time.Hour

// Server wires the store, capabilities, and handlers together.
type Server struct {
	cfg        *config.Config
	store      *store.Store
	embedder   embedding.Engine
	planner    *recall.Planner
	pipeline   *ingest.Pipeline
	decay      *decay.Engine
	summarizer extraction.Summarizer
	log        *zap.Logger
	httpServer *http.Server
}

// New assembles a server from its parts. Embedder, extractor, and summarizer
// may each be nil; the affected paths degrade per their contracts.
func New(cfg *config.Config, s *store.Store, emb embedding.Engine, ext extraction.Extractor, sum extraction.Summarizer, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	srv := &Server{
		cfg:        cfg,
		store:      s,
		embedder:   emb,
		planner:    recall.NewPlanner(s, emb, log),
		pipeline:   ingest.New(s, emb, ext, log),
		decay:      decay.NewEngine(s, log),
		summarizer: sum,
		log:        log,
	}
	srv.httpServer = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return srv
}

// routes builds the method+path mux. /health is the only unauthenticated
// endpoint.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	// Agents.
	mux.HandleFunc("POST /api/v1/agents", s.requireAuth(PermWrite, s.handleCreateAgent))
	mux.HandleFunc("GET /api/v1/agents", s.requireAuth(PermRead, s.handleListAgents))
	mux.HandleFunc("GET /api/v1/agents/{id}", s.requireAuth(PermRead, s.handleGetAgent))
	mux.HandleFunc("PATCH /api/v1/agents/{id}", s.requireAuth(PermWrite, s.handleUpdateAgent))
	mux.HandleFunc("PATCH /api/v1/agents/{id}/core-memory", s.requireAuth(PermWrite, s.handlePatchCoreMemory))

	// API keys.
	mux.HandleFunc("POST /api/v1/keys", s.requireAuth(PermAdmin, s.handleCreateKey))
	mux.HandleFunc("GET /api/v1/keys", s.requireAuth(PermAdmin, s.handleListKeys))
	mux.HandleFunc("DELETE /api/v1/keys/{id}", s.requireAuth(PermAdmin, s.handleRevokeKey))

	// Sessions and the ingestion hot path.
	mux.HandleFunc("POST /api/v1/sessions", s.requireAuth(PermWrite, s.handleCreateSession))
	mux.HandleFunc("GET /api/v1/sessions", s.requireAuth(PermRead, s.handleListSessions))
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.requireAuth(PermRead, s.handleGetSession))
	mux.HandleFunc("POST /api/v1/sessions/{id}/messages", s.requireAuth(PermWrite, s.handleAddMessage))
	mux.HandleFunc("GET /api/v1/sessions/{id}/messages", s.requireAuth(PermRead, s.handleListMessages))
	mux.HandleFunc("POST /api/v1/sessions/{id}/end", s.requireAuth(PermWrite, s.handleEndSession))

	// Direct memory CRUD.
	for _, res := range []string{"facts", "decisions", "tasks", "events", "projects"} {
		res := res
		mux.HandleFunc("POST /api/v1/"+res, s.requireAuth(PermWrite, s.memoryCreateHandler(res)))
		mux.HandleFunc("GET /api/v1/"+res, s.requireAuth(PermRead, s.memoryListHandler(res)))
		mux.HandleFunc("GET /api/v1/"+res+"/{id}", s.requireAuth(PermRead, s.memoryGetHandler(res)))
		mux.HandleFunc("PUT /api/v1/"+res+"/{id}", s.requireAuth(PermWrite, s.memoryUpdateHandler(res)))
		mux.HandleFunc("DELETE /api/v1/"+res+"/{id}", s.requireAuth(PermWrite, s.memoryDeleteHandler(res)))
	}
	mux.HandleFunc("POST /api/v1/{resource}/{id}/revive", s.requireAuth(PermWrite, s.handleRevive))

	// Retrieval.
	mux.HandleFunc("POST /api/v1/search", s.requireAuth(PermRead, s.handleSearch))
	mux.HandleFunc("POST /api/v1/recall", s.requireAuth(PermRead, s.handleRecall))

	// Edge graph.
	mux.HandleFunc("POST /api/v1/edges", s.requireAuth(PermWrite, s.handleUpsertEdge))
	mux.HandleFunc("GET /api/v1/edges", s.requireAuth(PermRead, s.handleListEdges))
	mux.HandleFunc("GET /api/v1/edges/graph/{type}/{id}", s.requireAuth(PermRead, s.handleNodeGraph))
	mux.HandleFunc("DELETE /api/v1/edges/{id}", s.requireAuth(PermWrite, s.handleDeleteEdge))

	// Decay and analytics.
	mux.HandleFunc("GET /api/v1/decay/status", s.requireAuth(PermRead, s.handleDecayStatus))
	mux.HandleFunc("POST /api/v1/decay/sweep", s.requireAuth(PermWrite, s.handleDecaySweep))
	mux.HandleFunc("PUT /api/v1/decay/policies", s.requireAuth(PermAdmin, s.handleSetPolicy))
	mux.HandleFunc("GET /api/v1/analytics/queries", s.requireAuth(PermRead, s.handleAnalytics))

	return mux
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully. Background
// tickers for decay sweeps and analytics pruning run for the same lifetime.
func (s *Server) Run(ctx context.Context) error {
	bg, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.decay.Run(bg, s.cfg.Decay.SweepInterval)
	go s.pruneLoop(bg, s.cfg.Decay.PruneInterval)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", s.cfg.Server.Addr))
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	s.log.Info("shutting down")
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) pruneLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.store.PruneQueryLog(ctx, analyticsRetention)
			if err != nil {
				s.log.Error("analytics prune failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.log.Info("pruned analytics log", zap.Int64("rows", n))
			}
		}
	}
}

// handleHealth reports liveness, database reachability, and the configured
// embedder.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":   "ok",
		"database": "ok",
	}
	status := http.StatusOK
	if err := s.store.Ping(r.Context()); err != nil {
		body["status"] = "degraded"
		body["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if s.embedder != nil {
		body["embedder"] = s.embedder.Name()
	} else {
		body["embedder"] = nil
	}
	s.writeJSON(w, status, body)
}
