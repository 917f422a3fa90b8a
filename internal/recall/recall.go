// Package recall implements the hybrid read path: semantic and lexical
// search arms fan out per memory type, scores fuse with recency weighting,
// and the top results optionally expand one hop through the edge graph.
package recall

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"hexmem/internal/embedding"
	"hexmem/internal/store"
	"hexmem/internal/types"
)

// Fusion defaults.
const (
	DefaultLimit     = 20
	MaxLimit         = 100
	WeightSemantic   = 0.7
	WeightKeyword    = 0.2
	WeightRecency    = 0.1
	GraphBoostWeight = 0.1

	// lexicalFloor is the minimum trigram similarity for the keyword arm.
	lexicalFloor = 0.1

	// recencyHorizon is the age at which the recency signal reaches zero.
	recencyHorizon = 90 * 24 * time.Hour

	// expandSeeds caps how many top results seed graph expansion.
	expandSeeds = 5

	// DirectSearchThreshold is the minimum cosine similarity for /search.
	DirectSearchThreshold = 0.3
)

// Request is one recall query. Zero-valued weights fall back to the defaults;
// Expand defaults to true at the API layer.
type Request struct {
	AgentID string
	Query   string
	Limit   int
	Types   []types.MemoryType
	Expand  bool
	Weights *types.RecallWeights
}

// Planner coordinates the search arms. A nil embedder degrades recall to the
// lexical and recency signals only.
type Planner struct {
	store    *store.Store
	embedder embedding.Engine
	log      *zap.Logger
}

func NewPlanner(s *store.Store, emb embedding.Engine, log *zap.Logger) *Planner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Planner{store: s, embedder: emb, log: log}
}

// candidate accumulates the per-arm signals for one row.
type candidate struct {
	hit     store.SearchHit
	signals types.Signals
}

// Recall runs the full hybrid plan and returns fused, ranked results.
func (p *Planner) Recall(ctx context.Context, req Request) (*types.RecallResponse, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	if req.AgentID == "" {
		return nil, fmt.Errorf("agent_id is required")
	}
	weights := types.RecallWeights{Semantic: WeightSemantic, Keyword: WeightKeyword, Recency: WeightRecency}
	if req.Weights != nil {
		weights = *req.Weights
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	candidates := types.RecallTypes(req.Types)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no valid memory types in filter")
	}

	// Embed once up front; a failing embedder degrades to lexical-only.
	var queryVec []float32
	if p.embedder != nil {
		vec, err := p.embedder.Embed(ctx, req.Query)
		if err != nil {
			p.log.Warn("query embedding failed, lexical-only recall", zap.Error(err))
		} else {
			queryVec = vec
		}
	}

	merged := make(map[string]*candidate)
	var mu sync.Mutex

	absorb := func(hits []store.SearchHit, semantic bool) {
		mu.Lock()
		defer mu.Unlock()
		for i := range hits {
			h := hits[i]
			key := string(h.Type) + ":" + h.ID
			c, ok := merged[key]
			if !ok {
				c = &candidate{hit: h}
				merged[key] = c
			}
			sim := h.Similarity
			if semantic {
				c.signals.Semantic = &sim
			} else {
				c.signals.Keyword = &sim
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range candidates {
		t := t
		if queryVec != nil {
			g.Go(func() error {
				hits, err := p.store.SemanticSearch(gctx, t, req.AgentID, queryVec, limit)
				if err != nil {
					return fmt.Errorf("semantic arm %s: %w", t, err)
				}
				absorb(hits, true)
				return nil
			})
		}
		g.Go(func() error {
			hits, err := p.store.LexicalSearch(gctx, t, req.AgentID, req.Query, lexicalFloor, limit)
			if err != nil {
				return fmt.Errorf("lexical arm %s: %w", t, err)
			}
			absorb(hits, false)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	results := make([]types.RecallResult, 0, len(merged))
	for _, c := range merged {
		rec := recencyScore(now, c.hit.CreatedAt)
		c.signals.Recency = &rec
		results = append(results, types.RecallResult{
			ID:        c.hit.ID,
			Type:      c.hit.Type,
			Content:   c.hit.Content,
			Score:     fuse(weights, c.signals),
			Signals:   c.signals,
			CreatedAt: c.hit.CreatedAt,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	if len(results) > limit {
		results = results[:limit]
	}

	if req.Expand {
		p.expand(ctx, req.AgentID, results)
	}

	p.bumpAccess(ctx, results)

	return &types.RecallResponse{
		Results: results,
		Total:   len(results),
		Query:   req.Query,
		Weights: weights,
	}, nil
}

// fuse combines the per-arm signals into the final score.
func fuse(w types.RecallWeights, s types.Signals) float64 {
	var score float64
	if s.Semantic != nil {
		score += w.Semantic * *s.Semantic
	}
	if s.Keyword != nil {
		score += w.Keyword * *s.Keyword
	}
	if s.Recency != nil {
		score += w.Recency * *s.Recency
	}
	if s.GraphBoost != nil {
		score += GraphBoostWeight * *s.GraphBoost
	}
	return score
}

// recencyScore decays linearly from 1 at age zero to 0 at the horizon.
func recencyScore(now, createdAt time.Time) float64 {
	age := now.Sub(createdAt)
	if age <= 0 {
		return 1
	}
	score := 1 - float64(age)/float64(recencyHorizon)
	if score < 0 {
		return 0
	}
	return score
}

// expand attaches one-hop graph neighbors to the leading results. Expansion
// failures degrade silently; dangling edges are skipped.
func (p *Planner) expand(ctx context.Context, agentID string, results []types.RecallResult) {
	seeds := results
	if len(seeds) > expandSeeds {
		seeds = seeds[:expandSeeds]
	}

	for i := range seeds {
		r := &seeds[i]
		outgoing, incoming, err := p.store.NodeEdges(ctx, agentID, r.Type, r.ID)
		if err != nil {
			p.log.Warn("graph expansion failed", zap.String("node", r.ID), zap.Error(err))
			continue
		}

		seen := map[string]bool{string(r.Type) + ":" + r.ID: true}
		attach := func(edges []*types.Edge, direction string) {
			for _, e := range edges {
				nt, nid := e.TargetType, e.TargetID
				if direction == "incoming" {
					nt, nid = e.SourceType, e.SourceID
				}
				key := string(nt) + ":" + nid
				if seen[key] {
					continue
				}
				seen[key] = true

				h, err := p.store.GetNodeSummary(ctx, nt, nid)
				if err != nil {
					// Edge endpoints are not foreign-keyed; skip dangling links.
					continue
				}
				boost := e.Weight
				r.Related = append(r.Related, types.RecallResult{
					ID:      h.ID,
					Type:    h.Type,
					Content: h.Content,
					Score:   e.Weight,
					Signals: types.Signals{GraphBoost: &boost},
					Metadata: map[string]interface{}{
						"relation":  e.Relation,
						"direction": direction,
					},
					CreatedAt: h.CreatedAt,
				})
			}
		}
		attach(outgoing, "outgoing")
		attach(incoming, "incoming")
	}
}

// bumpAccess records the read against every returned row, best-effort.
func (p *Planner) bumpAccess(ctx context.Context, results []types.RecallResult) {
	byType := map[types.MemoryType][]string{}
	for _, r := range results {
		byType[r.Type] = append(byType[r.Type], r.ID)
	}
	for t, ids := range byType {
		if err := p.store.BumpAccess(ctx, t, ids); err != nil {
			p.log.Warn("access bump failed", zap.String("type", string(t)), zap.Error(err))
		}
	}
}

// Search is the direct vector search path. Unlike Recall it requires an
// embedder and applies a flat similarity threshold with no fusion. A zero
// threshold falls back to the default.
func (p *Planner) Search(ctx context.Context, agentID, query string, limit int, threshold float64, filter []types.MemoryType) ([]types.RecallResult, error) {
	if p.embedder == nil {
		return nil, embedding.ErrUnavailable
	}
	if query == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if threshold <= 0 {
		threshold = DirectSearchThreshold
	}

	queryVec, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	var results []types.RecallResult
	for _, t := range types.RecallTypes(filter) {
		hits, err := p.store.SemanticSearch(ctx, t, agentID, queryVec, limit)
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", t, err)
		}
		for _, h := range hits {
			// Strictly above the threshold; an exact tie is excluded.
			if h.Similarity <= threshold {
				continue
			}
			sim := h.Similarity
			results = append(results, types.RecallResult{
				ID:        h.ID,
				Type:      h.Type,
				Content:   h.Content,
				Score:     h.Similarity,
				Signals:   types.Signals{Semantic: &sim},
				CreatedAt: h.CreatedAt,
			})
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}

	p.bumpAccess(ctx, results)
	return results, nil
}
