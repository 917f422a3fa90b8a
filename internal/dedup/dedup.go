// Package dedup implements two-stage duplicate detection for incoming memory
// items: a cheap lexical trigram pass first, then an embedding comparison
// when a vector is available.
package dedup

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"hexmem/internal/store"
	"hexmem/internal/types"
)

// Similarity thresholds. An item matching an existing active row at or above
// either threshold is a duplicate.
const (
	TrigramThreshold = 0.6
	CosineThreshold  = 0.92
)

// candidateLimit caps how many existing rows each stage inspects.
const candidateLimit = 5

// Conflict describes the existing row an incoming item collided with.
type Conflict struct {
	ExistingID string           `json:"existing_id"`
	Type       types.MemoryType `json:"type"`
	Similarity float64          `json:"similarity"`
	Method     string           `json:"method"` // "trigram" or "cosine"
}

func (c *Conflict) Error() string {
	return fmt.Sprintf("duplicate of %s %s (%s similarity %.3f)", c.Type, c.ExistingID, c.Method, c.Similarity)
}

// Detector checks incoming items against an agent's existing active memory.
type Detector struct {
	store *store.Store
	log   *zap.Logger
}

func NewDetector(s *store.Store, log *zap.Logger) *Detector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Detector{store: s, log: log}
}

// Check returns a non-nil Conflict when content duplicates an existing active
// row of the same agent and type. Only the canonical content participates;
// archived and cooling rows never block new writes. A nil embedding skips the
// cosine stage.
func (d *Detector) Check(ctx context.Context, agentID string, t types.MemoryType, content string, embedding []float32) (*Conflict, error) {
	if !types.IsRecallable(t) {
		return nil, fmt.Errorf("type %q does not participate in dedup", t)
	}

	// Stage 1: lexical. The floor is set just under the threshold so rows at
	// exactly the threshold are returned, then filtered here. A failing stage
	// degrades to "no match" rather than blocking the write.
	hits, err := d.store.LexicalSearch(ctx, t, agentID, content, TrigramThreshold-1e-9, candidateLimit)
	if err != nil {
		d.log.Warn("lexical dedup stage failed", zap.Error(err))
		hits = nil
	}
	for _, h := range hits {
		if h.Similarity >= TrigramThreshold {
			d.log.Debug("duplicate detected",
				zap.String("method", "trigram"),
				zap.String("existing_id", h.ID),
				zap.Float64("similarity", h.Similarity))
			return &Conflict{ExistingID: h.ID, Type: t, Similarity: h.Similarity, Method: "trigram"}, nil
		}
	}

	// Stage 2: semantic, only when the incoming item was embedded.
	if len(embedding) == 0 {
		return nil, nil
	}
	hits, err = d.store.SemanticSearch(ctx, t, agentID, embedding, candidateLimit)
	if err != nil {
		d.log.Warn("semantic dedup stage failed", zap.Error(err))
		return nil, nil
	}
	for _, h := range hits {
		if h.Similarity >= CosineThreshold {
			d.log.Debug("duplicate detected",
				zap.String("method", "cosine"),
				zap.String("existing_id", h.ID),
				zap.Float64("similarity", h.Similarity))
			return &Conflict{ExistingID: h.ID, Type: t, Similarity: h.Similarity, Method: "cosine"}, nil
		}
	}
	return nil, nil
}
