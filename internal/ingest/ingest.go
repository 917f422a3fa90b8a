// Package ingest wires the write path: messages come in, get embedded and
// persisted, and an extraction pass turns them into structured memory with
// derivation edges back to their source.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"hexmem/internal/dedup"
	"hexmem/internal/embedding"
	"hexmem/internal/extraction"
	"hexmem/internal/store"
	"hexmem/internal/types"
)

// contextWindow is how many preceding messages accompany each extraction.
const contextWindow = 4

// Pipeline coordinates the ingestion write path. Embedder and Extractor are
// optional; a nil embedder stores rows without vectors and a nil extractor
// skips structured extraction entirely.
type Pipeline struct {
	store     *store.Store
	embedder  embedding.Engine
	extractor extraction.Extractor
	detector  *dedup.Detector
	log       *zap.Logger
}

func New(s *store.Store, emb embedding.Engine, ext extraction.Extractor, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		store:     s,
		embedder:  emb,
		extractor: ext,
		detector:  dedup.NewDetector(s, log),
		log:       log,
	}
}

// embed returns a vector for text, or nil when no embedder is configured or
// the call fails. Embedding failures never block a write.
func (p *Pipeline) embed(ctx context.Context, text string) []float32 {
	if p.embedder == nil {
		return nil
	}
	vec, err := p.embedder.Embed(ctx, text)
	if err != nil {
		p.log.Warn("embedding failed, storing without vector", zap.Error(err))
		return nil
	}
	return vec
}

// ErrInvalidRole rejects messages whose role is outside the closed enum.
var ErrInvalidRole = errors.New("invalid message role")

// AddMessage appends a message to a session and runs the extraction pass over
// it. Nothing on this path is deduplicated: extraction output is stored
// verbatim, repeats included. Only direct writes reject duplicates.
func (p *Pipeline) AddMessage(ctx context.Context, agentID, sessionID, role, content string, metadata map[string]interface{}) (*types.SessionMessage, types.ExtractionCounts, error) {
	var counts types.ExtractionCounts

	if !types.ValidRole(role) {
		return nil, counts, fmt.Errorf("role %q: %w", role, ErrInvalidRole)
	}
	sess, err := p.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, counts, err
	}
	if sess.AgentID != agentID {
		return nil, counts, fmt.Errorf("session %q: %w", sessionID, store.ErrNotFound)
	}
	if sess.EndedAt != nil {
		return nil, counts, fmt.Errorf("session %q: %w", sessionID, store.ErrSessionEnded)
	}

	msg := &types.SessionMessage{
		SessionID: sessionID,
		AgentID:   agentID,
		Role:      role,
		Content:   content,
		Metadata:  metadata,
		Embedding: p.embed(ctx, content),
	}
	if err := p.store.InsertMessage(ctx, msg); err != nil {
		return nil, counts, err
	}

	counts = p.extract(ctx, msg)
	return msg, counts, nil
}

// extract runs the best-effort extraction pass. Failures log and return zero
// counts; the message is already durable at this point.
func (p *Pipeline) extract(ctx context.Context, msg *types.SessionMessage) types.ExtractionCounts {
	var counts types.ExtractionCounts
	if p.extractor == nil {
		return counts
	}

	recent, err := p.store.RecentMessages(ctx, msg.SessionID, msg.ID, contextWindow)
	if err != nil {
		p.log.Warn("failed to load extraction context", zap.Error(err))
		recent = nil
	}

	ext, err := p.extractor.Extract(ctx, msg, recent)
	if err != nil {
		p.log.Warn("extraction failed", zap.String("message_id", msg.ID), zap.Error(err))
		return counts
	}
	if ext.Empty() {
		return counts
	}

	for _, cf := range ext.Facts {
		f := &types.Fact{
			AgentID:   msg.AgentID,
			Content:   cf.Content,
			Tags:      cf.Tags,
			SessionID: &msg.SessionID,
		}
		if cf.Subject != "" {
			f.Subject = &cf.Subject
		}
		if cf.Confidence > 0 {
			f.Confidence = cf.Confidence
		}
		if p.storeExtracted(ctx, types.TypeFact, cf.Content, msg, types.RelDerivedFrom, func(vec []float32) (string, error) {
			f.Embedding = vec
			if err := p.store.InsertFact(ctx, f); err != nil {
				return "", err
			}
			return f.ID, nil
		}) {
			counts.Facts++
		}
	}

	for _, cd := range ext.Decisions {
		d := &types.Decision{
			AgentID:      msg.AgentID,
			Title:        cd.Title,
			Decision:     cd.Decision,
			Alternatives: cd.Alternatives,
			Tags:         cd.Tags,
			SessionID:    &msg.SessionID,
		}
		if cd.Rationale != "" {
			d.Rationale = &cd.Rationale
		}
		canonical := cd.Title + ": " + cd.Decision
		if p.storeExtracted(ctx, types.TypeDecision, canonical, msg, types.RelDecidedIn, func(vec []float32) (string, error) {
			d.Embedding = vec
			if err := p.store.InsertDecision(ctx, d); err != nil {
				return "", err
			}
			return d.ID, nil
		}) {
			counts.Decisions++
		}
	}

	for _, ct := range ext.Tasks {
		task := &types.Task{
			AgentID:   msg.AgentID,
			Title:     ct.Title,
			Priority:  ct.Priority,
			Tags:      ct.Tags,
			SessionID: &msg.SessionID,
		}
		if ct.Description != "" {
			task.Description = &ct.Description
		}
		if p.storeExtracted(ctx, types.TypeTask, ct.Title, msg, types.RelDerivedFrom, func(vec []float32) (string, error) {
			task.Embedding = vec
			if err := p.store.InsertTask(ctx, task); err != nil {
				return "", err
			}
			return task.ID, nil
		}) {
			counts.Tasks++
		}
	}

	for _, ce := range ext.Events {
		ev := &types.Event{
			AgentID:   msg.AgentID,
			Title:     ce.Title,
			EventType: ce.EventType,
			Severity:  ce.Severity,
			Tags:      ce.Tags,
			SessionID: &msg.SessionID,
		}
		if ce.Description != "" {
			ev.Description = &ce.Description
		}
		if p.storeExtracted(ctx, types.TypeEvent, ce.Title, msg, types.RelDerivedFrom, func(vec []float32) (string, error) {
			ev.Embedding = vec
			if err := p.store.InsertEvent(ctx, ev); err != nil {
				return "", err
			}
			return ev.ID, nil
		}) {
			counts.Events++
		}
	}

	return counts
}

// storeExtracted embeds, inserts, and links one extracted item back to its
// session. Extraction is authoritative: items land even when they repeat
// existing memory. Returns whether the insert succeeded.
func (p *Pipeline) storeExtracted(ctx context.Context, t types.MemoryType, canonical string, src *types.SessionMessage, relation string, insert func(vec []float32) (string, error)) bool {
	vec := p.embed(ctx, canonical)

	id, err := insert(vec)
	if err != nil {
		p.log.Warn("failed to persist extracted item", zap.String("type", string(t)), zap.Error(err))
		return false
	}

	edge := &types.Edge{
		AgentID:    src.AgentID,
		SourceType: t,
		SourceID:   id,
		TargetType: types.TypeSession,
		TargetID:   src.SessionID,
		Relation:   relation,
		Weight:     1.0,
	}
	if err := p.store.UpsertEdge(ctx, edge); err != nil {
		p.log.Warn("failed to link extracted item to source", zap.Error(err))
	}
	return true
}

// =============================================================================
// DIRECT WRITES
// =============================================================================

// StoreFact writes a caller-provided fact, rejecting duplicates.
func (p *Pipeline) StoreFact(ctx context.Context, f *types.Fact) error {
	vec := p.embed(ctx, f.Content)
	if err := p.reject(ctx, f.AgentID, types.TypeFact, f.Content, vec); err != nil {
		return err
	}
	f.Embedding = vec
	return p.store.InsertFact(ctx, f)
}

// StoreDecision writes a caller-provided decision, rejecting duplicates.
func (p *Pipeline) StoreDecision(ctx context.Context, d *types.Decision) error {
	canonical := d.Title + ": " + d.Decision
	vec := p.embed(ctx, canonical)
	if err := p.reject(ctx, d.AgentID, types.TypeDecision, canonical, vec); err != nil {
		return err
	}
	d.Embedding = vec
	return p.store.InsertDecision(ctx, d)
}

// StoreTask writes a caller-provided task, rejecting duplicates.
func (p *Pipeline) StoreTask(ctx context.Context, t *types.Task) error {
	vec := p.embed(ctx, t.Title)
	if err := p.reject(ctx, t.AgentID, types.TypeTask, t.Title, vec); err != nil {
		return err
	}
	t.Embedding = vec
	return p.store.InsertTask(ctx, t)
}

// StoreEvent writes a caller-provided event, rejecting duplicates.
func (p *Pipeline) StoreEvent(ctx context.Context, e *types.Event) error {
	vec := p.embed(ctx, e.Title)
	if err := p.reject(ctx, e.AgentID, types.TypeEvent, e.Title, vec); err != nil {
		return err
	}
	e.Embedding = vec
	return p.store.InsertEvent(ctx, e)
}

// reject returns the conflict as an error when the content duplicates
// existing memory. Direct writes surface duplicates to the caller instead of
// dropping them.
func (p *Pipeline) reject(ctx context.Context, agentID string, t types.MemoryType, canonical string, vec []float32) error {
	conflict, err := p.detector.Check(ctx, agentID, t, canonical, vec)
	if err != nil {
		return err
	}
	if conflict != nil {
		return conflict
	}
	return nil
}
