// Package decay drives the memory lifecycle: active rows that age out of
// their policy TTL without enough accesses cool, and cooling rows that stay
// untouched eventually archive. Reads elsewhere revive items back to active.
package decay

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"hexmem/internal/store"
	"hexmem/internal/types"
)

// archiveAfter is how long a row stays cooling before it archives.
const archiveAfter = 30 * 24 * time.Hour

// Stats summarizes one sweep.
type Stats struct {
	TransitionedToCooling  int64 `json:"transitioned_to_cooling"`
	TransitionedToArchived int64 `json:"transitioned_to_archived"`
	ImmuneItems            int64 `json:"immune_items"`
}

// Engine runs policy-driven sweeps over every decaying table.
type Engine struct {
	store *store.Store
	log   *zap.Logger
}

func NewEngine(s *store.Store, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: s, log: log}
}

// Sweep applies both lifecycle phases across all memory types, optionally
// scoped to one agent. Policies resolve per agent, most specific first; a nil
// TTL means the type never decays for that agent.
func (e *Engine) Sweep(ctx context.Context, scopeAgent string) (Stats, error) {
	var stats Stats
	started := time.Now()

	for _, t := range types.RecallTypes(nil) {
		agents, err := e.store.DecayAgentIDs(ctx, t)
		if err != nil {
			return stats, err
		}
		for _, agentID := range agents {
			if scopeAgent != "" && agentID != scopeAgent {
				continue
			}
			policy, err := e.store.ResolvePolicy(ctx, agentID, t)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return stats, err
			}
			if policy.TTLDays == nil {
				continue
			}

			immune, err := e.store.CountImmune(ctx, t, agentID, policy.MinAccesses)
			if err != nil {
				return stats, err
			}
			stats.ImmuneItems += immune

			cooled, err := e.store.MarkCooling(ctx, t, agentID, *policy.TTLDays, policy.MinAccesses)
			if err != nil {
				return stats, err
			}
			stats.TransitionedToCooling += cooled

			archived, err := e.store.MarkArchived(ctx, t, agentID, archiveAfter)
			if err != nil {
				return stats, err
			}
			stats.TransitionedToArchived += archived
		}
	}

	e.log.Info("decay sweep complete",
		zap.Int64("cooled", stats.TransitionedToCooling),
		zap.Int64("archived", stats.TransitionedToArchived),
		zap.Int64("immune", stats.ImmuneItems),
		zap.Duration("took", time.Since(started)))
	return stats, nil
}

// Run sweeps on the given interval until the context is cancelled. Sweep
// failures log and wait for the next tick.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.Sweep(ctx, ""); err != nil {
				e.log.Error("decay sweep failed", zap.Error(err))
			}
		}
	}
}
