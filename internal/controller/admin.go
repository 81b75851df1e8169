package controller

import (
	"context"
	"fmt"
	"strings"

	"github.com/easeaico/her-memory/internal/audit"
	"github.com/easeaico/her-memory/internal/config"
	"github.com/easeaico/her-memory/internal/graph"
	"github.com/easeaico/her-memory/internal/memory"
	"github.com/easeaico/her-memory/internal/types"
	"github.com/easeaico/her-memory/internal/working"
)

// ChatHistory returns up to limit persisted turns for a session, oldest first.
// When the graph store is unavailable it falls back to the live working-memory window.
func (c *Controller) ChatHistory(ctx context.Context, sessionID string, limit int) ([]types.Turn, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidRequest)
	}
	cfg := c.cfg.Snapshot()
	if limit <= 0 {
		limit = cfg.L1MaxTurns
	}
	storeCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer cancel()

	turns, err := c.graph.ChatHistory(storeCtx, sessionID, limit)
	if err == nil && len(turns) > 0 {
		return turns, nil
	}
	if err != nil {
		c.logger.Warn("failed to load persisted chat history, using working memory", "session_id", sessionID, "error", err)
	}
	live := c.working.Turns(sessionID)
	if len(live) > limit {
		live = live[len(live)-limit:]
	}
	return live, nil
}

// AllCharacters lists every character known to the graph tier.
func (c *Controller) AllCharacters(ctx context.Context) ([]types.Character, error) {
	storeCtx, cancel := context.WithTimeout(ctx, c.cfg.Snapshot().StoreTimeout)
	defer cancel()
	return c.graph.AllCharacters(storeCtx)
}

// FactWithHistory returns one fact and all of its recorded values.
func (c *Controller) FactWithHistory(ctx context.Context, id string) (*types.Fact, error) {
	storeCtx, cancel := context.WithTimeout(ctx, c.cfg.Snapshot().StoreTimeout)
	defer cancel()
	return c.graph.FactWithHistory(storeCtx, id)
}

// RecordFactVersion sets a new current value on a fact, keeping the old ones in its history.
func (c *Controller) RecordFactVersion(ctx context.Context, id, value string, confidence float64) (*types.Fact, error) {
	storeCtx, cancel := context.WithTimeout(ctx, c.cfg.Snapshot().StoreTimeout)
	defer cancel()
	fact, op, err := c.graph.RecordFactVersion(storeCtx, id, value, confidence)
	c.ops.Append(op)
	return fact, err
}

// Snapshot is a point-in-time view of every tier.
type Snapshot struct {
	ConfigVersion uint64           `json:"config_version"`
	Working       working.Snapshot `json:"working"`
	Graph         graph.Counts     `json:"graph"`
	Vector        memory.Stats     `json:"vector"`
	DegradedTiers []types.Tier     `json:"degraded_tiers,omitempty"`
}

// Inspect reports tier contents. Unreachable tiers are listed in DegradedTiers.
func (c *Controller) Inspect(ctx context.Context) Snapshot {
	cfg := c.cfg.Snapshot()
	snap := Snapshot{ConfigVersion: cfg.Version, Working: c.working.Snapshot()}

	storeCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer cancel()
	counts, err := c.graph.Inspect(storeCtx)
	if err != nil {
		c.logger.Warn("failed to inspect graph tier", "error", err)
		snap.DegradedTiers = append(snap.DegradedTiers, types.TierL2)
	}
	snap.Graph = counts

	stats, err := c.vectors.Stats(storeCtx)
	if err != nil {
		c.logger.Warn("failed to inspect vector tier", "error", err)
		snap.DegradedTiers = append(snap.DegradedTiers, types.TierL3)
	}
	snap.Vector = stats
	return snap
}

// Stats summarizes the audit log together with the current configuration.
type Stats struct {
	Config     config.Config `json:"config"`
	Operations audit.Counts  `json:"operations"`
}

// Stats reports operation counts.
func (c *Controller) Stats() Stats {
	return Stats{Config: c.cfg.Snapshot(), Operations: c.ops.Counts()}
}

// Operations returns the n most recent audit records, oldest first. n <= 0 returns all of them.
func (c *Controller) Operations(n int) []types.MemoryOperation {
	return c.ops.Recent(n)
}

// Prune trims the vector tier to the configured fragment cap and returns the removed ids.
func (c *Controller) Prune(ctx context.Context) ([]string, error) {
	cfg := c.cfg.Snapshot()
	storeCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer cancel()
	removed, op, err := c.vectors.PruneFragments(storeCtx, cfg.MaxFragments)
	c.ops.Append(op)
	return removed, err
}

// UpdateFusionWeights publishes new default fusion weights.
// Requests already in flight keep the snapshot they started with.
func (c *Controller) UpdateFusionWeights(w types.FusionWeights) (config.Config, error) {
	next, err := c.cfg.Update(func(cfg *config.Config) {
		cfg.FusionWeights = w
	})
	if err != nil {
		return next, err
	}
	c.logger.Info("fusion weights updated", "l1", w.L1, "l2", w.L2, "l3", w.L3, "version", next.Version)
	return next, nil
}

// UpdateSignificanceThreshold publishes a new L2 significance threshold.
func (c *Controller) UpdateSignificanceThreshold(threshold float64) (config.Config, error) {
	next, err := c.cfg.Update(func(cfg *config.Config) {
		cfg.L2SignificanceThreshold = threshold
	})
	if err != nil {
		return next, err
	}
	c.logger.Info("significance threshold updated", "threshold", threshold, "version", next.Version)
	return next, nil
}

// Config returns the current configuration snapshot.
func (c *Controller) Config() config.Config {
	return c.cfg.Snapshot()
}
