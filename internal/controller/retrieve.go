package controller

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/easeaico/her-memory/internal/config"
	"github.com/easeaico/her-memory/internal/fusion"
	"github.com/easeaico/her-memory/internal/types"
)

// Per-query retrieval caps used by EstimateTokenCost.
const (
	maxGraphItems   = 20
	maxFragmentHits = 10
)

// RetrieveRequest asks for the memory relevant to a query.
type RetrieveRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
	// EntityScope narrows L2 and L3 to one entity.
	EntityScope string `json:"entity_scope,omitempty"`
	// Weights overrides the configured fusion weights for this query.
	Weights *types.FusionWeights `json:"weights,omitempty"`
	// AutoWeights re-biases the weights by the query's archetype.
	AutoWeights bool `json:"auto_weights,omitempty"`
}

// RetrieveRelevantContext fans out to the three tiers in parallel and fuses the results.
// Only invalid weights produce an error; tier failures follow the configured failure policy.
func (c *Controller) RetrieveRelevantContext(ctx context.Context, req RetrieveRequest) (types.FusedResult, error) {
	cfg := c.cfg.Snapshot()

	weights := cfg.FusionWeights
	if req.Weights != nil {
		if err := config.ValidateWeights(*req.Weights); err != nil {
			return types.FusedResult{}, err
		}
		weights = *req.Weights
	}
	if req.AutoWeights {
		weights = fusion.OptimizeWeights(fusion.AnalyzeQuery(req.Query), weights)
	}

	var (
		l1 types.L1Result
		l2 types.L2Result
		l3 types.L3Result

		mu     sync.Mutex
		failed []types.Tier
	)
	fail := func(tier types.Tier, err error) error {
		mu.Lock()
		failed = append(failed, tier)
		mu.Unlock()
		c.logger.Warn("tier retrieval failed", "tier", tier, "query", req.Query, "error", err)
		if cfg.TierFailurePolicy == config.PolicyFailClosed {
			return err
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		op := types.NewOperation(types.OpRead, types.TierL1, "retrieve")
		l1 = c.working.Retrieve(req.SessionID, req.Query)
		op.Details["turns"] = len(l1.Turns)
		op.Details["relevance"] = l1.RelevanceScore
		c.ops.Append(op.Finish())
		return nil
	})
	g.Go(func() error {
		op := types.NewOperation(types.OpRead, types.TierL2, "retrieve")
		storeCtx, cancel := context.WithTimeout(gctx, cfg.StoreTimeout)
		defer cancel()
		res, err := c.graph.Retrieve(storeCtx, req.Query, req.EntityScope)
		if err != nil {
			c.ops.Append(op.Fail(err))
			return fail(types.TierL2, err)
		}
		l2 = res
		op.Details["items"] = res.ItemCount()
		op.Details["relevance"] = res.RelevanceScore
		c.ops.Append(op.Finish())
		return nil
	})
	g.Go(func() error {
		op := types.NewOperation(types.OpRead, types.TierL3, "retrieve")
		storeCtx, cancel := context.WithTimeout(gctx, cfg.StoreTimeout)
		defer cancel()
		res, err := c.vectors.Retrieve(storeCtx, req.Query, req.EntityScope)
		if err != nil {
			c.ops.Append(op.Fail(err))
			return fail(types.TierL3, err)
		}
		l3 = res
		op.Details["fragments"] = len(res.Fragments)
		op.Details["relevance"] = res.RelevanceScore
		c.ops.Append(op.Finish())
		return nil
	})

	if err := g.Wait(); err != nil {
		return types.FusedResult{Weights: weights, DegradedTiers: failed}, nil
	}

	fused := fusion.Combine(l1, l2, l3, weights, fusionOptions(cfg))
	fused.DegradedTiers = failed
	return fused, nil
}

func fusionOptions(cfg config.Config) fusion.Options {
	return fusion.Options{
		ImportanceDecayRate: cfg.ImportanceDecayRate,
		AccessBoostFactor:   cfg.AccessBoostFactor,
		RecencyBoostFactor:  cfg.RecencyBoostFactor,
		MaxContextTokens:    cfg.MaxContextTokens,
	}
}

// EstimateTokenCost predicts the context size of a query against a session without retrieving.
// Counts are capped at what a single retrieval can return from each tier.
func (c *Controller) EstimateTokenCost(ctx context.Context, sessionID string, weights *types.FusionWeights) (fusion.CostEstimate, error) {
	cfg := c.cfg.Snapshot()
	w := cfg.FusionWeights
	if weights != nil {
		if err := config.ValidateWeights(*weights); err != nil {
			return fusion.CostEstimate{}, err
		}
		w = *weights
	}

	counts := fusion.TierCounts{L1: len(c.working.Turns(sessionID))}
	storeCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer cancel()
	if gc, err := c.graph.Inspect(storeCtx); err == nil {
		counts.L2 = min(int(gc.Characters), maxGraphItems) + min(int(gc.Facts), maxGraphItems) + min(int(gc.Relationships), maxGraphItems)
	} else {
		c.logger.Warn("failed to count graph items for estimate", "error", err)
	}
	if st, err := c.vectors.Stats(storeCtx); err == nil {
		counts.L3 = min(st.Fragments, maxFragmentHits)
	} else {
		c.logger.Warn("failed to count fragments for estimate", "error", err)
	}
	return fusion.EstimateTokenCost(counts, w), nil
}
