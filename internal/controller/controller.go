// Package controller orchestrates the memory tiers: it routes every ingested turn through the
// significance scorer into working, graph and vector memory, and fuses the three tiers on read.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/easeaico/her-memory/internal/audit"
	"github.com/easeaico/her-memory/internal/config"
	"github.com/easeaico/her-memory/internal/graph"
	"github.com/easeaico/her-memory/internal/memory"
	"github.com/easeaico/her-memory/internal/significance"
	"github.com/easeaico/her-memory/internal/types"
	"github.com/easeaico/her-memory/internal/working"
)

// ErrInvalidRequest is returned for malformed caller input.
var ErrInvalidRequest = errors.New("invalid memory request")

// Stage is a step of the ingestion state machine.
type Stage string

const (
	StageReceived     Stage = "received"
	StageScored       Stage = "scored"
	StageL2Written    Stage = "l2_written"
	StageL3Written    Stage = "l3_written"
	StageStateManaged Stage = "state_managed"
	StageDone         Stage = "done"
)

// Controller is the entry point of the memory engine.
type Controller struct {
	// cfg publishes the configuration snapshot each request reads.
	cfg *config.Holder
	// working is the L1 session arena.
	working *working.Memory
	// graph is the L2 tier.
	graph *graph.Memory
	// vectors is the L3 tier.
	vectors *memory.Service
	// ops is the append-only audit log.
	ops    *audit.Log
	logger *slog.Logger
}

// New wires a controller over the three tiers.
func New(cfg *config.Holder, l1 *working.Memory, l2 *graph.Memory, l3 *memory.Service, ops *audit.Log, logger *slog.Logger) (*Controller, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config holder is required")
	}
	if l1 == nil || l2 == nil || l3 == nil {
		return nil, fmt.Errorf("all three memory tiers are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if ops == nil {
		ops = audit.New(logger)
	}
	return &Controller{
		cfg:     cfg,
		working: l1,
		graph:   l2,
		vectors: l3,
		ops:     ops,
		logger:  logger,
	}, nil
}

// IngestRequest is one conversational turn to remember.
type IngestRequest struct {
	SessionID string     `json:"session_id"`
	Role      types.Role `json:"role"`
	Content   string     `json:"content"`
	EntityID  string     `json:"entity_id,omitempty"`
}

func (r IngestRequest) validate() error {
	if strings.TrimSpace(r.SessionID) == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidRequest)
	}
	if !r.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidRequest, r.Role)
	}
	if strings.TrimSpace(r.Content) == "" {
		return fmt.Errorf("%w: content is empty", ErrInvalidRequest)
	}
	return nil
}

// IngestResult reports what an ingestion did. Success is false only for invalid input or a
// recovered panic; tier failures show up in DegradedTiers and as failed operations.
type IngestResult struct {
	Success         bool                    `json:"success"`
	Error           string                  `json:"error,omitempty"`
	TurnID          string                  `json:"turn_id,omitempty"`
	Detection       types.EventDetection    `json:"detection"`
	StoredIn        []types.Tier            `json:"stored_in"`
	DegradedTiers   []types.Tier            `json:"degraded_tiers,omitempty"`
	Stages          []Stage                 `json:"stages"`
	EvictedTurns    int                     `json:"evicted_turns"`
	FactIDs         []string                `json:"fact_ids,omitempty"`
	RelationshipIDs []string                `json:"relationship_ids,omitempty"`
	FragmentID      string                  `json:"fragment_id,omitempty"`
	Operations      []types.MemoryOperation `json:"operations_performed"`
}

func (r *IngestResult) record(ops []types.MemoryOperation) {
	r.Operations = append(r.Operations, ops...)
}

// IngestConversationTurn scores a turn and promotes it through the tiers.
// L1 always receives the turn, L2 when it is significant and L3 when it is very significant.
// It never returns an error: failures are reported on the result.
func (c *Controller) IngestConversationTurn(ctx context.Context, req IngestRequest) (res IngestResult) {
	cfg := c.cfg.Snapshot()
	res.Stages = []Stage{StageReceived}

	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Error = fmt.Sprintf("ingestion panicked: %v", r)
			c.logger.Error("ingestion panicked", "session_id", req.SessionID, "panic", r)
		}
	}()

	if err := req.validate(); err != nil {
		res.Error = err.Error()
		return res
	}

	turn := types.NewTurn(req.Role, req.Content, req.EntityID)
	res.TurnID = turn.ID
	history := c.working.Turns(req.SessionID)
	det := significance.Analyze(turn, history, significance.Options{
		SignificanceThreshold:   cfg.L2SignificanceThreshold,
		EmotionalDeltaThreshold: cfg.EmotionalDeltaThreshold,
	})
	res.Detection = det
	res.Stages = append(res.Stages, StageScored)

	op := types.NewOperation(types.OpWrite, types.TierL1, "addTurn")
	res.EvictedTurns = c.working.AddTurn(req.SessionID, turn, working.Limits{
		MaxTurns:  cfg.L1MaxTurns,
		MaxTokens: cfg.L1MaxTokens,
	})
	op.Details["session_id"] = req.SessionID
	op.Details["turn_id"] = turn.ID
	op.Details["evicted"] = res.EvictedTurns
	op.Details["significance_score"] = det.SignificanceScore
	res.record(c.ops.Append(op.Finish()))
	res.StoredIn = append(res.StoredIn, types.TierL1)

	if det.IsSignificant {
		c.ingestGraph(ctx, cfg, req.SessionID, turn, det, &res)
	}
	if det.SignificanceScore >= cfg.VerySignificantThreshold() {
		c.ingestVector(ctx, cfg, req.SessionID, turn, det, &res)
	}

	res.Stages = append(res.Stages, StageStateManaged, StageDone)
	res.Success = true
	c.logger.Debug("turn ingested",
		"session_id", req.SessionID,
		"turn_id", turn.ID,
		"score", det.SignificanceScore,
		"tiers", res.StoredIn,
		"degraded", res.DegradedTiers,
	)
	return res
}

func (c *Controller) ingestGraph(ctx context.Context, cfg config.Config, sessionID string, turn types.Turn, det types.EventDetection, res *IngestResult) {
	storeCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer cancel()

	out, err := c.graph.IngestTurn(storeCtx, sessionID, turn, det)
	res.record(c.ops.Append(out.Operations...))
	if err != nil {
		res.DegradedTiers = append(res.DegradedTiers, types.TierL2)
		c.logger.Warn("graph ingestion failed, continuing without L2", "session_id", sessionID, "error", err)
		return
	}
	res.StoredIn = append(res.StoredIn, types.TierL2)
	res.Stages = append(res.Stages, StageL2Written)
	res.FactIDs = out.FactIDs
	res.RelationshipIDs = out.RelationshipIDs
}

func (c *Controller) ingestVector(ctx context.Context, cfg config.Config, sessionID string, turn types.Turn, det types.EventDetection, res *IngestResult) {
	storeCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer cancel()

	frag, op, err := c.vectors.IngestTurn(storeCtx, sessionID, turn, det, cfg.VerySignificantThreshold())
	res.record(c.ops.Append(op))
	if err != nil {
		res.DegradedTiers = append(res.DegradedTiers, types.TierL3)
		c.logger.Warn("vector ingestion failed, continuing without L3", "session_id", sessionID, "error", err)
		return
	}
	res.StoredIn = append(res.StoredIn, types.TierL3)
	res.Stages = append(res.Stages, StageL3Written)
	res.FragmentID = frag.ID
}
