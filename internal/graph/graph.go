package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/easeaico/her-memory/internal/emotion"
	"github.com/easeaico/her-memory/internal/types"
	"github.com/easeaico/her-memory/internal/utils"
)

const (
	defaultQueryLimit = 20

	characterTokens    = 50
	factTokens         = 30
	relationshipTokens = 25
)

// IngestResult reports what an ingestion wrote.
type IngestResult struct {
	Operations      []types.MemoryOperation
	CharacterIDs    []string
	FactIDs         []string
	RelationshipIDs []string
}

// Memory is the L2 tier on top of a Store.
type Memory struct {
	store  Store
	logger *slog.Logger
}

// New returns a graph tier backed by store.
func New(store Store, logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{store: store, logger: logger}
}

// IngestTurn writes emotional updates, facts, relationships and the turn itself in one transaction.
// On failure nothing is written and the returned operations end with a failed record.
func (m *Memory) IngestTurn(ctx context.Context, sessionID string, turn types.Turn, det types.EventDetection) (IngestResult, error) {
	var res IngestResult
	names := entityNames(det)
	now := time.Now()

	err := m.store.WithTx(ctx, func(tx Tx) error {
		res = IngestResult{}

		for _, change := range det.EmotionalChanges {
			op := types.NewOperation(types.OpUpdate, types.TierL2, "updateCharacterEmotion")
			c, err := tx.GetCharacter(ctx, change.EntityID)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return fmt.Errorf("failed to load character %s: %w", change.EntityID, err)
			}
			if c == nil {
				name := change.EntityName
				if name == "" {
					name = names.lookup(change.EntityID)
				}
				c = &types.Character{ID: change.EntityID, Name: name, CreatedAt: now}
				op.Details["created"] = true
			}
			op.Details["previous_state"] = c.EmotionalState
			c.EmotionalState = emotion.Clamp(change.NewState)
			c.LastUpdated = now
			if err := tx.UpsertCharacter(ctx, *c); err != nil {
				return fmt.Errorf("failed to upsert character %s: %w", c.ID, err)
			}
			op.Details["entity_id"] = c.ID
			op.Details["new_state"] = c.EmotionalState
			op.Details["delta"] = change.Delta
			res.Operations = append(res.Operations, op.Finish())
			res.CharacterIDs = appendUnique(res.CharacterIDs, c.ID)
		}

		for _, ev := range det.DetectedEvents {
			switch ev.Type {
			case types.EventFactAssertion:
				if ev.Fact == nil {
					continue
				}
				op := types.NewOperation(types.OpWrite, types.TierL2, "createFact")
				fact := types.Fact{
					ID:           uuid.NewString(),
					Entity:       ev.Fact.Entity,
					Attribute:    ev.Fact.Attribute,
					CurrentValue: ev.Fact.Value,
					History: []types.FactVersion{
						{Value: ev.Fact.Value, Timestamp: now, Confidence: ev.Confidence},
					},
					ImportanceScore: clamp(det.SignificanceScore, 0, 10),
					CreatedAt:       now,
					LastUpdated:     now,
				}
				if err := tx.CreateFact(ctx, fact); err != nil {
					return fmt.Errorf("failed to create fact: %w", err)
				}
				op.Details["fact_id"] = fact.ID
				op.Details["entity"] = fact.Entity
				op.Details["attribute"] = fact.Attribute
				res.Operations = append(res.Operations, op.Finish())
				res.FactIDs = append(res.FactIDs, fact.ID)

			case types.EventRelationshipChange:
				if len(ev.EntitiesInvolved) < 2 {
					continue
				}
				from, to := ev.EntitiesInvolved[0], ev.EntitiesInvolved[1]
				if from == to {
					continue
				}
				for _, id := range []string{from, to} {
					if err := ensureCharacter(ctx, tx, id, names.lookup(id), now); err != nil {
						return err
					}
					res.CharacterIDs = appendUnique(res.CharacterIDs, id)
				}
				op := types.NewOperation(types.OpWrite, types.TierL2, "createRelationship")
				rel := types.Relationship{
					ID:               uuid.NewString(),
					FromEntity:       from,
					ToEntity:         to,
					RelationshipType: relationshipType(ev.Keyword),
					Strength:         clamp(ev.Confidence, 0, 1),
					CreatedAt:        now,
					LastUpdated:      now,
				}
				if err := tx.CreateRelationship(ctx, rel); err != nil {
					return fmt.Errorf("failed to create relationship: %w", err)
				}
				op.Details["relationship_id"] = rel.ID
				op.Details["type"] = rel.RelationshipType
				res.Operations = append(res.Operations, op.Finish())
				res.RelationshipIDs = append(res.RelationshipIDs, rel.ID)
			}
		}

		op := types.NewOperation(types.OpWrite, types.TierL2, "storeTurn")
		if err := tx.SaveTurn(ctx, sessionID, turn); err != nil {
			return fmt.Errorf("failed to store turn: %w", err)
		}
		op.Details["turn_id"] = turn.ID
		op.Details["session_id"] = sessionID
		res.Operations = append(res.Operations, op.Finish())
		return nil
	})
	if err != nil {
		failed := types.NewOperation(types.OpWrite, types.TierL2, "ingestTurn")
		failed.Timestamp = now
		failed.Details["session_id"] = sessionID
		failed.Details["turn_id"] = turn.ID
		return IngestResult{Operations: []types.MemoryOperation{failed.Fail(err)}}, types.NewStoreError(types.TierL2, "ingestTurn", err)
	}

	m.logger.Debug("graph ingest committed",
		"session_id", sessionID,
		"facts", len(res.FactIDs),
		"relationships", len(res.RelationshipIDs),
		"characters", len(res.CharacterIDs),
	)
	return res, nil
}

func ensureCharacter(ctx context.Context, tx Tx, id, name string, now time.Time) error {
	c, err := tx.GetCharacter(ctx, id)
	if err == nil && c != nil {
		return nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to load character %s: %w", id, err)
	}
	if err := tx.UpsertCharacter(ctx, types.Character{
		ID:             id,
		Name:           name,
		EmotionalState: types.NeutralVAD(),
		CreatedAt:      now,
		LastUpdated:    now,
	}); err != nil {
		return fmt.Errorf("failed to create character %s: %w", id, err)
	}
	return nil
}

// Retrieve runs the character, fact and relationship reads concurrently.
// An empty scope searches every entity.
func (m *Memory) Retrieve(ctx context.Context, query, scope string) (types.L2Result, error) {
	q := Query{
		Keywords:    utils.Keywords(query),
		EntityScope: types.EntityID(scope),
		Limit:       defaultQueryLimit,
	}
	if len(q.Keywords) == 0 && q.EntityScope == "" {
		return types.L2Result{}, nil
	}

	var (
		chars []types.Character
		facts []types.Fact
		rels  []types.Relationship
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		chars, err = m.store.FindCharacters(gctx, q)
		return err
	})
	g.Go(func() error {
		var err error
		facts, err = m.store.FindFacts(gctx, q)
		return err
	})
	g.Go(func() error {
		var err error
		rels, err = m.store.FindRelationships(gctx, q)
		return err
	})
	if err := g.Wait(); err != nil {
		return types.L2Result{}, types.NewStoreError(types.TierL2, "retrieve", err)
	}

	total := len(chars) + len(facts) + len(rels)
	return types.L2Result{
		Characters:     chars,
		Facts:          facts,
		Relationships:  rels,
		RelevanceScore: math.Min(1, float64(total)/10),
		TokenCount:     characterTokens*len(chars) + factTokens*len(facts) + relationshipTokens*len(rels),
	}, nil
}

// FactWithHistory returns a fact with its full value history.
func (m *Memory) FactWithHistory(ctx context.Context, id string) (*types.Fact, error) {
	f, err := m.store.GetFact(ctx, id)
	if err != nil {
		return nil, types.NewStoreError(types.TierL2, "getFactWithHistory", err)
	}
	return f, nil
}

// RecordFactVersion appends a new value to a fact's history and makes it current.
func (m *Memory) RecordFactVersion(ctx context.Context, id, value string, confidence float64) (*types.Fact, types.MemoryOperation, error) {
	op := types.NewOperation(types.OpUpdate, types.TierL2, "recordFactVersion")
	op.Details["fact_id"] = id
	value = strings.TrimSpace(value)
	if value == "" {
		err := errors.New("fact value is empty")
		return nil, op.Fail(err), err
	}

	var updated *types.Fact
	err := m.store.WithTx(ctx, func(tx Tx) error {
		f, err := tx.AppendFactVersion(ctx, id, types.FactVersion{
			Value:      value,
			Timestamp:  time.Now(),
			Confidence: clamp(confidence, 0, 1),
		})
		if err != nil {
			return err
		}
		updated = f
		return nil
	})
	if err != nil {
		return nil, op.Fail(err), types.NewStoreError(types.TierL2, "recordFactVersion", err)
	}
	op.Details["versions"] = len(updated.History)
	return updated, op.Finish(), nil
}

// AllCharacters lists every character node.
func (m *Memory) AllCharacters(ctx context.Context) ([]types.Character, error) {
	chars, err := m.store.ListCharacters(ctx)
	if err != nil {
		return nil, types.NewStoreError(types.TierL2, "getAllCharacters", err)
	}
	return chars, nil
}

// ChatHistory returns up to limit persisted turns of a session, oldest first.
func (m *Memory) ChatHistory(ctx context.Context, sessionID string, limit int) ([]types.Turn, error) {
	turns, err := m.store.ListTurns(ctx, sessionID, limit)
	if err != nil {
		return nil, types.NewStoreError(types.TierL2, "chatHistory", err)
	}
	return turns, nil
}

// Inspect returns node counts.
func (m *Memory) Inspect(ctx context.Context) (Counts, error) {
	c, err := m.store.Counts(ctx)
	if err != nil {
		return Counts{}, types.NewStoreError(types.TierL2, "inspect", err)
	}
	return c, nil
}

type nameIndex map[string]string

func entityNames(det types.EventDetection) nameIndex {
	names := nameIndex{}
	for _, e := range det.NamedEntities {
		names[e.ID] = e.Name
	}
	for _, c := range det.EmotionalChanges {
		if c.EntityName != "" {
			names[c.EntityID] = c.EntityName
		}
	}
	return names
}

func (n nameIndex) lookup(id string) string {
	if name, ok := n[id]; ok && name != "" {
		return name
	}
	return id
}

func relationshipType(keyword string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(keyword)), " ", "_")
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
