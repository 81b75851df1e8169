// Package graph implements the durable structured memory tier: characters,
// versioned facts, relationships and persisted turns.
package graph

import (
	"context"
	"errors"

	"github.com/easeaico/her-memory/internal/types"
)

// ErrNotFound is returned by adapters when a node does not exist.
var ErrNotFound = errors.New("graph node not found")

// Query narrows a read to keyword matches, optionally within one entity.
type Query struct {
	Keywords    []string
	EntityScope string
	Limit       int
}

// Counts is the tier-level inspection snapshot.
type Counts struct {
	Characters    int64 `json:"characters"`
	Facts         int64 `json:"facts"`
	Relationships int64 `json:"relationships"`
	Sessions      int64 `json:"sessions"`
	Turns         int64 `json:"turns"`
}

// Store is the graph store adapter.
type Store interface {
	// WithTx runs fn in one transaction; any error rolls back every write made through tx.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	FindCharacters(ctx context.Context, q Query) ([]types.Character, error)
	FindFacts(ctx context.Context, q Query) ([]types.Fact, error)
	FindRelationships(ctx context.Context, q Query) ([]types.Relationship, error)

	GetFact(ctx context.Context, id string) (*types.Fact, error)
	ListCharacters(ctx context.Context) ([]types.Character, error)
	ListTurns(ctx context.Context, sessionID string, limit int) ([]types.Turn, error)
	Counts(ctx context.Context) (Counts, error)
}

// Tx is the write side of a Store transaction.
type Tx interface {
	GetCharacter(ctx context.Context, id string) (*types.Character, error)
	UpsertCharacter(ctx context.Context, c types.Character) error
	CreateFact(ctx context.Context, f types.Fact) error
	AppendFactVersion(ctx context.Context, id string, v types.FactVersion) (*types.Fact, error)
	CreateRelationship(ctx context.Context, r types.Relationship) error
	SaveTurn(ctx context.Context, sessionID string, t types.Turn) error
}
