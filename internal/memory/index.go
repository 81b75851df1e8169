package memory

import (
	"context"
	"fmt"
	"runtime"

	chromem "github.com/philippgille/chromem-go"
)

// VectorIndex is the nearest-neighbour index adapter.
// Distances are cosine distances in [0,2]; an empty index returns no results and no error.
type VectorIndex interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]float32, []string, error)
	Remove(ctx context.Context, ids []string) error
	Size(ctx context.Context) (int, error)
}

const fragmentCollection = "fragments"

// ChromemIndex is an embedded chromem-go collection, optionally persisted to disk.
type ChromemIndex struct {
	db  *chromem.DB
	col *chromem.Collection
}

// NewChromemIndex opens an in-memory index, or a persistent one when path is set.
func NewChromemIndex(path string) (*ChromemIndex, error) {
	db := chromem.NewDB()
	if path != "" {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem db: %w", err)
		}
	}
	// Embeddings are always supplied by the caller, so no embedding func is configured.
	col, err := db.GetOrCreateCollection(fragmentCollection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create chromem collection: %w", err)
	}
	return &ChromemIndex{db: db, col: col}, nil
}

func (x *ChromemIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d != %d", len(ids), len(vectors))
	}
	if len(ids) == 0 {
		return nil
	}
	docs := make([]chromem.Document, 0, len(ids))
	for i, id := range ids {
		docs = append(docs, chromem.Document{ID: id, Content: id, Embedding: vectors[i]})
	}
	if err := x.col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Search returns up to k neighbours, nearest first.
func (x *ChromemIndex) Search(ctx context.Context, query []float32, k int) ([]float32, []string, error) {
	n := x.col.Count()
	if n == 0 || k <= 0 {
		return nil, nil, nil
	}
	if k > n {
		k = n
	}
	results, err := x.col.QueryEmbedding(ctx, query, k, nil, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("chromem query: %w", err)
	}
	distances := make([]float32, 0, len(results))
	ids := make([]string, 0, len(results))
	for _, r := range results {
		distances = append(distances, 1-r.Similarity)
		ids = append(ids, r.ID)
	}
	return distances, ids, nil
}

func (x *ChromemIndex) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := x.col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

func (x *ChromemIndex) Size(ctx context.Context) (int, error) {
	return x.col.Count(), nil
}
