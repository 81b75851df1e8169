package memory

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// CachedEmbedder memoizes another Embedder. Query and document embeddings are cached separately.
type CachedEmbedder struct {
	next  Embedder
	cache *ristretto.Cache
}

// NewCachedEmbedder wraps next in a ristretto cache bounded to maxCost bytes of vectors.
func NewCachedEmbedder(next Embedder, maxCost int64) (*CachedEmbedder, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &CachedEmbedder{next: next, cache: cache}, nil
}

func (e *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.cached(ctx, "q:"+text, func() ([]float32, error) { return e.next.EmbedQuery(ctx, text) })
}

func (e *CachedEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return e.cached(ctx, "d:"+text, func() ([]float32, error) { return e.next.EmbedDocument(ctx, text) })
}

func (e *CachedEmbedder) Dimensions() int {
	return e.next.Dimensions()
}

// Close releases the cache.
func (e *CachedEmbedder) Close() {
	e.cache.Close()
}

func (e *CachedEmbedder) cached(ctx context.Context, key string, embed func() ([]float32, error)) ([]float32, error) {
	if v, ok := e.cache.Get(key); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}
	vec, err := embed()
	if err != nil {
		return nil, err
	}
	e.cache.Set(key, vec, int64(len(vec)*4))
	return vec, nil
}
