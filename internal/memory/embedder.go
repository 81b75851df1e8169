// Package memory implements the semantic archive tier: fragment summaries,
// embeddings, nearest-neighbour search and composite-score pruning.
package memory

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"
)

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// EmbedderOptions selects and configures an Embedder.
type EmbedderOptions struct {
	Backend      string
	Model        string
	Dimensions   int
	CacheSize    int64
	GoogleAPIKey string
	OpenAIAPIKey string
}

// NewEmbedder builds the configured backend, wrapped in a cache when CacheSize > 0.
func NewEmbedder(ctx context.Context, opts EmbedderOptions) (Embedder, error) {
	var (
		base Embedder
		err  error
	)
	switch opts.Backend {
	case "", "hash":
		base = NewHashEmbedder(opts.Dimensions)
	case "genai":
		base, err = NewGenAIEmbedder(ctx, opts.GoogleAPIKey, opts.Model, opts.Dimensions)
	case "openai":
		base, err = NewOpenAIEmbedder(opts.OpenAIAPIKey, opts.Model, opts.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", opts.Backend)
	}
	if err != nil {
		return nil, err
	}
	if opts.CacheSize <= 0 {
		return base, nil
	}
	return NewCachedEmbedder(base, opts.CacheSize)
}

type GenAIEmbedder struct {
	client     *genai.Client
	model      string
	dimensions int
}

// NewGenAIEmbedder creates the GenAI embedding backend.
func NewGenAIEmbedder(ctx context.Context, apiKey, modelName string, dimensions int) (*GenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google api key is required for embeddings")
	}
	if modelName == "" {
		modelName = "text-embedding-004"
	}
	if dimensions <= 0 {
		dimensions = 768
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GenAIEmbedder{
		client:     client,
		model:      modelName,
		dimensions: dimensions,
	}, nil
}

func (e *GenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, text, "RETRIEVAL_QUERY")
}

func (e *GenAIEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, text, "RETRIEVAL_DOCUMENT")
}

func (e *GenAIEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *GenAIEmbedder) embed(ctx context.Context, text, taskType string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}

	dims := int32(e.dimensions)
	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), &genai.EmbedContentConfig{
		TaskType:             taskType,
		OutputDimensionality: &dims,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed content: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, fmt.Errorf("empty embedding response")
	}
	return fitDimensions(resp.Embeddings[0].Values, e.dimensions, e.model)
}

// fitDimensions truncates oversized vectors and rejects short ones.
func fitDimensions(values []float32, want int, model string) ([]float32, error) {
	if len(values) == want {
		return values, nil
	}
	if len(values) > want {
		slog.Warn("embedding dimensions exceed target, truncating", "actual", len(values), "target", want, "model", model)
		return values[:want], nil
	}
	return nil, fmt.Errorf("embedding dimensions mismatch: got %d want %d", len(values), want)
}
