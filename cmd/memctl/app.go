package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/easeaico/her-memory/internal/audit"
	"github.com/easeaico/her-memory/internal/config"
	"github.com/easeaico/her-memory/internal/controller"
	"github.com/easeaico/her-memory/internal/graph"
	"github.com/easeaico/her-memory/internal/memory"
	"github.com/easeaico/her-memory/internal/repository"
	"github.com/easeaico/her-memory/internal/working"
)

// app owns the resources a command runs against.
type app struct {
	ctrl     *controller.Controller
	store    *repository.Store
	embedder memory.Embedder
	logger   *slog.Logger
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// open loads configuration and connects every tier.
func (a *app) open(ctx context.Context, logLevel string) error {
	a.logger = newLogger(logLevel)
	slog.SetDefault(a.logger)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	holder, err := config.NewHolder(cfg)
	if err != nil {
		return err
	}

	store, err := repository.NewStore(ctx, repository.Options{
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.store = store

	embedder, err := memory.NewEmbedder(ctx, memory.EmbedderOptions{
		Backend:      cfg.EmbeddingBackend,
		Model:        cfg.EmbeddingModel,
		Dimensions:   cfg.EmbeddingDimensions,
		CacheSize:    cfg.EmbeddingCacheSize,
		GoogleAPIKey: cfg.GoogleAPIKey,
		OpenAIAPIKey: cfg.OpenAIAPIKey,
	})
	if err != nil {
		a.close()
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	a.embedder = embedder

	index, err := newVectorIndex(ctx, cfg, store, embedder.Dimensions())
	if err != nil {
		a.close()
		return err
	}

	vectors := memory.NewService(embedder, index, store.Fragments, a.logger)
	if _, err := vectors.SyncIndex(ctx); err != nil {
		a.close()
		return fmt.Errorf("failed to sync vector index: %w", err)
	}
	ctrl, err := controller.New(holder, working.New(), graph.New(store.Graph, a.logger), vectors, audit.New(a.logger), a.logger)
	if err != nil {
		a.close()
		return err
	}
	a.ctrl = ctrl
	return nil
}

func newVectorIndex(ctx context.Context, cfg config.Config, store *repository.Store, dims int) (memory.VectorIndex, error) {
	switch cfg.VectorBackend {
	case "pgvector":
		if !store.IsPostgres() {
			return nil, fmt.Errorf("%w: pgvector requires a postgres database", config.ErrInvalidConfig)
		}
		index, err := repository.NewPgVectorIndex(ctx, store.DB(), dims)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgvector index: %w", err)
		}
		return index, nil
	case "chromem", "":
		index, err := memory.NewChromemIndex(cfg.ChromemPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create chromem index: %w", err)
		}
		return index, nil
	default:
		return nil, fmt.Errorf("%w: unknown vector backend %q", config.ErrInvalidConfig, cfg.VectorBackend)
	}
}

func (a *app) close() {
	if closer, ok := a.embedder.(interface{ Close() }); ok {
		closer.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	a.ctrl, a.store, a.embedder = nil, nil, nil
}
