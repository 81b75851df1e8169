package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/easeaico/her-memory/internal/graph"
)

const defaultFindLimit = 20

// GraphStore implements graph.Store on gorm.
type GraphStore struct {
	db *gorm.DB
}

// NewGraphStore returns a GraphStore.
func NewGraphStore(db *gorm.DB) *GraphStore {
	return &GraphStore{db: db}
}

var _ graph.Store = (*GraphStore)(nil)

// WithTx runs fn inside a database transaction.
func (s *GraphStore) WithTx(ctx context.Context, fn func(tx graph.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&graphTx{db: tx})
	})
}

// Counts returns row counts for every graph table.
func (s *GraphStore) Counts(ctx context.Context) (graph.Counts, error) {
	var c graph.Counts
	db := s.db.WithContext(ctx)
	for _, q := range []struct {
		model any
		dst   *int64
	}{
		{&characterModel{}, &c.Characters},
		{&factModel{}, &c.Facts},
		{&relationshipModel{}, &c.Relationships},
		{&sessionModel{}, &c.Sessions},
		{&turnModel{}, &c.Turns},
	} {
		if err := db.Model(q.model).Count(q.dst).Error; err != nil {
			return graph.Counts{}, fmt.Errorf("failed to count graph rows: %w", err)
		}
	}
	return c, nil
}

type graphTx struct {
	db *gorm.DB
}

var _ graph.Tx = (*graphTx)(nil)

// likeAny builds a case-insensitive "any keyword in any column" condition.
func likeAny(columns, keywords []string) (string, []any) {
	parts := make([]string, 0, len(columns)*len(keywords))
	args := make([]any, 0, len(columns)*len(keywords))
	for _, k := range keywords {
		pattern := "%" + strings.ToLower(k) + "%"
		for _, c := range columns {
			parts = append(parts, "LOWER("+c+") LIKE ?")
			args = append(args, pattern)
		}
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

func applyKeywords(db *gorm.DB, q graph.Query, columns ...string) *gorm.DB {
	if len(q.Keywords) > 0 {
		cond, args := likeAny(columns, q.Keywords)
		db = db.Where(cond, args...)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultFindLimit
	}
	return db.Limit(limit)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return graph.ErrNotFound
	}
	return err
}
