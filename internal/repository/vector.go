package repository

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type fragmentVectorModel struct {
	ID        string          `gorm:"primaryKey"`
	Embedding pgvector.Vector `gorm:"type:vector"`
}

func (fragmentVectorModel) TableName() string {
	return "fragment_vectors"
}

// PgVectorIndex is a nearest-neighbour index on a postgres pgvector column.
type PgVectorIndex struct {
	db *gorm.DB
}

// NewPgVectorIndex creates the vector extension and table if needed.
func NewPgVectorIndex(ctx context.Context, db *gorm.DB, dimensions int) (*PgVectorIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("invalid vector dimensions: %d", dimensions)
	}
	tx := db.WithContext(ctx)
	if err := tx.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("failed to create vector extension: %w", err)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS fragment_vectors (
		id TEXT PRIMARY KEY,
		embedding vector(%d) NOT NULL
	)`, dimensions)
	if err := tx.Exec(ddl).Error; err != nil {
		return nil, fmt.Errorf("failed to create fragment_vectors table: %w", err)
	}
	return &PgVectorIndex{db: db}, nil
}

func (x *PgVectorIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d != %d", len(ids), len(vectors))
	}
	if len(ids) == 0 {
		return nil
	}
	records := make([]fragmentVectorModel, 0, len(ids))
	for i, id := range ids {
		records = append(records, fragmentVectorModel{ID: id, Embedding: pgvector.NewVector(vectors[i])})
	}
	if err := x.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&records).Error; err != nil {
		return fmt.Errorf("failed to insert fragment vectors: %w", err)
	}
	return nil
}

// Search orders by cosine distance (<=>), nearest first.
func (x *PgVectorIndex) Search(ctx context.Context, query []float32, k int) ([]float32, []string, error) {
	if k <= 0 || len(query) == 0 {
		return nil, nil, nil
	}
	var rows []struct {
		ID       string
		Distance float64
	}
	if err := x.db.WithContext(ctx).
		Raw(`SELECT id, embedding <=> ? AS distance FROM fragment_vectors ORDER BY distance LIMIT ?`, pgvector.NewVector(query), k).
		Scan(&rows).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to search fragment vectors: %w", err)
	}
	distances := make([]float32, 0, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		distances = append(distances, float32(row.Distance))
		ids = append(ids, row.ID)
	}
	return distances, ids, nil
}

func (x *PgVectorIndex) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := x.db.WithContext(ctx).Where("id IN ?", ids).Delete(&fragmentVectorModel{}).Error; err != nil {
		return fmt.Errorf("failed to delete fragment vectors: %w", err)
	}
	return nil
}

func (x *PgVectorIndex) Size(ctx context.Context) (int, error) {
	var n int64
	if err := x.db.WithContext(ctx).Model(&fragmentVectorModel{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count fragment vectors: %w", err)
	}
	return int(n), nil
}
