package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/easeaico/her-memory/internal/types"
)

// fragmentModel maps to the fragments table.
type fragmentModel struct {
	ID      string `gorm:"primaryKey"`
	Content string
	// Embedding is kept as JSON so the table works on both postgres and sqlite;
	// similarity search runs against the vector index, not this column.
	Embedding       []float32 `gorm:"serializer:json;type:text"`
	DocID           string
	SourceSessionID string `gorm:"index"`
	ContentType     string
	Tags            []string `gorm:"serializer:json;type:text"`
	ImportanceScore float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastAccessed    time.Time
	AccessCount     int
}

func (fragmentModel) TableName() string {
	return "fragments"
}

// FragmentRepo is a gorm-backed fragment store.
type FragmentRepo struct {
	db *gorm.DB
}

// NewFragmentRepo returns a FragmentRepo.
func NewFragmentRepo(db *gorm.DB) *FragmentRepo {
	return &FragmentRepo{db: db}
}

func (r *FragmentRepo) Save(ctx context.Context, f types.Fragment) error {
	record := fragmentToModel(f)
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to insert fragment: %w", err)
	}
	return nil
}

func (r *FragmentRepo) Get(ctx context.Context, ids []string) ([]types.Fragment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var records []fragmentModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query fragments: %w", err)
	}
	return fragmentsFromModels(records), nil
}

func (r *FragmentRepo) Touch(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Model(&fragmentModel{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"access_count":  gorm.Expr("access_count + 1"),
			"last_accessed": at,
		}).Error; err != nil {
		return fmt.Errorf("failed to update fragment access: %w", err)
	}
	return nil
}

func (r *FragmentRepo) All(ctx context.Context) ([]types.Fragment, error) {
	var records []fragmentModel
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list fragments: %w", err)
	}
	return fragmentsFromModels(records), nil
}

func (r *FragmentRepo) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&fragmentModel{}).Error; err != nil {
		return fmt.Errorf("failed to delete fragments: %w", err)
	}
	return nil
}

func (r *FragmentRepo) Count(ctx context.Context) (int, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&fragmentModel{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count fragments: %w", err)
	}
	return int(n), nil
}

func fragmentToModel(f types.Fragment) fragmentModel {
	return fragmentModel{
		ID:              f.ID,
		Content:         f.Content,
		Embedding:       f.Embedding,
		DocID:           f.Metadata.DocID,
		SourceSessionID: f.Metadata.SourceSessionID,
		ContentType:     string(f.Metadata.ContentType),
		Tags:            f.Metadata.Tags,
		ImportanceScore: f.Metadata.ImportanceScore,
		CreatedAt:       f.Metadata.CreatedAt,
		UpdatedAt:       f.Metadata.LastUpdated,
		LastAccessed:    f.Metadata.LastAccessed,
		AccessCount:     f.Metadata.AccessCount,
	}
}

// fragmentsFromModels converts database models to domain structs.
func fragmentsFromModels(records []fragmentModel) []types.Fragment {
	out := make([]types.Fragment, 0, len(records))
	for _, m := range records {
		out = append(out, types.Fragment{
			ID:        m.ID,
			Embedding: m.Embedding,
			Content:   m.Content,
			Metadata: types.FragmentMetadata{
				DocID:           m.DocID,
				SourceSessionID: m.SourceSessionID,
				ContentType:     types.ContentType(m.ContentType),
				Tags:            m.Tags,
				ImportanceScore: m.ImportanceScore,
				CreatedAt:       m.CreatedAt,
				LastUpdated:     m.UpdatedAt,
				LastAccessed:    m.LastAccessed,
				AccessCount:     m.AccessCount,
			},
		})
	}
	return out
}
