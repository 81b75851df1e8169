package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/easeaico/her-memory/internal/graph"
	"github.com/easeaico/her-memory/internal/types"
)

type factModel struct {
	ID           string `gorm:"primaryKey"`
	Entity       string `gorm:"index"`
	Attribute    string
	CurrentValue string
	// History keeps every version, oldest first.
	History         []types.FactVersion `gorm:"serializer:json;type:text"`
	ImportanceScore float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (factModel) TableName() string {
	return "facts"
}

// FindFacts matches entity, attribute and current value.
func (s *GraphStore) FindFacts(ctx context.Context, q graph.Query) ([]types.Fact, error) {
	db := s.db.WithContext(ctx).Model(&factModel{})
	if q.EntityScope != "" {
		db = db.Where("entity = ?", q.EntityScope)
	}
	var records []factModel
	if err := applyKeywords(db, q, "entity", "attribute", "current_value").
		Order("importance_score DESC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query facts: %w", err)
	}
	out := make([]types.Fact, 0, len(records))
	for _, r := range records {
		out = append(out, factFromModel(r))
	}
	return out, nil
}

// GetFact fetches one fact with its history.
func (s *GraphStore) GetFact(ctx context.Context, id string) (*types.Fact, error) {
	var record factModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&record).Error; err != nil {
		return nil, notFound(err)
	}
	f := factFromModel(record)
	return &f, nil
}

func (t *graphTx) CreateFact(ctx context.Context, f types.Fact) error {
	record := factModel{
		ID:              f.ID,
		Entity:          f.Entity,
		Attribute:       f.Attribute,
		CurrentValue:    f.CurrentValue,
		History:         f.History,
		ImportanceScore: f.ImportanceScore,
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.LastUpdated,
	}
	if err := t.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to insert fact: %w", err)
	}
	return nil
}

// AppendFactVersion adds v to the history and makes it the current value.
func (t *graphTx) AppendFactVersion(ctx context.Context, id string, v types.FactVersion) (*types.Fact, error) {
	var record factModel
	if err := t.db.WithContext(ctx).Where("id = ?", id).Take(&record).Error; err != nil {
		return nil, notFound(err)
	}
	record.History = append(record.History, v)
	record.CurrentValue = v.Value
	record.UpdatedAt = v.Timestamp
	if err := t.db.WithContext(ctx).Save(&record).Error; err != nil {
		return nil, fmt.Errorf("failed to update fact history: %w", err)
	}
	f := factFromModel(record)
	return &f, nil
}

func factFromModel(model factModel) types.Fact {
	return types.Fact{
		ID:              model.ID,
		Entity:          model.Entity,
		Attribute:       model.Attribute,
		CurrentValue:    model.CurrentValue,
		History:         model.History,
		ImportanceScore: model.ImportanceScore,
		CreatedAt:       model.CreatedAt,
		LastUpdated:     model.UpdatedAt,
	}
}
