package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/easeaico/her-memory/internal/graph"
	"github.com/easeaico/her-memory/internal/types"
)

type relationshipModel struct {
	ID               string `gorm:"primaryKey"`
	FromEntity       string `gorm:"index"`
	ToEntity         string `gorm:"index"`
	RelationshipType string
	Strength         float64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (relationshipModel) TableName() string {
	return "relationships"
}

// FindRelationships matches relationship type and endpoint ids.
func (s *GraphStore) FindRelationships(ctx context.Context, q graph.Query) ([]types.Relationship, error) {
	db := s.db.WithContext(ctx).Model(&relationshipModel{})
	if q.EntityScope != "" {
		db = db.Where("(from_entity = ? OR to_entity = ?)", q.EntityScope, q.EntityScope)
	}
	var records []relationshipModel
	if err := applyKeywords(db, q, "relationship_type", "from_entity", "to_entity").
		Order("created_at DESC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}
	out := make([]types.Relationship, 0, len(records))
	for _, r := range records {
		out = append(out, types.Relationship{
			ID:               r.ID,
			FromEntity:       r.FromEntity,
			ToEntity:         r.ToEntity,
			RelationshipType: r.RelationshipType,
			Strength:         r.Strength,
			CreatedAt:        r.CreatedAt,
			LastUpdated:      r.UpdatedAt,
		})
	}
	return out, nil
}

func (t *graphTx) CreateRelationship(ctx context.Context, r types.Relationship) error {
	record := relationshipModel{
		ID:               r.ID,
		FromEntity:       r.FromEntity,
		ToEntity:         r.ToEntity,
		RelationshipType: r.RelationshipType,
		Strength:         r.Strength,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.LastUpdated,
	}
	if err := t.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to insert relationship: %w", err)
	}
	return nil
}
