package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"github.com/easeaico/her-memory/internal/graph"
	"github.com/easeaico/her-memory/internal/types"
)

type characterModel struct {
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"index"`
	Valence   float64
	Arousal   float64
	Dominance float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (characterModel) TableName() string {
	return "characters"
}

// FindCharacters matches character names against the query keywords.
func (s *GraphStore) FindCharacters(ctx context.Context, q graph.Query) ([]types.Character, error) {
	db := s.db.WithContext(ctx).Model(&characterModel{})
	if q.EntityScope != "" {
		db = db.Where("id = ?", q.EntityScope)
	}
	var records []characterModel
	if err := applyKeywords(db, q, "name").Order("updated_at DESC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query characters: %w", err)
	}
	return charactersFromModels(records), nil
}

// ListCharacters returns every character ordered by name.
func (s *GraphStore) ListCharacters(ctx context.Context) ([]types.Character, error) {
	var records []characterModel
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list characters: %w", err)
	}
	return charactersFromModels(records), nil
}

func (t *graphTx) GetCharacter(ctx context.Context, id string) (*types.Character, error) {
	var record characterModel
	if err := t.db.WithContext(ctx).Where("id = ?", id).Take(&record).Error; err != nil {
		return nil, notFound(err)
	}
	c := characterFromModel(record)
	return &c, nil
}

// UpsertCharacter creates the character or overwrites its name and emotional state.
func (t *graphTx) UpsertCharacter(ctx context.Context, c types.Character) error {
	record := characterToModel(c)
	if err := t.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "valence", "arousal", "dominance", "updated_at"}),
	}).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to upsert character: %w", err)
	}
	return nil
}

func characterToModel(c types.Character) characterModel {
	return characterModel{
		ID:        c.ID,
		Name:      c.Name,
		Valence:   c.EmotionalState.Valence,
		Arousal:   c.EmotionalState.Arousal,
		Dominance: c.EmotionalState.Dominance,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.LastUpdated,
	}
}

func characterFromModel(model characterModel) types.Character {
	return types.Character{
		ID:   model.ID,
		Name: model.Name,
		EmotionalState: types.VAD{
			Valence:   model.Valence,
			Arousal:   model.Arousal,
			Dominance: model.Dominance,
		},
		CreatedAt:   model.CreatedAt,
		LastUpdated: model.UpdatedAt,
	}
}

func charactersFromModels(records []characterModel) []types.Character {
	out := make([]types.Character, 0, len(records))
	for _, r := range records {
		out = append(out, characterFromModel(r))
	}
	return out
}
