package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"github.com/easeaico/her-memory/internal/types"
)

type sessionModel struct {
	ID        string `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (sessionModel) TableName() string {
	return "sessions"
}

type turnModel struct {
	ID         string `gorm:"primaryKey"`
	SessionID  string `gorm:"index"`
	Role       string
	Content    string
	TokenCount int
	EntityID   string
	Timestamp  time.Time `gorm:"column:occurred_at;index"`
}

func (turnModel) TableName() string {
	return "turns"
}

// SaveTurn stores the turn and links it to its session, creating the session on first use.
func (t *graphTx) SaveTurn(ctx context.Context, sessionID string, turn types.Turn) error {
	db := t.db.WithContext(ctx)
	now := time.Now()
	sess := sessionModel{ID: sessionID, CreatedAt: now, UpdatedAt: now}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"updated_at"}),
	}).Create(&sess).Error; err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}

	record := turnModel{
		ID:         turn.ID,
		SessionID:  sessionID,
		Role:       string(turn.Role),
		Content:    turn.Content,
		TokenCount: turn.TokenCount,
		EntityID:   turn.EntityID,
		Timestamp:  turn.Timestamp,
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}
	return nil
}

// ListTurns returns up to limit persisted turns of a session, oldest first.
func (s *GraphStore) ListTurns(ctx context.Context, sessionID string, limit int) ([]types.Turn, error) {
	query := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("occurred_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var records []turnModel
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query chat history: %w", err)
	}

	results := make([]types.Turn, 0, len(records))
	for _, record := range records {
		results = append(results, types.Turn{
			ID:         record.ID,
			Role:       types.Role(record.Role),
			Content:    record.Content,
			Timestamp:  record.Timestamp,
			TokenCount: record.TokenCount,
			EntityID:   record.EntityID,
		})
	}

	// Oldest -> newest
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	return results, nil
}
