package types

import (
	"strings"
	"time"
)

// VAD is a valence/arousal/dominance emotional state.
type VAD struct {
	Valence   float64 `json:"valence"`
	Arousal   float64 `json:"arousal"`
	Dominance float64 `json:"dominance"`
}

// NeutralVAD is the state assumed for entities with no emotional history.
func NeutralVAD() VAD {
	return VAD{Valence: 0, Arousal: 0.5, Dominance: 0.5}
}

// Character is a graph node for a person taking part in the conversation.
type Character struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	EmotionalState VAD       `json:"emotional_state"`
	CreatedAt      time.Time `json:"created_at"`
	LastUpdated    time.Time `json:"last_updated"`
}

// FactVersion is one entry of a fact's value history.
type FactVersion struct {
	Value      string    `json:"value"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence"`
}

// Fact is an attribute asserted about an entity.
type Fact struct {
	ID           string        `json:"id"`
	Entity       string        `json:"entity"`
	Attribute    string        `json:"attribute"`
	CurrentValue string        `json:"current_value"`
	History      []FactVersion `json:"history"`
	// ImportanceScore is in [0,10].
	ImportanceScore float64   `json:"importance_score"`
	CreatedAt       time.Time `json:"created_at"`
	LastUpdated     time.Time `json:"last_updated"`
}

// Relationship is a directed edge between two characters.
type Relationship struct {
	ID               string    `json:"id"`
	FromEntity       string    `json:"from_entity"`
	ToEntity         string    `json:"to_entity"`
	RelationshipType string    `json:"relationship_type"`
	Strength         float64   `json:"strength"`
	CreatedAt        time.Time `json:"created_at"`
	LastUpdated      time.Time `json:"last_updated"`
}

// EntityID normalizes a display name into a stable node id.
func EntityID(name string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(name)))
	return strings.Join(fields, "_")
}
