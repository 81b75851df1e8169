package types

// EventType is a discrete conversational event category.
type EventType string

const (
	EventRelationshipChange EventType = "relationship_change"
	EventConflict           EventType = "conflict"
	EventResolution         EventType = "resolution"
	EventAchievement        EventType = "achievement"
	EventLoss               EventType = "loss"
	EventFactAssertion      EventType = "fact_assertion"
)

// EntityType labels a named entity.
type EntityType string

const (
	EntityPerson EntityType = "PERSON"
	EntityPlace  EntityType = "PLACE"
	EntityObject EntityType = "OBJECT"
)

// NamedEntity is an entity mention found in a turn.
type NamedEntity struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Type EntityType `json:"type"`
}

// FactAssertion is the payload of a fact_assertion event.
type FactAssertion struct {
	Entity    string `json:"entity"`
	Attribute string `json:"attribute"`
	Value     string `json:"value"`
}

// DetectedEvent is a single event hit in a turn.
type DetectedEvent struct {
	Type             EventType      `json:"type"`
	Keyword          string         `json:"keyword"`
	Confidence       float64        `json:"confidence"`
	Description      string         `json:"description"`
	EntitiesInvolved []string       `json:"entities_involved"`
	Fact             *FactAssertion `json:"fact,omitempty"`
}

// EmotionalChange records a VAD shift for one entity.
type EmotionalChange struct {
	EntityID      string  `json:"entity_id"`
	EntityName    string  `json:"entity_name"`
	PreviousState VAD     `json:"previous_state"`
	NewState      VAD     `json:"new_state"`
	Delta         float64 `json:"delta"`
}

// EventDetection is the output of the significance scorer.
type EventDetection struct {
	IsSignificant     bool              `json:"is_significant"`
	SignificanceScore float64           `json:"significance_score"`
	DetectedEvents    []DetectedEvent   `json:"detected_events"`
	EmotionalChanges  []EmotionalChange `json:"emotional_changes"`
	NamedEntities     []NamedEntity     `json:"named_entities"`
}
