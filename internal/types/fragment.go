package types

import "time"

// ContentType classifies a vector fragment.
type ContentType string

const (
	ContentSummary ContentType = "summary"
	ContentInsight ContentType = "insight"
	ContentEvent   ContentType = "event"
)

// FragmentMetadata carries the bookkeeping used for ranking and pruning.
type FragmentMetadata struct {
	DocID           string      `json:"doc_id"`
	SourceSessionID string      `json:"source_session_id"`
	ContentType     ContentType `json:"content_type"`
	Tags            []string    `json:"tags"`
	ImportanceScore float64     `json:"importance_score"`
	CreatedAt       time.Time   `json:"created_at"`
	LastUpdated     time.Time   `json:"last_updated"`
	LastAccessed    time.Time   `json:"last_accessed"`
	AccessCount     int         `json:"access_count"`
}

// HasTag reports whether the fragment carries tag.
func (m FragmentMetadata) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Fragment is a short summary stored in the semantic archive.
type Fragment struct {
	ID              string           `json:"id"`
	Embedding       []float32        `json:"-"`
	Content         string           `json:"content"`
	Metadata        FragmentMetadata `json:"metadata"`
	SimilarityScore float64          `json:"similarity_score,omitempty"`
}
