package types

// L1Result is the working-memory retrieval result.
type L1Result struct {
	Turns          []Turn  `json:"turns"`
	RelevanceScore float64 `json:"relevance_score"`
	TokenCount     int     `json:"token_count"`
}

// L2Result is the graph-memory retrieval result.
type L2Result struct {
	Characters     []Character    `json:"characters"`
	Facts          []Fact         `json:"facts"`
	Relationships  []Relationship `json:"relationships"`
	RelevanceScore float64        `json:"relevance_score"`
	TokenCount     int            `json:"token_count"`
}

// ItemCount is the number of items returned by the graph tier.
func (r L2Result) ItemCount() int {
	return len(r.Characters) + len(r.Facts) + len(r.Relationships)
}

// L3Result is the vector-memory retrieval result.
type L3Result struct {
	Fragments      []Fragment `json:"fragments"`
	RelevanceScore float64    `json:"relevance_score"`
	TokenCount     int        `json:"token_count"`
}

// FusionWeights is the per-tier contribution triple.
type FusionWeights struct {
	L1 float64 `json:"l1" yaml:"l1"`
	L2 float64 `json:"l2" yaml:"l2"`
	L3 float64 `json:"l3" yaml:"l3"`
}

// Sum returns L1+L2+L3.
func (w FusionWeights) Sum() float64 {
	return w.L1 + w.L2 + w.L3
}

// ContextItem is one ranked entry of a fused result.
type ContextItem struct {
	Tier       Tier    `json:"tier"`
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
	TokenCount int     `json:"token_count"`
}

// FusedResult is the ranked, token-budgeted result of a query.
type FusedResult struct {
	L1               L1Result      `json:"l1"`
	L2               L2Result      `json:"l2"`
	L3               L3Result      `json:"l3"`
	Weights          FusionWeights `json:"weights"`
	WeightedScore    float64       `json:"weighted_score"`
	ImportanceFactor float64       `json:"importance_factor"`
	DecayFactor      float64       `json:"decay_factor"`
	FinalScore       float64       `json:"final_score"`
	TotalTokens      int           `json:"total_tokens"`
	Items            []ContextItem `json:"items"`
	// DegradedTiers lists tiers treated as empty after a failure.
	DegradedTiers []Tier `json:"degraded_tiers,omitempty"`
}
