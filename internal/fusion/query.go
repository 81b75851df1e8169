package fusion

import (
	"math"
	"strings"

	"github.com/easeaico/her-memory/internal/types"
)

// QueryType is a coarse query archetype used to re-bias weights.
type QueryType string

const (
	QueryRecent   QueryType = "recent"
	QueryFactual  QueryType = "factual"
	QuerySemantic QueryType = "semantic"
)

var (
	recentPrefixes = []string{"what did i just", "what did you just", "just now", "earlier", "recently", "a moment ago"}
	recentMarkers  = []string{"just said", "last thing", "you just", "i just", "a minute ago", "this conversation", "today"}

	semanticPrefixes = []string{"remember when", "remind me", "how did", "how do i feel", "why did"}
	semanticMarkers  = []string{"similar", "feel about", "felt", "reminds", "like when", "the time when", "memories of"}
)

// AnalyzeQuery classifies text by keyword prefix and substring rules, defaulting to factual.
func AnalyzeQuery(text string) QueryType {
	q := strings.ToLower(strings.TrimSpace(text))
	switch {
	case hasAnyPrefix(q, recentPrefixes) || containsAny(q, recentMarkers):
		return QueryRecent
	case hasAnyPrefix(q, semanticPrefixes) || containsAny(q, semanticMarkers):
		return QuerySemantic
	default:
		return QueryFactual
	}
}

// OptimizeWeights boosts the tier that suits qt (L1 ×1.5, L2 ×1.4, L3 ×1.6) and renormalizes to sum 1.
func OptimizeWeights(qt QueryType, base types.FusionWeights) types.FusionWeights {
	w := base
	switch qt {
	case QueryRecent:
		w.L1 *= 1.5
	case QueryFactual:
		w.L2 *= 1.4
	case QuerySemantic:
		w.L3 *= 1.6
	}
	sum := w.Sum()
	if sum <= 0 {
		return base
	}
	return types.FusionWeights{L1: w.L1 / sum, L2: w.L2 / sum, L3: w.L3 / sum}
}

// Per-item token costs used by EstimateTokenCost.
const (
	TurnCost     = 50
	GraphCost    = 35
	FragmentCost = 100
)

// TierCounts is the number of items available per tier.
type TierCounts struct {
	L1 int `json:"l1"`
	L2 int `json:"l2"`
	L3 int `json:"l3"`
}

// CostEstimate is a weight-scaled token estimate per tier.
type CostEstimate struct {
	L1    int `json:"l1"`
	L2    int `json:"l2"`
	L3    int `json:"l3"`
	Total int `json:"total"`
}

// EstimateTokenCost estimates the tokens a retrieval would produce without performing it.
func EstimateTokenCost(counts TierCounts, w types.FusionWeights) CostEstimate {
	est := CostEstimate{
		L1: int(math.Round(float64(counts.L1*TurnCost) * w.L1)),
		L2: int(math.Round(float64(counts.L2*GraphCost) * w.L2)),
		L3: int(math.Round(float64(counts.L3*FragmentCost) * w.L3)),
	}
	est.Total = est.L1 + est.L2 + est.L3
	return est
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
