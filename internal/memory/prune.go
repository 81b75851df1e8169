package memory

import (
	"math"
	"sort"
	"time"

	"github.com/easeaico/her-memory/internal/types"
)

const (
	ageHorizon    = 30 * 24 * time.Hour
	accessHorizon = 7 * 24 * time.Hour
)

// CompositeScore ranks a fragment for retention:
// 0.4·importance + 3·age_factor + 2·recent_access_factor + 0.1·ln(access_count+1).
func CompositeScore(f types.Fragment, now time.Time) float64 {
	age := math.Max(0, 1-now.Sub(f.Metadata.CreatedAt).Hours()/ageHorizon.Hours())
	recent := 0.0
	if !f.Metadata.LastAccessed.IsZero() {
		recent = math.Max(0, 1-now.Sub(f.Metadata.LastAccessed).Hours()/accessHorizon.Hours())
	}
	return 0.4*f.Metadata.ImportanceScore +
		0.3*10*math.Min(1, age) +
		0.2*10*math.Min(1, recent) +
		0.1*math.Log(float64(f.Metadata.AccessCount)+1)
}

// selectForPruning splits fragments into the top limit by composite score and the rest.
func selectForPruning(fragments []types.Fragment, limit int, now time.Time) (keep, drop []types.Fragment) {
	if limit < 0 {
		limit = 0
	}
	if len(fragments) <= limit {
		return fragments, nil
	}
	scores := make(map[string]float64, len(fragments))
	for _, f := range fragments {
		scores[f.ID] = CompositeScore(f, now)
	}
	sorted := append([]types.Fragment(nil), fragments...)
	sort.SliceStable(sorted, func(i, j int) bool {
		si, sj := scores[sorted[i].ID], scores[sorted[j].ID]
		if si != sj {
			return si > sj
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted[:limit], sorted[limit:]
}
