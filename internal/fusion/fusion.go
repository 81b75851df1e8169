// Package fusion blends per-tier retrieval results into one ranked, token-budgeted result.
package fusion

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/easeaico/her-memory/internal/emotion"
	"github.com/easeaico/her-memory/internal/types"
)

const (
	l1DecayFloor = 0.5
	l2DecayFloor = 0.2
	l3DecayFloor = 0.1

	minDecay        = 0.2
	emptyDecay      = 0.5
	emptyImportance = 0.3
	l1Importance    = 0.8

	recentAccessWindow = 7 * 24 * time.Hour
)

// Options carries the decay and budget coefficients for one Combine call.
type Options struct {
	ImportanceDecayRate float64
	AccessBoostFactor   float64
	RecencyBoostFactor  float64
	// MaxContextTokens bounds the Items list; zero means unbounded.
	MaxContextTokens int
	// Now is the reference time for ages; zero means time.Now().
	Now time.Time
}

// Combine fuses the three tier results under weights.
func Combine(l1 types.L1Result, l2 types.L2Result, l3 types.L3Result, weights types.FusionWeights, opts Options) types.FusedResult {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	weighted := weights.L1*l1.RelevanceScore + weights.L2*l2.RelevanceScore + weights.L3*l3.RelevanceScore
	importance := importanceFactor(l1, l2, l3)
	decay := decayFactor(l1, l2, l3, opts, now)
	final := math.Max(0, math.Min(1, weighted*importance*decay))

	items := rankItems(l1, l2, l3, weights, opts, now)
	items, tokens := budget(items, opts.MaxContextTokens)

	return types.FusedResult{
		L1:               l1,
		L2:               l2,
		L3:               l3,
		Weights:          weights,
		WeightedScore:    weighted,
		ImportanceFactor: importance,
		DecayFactor:      decay,
		FinalScore:       final,
		TotalTokens:      tokens,
		Items:            items,
	}
}

func importanceFactor(l1 types.L1Result, l2 types.L2Result, l3 types.L3Result) float64 {
	var values []float64
	if len(l1.Turns) > 0 {
		values = append(values, l1Importance)
	}
	for _, f := range l2.Facts {
		values = append(values, math.Min(1, f.ImportanceScore/10))
	}
	for _, f := range l3.Fragments {
		values = append(values, math.Min(1, f.Metadata.ImportanceScore/10))
	}
	if len(values) == 0 {
		return emptyImportance
	}
	return mean(values)
}

func decayFactor(l1 types.L1Result, l2 types.L2Result, l3 types.L3Result, opts Options, now time.Time) float64 {
	var values []float64
	for _, t := range l1.Turns {
		values = append(values, turnDecay(t, opts, now))
	}
	for _, c := range l2.Characters {
		values = append(values, graphDecay(c.LastUpdated, opts, now))
	}
	for _, f := range l2.Facts {
		values = append(values, graphDecay(f.LastUpdated, opts, now))
	}
	for _, r := range l2.Relationships {
		values = append(values, graphDecay(r.LastUpdated, opts, now))
	}
	for _, f := range l3.Fragments {
		values = append(values, FragmentDecay(f, opts, now))
	}
	if len(values) == 0 {
		return emptyDecay
	}
	return math.Max(minDecay, mean(values))
}

// Decay is exp(-rate·age_days), never below floor.
func Decay(created time.Time, rate, floor float64, now time.Time) float64 {
	days := now.Sub(created).Hours() / 24
	if days < 0 || created.IsZero() {
		days = 0
	}
	return math.Max(floor, math.Exp(-rate*days))
}

func turnDecay(t types.Turn, opts Options, now time.Time) float64 {
	return Decay(t.Timestamp, opts.ImportanceDecayRate, l1DecayFloor, now)
}

func graphDecay(updated time.Time, opts Options, now time.Time) float64 {
	return Decay(updated, opts.ImportanceDecayRate, l2DecayFloor, now)
}

// FragmentDecay applies the access-count boost and the recent-access multiplier to a fragment's age decay.
func FragmentDecay(f types.Fragment, opts Options, now time.Time) float64 {
	d := Decay(f.Metadata.CreatedAt, opts.ImportanceDecayRate, l3DecayFloor, now)
	boost := 1 + 0.1*float64(f.Metadata.AccessCount)
	if opts.AccessBoostFactor > 0 {
		boost = math.Min(opts.AccessBoostFactor, boost)
	}
	d *= boost
	if !f.Metadata.LastAccessed.IsZero() && now.Sub(f.Metadata.LastAccessed) <= recentAccessWindow && opts.RecencyBoostFactor > 0 {
		d *= opts.RecencyBoostFactor
	}
	return d
}

// rankItems scores every retrieved item by tier weight × item score × item decay.
func rankItems(l1 types.L1Result, l2 types.L2Result, l3 types.L3Result, w types.FusionWeights, opts Options, now time.Time) []types.ContextItem {
	var items []types.ContextItem
	n := float64(len(l1.Turns))
	for i, t := range l1.Turns {
		recency := float64(i+1) / n
		items = append(items, types.ContextItem{
			Tier:       types.TierL1,
			ID:         t.ID,
			Text:       fmt.Sprintf("%s: %s", t.Role, t.Content),
			Score:      w.L1 * recency * turnDecay(t, opts, now),
			TokenCount: tokensOf(t),
		})
	}
	for _, c := range l2.Characters {
		items = append(items, types.ContextItem{
			Tier:       types.TierL2,
			ID:         c.ID,
			Text:       fmt.Sprintf("%s is feeling %s", c.Name, emotion.Mood(c.EmotionalState)),
			Score:      w.L2 * 0.5 * graphDecay(c.LastUpdated, opts, now),
			TokenCount: 50,
		})
	}
	for _, f := range l2.Facts {
		items = append(items, types.ContextItem{
			Tier:       types.TierL2,
			ID:         f.ID,
			Text:       fmt.Sprintf("%s %s: %s", f.Entity, f.Attribute, f.CurrentValue),
			Score:      w.L2 * math.Min(1, f.ImportanceScore/10) * graphDecay(f.LastUpdated, opts, now),
			TokenCount: 30,
		})
	}
	for _, r := range l2.Relationships {
		items = append(items, types.ContextItem{
			Tier:       types.TierL2,
			ID:         r.ID,
			Text:       fmt.Sprintf("%s -[%s]-> %s", r.FromEntity, r.RelationshipType, r.ToEntity),
			Score:      w.L2 * r.Strength * graphDecay(r.LastUpdated, opts, now),
			TokenCount: 25,
		})
	}
	for _, f := range l3.Fragments {
		items = append(items, types.ContextItem{
			Tier:       types.TierL3,
			ID:         f.ID,
			Text:       f.Content,
			Score:      w.L3 * f.SimilarityScore * math.Min(1, FragmentDecay(f, opts, now)),
			TokenCount: types.EstimateTokens(f.Content),
		})
	}

	kept := items[:0]
	for _, it := range items {
		if it.Score > 0 {
			kept = append(kept, it)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	return kept
}

// budget keeps items in rank order while they fit in maxTokens, skipping any that would overflow.
func budget(items []types.ContextItem, maxTokens int) ([]types.ContextItem, int) {
	total := 0
	out := make([]types.ContextItem, 0, len(items))
	for _, it := range items {
		if maxTokens > 0 && total+it.TokenCount > maxTokens {
			continue
		}
		out = append(out, it)
		total += it.TokenCount
	}
	return out, total
}

func tokensOf(t types.Turn) int {
	if t.TokenCount > 0 {
		return t.TokenCount
	}
	return types.EstimateTokens(t.Content)
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
