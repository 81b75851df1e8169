package fusion

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easeaico/her-memory/internal/types"
)

var defaultWeights = types.FusionWeights{L1: 0.3, L2: 0.4, L3: 0.3}

func testOptions(now time.Time) Options {
	return Options{
		ImportanceDecayRate: 0.05,
		AccessBoostFactor:   1.5,
		RecencyBoostFactor:  1.2,
		MaxContextTokens:    2000,
		Now:                 now,
	}
}

func sampleTiers(now time.Time) (types.L1Result, types.L2Result, types.L3Result) {
	l1 := types.L1Result{
		Turns: []types.Turn{
			{ID: "t1", Role: types.RoleUser, Content: "hi there", Timestamp: now.Add(-time.Minute), TokenCount: 3},
			{ID: "t2", Role: types.RoleAssistant, Content: "hello!", Timestamp: now, TokenCount: 2},
		},
		RelevanceScore: 0.6,
		TokenCount:     5,
	}
	l2 := types.L2Result{
		Characters:     []types.Character{{ID: "bob", Name: "Bob", EmotionalState: types.NeutralVAD(), LastUpdated: now}},
		Facts:          []types.Fact{{ID: "f1", Entity: "bob", Attribute: "likes", CurrentValue: "tea", ImportanceScore: 6, LastUpdated: now.Add(-48 * time.Hour)}},
		RelevanceScore: 0.2,
		TokenCount:     80,
	}
	l3 := types.L3Result{
		Fragments: []types.Fragment{{
			ID:              "g1",
			Content:         "Bob adopted a puppy",
			SimilarityScore: 0.9,
			Metadata: types.FragmentMetadata{
				ImportanceScore: 8,
				CreatedAt:       now.Add(-72 * time.Hour),
				LastAccessed:    now.Add(-time.Hour),
				AccessCount:     2,
			},
		}},
		RelevanceScore: 0.9,
		TokenCount:     5,
	}
	return l1, l2, l3
}

func TestCombineEmptyIsZero(t *testing.T) {
	got := Combine(types.L1Result{}, types.L2Result{}, types.L3Result{}, defaultWeights, testOptions(time.Now()))
	assert.Equal(t, 0.0, got.FinalScore)
	assert.Equal(t, 0.5, got.DecayFactor)
	assert.Equal(t, 0.3, got.ImportanceFactor)
	assert.Empty(t, got.Items)
	assert.Equal(t, 0, got.TotalTokens)
}

func TestCombineFormula(t *testing.T) {
	now := time.Now()
	l1, l2, l3 := sampleTiers(now)
	got := Combine(l1, l2, l3, defaultWeights, testOptions(now))

	assert.InDelta(t, 0.3*0.6+0.4*0.2+0.3*0.9, got.WeightedScore, 1e-9)
	assert.InDelta(t, (0.8+0.6+0.8)/3, got.ImportanceFactor, 1e-9)
	assert.InDelta(t, got.WeightedScore*got.ImportanceFactor*got.DecayFactor, got.FinalScore, 1e-9)
	assert.GreaterOrEqual(t, got.DecayFactor, 0.2)
	assert.Equal(t, defaultWeights, got.Weights)
	require.NotEmpty(t, got.Items)
	for i := 1; i < len(got.Items); i++ {
		assert.GreaterOrEqual(t, got.Items[i-1].Score, got.Items[i].Score)
	}
}

func TestCombineIsBounded(t *testing.T) {
	now := time.Now()
	rng := rand.New(rand.NewSource(7))
	l1, l2, l3 := sampleTiers(now)
	for i := 0; i < 500; i++ {
		a, b := rng.Float64(), rng.Float64()
		if a > b {
			a, b = b, a
		}
		w := types.FusionWeights{L1: a, L2: b - a, L3: 1 - b}
		l1.RelevanceScore = rng.Float64() * 3
		l2.RelevanceScore = rng.Float64() * 3
		l3.RelevanceScore = rng.Float64() * 3
		l3.Fragments[0].Metadata.AccessCount = rng.Intn(50)

		got := Combine(l1, l2, l3, w, testOptions(now))
		assert.GreaterOrEqual(t, got.FinalScore, 0.0)
		assert.LessOrEqual(t, got.FinalScore, 1.0)
	}
}

func TestCombineL1OnlyWeights(t *testing.T) {
	now := time.Now()
	l1, l2, l3 := sampleTiers(now)
	w := types.FusionWeights{L1: 1}

	got := Combine(l1, l2, l3, w, testOptions(now))
	assert.InDelta(t, l1.RelevanceScore, got.WeightedScore, 1e-9)

	l2.RelevanceScore, l3.RelevanceScore = 1, 1
	again := Combine(l1, l2, l3, w, testOptions(now))
	assert.InDelta(t, got.WeightedScore, again.WeightedScore, 1e-9)
	for _, item := range again.Items {
		assert.Equal(t, types.TierL1, item.Tier)
	}
}

func TestDecayMonotonicity(t *testing.T) {
	now := time.Now()
	opts := testOptions(now)
	for _, age := range []time.Duration{time.Hour, 24 * time.Hour, 10 * 24 * time.Hour, 100 * 24 * time.Hour} {
		newer := Decay(now.Add(-age), opts.ImportanceDecayRate, 0.1, now)
		older := Decay(now.Add(-2*age), opts.ImportanceDecayRate, 0.1, now)
		assert.LessOrEqual(t, older, newer)

		fresh := types.Fragment{Metadata: types.FragmentMetadata{CreatedAt: now.Add(-age), LastAccessed: now, AccessCount: 3}}
		stale := fresh
		stale.Metadata.CreatedAt = now.Add(-2 * age)
		assert.LessOrEqual(t, FragmentDecay(stale, opts, now), FragmentDecay(fresh, opts, now))
	}
}

func TestDecayFloors(t *testing.T) {
	now := time.Now()
	ancient := now.Add(-10 * 365 * 24 * time.Hour)
	assert.Equal(t, 0.5, Decay(ancient, 0.05, l1DecayFloor, now))
	assert.Equal(t, 0.2, Decay(ancient, 0.05, l2DecayFloor, now))
	assert.Equal(t, 0.1, Decay(ancient, 0.05, l3DecayFloor, now))
	assert.Equal(t, 1.0, Decay(now, 0.05, 0.1, now))
}

func TestFragmentDecayBoosts(t *testing.T) {
	now := time.Now()
	opts := testOptions(now)
	f := types.Fragment{Metadata: types.FragmentMetadata{CreatedAt: now, AccessCount: 100}}
	assert.InDelta(t, 1.5, FragmentDecay(f, opts, now), 1e-9)

	f.Metadata.LastAccessed = now.Add(-time.Hour)
	assert.InDelta(t, 1.5*1.2, FragmentDecay(f, opts, now), 1e-9)

	f.Metadata.LastAccessed = now.Add(-8 * 24 * time.Hour)
	assert.InDelta(t, 1.5, FragmentDecay(f, opts, now), 1e-9)
}

func TestItemsRespectTokenBudget(t *testing.T) {
	now := time.Now()
	l1, l2, l3 := sampleTiers(now)
	opts := testOptions(now)
	opts.MaxContextTokens = 40

	got := Combine(l1, l2, l3, defaultWeights, opts)
	assert.LessOrEqual(t, got.TotalTokens, 40)
	sum := 0
	for _, item := range got.Items {
		sum += item.TokenCount
	}
	assert.Equal(t, sum, got.TotalTokens)
}

func TestAnalyzeQuery(t *testing.T) {
	cases := map[string]QueryType{
		"What did I just say?":                 QueryRecent,
		"earlier you mentioned a dog":          QueryRecent,
		"Remember when we went hiking?":        QuerySemantic,
		"how do I feel about my brother":       QuerySemantic,
		"What is Bob's favorite food?":         QueryFactual,
		"":                                     QueryFactual,
		"something similar to the beach trip?": QuerySemantic,
	}
	for q, want := range cases {
		assert.Equal(t, want, AnalyzeQuery(q), q)
	}
}

func TestOptimizeWeights(t *testing.T) {
	got := OptimizeWeights(QueryRecent, defaultWeights)
	assert.InDelta(t, 1.0, got.Sum(), 1e-9)
	assert.Greater(t, got.L1, defaultWeights.L1)

	got = OptimizeWeights(QueryFactual, defaultWeights)
	assert.InDelta(t, 0.56/1.16, got.L2, 1e-9)

	got = OptimizeWeights(QuerySemantic, defaultWeights)
	assert.Greater(t, got.L3, defaultWeights.L3)

	zero := types.FusionWeights{}
	assert.Equal(t, zero, OptimizeWeights(QueryRecent, zero))
}

func TestEstimateTokenCost(t *testing.T) {
	got := EstimateTokenCost(TierCounts{L1: 10, L2: 4, L3: 2}, defaultWeights)
	assert.Equal(t, CostEstimate{L1: 150, L2: 56, L3: 60, Total: 266}, got)

	assert.Equal(t, CostEstimate{}, EstimateTokenCost(TierCounts{}, defaultWeights))
}
