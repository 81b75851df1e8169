package controller

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easeaico/her-memory/internal/audit"
	"github.com/easeaico/her-memory/internal/config"
	"github.com/easeaico/her-memory/internal/graph"
	"github.com/easeaico/her-memory/internal/memory"
	"github.com/easeaico/her-memory/internal/repository"
	"github.com/easeaico/her-memory/internal/types"
	"github.com/easeaico/her-memory/internal/working"
)

var errBroken = errors.New("graph store unavailable")

// brokenStore fails every call. With block set, transactions wait for the context instead.
type brokenStore struct {
	block bool
	panic bool
}

func (s brokenStore) WithTx(ctx context.Context, fn func(tx graph.Tx) error) error {
	if s.panic {
		panic("driver exploded")
	}
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return errBroken
}

func (brokenStore) FindCharacters(ctx context.Context, q graph.Query) ([]types.Character, error) {
	return nil, errBroken
}

func (brokenStore) FindFacts(ctx context.Context, q graph.Query) ([]types.Fact, error) {
	return nil, errBroken
}

func (brokenStore) FindRelationships(ctx context.Context, q graph.Query) ([]types.Relationship, error) {
	return nil, errBroken
}

func (brokenStore) GetFact(ctx context.Context, id string) (*types.Fact, error) {
	return nil, errBroken
}

func (brokenStore) ListCharacters(ctx context.Context) ([]types.Character, error) {
	return nil, errBroken
}

func (brokenStore) ListTurns(ctx context.Context, sessionID string, limit int) ([]types.Turn, error) {
	return nil, errBroken
}

func (brokenStore) Counts(ctx context.Context) (graph.Counts, error) {
	return graph.Counts{}, errBroken
}

// newTestController wires a controller over sqlite-backed graph memory unless store is given.
func newTestController(t *testing.T, store graph.Store, mutate func(*config.Config)) *Controller {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	holder, err := config.NewHolder(cfg)
	require.NoError(t, err)

	if store == nil {
		db, err := repository.NewStore(context.Background(), repository.Options{SQLitePath: filepath.Join(t.TempDir(), "memory.db")})
		require.NoError(t, err)
		t.Cleanup(db.Close)
		store = db.Graph
	}

	index, err := memory.NewChromemIndex("")
	require.NoError(t, err)
	vectors := memory.NewService(memory.NewHashEmbedder(64), index, memory.NewInMemoryFragmentStore(), nil)

	c, err := New(holder, working.New(), graph.New(store, nil), vectors, audit.New(nil), nil)
	require.NoError(t, err)
	return c
}

func lowThreshold(cfg *config.Config) {
	cfg.L2SignificanceThreshold = 0.5
}

func opNames(ops []types.MemoryOperation) []string {
	names := make([]string, 0, len(ops))
	for _, op := range ops {
		names = append(names, op.OperationName)
	}
	return names
}

func TestIngestKeepsMostRecentTurns(t *testing.T) {
	c := newTestController(t, nil, nil)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		res := c.IngestConversationTurn(ctx, IngestRequest{SessionID: "s1", Role: types.RoleUser, Content: fmt.Sprintf("turn %d", i)})
		require.True(t, res.Success, res.Error)
	}

	turns := c.working.Turns("s1")
	require.Len(t, turns, 20)
	assert.Equal(t, "turn 5", turns[0].Content)
	assert.Equal(t, "turn 24", turns[19].Content)
}

func TestIngestLoveUpdatesCharacterEmotion(t *testing.T) {
	c := newTestController(t, nil, lowThreshold)
	ctx := context.Background()

	res := c.IngestConversationTurn(ctx, IngestRequest{SessionID: "s1", Role: types.RoleUser, Content: "I love you", EntityID: "alice"})
	require.True(t, res.Success, res.Error)
	assert.True(t, res.Detection.IsSignificant)
	assert.Contains(t, opNames(res.Operations), "updateCharacterEmotion")
	assert.Equal(t, []types.Tier{types.TierL1, types.TierL2, types.TierL3}, res.StoredIn)
	assert.Equal(t, []Stage{StageReceived, StageScored, StageL2Written, StageL3Written, StageStateManaged, StageDone}, res.Stages)
	assert.NotEmpty(t, res.FragmentID)

	chars, err := c.AllCharacters(ctx)
	require.NoError(t, err)
	require.Len(t, chars, 1)
	assert.Equal(t, "alice", chars[0].ID)
	assert.Greater(t, chars[0].EmotionalState.Valence, types.NeutralVAD().Valence)

	for _, op := range res.Operations {
		assert.NotEmpty(t, op.ID)
	}
	assert.Equal(t, len(res.Operations), len(c.Operations(0)))
}

func TestInsignificantTurnStaysInWorkingMemory(t *testing.T) {
	c := newTestController(t, nil, func(cfg *config.Config) { cfg.L2SignificanceThreshold = 9 })

	res := c.IngestConversationTurn(context.Background(), IngestRequest{SessionID: "s1", Role: types.RoleUser, Content: "ok"})
	require.True(t, res.Success)
	assert.False(t, res.Detection.IsSignificant)
	assert.Equal(t, []types.Tier{types.TierL1}, res.StoredIn)
	assert.Equal(t, []string{"addTurn"}, opNames(res.Operations))
}

func TestIngestRejectsInvalidRequest(t *testing.T) {
	c := newTestController(t, nil, nil)
	for _, req := range []IngestRequest{
		{Role: types.RoleUser, Content: "hi"},
		{SessionID: "s1", Role: "robot", Content: "hi"},
		{SessionID: "s1", Role: types.RoleUser, Content: "   "},
	} {
		res := c.IngestConversationTurn(context.Background(), req)
		assert.False(t, res.Success)
		assert.NotEmpty(t, res.Error)
		assert.Empty(t, res.Operations)
	}
}

func TestGraphFailureDegradesToOtherTiers(t *testing.T) {
	c := newTestController(t, brokenStore{}, lowThreshold)

	res := c.IngestConversationTurn(context.Background(), IngestRequest{SessionID: "s1", Role: types.RoleUser, Content: "I love you Bob", EntityID: "alice"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, []types.Tier{types.TierL2}, res.DegradedTiers)
	assert.Equal(t, []types.Tier{types.TierL1, types.TierL3}, res.StoredIn)

	var failed []string
	for _, op := range res.Operations {
		if !op.Success {
			failed = append(failed, op.OperationName)
		}
	}
	assert.Equal(t, []string{"ingestTurn"}, failed)
	assert.Equal(t, 1, c.Stats().Operations.Failed)
}

func TestGraphTimeoutDegradesWritePath(t *testing.T) {
	c := newTestController(t, brokenStore{block: true}, func(cfg *config.Config) {
		cfg.L2SignificanceThreshold = 0.5
		cfg.StoreTimeout = 20 * time.Millisecond
	})

	start := time.Now()
	res := c.IngestConversationTurn(context.Background(), IngestRequest{SessionID: "s1", Role: types.RoleUser, Content: "I love you", EntityID: "alice"})
	assert.Less(t, time.Since(start), 2*time.Second)
	require.True(t, res.Success)
	assert.Contains(t, res.DegradedTiers, types.TierL2)
	assert.Len(t, c.working.Turns("s1"), 1)
}

func TestIngestRecoversFromPanic(t *testing.T) {
	c := newTestController(t, brokenStore{panic: true}, lowThreshold)

	res := c.IngestConversationTurn(context.Background(), IngestRequest{SessionID: "s1", Role: types.RoleUser, Content: "I love you", EntityID: "alice"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "driver exploded")
	assert.Equal(t, []string{"addTurn"}, opNames(res.Operations))
}

func seedConversation(t *testing.T, c *Controller) {
	t.Helper()
	for _, text := range []string{
		"My sister Emma adopted a puppy named Biscuit",
		"I love hiking in the mountains with Emma",
		"Emma lives in Lisbon now",
	} {
		res := c.IngestConversationTurn(context.Background(), IngestRequest{SessionID: "s1", Role: types.RoleUser, Content: text, EntityID: "alice"})
		require.True(t, res.Success, res.Error)
	}
}

func TestRetrieveFusesAllTiers(t *testing.T) {
	c := newTestController(t, nil, lowThreshold)
	seedConversation(t, c)

	got, err := c.RetrieveRelevantContext(context.Background(), RetrieveRequest{SessionID: "s1", Query: "where does Emma live?"})
	require.NoError(t, err)
	assert.NotEmpty(t, got.L1.Turns)
	assert.NotEmpty(t, got.L3.Fragments)
	assert.Greater(t, got.FinalScore, 0.0)
	assert.LessOrEqual(t, got.FinalScore, 1.0)
	assert.Empty(t, got.DegradedTiers)
	assert.LessOrEqual(t, got.TotalTokens, c.Config().MaxContextTokens)
}

func TestRetrieveWithL1OnlyWeights(t *testing.T) {
	c := newTestController(t, nil, lowThreshold)
	seedConversation(t, c)

	got, err := c.RetrieveRelevantContext(context.Background(), RetrieveRequest{
		SessionID: "s1",
		Query:     "Emma puppy hiking",
		Weights:   &types.FusionWeights{L1: 1},
	})
	require.NoError(t, err)
	assert.InDelta(t, got.L1.RelevanceScore, got.WeightedScore, 1e-9)
	for _, item := range got.Items {
		assert.Equal(t, types.TierL1, item.Tier)
	}
}

func TestRetrieveRejectsInvalidWeights(t *testing.T) {
	c := newTestController(t, nil, nil)
	_, err := c.RetrieveRelevantContext(context.Background(), RetrieveRequest{SessionID: "s1", Query: "x", Weights: &types.FusionWeights{L1: 0.9}})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestRetrieveFailurePolicies(t *testing.T) {
	ctx := context.Background()
	req := RetrieveRequest{SessionID: "s1", Query: "tell me about the puppy"}

	degrade := newTestController(t, brokenStore{}, nil)
	degrade.IngestConversationTurn(ctx, IngestRequest{SessionID: "s1", Role: types.RoleUser, Content: "the puppy chewed my shoes"})
	got, err := degrade.RetrieveRelevantContext(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, []types.Tier{types.TierL2}, got.DegradedTiers)
	assert.Len(t, got.L1.Turns, 1)
	assert.Greater(t, got.FinalScore, 0.0)

	closed := newTestController(t, brokenStore{}, func(cfg *config.Config) { cfg.TierFailurePolicy = config.PolicyFailClosed })
	closed.IngestConversationTurn(ctx, IngestRequest{SessionID: "s1", Role: types.RoleUser, Content: "the puppy chewed my shoes"})
	got, err = closed.RetrieveRelevantContext(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.FinalScore)
	assert.Empty(t, got.Items)
	assert.Empty(t, got.L1.Turns)
	assert.Contains(t, got.DegradedTiers, types.TierL2)
}

func TestPruneKeepsConfiguredFragmentCount(t *testing.T) {
	c := newTestController(t, nil, func(cfg *config.Config) {
		cfg.L2SignificanceThreshold = 0.5
		cfg.MaxFragments = 2
	})
	seedConversation(t, c)
	require.Equal(t, 3, c.Inspect(context.Background()).Vector.Fragments)

	removed, err := c.Prune(context.Background())
	require.NoError(t, err)
	assert.Len(t, removed, 1)

	snap := c.Inspect(context.Background())
	assert.Equal(t, 2, snap.Vector.Fragments)
	assert.Equal(t, 2, snap.Vector.IndexSize)
	assert.Contains(t, opNames(c.Operations(1)), "pruneFragments")
}

func TestInspectReportsDegradedTiers(t *testing.T) {
	c := newTestController(t, brokenStore{}, nil)
	c.IngestConversationTurn(context.Background(), IngestRequest{SessionID: "s1", Role: types.RoleUser, Content: "hello"})

	snap := c.Inspect(context.Background())
	assert.Equal(t, []types.Tier{types.TierL2}, snap.DegradedTiers)
	assert.Equal(t, working.Snapshot{Sessions: 1, Turns: 1, Tokens: 2}, snap.Working)
	assert.Equal(t, uint64(1), snap.ConfigVersion)
}

func TestChatHistoryFallsBackToWorkingMemory(t *testing.T) {
	c := newTestController(t, brokenStore{}, nil)
	for _, text := range []string{"one", "two", "three"} {
		c.IngestConversationTurn(context.Background(), IngestRequest{SessionID: "s1", Role: types.RoleUser, Content: text})
	}

	turns, err := c.ChatHistory(context.Background(), "s1", 2)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "two", turns[0].Content)
	assert.Equal(t, "three", turns[1].Content)

	_, err = c.ChatHistory(context.Background(), "", 2)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestChatHistoryFromGraph(t *testing.T) {
	c := newTestController(t, nil, lowThreshold)
	seedConversation(t, c)

	turns, err := c.ChatHistory(context.Background(), "s1", 0)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "Emma lives in Lisbon now", turns[2].Content)
}

func TestFactVersioningThroughController(t *testing.T) {
	c := newTestController(t, nil, lowThreshold)
	res := c.IngestConversationTurn(context.Background(), IngestRequest{SessionID: "s1", Role: types.RoleUser, Content: "Emma lives in Lisbon", EntityID: "alice"})
	require.True(t, res.Success)
	require.NotEmpty(t, res.FactIDs)

	_, err := c.RecordFactVersion(context.Background(), res.FactIDs[0], "Porto", 0.8)
	require.NoError(t, err)

	fact, err := c.FactWithHistory(context.Background(), res.FactIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "Porto", fact.CurrentValue)
	assert.Len(t, fact.History, 2)
	assert.Contains(t, opNames(c.Operations(1)), "recordFactVersion")
}

func TestConfigUpdates(t *testing.T) {
	c := newTestController(t, nil, nil)

	_, err := c.UpdateFusionWeights(types.FusionWeights{L1: 0.5, L2: 0.5, L3: 0.5})
	require.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.Equal(t, uint64(1), c.Config().Version)

	next, err := c.UpdateFusionWeights(types.FusionWeights{L1: 0.5, L2: 0.25, L3: 0.25})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), next.Version)
	assert.Equal(t, 0.5, c.Config().FusionWeights.L1)

	_, err = c.UpdateSignificanceThreshold(11)
	require.ErrorIs(t, err, config.ErrInvalidConfig)
	next, err = c.UpdateSignificanceThreshold(4)
	require.NoError(t, err)
	assert.Equal(t, 4.0, next.L2SignificanceThreshold)
	assert.Equal(t, 6.0, next.VerySignificantThreshold())
}

func TestEstimateTokenCost(t *testing.T) {
	c := newTestController(t, nil, func(cfg *config.Config) { cfg.L2SignificanceThreshold = 9 })
	for _, text := range []string{"hi", "hello"} {
		c.IngestConversationTurn(context.Background(), IngestRequest{SessionID: "s1", Role: types.RoleUser, Content: text})
	}

	got, err := c.EstimateTokenCost(context.Background(), "s1", nil)
	require.NoError(t, err)
	assert.Equal(t, 30, got.L1)
	assert.Equal(t, 0, got.L2)
	assert.Equal(t, 0, got.L3)
	assert.Equal(t, 30, got.Total)
}

func TestMaintenanceClearsIdleSessions(t *testing.T) {
	c := newTestController(t, nil, func(cfg *config.Config) { cfg.L2SignificanceThreshold = 9 })
	c.IngestConversationTurn(context.Background(), IngestRequest{SessionID: "s1", Role: types.RoleUser, Content: "hi"})
	time.Sleep(5 * time.Millisecond)

	assert.Equal(t, 1, c.ClearOldSessions(time.Millisecond))
	assert.Empty(t, c.working.Turns("s1"))

	report := c.Maintain(context.Background())
	require.NoError(t, report.Err)
	assert.Equal(t, 0, report.SessionsCleared)
	assert.Empty(t, report.FragmentsRemoved)
}

func TestRunMaintenanceStopsOnCancel(t *testing.T) {
	c := newTestController(t, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.RunMaintenance(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("maintenance loop did not stop")
	}
	assert.Contains(t, opNames(c.Operations(0)), "clearOldSessions")
}
