package memory

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easeaico/her-memory/internal/types"
)

func newTestService(t *testing.T) (*Service, *InMemoryFragmentStore, *ChromemIndex) {
	t.Helper()
	index, err := NewChromemIndex("")
	require.NoError(t, err)
	store := NewInMemoryFragmentStore()
	return NewService(NewHashEmbedder(64), index, store, nil), store, index
}

func significant(score float64, events ...types.DetectedEvent) types.EventDetection {
	return types.EventDetection{IsSignificant: true, SignificanceScore: score, DetectedEvents: events}
}

func TestIngestAndRetrieve(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	texts := []string{
		"my puppy Biscuit learned to fetch the red ball today",
		"the quarterly tax report is due on friday afternoon",
		"grandma baked an apple pie for the family dinner",
	}
	var ids []string
	for _, text := range texts {
		frag, op, err := svc.IngestTurn(ctx, "s1", types.NewTurn(types.RoleUser, text, "alice"), significant(6), 4.5)
		require.NoError(t, err)
		assert.True(t, op.Success)
		assert.Equal(t, "createFragment", op.OperationName)
		ids = append(ids, frag.ID)
	}

	res, err := svc.Retrieve(ctx, texts[0], "")
	require.NoError(t, err)
	require.Len(t, res.Fragments, 3)
	assert.Equal(t, ids[0], res.Fragments[0].ID)
	assert.InDelta(t, 1.0, res.Fragments[0].SimilarityScore, 1e-4)
	for i := 1; i < len(res.Fragments); i++ {
		assert.GreaterOrEqual(t, res.Fragments[i-1].SimilarityScore, res.Fragments[i].SimilarityScore)
		assert.GreaterOrEqual(t, res.Fragments[i].SimilarityScore, 0.0)
		assert.LessOrEqual(t, res.Fragments[i].SimilarityScore, 1.0)
	}
	assert.Greater(t, res.RelevanceScore, 0.0)
	assert.LessOrEqual(t, res.RelevanceScore, 1.0)
	assert.Greater(t, res.TokenCount, 0)

	stored, err := store.Get(ctx, []string{ids[0]})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 1, stored[0].Metadata.AccessCount)
	assert.Equal(t, 1, res.Fragments[0].Metadata.AccessCount)
}

func TestRetrieveEmptyStore(t *testing.T) {
	svc, _, _ := newTestService(t)
	res, err := svc.Retrieve(context.Background(), "anything", "")
	require.NoError(t, err)
	assert.Empty(t, res.Fragments)
	assert.Equal(t, 0.0, res.RelevanceScore)
}

func TestRetrieveScopeFilter(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	bobTurn := types.NewTurn(types.RoleUser, "Bob won the chess tournament", "alice")
	det := significant(6, types.DetectedEvent{Type: types.EventAchievement, Keyword: "won", EntitiesInvolved: []string{"alice", "bob"}})
	_, _, err := svc.IngestTurn(ctx, "s1", bobTurn, det, 4.5)
	require.NoError(t, err)
	_, _, err = svc.IngestTurn(ctx, "s1", types.NewTurn(types.RoleAssistant, "the weather is sunny", ""), significant(6), 4.5)
	require.NoError(t, err)

	res, err := svc.Retrieve(ctx, "chess tournament", "Bob")
	require.NoError(t, err)
	require.Len(t, res.Fragments, 1)
	assert.True(t, res.Fragments[0].Metadata.HasTag("entity:bob"))
}

func TestClassifyAndTags(t *testing.T) {
	turn := types.NewTurn(types.RoleUser, "Bob moved to Paris", "alice")
	det := types.EventDetection{
		SignificanceScore: 7,
		DetectedEvents:    []types.DetectedEvent{{Type: types.EventLoss, Description: "loss (lost): Bob lost his job.", EntitiesInvolved: []string{"alice", "bob"}}},
		NamedEntities: []types.NamedEntity{
			{ID: "bob", Name: "Bob", Type: types.EntityPerson},
			{ID: "paris", Name: "Paris", Type: types.EntityPlace},
		},
	}

	assert.Equal(t, types.ContentEvent, classify(det, 4.5))
	assert.Equal(t, types.ContentInsight, classify(types.EventDetection{SignificanceScore: 5}, 4.5))
	assert.Equal(t, types.ContentSummary, classify(types.EventDetection{SignificanceScore: 4.5}, 4.5))

	assert.Equal(t, []string{
		"entity:alice", "entity:bob", "entity:paris", "event:loss", "role:user", "type:PERSON", "type:PLACE",
	}, tagsFor(turn, det))
	assert.Equal(t, "loss (lost): Bob lost his job.", summarize(turn, det))
}

func TestSummarizeAnnotatesEmotion(t *testing.T) {
	turn := types.NewTurn(types.RoleUser, "I am so happy   today", "alice")
	det := types.EventDetection{EmotionalChanges: []types.EmotionalChange{{
		EntityID:      "alice",
		EntityName:    "Alice",
		PreviousState: types.NeutralVAD(),
		NewState:      types.VAD{Valence: 0.8, Arousal: 0.5, Dominance: 0.6},
	}}}
	assert.Equal(t, "I am so happy today [Alice Neutral->Happy]", summarize(turn, det))
}

type failingIndex struct {
	VectorIndex
}

func (failingIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	return errors.New("index unavailable")
}

func TestIngestRemovesFragmentWhenIndexFails(t *testing.T) {
	store := NewInMemoryFragmentStore()
	svc := NewService(NewHashEmbedder(16), failingIndex{}, store, nil)

	_, op, err := svc.IngestTurn(context.Background(), "s1", types.NewTurn(types.RoleUser, "hello", ""), significant(6), 4.5)
	require.Error(t, err)
	var storeErr *types.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, types.TierL3, storeErr.Tier)
	assert.False(t, op.Success)

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func seedFragment(t *testing.T, svc *Service, store *InMemoryFragmentStore, index *ChromemIndex, id string, importance float64, age time.Duration, accesses int) {
	t.Helper()
	ctx := context.Background()
	created := time.Now().Add(-age)
	vec, err := svc.embedder.EmbedDocument(ctx, id)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, types.Fragment{
		ID:        id,
		Embedding: vec,
		Content:   id,
		Metadata: types.FragmentMetadata{
			ImportanceScore: importance,
			CreatedAt:       created,
			LastUpdated:     created,
			LastAccessed:    created,
			AccessCount:     accesses,
		},
	}))
	require.NoError(t, index.Add(ctx, []string{id}, [][]float32{vec}))
}

func TestPruneKeepsHighestCompositeScores(t *testing.T) {
	ctx := context.Background()
	svc, store, index := newTestService(t)
	seedFragment(t, svc, store, index, "fresh-important", 9, time.Hour, 3)
	seedFragment(t, svc, store, index, "fresh-minor", 2, time.Hour, 0)
	seedFragment(t, svc, store, index, "stale", 2, 60*24*time.Hour, 0)

	removed, op, err := svc.PruneFragments(ctx, 2)
	require.NoError(t, err)
	assert.True(t, op.Success)
	assert.Equal(t, []string{"stale"}, removed)

	remaining, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	size, err := index.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, size)
}

func TestPruneWithinCapIsNoop(t *testing.T) {
	ctx := context.Background()
	svc, store, index := newTestService(t)
	seedFragment(t, svc, store, index, "a", 1, time.Hour, 0)
	seedFragment(t, svc, store, index, "b", 1, time.Hour, 0)

	removed, op, err := svc.PruneFragments(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.Equal(t, 0, op.Details["removed"])
	n, _ := store.Count(ctx)
	assert.Equal(t, 2, n)
}

func TestSelectForPruningOrdersByScore(t *testing.T) {
	now := time.Now()
	var frags []types.Fragment
	for i := 0; i < 20; i++ {
		frags = append(frags, types.Fragment{
			ID: string(rune('a' + i)),
			Metadata: types.FragmentMetadata{
				ImportanceScore: float64(i % 7),
				CreatedAt:       now.Add(-time.Duration(i*37) * time.Hour),
				LastAccessed:    now.Add(-time.Duration(i*11) * time.Hour),
				AccessCount:     i % 4,
			},
		})
	}
	keep, drop := selectForPruning(frags, 8, now)
	require.Len(t, keep, 8)
	require.Len(t, drop, 12)
	minKept := math.Inf(1)
	for _, f := range keep {
		minKept = math.Min(minKept, CompositeScore(f, now))
	}
	for _, f := range drop {
		assert.LessOrEqual(t, CompositeScore(f, now), minKept)
	}
}

func TestCompositeScore(t *testing.T) {
	now := time.Now()
	f := types.Fragment{Metadata: types.FragmentMetadata{ImportanceScore: 5, CreatedAt: now, LastAccessed: now}}
	assert.InDelta(t, 0.4*5+3+2, CompositeScore(f, now), 1e-6)

	old := types.Fragment{Metadata: types.FragmentMetadata{ImportanceScore: 5, CreatedAt: now.Add(-40 * 24 * time.Hour), LastAccessed: now.Add(-10 * 24 * time.Hour), AccessCount: 4}}
	assert.InDelta(t, 0.4*5+0.1*math.Log(5), CompositeScore(old, now), 1e-6)
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity(0))
	assert.Equal(t, 0.5, Similarity(1))
	assert.Equal(t, 0.0, Similarity(2))
	assert.Equal(t, 0.0, Similarity(3))
}

func TestHashEmbedderDeterministicAndNormalized(t *testing.T) {
	e := NewHashEmbedder(32)
	a, err := e.EmbedDocument(context.Background(), "the same text")
	require.NoError(t, err)
	b, err := e.EmbedQuery(context.Background(), "The same text!")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
	assert.Equal(t, 32, e.Dimensions())
}

type countingEmbedder struct {
	*HashEmbedder
	calls int
}

func (c *countingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.HashEmbedder.EmbedQuery(ctx, text)
}

func TestCachedEmbedderReusesVectors(t *testing.T) {
	inner := &countingEmbedder{HashEmbedder: NewHashEmbedder(8)}
	cached, err := NewCachedEmbedder(inner, 1<<16)
	require.NoError(t, err)
	defer cached.Close()

	first, err := cached.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	cached.cache.Wait()
	second, err := cached.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)
}

func TestChromemIndexEmpty(t *testing.T) {
	index, err := NewChromemIndex("")
	require.NoError(t, err)
	distances, ids, err := index.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, distances)
	assert.Empty(t, ids)
	require.NoError(t, index.Remove(context.Background(), nil))
}

// ctxStore fails deletes issued on a finished context, as a database driver does.
type ctxStore struct {
	*InMemoryFragmentStore
	failDelete bool
}

func (s *ctxStore) Delete(ctx context.Context, ids []string) error {
	if s.failDelete {
		return errors.New("delete failed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.InMemoryFragmentStore.Delete(ctx, ids)
}

func TestIngestCleanupOutlivesExpiredContext(t *testing.T) {
	store := &ctxStore{InMemoryFragmentStore: NewInMemoryFragmentStore()}
	svc := NewService(NewHashEmbedder(16), failingIndex{}, store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := svc.IngestTurn(ctx, "s1", types.NewTurn(types.RoleUser, "hello", ""), significant(6), 4.5)
	require.Error(t, err)

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

type removeFailingIndex struct {
	*ChromemIndex
}

func (removeFailingIndex) Remove(ctx context.Context, ids []string) error {
	return errors.New("index unavailable")
}

func TestPruneDeletesFromStoreBeforeIndex(t *testing.T) {
	ctx := context.Background()
	svc, inner, index := newTestService(t)
	seedFragment(t, svc, inner, index, "keep", 9, time.Hour, 3)
	seedFragment(t, svc, inner, index, "drop", 1, 60*24*time.Hour, 0)

	store := &ctxStore{InMemoryFragmentStore: inner, failDelete: true}
	failing := NewService(svc.embedder, index, store, nil)
	_, op, err := failing.PruneFragments(ctx, 1)
	require.Error(t, err)
	assert.False(t, op.Success)
	size, err := index.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, size)

	orphaned := NewService(svc.embedder, removeFailingIndex{index}, inner, nil)
	removed, _, err := orphaned.PruneFragments(ctx, 1)
	require.Error(t, err)
	assert.Equal(t, []string{"drop"}, removed)
	n, err := inner.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	res, err := orphaned.Retrieve(ctx, "drop", "")
	require.NoError(t, err)
	require.Len(t, res.Fragments, 1)
	assert.Equal(t, "keep", res.Fragments[0].ID)
}

func TestSyncIndexRebuildsFromStore(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	for _, text := range []string{"the lighthouse keeper", "a quiet harbour town"} {
		_, _, err := svc.IngestTurn(ctx, "s1", types.NewTurn(types.RoleUser, text, ""), significant(6), 4.5)
		require.NoError(t, err)
	}

	fresh, err := NewChromemIndex("")
	require.NoError(t, err)
	restarted := NewService(svc.embedder, fresh, store, nil)

	added, err := restarted.SyncIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	res, err := restarted.Retrieve(ctx, "the lighthouse keeper", "")
	require.NoError(t, err)
	require.NotEmpty(t, res.Fragments)
	assert.Equal(t, "the lighthouse keeper", res.Fragments[0].Content)

	again, err := restarted.SyncIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again)
}
