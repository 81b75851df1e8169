package memory

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/easeaico/her-memory/internal/types"
)

const (
	maxNeighbours = 10
	// cleanupTimeout bounds compensating deletes that run after the caller's context expired.
	cleanupTimeout = 5 * time.Second
)

// Service is the L3 tier: it summarizes significant turns into fragments,
// indexes their embeddings and answers similarity queries.
type Service struct {
	embedder  Embedder
	index     VectorIndex
	fragments FragmentStore
	logger    *slog.Logger
}

// NewService returns a vector memory tier.
func NewService(embedder Embedder, index VectorIndex, fragments FragmentStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		embedder:  embedder,
		index:     index,
		fragments: fragments,
		logger:    logger,
	}
}

// IngestTurn stores one fragment for a very significant turn.
// insightAt is the score above which an event-free turn is classified as an insight.
func (s *Service) IngestTurn(ctx context.Context, sessionID string, turn types.Turn, det types.EventDetection, insightAt float64) (types.Fragment, types.MemoryOperation, error) {
	op := types.NewOperation(types.OpWrite, types.TierL3, "createFragment")
	op.Details["session_id"] = sessionID
	op.Details["turn_id"] = turn.ID

	content := summarize(turn, det)
	embedding, err := s.embedder.EmbedDocument(ctx, content)
	if err != nil {
		return types.Fragment{}, op.Fail(err), types.NewStoreError(types.TierL3, "embed", err)
	}

	now := time.Now()
	frag := types.Fragment{
		ID:        uuid.NewString(),
		Embedding: embedding,
		Content:   content,
		Metadata: types.FragmentMetadata{
			DocID:           turn.ID,
			SourceSessionID: sessionID,
			ContentType:     classify(det, insightAt),
			Tags:            tagsFor(turn, det),
			ImportanceScore: math.Max(0, math.Min(10, det.SignificanceScore)),
			CreatedAt:       now,
			LastUpdated:     now,
			LastAccessed:    now,
		},
	}

	if err := s.fragments.Save(ctx, frag); err != nil {
		return types.Fragment{}, op.Fail(err), types.NewStoreError(types.TierL3, "saveFragment", err)
	}
	if err := s.index.Add(ctx, []string{frag.ID}, [][]float32{embedding}); err != nil {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		if derr := s.fragments.Delete(cleanupCtx, []string{frag.ID}); derr != nil {
			s.logger.Warn("failed to remove unindexed fragment", "fragment_id", frag.ID, "error", derr)
		}
		return types.Fragment{}, op.Fail(err), types.NewStoreError(types.TierL3, "indexAdd", err)
	}

	op.Details["fragment_id"] = frag.ID
	op.Details["content_type"] = string(frag.Metadata.ContentType)
	return frag, op.Finish(), nil
}

// Retrieve returns the nearest fragments to query, most similar first.
// Every returned neighbour has its access statistics bumped before the scope filter applies.
func (s *Service) Retrieve(ctx context.Context, query, scope string) (types.L3Result, error) {
	size, err := s.index.Size(ctx)
	if err != nil {
		return types.L3Result{}, types.NewStoreError(types.TierL3, "indexSize", err)
	}
	if size == 0 {
		return types.L3Result{}, nil
	}

	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return types.L3Result{}, types.NewStoreError(types.TierL3, "embed", err)
	}
	distances, ids, err := s.index.Search(ctx, vec, min(maxNeighbours, size))
	if err != nil {
		return types.L3Result{}, types.NewStoreError(types.TierL3, "indexSearch", err)
	}
	if len(ids) == 0 {
		return types.L3Result{}, nil
	}

	found, err := s.fragments.Get(ctx, ids)
	if err != nil {
		return types.L3Result{}, types.NewStoreError(types.TierL3, "getFragments", err)
	}
	byID := make(map[string]types.Fragment, len(found))
	for _, f := range found {
		byID[f.ID] = f
	}

	now := time.Now()
	if err := s.fragments.Touch(ctx, ids, now); err != nil {
		return types.L3Result{}, types.NewStoreError(types.TierL3, "touchFragments", err)
	}

	scopeTag := ""
	if scope != "" {
		scopeTag = EntityTag(scope)
	}

	res := types.L3Result{}
	for i, id := range ids {
		f, ok := byID[id]
		if !ok {
			s.logger.Warn("index returned unknown fragment", "fragment_id", id)
			continue
		}
		f.Metadata.AccessCount++
		f.Metadata.LastAccessed = now
		f.SimilarityScore = Similarity(distances[i])
		if scopeTag != "" && !f.Metadata.HasTag(scopeTag) {
			continue
		}
		res.Fragments = append(res.Fragments, f)
	}
	sort.SliceStable(res.Fragments, func(i, j int) bool {
		return res.Fragments[i].SimilarityScore > res.Fragments[j].SimilarityScore
	})

	var total float64
	for _, f := range res.Fragments {
		total += f.SimilarityScore
		res.TokenCount += types.EstimateTokens(f.Content)
	}
	if len(res.Fragments) > 0 {
		res.RelevanceScore = total / float64(len(res.Fragments))
	}
	return res, nil
}

// Similarity maps a cosine distance in [0,2] onto [0,1].
func Similarity(distance float32) float64 {
	return math.Max(0, 1-float64(distance)/2)
}

// PruneFragments keeps the maxFragments fragments with the highest composite score.
// A store already within the cap is left untouched.
func (s *Service) PruneFragments(ctx context.Context, maxFragments int) ([]string, types.MemoryOperation, error) {
	op := types.NewOperation(types.OpDelete, types.TierL3, "pruneFragments")
	op.Details["max_fragments"] = maxFragments

	all, err := s.fragments.All(ctx)
	if err != nil {
		return nil, op.Fail(err), types.NewStoreError(types.TierL3, "listFragments", err)
	}
	_, drop := selectForPruning(all, maxFragments, time.Now())
	if len(drop) == 0 {
		op.Details["removed"] = 0
		return nil, op.Finish(), nil
	}

	ids := make([]string, 0, len(drop))
	for _, f := range drop {
		ids = append(ids, f.ID)
	}
	// Store first; index entries without a fragment are skipped on retrieve.
	if err := s.fragments.Delete(ctx, ids); err != nil {
		return nil, op.Fail(err), types.NewStoreError(types.TierL3, "deleteFragments", err)
	}
	if err := s.index.Remove(ctx, ids); err != nil {
		s.logger.Warn("failed to remove pruned fragments from index", "count", len(ids), "error", err)
		return ids, op.Fail(err), types.NewStoreError(types.TierL3, "indexRemove", err)
	}

	op.Details["removed"] = len(ids)
	s.logger.Info("pruned fragments", "removed", len(ids), "kept", len(all)-len(ids))
	return ids, op.Finish(), nil
}

// SyncIndex re-adds stored fragments to the index when it holds fewer entries than the store,
// which is the state of an in-memory index after a restart. It returns the number of vectors added.
func (s *Service) SyncIndex(ctx context.Context) (int, error) {
	size, err := s.index.Size(ctx)
	if err != nil {
		return 0, types.NewStoreError(types.TierL3, "indexSize", err)
	}
	count, err := s.fragments.Count(ctx)
	if err != nil {
		return 0, types.NewStoreError(types.TierL3, "countFragments", err)
	}
	if size >= count {
		return 0, nil
	}

	all, err := s.fragments.All(ctx)
	if err != nil {
		return 0, types.NewStoreError(types.TierL3, "listFragments", err)
	}
	dims := s.embedder.Dimensions()
	ids := make([]string, 0, len(all))
	vectors := make([][]float32, 0, len(all))
	for _, f := range all {
		if len(f.Embedding) == 0 || (dims > 0 && len(f.Embedding) != dims) {
			s.logger.Warn("skipping fragment with unusable embedding", "fragment_id", f.ID, "dimensions", len(f.Embedding))
			continue
		}
		ids = append(ids, f.ID)
		vectors = append(vectors, f.Embedding)
	}
	if err := s.index.Add(ctx, ids, vectors); err != nil {
		return 0, types.NewStoreError(types.TierL3, "indexAdd", err)
	}
	s.logger.Info("rebuilt vector index", "added", len(ids), "stored", count)
	return len(ids), nil
}

// Stats summarizes the tier.
type Stats struct {
	Fragments     int                       `json:"fragments"`
	IndexSize     int                       `json:"index_size"`
	ByContentType map[types.ContentType]int `json:"by_content_type"`
	AccessCount   int                       `json:"access_count"`
}

// Stats counts fragments by content type along with the index size.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	all, err := s.fragments.All(ctx)
	if err != nil {
		return Stats{}, types.NewStoreError(types.TierL3, "listFragments", err)
	}
	size, err := s.index.Size(ctx)
	if err != nil {
		return Stats{}, types.NewStoreError(types.TierL3, "indexSize", err)
	}
	st := Stats{Fragments: len(all), IndexSize: size, ByContentType: map[types.ContentType]int{}}
	for _, f := range all {
		st.ByContentType[f.Metadata.ContentType]++
		st.AccessCount += f.Metadata.AccessCount
	}
	return st, nil
}

// Fragments lists every stored fragment.
func (s *Service) Fragments(ctx context.Context) ([]types.Fragment, error) {
	all, err := s.fragments.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list fragments: %w", err)
	}
	return all, nil
}
