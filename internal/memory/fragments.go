package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/easeaico/her-memory/internal/types"
)

// FragmentStore persists fragments and their access statistics.
type FragmentStore interface {
	Save(ctx context.Context, f types.Fragment) error
	// Get returns the fragments that exist among ids, in no particular order.
	Get(ctx context.Context, ids []string) ([]types.Fragment, error)
	// Touch increments access_count and sets last_accessed for ids.
	Touch(ctx context.Context, ids []string, at time.Time) error
	All(ctx context.Context) ([]types.Fragment, error)
	Delete(ctx context.Context, ids []string) error
	Count(ctx context.Context) (int, error)
}

// InMemoryFragmentStore is a process-local FragmentStore.
type InMemoryFragmentStore struct {
	mu        sync.RWMutex
	fragments map[string]types.Fragment
}

// NewInMemoryFragmentStore returns an empty store.
func NewInMemoryFragmentStore() *InMemoryFragmentStore {
	return &InMemoryFragmentStore{fragments: map[string]types.Fragment{}}
}

func (s *InMemoryFragmentStore) Save(ctx context.Context, f types.Fragment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fragments[f.ID] = cloneFragment(f)
	return nil
}

func (s *InMemoryFragmentStore) Get(ctx context.Context, ids []string) ([]types.Fragment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Fragment, 0, len(ids))
	for _, id := range ids {
		if f, ok := s.fragments[id]; ok {
			out = append(out, cloneFragment(f))
		}
	}
	return out, nil
}

func (s *InMemoryFragmentStore) Touch(ctx context.Context, ids []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		f, ok := s.fragments[id]
		if !ok {
			continue
		}
		f.Metadata.AccessCount++
		f.Metadata.LastAccessed = at
		s.fragments[id] = f
	}
	return nil
}

func (s *InMemoryFragmentStore) All(ctx context.Context) ([]types.Fragment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Fragment, 0, len(s.fragments))
	for _, f := range s.fragments {
		out = append(out, cloneFragment(f))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryFragmentStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.fragments, id)
	}
	return nil
}

func (s *InMemoryFragmentStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.fragments), nil
}

func cloneFragment(f types.Fragment) types.Fragment {
	f.Embedding = append([]float32(nil), f.Embedding...)
	f.Metadata.Tags = append([]string(nil), f.Metadata.Tags...)
	return f
}
