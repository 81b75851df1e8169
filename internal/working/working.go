// Package working keeps the per-session sliding window of recent turns.
package working

import (
	"sync"
	"time"

	"github.com/easeaico/her-memory/internal/types"
	"github.com/easeaico/her-memory/internal/utils"
)

// Limits bounds a session buffer.
type Limits struct {
	MaxTurns  int
	MaxTokens int
}

type session struct {
	mu         sync.Mutex
	turns      []types.Turn
	tokens     int
	lastTurnAt time.Time
}

// Memory is an arena of session buffers keyed by session id.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

// New returns an empty working memory.
func New() *Memory {
	return &Memory{sessions: make(map[string]*session)}
}

func (m *Memory) getOrCreate(sessionID string) *session {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		return s
	}
	s = &session{}
	m.sessions[sessionID] = s
	return s
}

func (m *Memory) get(sessionID string) *session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[sessionID]
}

// AddTurn appends turn to the session, evicting oldest turns to honour limits.
// At least one turn always survives the token budget. It returns the number of evicted turns.
func (m *Memory) AddTurn(sessionID string, turn types.Turn, limits Limits) int {
	s := m.getOrCreate(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if turn.TokenCount <= 0 {
		turn.TokenCount = types.EstimateTokens(turn.Content)
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	s.turns = append(s.turns, turn)
	s.tokens += turn.TokenCount
	if turn.Timestamp.After(s.lastTurnAt) {
		s.lastTurnAt = turn.Timestamp
	}

	evicted := 0
	for limits.MaxTurns > 0 && len(s.turns) > limits.MaxTurns {
		s.evictOldest()
		evicted++
	}
	for limits.MaxTokens > 0 && s.tokens > limits.MaxTokens && len(s.turns) > 1 {
		s.evictOldest()
		evicted++
	}
	return evicted
}

func (s *session) evictOldest() {
	s.tokens -= s.turns[0].TokenCount
	s.turns[0] = types.Turn{}
	s.turns = s.turns[1:]
}

// Turns returns a copy of the buffered turns, oldest first.
func (m *Memory) Turns(sessionID string) []types.Turn {
	s := m.get(sessionID)
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Retrieve returns the session buffer with a recency-weighted keyword-overlap relevance.
func (m *Memory) Retrieve(sessionID, query string) types.L1Result {
	s := m.get(sessionID)
	if s == nil {
		return types.L1Result{}
	}
	s.mu.Lock()
	turns := make([]types.Turn, len(s.turns))
	copy(turns, s.turns)
	tokens := s.tokens
	s.mu.Unlock()

	return types.L1Result{
		Turns:          turns,
		RelevanceScore: relevance(query, turns),
		TokenCount:     tokens,
	}
}

// relevance weights turn i of n by (i+1)/n and averages the share of query keywords each turn contains.
func relevance(query string, turns []types.Turn) float64 {
	qk := utils.Keywords(query)
	if len(qk) == 0 || len(turns) == 0 {
		return 0
	}
	n := float64(len(turns))
	var weighted, total float64
	for i, t := range turns {
		w := float64(i+1) / n
		tk := utils.KeywordSet(t.Content)
		hits := 0
		for _, k := range qk {
			if tk[k] {
				hits++
			}
		}
		weighted += w * float64(hits) / float64(len(qk))
		total += w
	}
	if total == 0 {
		return 0
	}
	score := weighted / total
	if score > 1 {
		return 1
	}
	return score
}

// ClearOldSessions drops sessions whose latest turn is older than maxAge and returns how many were removed.
func (m *Memory) ClearOldSessions(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		s.mu.Lock()
		stale := s.lastTurnAt.Before(cutoff)
		s.mu.Unlock()
		if stale {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Snapshot summarizes the arena for inspection.
type Snapshot struct {
	Sessions int `json:"sessions"`
	Turns    int `json:"turns"`
	Tokens   int `json:"tokens"`
}

// Snapshot counts sessions, turns and tokens currently buffered.
func (m *Memory) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := Snapshot{Sessions: len(m.sessions)}
	for _, s := range m.sessions {
		s.mu.Lock()
		snap.Turns += len(s.turns)
		snap.Tokens += s.tokens
		s.mu.Unlock()
	}
	return snap
}
