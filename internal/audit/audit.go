// Package audit keeps the append-only log of memory operations.
package audit

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/easeaico/her-memory/internal/types"
)

// Log is an append-only, concurrency-safe operation log. Records are never mutated or removed.
type Log struct {
	mu      sync.RWMutex
	ops     []types.MemoryOperation
	entropy *ulid.MonotonicEntropy
	logger  *slog.Logger
}

// New returns an empty Log that mirrors each record to logger at debug level.
func New(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		logger:  logger,
	}
}

// Append stores ops, assigning ULIDs to records without an id, and returns the stored copies.
func (l *Log) Append(ops ...types.MemoryOperation) []types.MemoryOperation {
	if len(ops) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	stored := make([]types.MemoryOperation, 0, len(ops))
	for _, op := range ops {
		if op.ID == "" {
			op.ID = ulid.MustNew(ulid.Timestamp(time.Now()), l.entropy).String()
		}
		op.Details = cloneDetails(op.Details)
		l.ops = append(l.ops, op)
		stored = append(stored, op)

		level := slog.LevelDebug
		if !op.Success {
			level = slog.LevelWarn
		}
		l.logger.Log(context.Background(), level, "memory operation",
			"id", op.ID,
			"tier", op.Tier,
			"kind", op.Kind,
			"operation", op.OperationName,
			"success", op.Success,
			"duration_ms", op.DurationMS,
		)
	}
	return stored
}

// Recent returns up to n of the newest records, oldest first. n <= 0 returns everything.
func (l *Log) Recent(n int) []types.MemoryOperation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	start := 0
	if n > 0 && len(l.ops) > n {
		start = len(l.ops) - n
	}
	out := make([]types.MemoryOperation, 0, len(l.ops)-start)
	for _, op := range l.ops[start:] {
		op.Details = cloneDetails(op.Details)
		out = append(out, op)
	}
	return out
}

// Len is the number of records.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.ops)
}

// Counts aggregates the log.
type Counts struct {
	Total   int                         `json:"total"`
	Failed  int                         `json:"failed"`
	ByTier  map[types.Tier]int          `json:"by_tier"`
	ByKind  map[types.OperationKind]int `json:"by_kind"`
	ByName  map[string]int              `json:"by_name"`
	AvgMS   float64                     `json:"avg_duration_ms"`
	Started time.Time                   `json:"first_operation_at,omitempty"`
}

// Counts tallies records by tier, kind and operation name.
func (l *Log) Counts() Counts {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c := Counts{
		Total:  len(l.ops),
		ByTier: map[types.Tier]int{},
		ByKind: map[types.OperationKind]int{},
		ByName: map[string]int{},
	}
	var total float64
	for _, op := range l.ops {
		c.ByTier[op.Tier]++
		c.ByKind[op.Kind]++
		c.ByName[op.OperationName]++
		if !op.Success {
			c.Failed++
		}
		total += op.DurationMS
	}
	if len(l.ops) > 0 {
		c.AvgMS = total / float64(len(l.ops))
		c.Started = l.ops[0].Timestamp
	}
	return c
}

func cloneDetails(d map[string]any) map[string]any {
	if d == nil {
		return nil
	}
	out := make(map[string]any, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
