package types

import "time"

// OperationKind classifies an audited action.
type OperationKind string

const (
	OpRead   OperationKind = "read"
	OpWrite  OperationKind = "write"
	OpUpdate OperationKind = "update"
	OpDelete OperationKind = "delete"
)

// Tier names a memory tier.
type Tier string

const (
	TierL1 Tier = "L1"
	TierL2 Tier = "L2"
	TierL3 Tier = "L3"
)

// MemoryOperation is an append-only audit record.
type MemoryOperation struct {
	ID            string         `json:"id"`
	Kind          OperationKind  `json:"kind"`
	Tier          Tier           `json:"tier"`
	OperationName string         `json:"operation_name"`
	Timestamp     time.Time      `json:"timestamp"`
	DurationMS    float64        `json:"duration_ms"`
	Success       bool           `json:"success"`
	Details       map[string]any `json:"details,omitempty"`
}

// NewOperation starts an operation record timed from now.
func NewOperation(kind OperationKind, tier Tier, name string) MemoryOperation {
	return MemoryOperation{
		Kind:          kind,
		Tier:          tier,
		OperationName: name,
		Timestamp:     time.Now(),
		Success:       true,
		Details:       map[string]any{},
	}
}

// Finish stamps the elapsed duration and returns the record.
func (op MemoryOperation) Finish() MemoryOperation {
	op.DurationMS = float64(time.Since(op.Timestamp).Microseconds()) / 1000
	return op
}

// Fail marks the record failed with err.
func (op MemoryOperation) Fail(err error) MemoryOperation {
	op.Success = false
	if op.Details == nil {
		op.Details = map[string]any{}
	}
	if err != nil {
		op.Details["error"] = err.Error()
	}
	return op.Finish()
}
