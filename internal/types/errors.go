package types

import "fmt"

// StoreError is a failure reported by an external store adapter.
type StoreError struct {
	Tier Tier
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Tier, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError wraps err, returning nil when err is nil.
func NewStoreError(tier Tier, op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Tier: tier, Op: op, Err: err}
}
