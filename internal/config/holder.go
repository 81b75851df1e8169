package config

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Holder publishes immutable configuration snapshots.
// Readers take one Snapshot per request; writers replace the whole value.
type Holder struct {
	current atomic.Pointer[Config]
	mu      sync.Mutex
}

// NewHolder validates cfg and returns a holder at version 1.
func NewHolder(cfg Config) (*Holder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Version = 1
	h := &Holder{}
	h.current.Store(&cfg)
	return h, nil
}

// Snapshot returns the current configuration by value.
func (h *Holder) Snapshot() Config {
	return *h.current.Load()
}

// Update applies fn to a copy of the current configuration and publishes it if it validates.
func (h *Holder) Update(fn func(*Config)) (Config, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := *h.current.Load()
	fn(&next)
	if err := next.Validate(); err != nil {
		return h.Snapshot(), fmt.Errorf("failed to update config: %w", err)
	}
	next.Version++
	h.current.Store(&next)
	return next, nil
}
