package controller

import (
	"context"
	"time"

	"github.com/easeaico/her-memory/internal/types"
)

// ClearOldSessions drops working-memory sessions idle for longer than maxAge.
// A non-positive maxAge uses the configured session max age.
func (c *Controller) ClearOldSessions(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = c.cfg.Snapshot().SessionMaxAge
	}
	op := types.NewOperation(types.OpDelete, types.TierL1, "clearOldSessions")
	removed := c.working.ClearOldSessions(maxAge)
	op.Details["removed"] = removed
	op.Details["max_age"] = maxAge.String()
	c.ops.Append(op.Finish())
	return removed
}

// MaintenanceReport is the outcome of one maintenance pass.
type MaintenanceReport struct {
	SessionsCleared  int      `json:"sessions_cleared"`
	FragmentsRemoved []string `json:"fragments_removed,omitempty"`
	Err              error    `json:"-"`
}

// Maintain reaps idle sessions and prunes the vector tier once.
func (c *Controller) Maintain(ctx context.Context) MaintenanceReport {
	report := MaintenanceReport{SessionsCleared: c.ClearOldSessions(0)}
	removed, err := c.Prune(ctx)
	report.FragmentsRemoved = removed
	report.Err = err
	return report
}

// RunMaintenance runs Maintain every interval until ctx is cancelled.
// A non-positive interval uses the configured maintenance interval.
func (c *Controller) RunMaintenance(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = c.cfg.Snapshot().MaintenanceInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := c.Maintain(ctx)
			if report.Err != nil {
				c.logger.Warn("maintenance pass failed", "error", report.Err)
				continue
			}
			if report.SessionsCleared > 0 || len(report.FragmentsRemoved) > 0 {
				c.logger.Info("maintenance pass",
					"sessions_cleared", report.SessionsCleared,
					"fragments_removed", len(report.FragmentsRemoved),
				)
			}
		}
	}
}
