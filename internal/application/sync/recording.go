package sync

import (
	"context"

	"github.com/eshaffer321/mercury-odoo-sync/internal/infrastructure/storage"
)

// Sync run bookkeeping. Failures here are logged and never fail the cycle.

// recordStart records the beginning of a cycle
func (c *Coordinator) recordStart(ctx context.Context, summary *Summary) {
	if err := c.ledger.StartSyncRun(ctx, summary.RunID, storage.RunKindSync, summary.Trigger); err != nil {
		c.logger.Warn("Failed to record sync run start", "run_id", summary.RunID, "error", err)
	}
}

// recordCompletion records the cycle's final counters
func (c *Coordinator) recordCompletion(ctx context.Context, summary *Summary) {
	// The cycle context may already be cancelled; the record still has to land.
	ctx = context.WithoutCancel(ctx)
	if err := c.ledger.CompleteSyncRun(ctx, summary.RunID, summary.runResult()); err != nil {
		c.logger.Warn("Failed to record sync run completion", "run_id", summary.RunID, "error", err)
	}
}
