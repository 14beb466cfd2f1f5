package tasks

import (
	"context"
	"fmt"
	"time"
)

// NewRetentionSweepTask creates the scheduled task that deletes update-log
// and broadcast-ledger rows older than the configured retention window.
// The same task also runs once at startup.
func NewRetentionSweepTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "retention_sweep")

	return func(ctx context.Context) error {
		boundary := time.Now().Add(-deps.Config.Retention.Window)
		log.InfoContext(ctx, "Starting retention sweep", "boundary", boundary)

		updates, err := deps.Store.SweepUpdates(ctx, boundary)
		if err != nil {
			return fmt.Errorf("retention sweep of update log failed: %w", err)
		}

		messages, err := deps.Store.SweepBroadcastMessages(ctx, boundary)
		if err != nil {
			return fmt.Errorf("retention sweep of broadcast ledger failed: %w", err)
		}

		log.InfoContext(ctx, "Retention sweep completed", "updates_removed", updates, "messages_removed", messages)
		return nil
	}
}
