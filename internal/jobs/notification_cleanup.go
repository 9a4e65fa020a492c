package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"changegate.io/changegate/internal/pkg/logger"
	"changegate.io/changegate/internal/repository"
)

const (
	// DefaultNotificationRetention is the retention baseline for inbox
	// notifications.
	DefaultNotificationRetention = 30 * 24 * time.Hour
)

// NotificationCleanupArgs is a periodic maintenance job that removes expired
// notifications from the inbox.
type NotificationCleanupArgs struct{}

// Kind returns the job kind identifier for periodic notification cleanup.
func (NotificationCleanupArgs) Kind() string { return "notification_cleanup" }

// InsertOpts ensures at most one cleanup job is enqueued within the same day.
func (NotificationCleanupArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: 24 * time.Hour,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// NotificationCleanupWorker deletes notifications older than the configured
// retention duration.
type NotificationCleanupWorker struct {
	river.WorkerDefaults[NotificationCleanupArgs]
	queries   *repository.Queries
	retention time.Duration
}

// NewNotificationCleanupWorker creates a cleanup worker. Non-positive
// retention falls back to the 30-day default.
func NewNotificationCleanupWorker(queries *repository.Queries, retention time.Duration) *NotificationCleanupWorker {
	if retention <= 0 {
		retention = DefaultNotificationRetention
	}
	return &NotificationCleanupWorker{
		queries:   queries,
		retention: retention,
	}
}

// Work removes expired notification rows.
func (w *NotificationCleanupWorker) Work(ctx context.Context, _ *river.Job[NotificationCleanupArgs]) error {
	if w == nil || w.queries == nil {
		return fmt.Errorf("notification cleanup worker is not initialized")
	}

	cutoff := time.Now().UTC().Add(-w.retention)
	deleted, err := w.queries.DeleteNotificationsBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete expired notifications before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	logger.Info("notification cleanup completed",
		zap.Int64("deleted_rows", deleted),
		zap.String("cutoff", cutoff.Format(time.RFC3339)),
		zap.Duration("retention", w.retention),
	)
	return nil
}
