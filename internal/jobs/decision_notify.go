// Package jobs defines River Queue job types for async processing.
//
// Jobs carry only the request id (claim-check pattern); workers reload the
// row so they always act on current state.
package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"changegate.io/changegate/internal/notification"
	"changegate.io/changegate/internal/pkg/logger"
	"changegate.io/changegate/internal/repository"
	"changegate.io/changegate/internal/workflow"
)

// DecisionNotifyArgs carries only the request id.
type DecisionNotifyArgs struct {
	RequestID string `json:"request_id"`
}

// Kind returns the job kind identifier for decision notifications.
func (DecisionNotifyArgs) Kind() string { return "approval_decision_notify" }

// InsertOpts returns default insert options for decision notification jobs.
func (DecisionNotifyArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 3,
		UniqueOpts: river.UniqueOpts{
			ByArgs:  true,
			ByQueue: true,
		},
	}
}

// DecisionNotifyWorker delivers the requester's inbox notice after a request
// reaches a decision. The job is enqueued in the same transaction as the
// decision itself, so a committed decision always produces a notice even if
// the first delivery attempt fails.
type DecisionNotifyWorker struct {
	river.WorkerDefaults[DecisionNotifyArgs]
	queries  *repository.Queries
	triggers *notification.Triggers
}

// NewDecisionNotifyWorker creates a new DecisionNotifyWorker.
func NewDecisionNotifyWorker(queries *repository.Queries, triggers *notification.Triggers) *DecisionNotifyWorker {
	return &DecisionNotifyWorker{queries: queries, triggers: triggers}
}

// Work reloads the request and fires the matching decision trigger.
func (w *DecisionNotifyWorker) Work(ctx context.Context, job *river.Job[DecisionNotifyArgs]) error {
	if w == nil || w.queries == nil || w.triggers == nil {
		return fmt.Errorf("decision notify worker is not initialized")
	}

	req, err := w.queries.GetRequest(ctx, job.Args.RequestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Purged before delivery; nothing to notify about.
			logger.Warn("decision notify: request no longer exists",
				zap.String("request_id", job.Args.RequestID),
			)
			return nil
		}
		return fmt.Errorf("load request %s: %w", job.Args.RequestID, err)
	}

	switch req.Status {
	case workflow.StatusApproved:
		return w.triggers.OnRequestApproved(ctx, req.ID, req.RequestedBy, req.DecidedBy)
	case workflow.StatusRejected:
		return w.triggers.OnRequestRejected(ctx, req.ID, req.RequestedBy, req.DecidedBy, req.RejectionReason)
	default:
		// Resubmitted before the job ran; the next decision enqueues again.
		logger.Debug("decision notify: request is pending again, skipping",
			zap.String("request_id", req.ID),
		)
		return nil
	}
}
