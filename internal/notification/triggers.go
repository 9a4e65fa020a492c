package notification

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"changegate.io/changegate/internal/pkg/logger"
	"changegate.io/changegate/internal/workflow"
)

// Triggers encapsulates notification trigger logic for approval lifecycle
// events. Two trigger points:
//  1. APPROVAL_PENDING — notice to the shared reviewer inbox on submit
//  2. APPROVAL_COMPLETED / APPROVAL_REJECTED — notice to the requester
//     on decision (delivered via the decision notify job)
type Triggers struct {
	sender Sender
}

// NewTriggers creates a new notification trigger service.
func NewTriggers(sender Sender) *Triggers {
	return &Triggers{sender: sender}
}

// OnRequestSubmitted fires when a change request enters the review queue.
// The notice lands in the shared reviewer inbox; delivery failures are
// logged, never propagated, so a broken inbox cannot block a submission.
func (t *Triggers) OnRequestSubmitted(ctx context.Context, requestID, requester string, entityType workflow.EntityType, entityID string) {
	params := Params{
		RecipientID:  InboxApprovers,
		Kind:         KindApprovalPending,
		Title:        "New change request pending approval",
		Message:      fmt.Sprintf("User %s submitted a change to %s/%s", requester, entityType, entityID),
		ResourceType: "approval_request",
		ResourceID:   requestID,
	}

	if err := t.sender.Send(ctx, params); err != nil {
		logger.Error("failed to send APPROVAL_PENDING notification",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
	}
}

// OnRequestApproved notifies the requester that their change was approved.
func (t *Triggers) OnRequestApproved(ctx context.Context, requestID, requesterID, approver string) error {
	params := Params{
		RecipientID:  requesterID,
		Kind:         KindApprovalCompleted,
		Title:        "Your change request has been approved",
		Message:      fmt.Sprintf("Your request %s was approved by %s", requestID, approver),
		ResourceType: "approval_request",
		ResourceID:   requestID,
	}

	if err := t.sender.Send(ctx, params); err != nil {
		logger.Error("failed to send APPROVAL_COMPLETED notification",
			zap.String("request_id", requestID),
			zap.String("requester", requesterID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// OnRequestRejected notifies the requester that their change was rejected.
func (t *Triggers) OnRequestRejected(ctx context.Context, requestID, requesterID, approver, reason string) error {
	msg := fmt.Sprintf("Your request %s was rejected by %s", requestID, approver)
	if reason != "" {
		msg += fmt.Sprintf(": %s", reason)
	}

	params := Params{
		RecipientID:  requesterID,
		Kind:         KindApprovalRejected,
		Title:        "Your change request has been rejected",
		Message:      msg,
		ResourceType: "approval_request",
		ResourceID:   requestID,
	}

	if err := t.sender.Send(ctx, params); err != nil {
		logger.Error("failed to send APPROVAL_REJECTED notification",
			zap.String("request_id", requestID),
			zap.String("requester", requesterID),
			zap.Error(err),
		)
		return err
	}
	return nil
}
