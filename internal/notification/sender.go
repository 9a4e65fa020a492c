// Package notification implements the in-app notification inbox.
//
// Decision notifications are delivered via River so they retry on failure;
// submission notifications are synchronous DB writes in the caller's context.
package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"changegate.io/changegate/internal/pkg/logger"
	"changegate.io/changegate/internal/repository"
)

// Kind constants matching the notifications table enum values.
const (
	KindApprovalPending   = "APPROVAL_PENDING"
	KindApprovalCompleted = "APPROVAL_COMPLETED"
	KindApprovalRejected  = "APPROVAL_REJECTED"
)

// InboxApprovers is the shared inbox recipient for the reviewer group.
// Submission notices land here; privileged users read this inbox in
// addition to their own.
const InboxApprovers = "approvers"

// Params holds the required fields for creating a notification.
type Params struct {
	RecipientID  string // recipient user id, or InboxApprovers
	Kind         string // one of Kind* constants above
	Title        string // human-readable title
	Message      string // body text
	ResourceType string // e.g. "approval_request"
	ResourceID   string // id of the related resource for navigation
}

// Sender defines the interface for sending notifications.
type Sender interface {
	// Send creates a notification for a single recipient.
	Send(ctx context.Context, params Params) error

	// SendToMany creates notifications for multiple recipients.
	// Best-effort: logs errors but does not abort on individual failures.
	SendToMany(ctx context.Context, recipientIDs []string, params Params) error
}

// InboxSender writes notifications to the database synchronously within the
// caller's context.
type InboxSender struct {
	queries *repository.Queries
}

// NewInboxSender creates a new inbox sender.
func NewInboxSender(queries *repository.Queries) *InboxSender {
	return &InboxSender{queries: queries}
}

// Send stores a single notification to the database.
func (s *InboxSender) Send(ctx context.Context, params Params) error {
	if err := validateParams(params); err != nil {
		return fmt.Errorf("notification params invalid: %w", err)
	}

	err := s.queries.InsertNotification(ctx, repository.Notification{
		ID:           uuid.NewString(),
		RecipientID:  params.RecipientID,
		Kind:         params.Kind,
		Title:        params.Title,
		Message:      params.Message,
		ResourceType: params.ResourceType,
		ResourceID:   params.ResourceID,
	})
	if err != nil {
		return fmt.Errorf("create notification for recipient %s: %w", params.RecipientID, err)
	}

	logger.Debug("notification sent",
		zap.String("recipient", params.RecipientID),
		zap.String("kind", params.Kind),
		zap.String("title", params.Title),
	)

	return nil
}

// SendToMany creates notifications for multiple recipients (best-effort).
// Failures are logged but do not prevent delivery to other recipients.
func (s *InboxSender) SendToMany(ctx context.Context, recipientIDs []string, params Params) error {
	if len(recipientIDs) == 0 {
		return nil
	}

	var failCount int
	for _, recipientID := range recipientIDs {
		p := params
		p.RecipientID = recipientID
		if err := s.Send(ctx, p); err != nil {
			failCount++
			logger.Error("notification delivery failed",
				zap.String("recipient", recipientID),
				zap.String("kind", params.Kind),
				zap.Error(err),
			)
		}
	}

	if failCount > 0 {
		return fmt.Errorf("notification delivery failed for %d/%d recipients", failCount, len(recipientIDs))
	}
	return nil
}

// compile-time check
var _ Sender = (*InboxSender)(nil)

func validateParams(p Params) error {
	if p.RecipientID == "" {
		return fmt.Errorf("recipient_id is required")
	}
	if p.Kind == "" {
		return fmt.Errorf("kind is required")
	}
	if p.Title == "" {
		return fmt.Errorf("title is required")
	}
	if p.Message == "" {
		return fmt.Errorf("message is required")
	}
	return nil
}
