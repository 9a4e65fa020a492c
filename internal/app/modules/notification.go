package modules

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"

	"changegate.io/changegate/internal/jobs"
	"changegate.io/changegate/internal/notification"
)

// NotificationModule wires the inbox sender, the lifecycle triggers, and the
// River workers that deliver and expire inbox rows.
type NotificationModule struct {
	sender   *notification.InboxSender
	triggers *notification.Triggers
	infra    *Infrastructure
}

// NewNotificationModule creates the notification module.
func NewNotificationModule(infra *Infrastructure) (*NotificationModule, error) {
	if infra == nil || infra.Queries == nil {
		return nil, fmt.Errorf("notification module requires repository queries")
	}

	sender := notification.NewInboxSender(infra.Queries)
	return &NotificationModule{
		sender:   sender,
		triggers: notification.NewTriggers(sender),
		infra:    infra,
	}, nil
}

// Triggers exposes the lifecycle trigger service to sibling modules.
func (m *NotificationModule) Triggers() *notification.Triggers { return m.triggers }

func (m *NotificationModule) Name() string { return "notification" }

func (m *NotificationModule) RegisterWorkers(workers *river.Workers) {
	river.AddWorker(workers, jobs.NewDecisionNotifyWorker(m.infra.Queries, m.triggers))
	river.AddWorker(workers, jobs.NewNotificationCleanupWorker(
		m.infra.Queries,
		m.infra.Config.Notification.Retention,
	))
}

func (m *NotificationModule) Shutdown(context.Context) error { return nil }
