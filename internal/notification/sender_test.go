package notification_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"changegate.io/changegate/internal/notification"
	"changegate.io/changegate/internal/pkg/logger"
	"changegate.io/changegate/internal/repository"
	"changegate.io/changegate/internal/testutil"
	"changegate.io/changegate/internal/workflow"
)

func init() {
	// Initialize logger for tests
	_ = logger.Init("error", "json")
}

func newSender(t *testing.T, prefix string) (*notification.InboxSender, *repository.Queries) {
	t.Helper()
	pool := testutil.OpenMigratedPool(t, prefix)
	q := repository.New(pool)
	return notification.NewInboxSender(q), q
}

func TestInboxSenderSend(t *testing.T) {
	sender, q := newSender(t, "sender_send")
	ctx := context.Background()

	err := sender.Send(ctx, notification.Params{
		RecipientID:  "alice",
		Kind:         notification.KindApprovalCompleted,
		Title:        "Your change request has been approved",
		Message:      "Your request req-1 was approved by admin-1",
		ResourceType: "approval_request",
		ResourceID:   "req-1",
	})
	require.NoError(t, err)

	list, err := q.ListNotifications(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, notification.KindApprovalCompleted, list[0].Kind)
	require.Equal(t, "req-1", list[0].ResourceID)
	require.False(t, list[0].Read)
}

func TestInboxSenderRejectsInvalidParams(t *testing.T) {
	sender, _ := newSender(t, "sender_invalid")
	ctx := context.Background()

	cases := []notification.Params{
		{Kind: notification.KindApprovalPending, Title: "t", Message: "m"},         // no recipient
		{RecipientID: "alice", Title: "t", Message: "m"},                           // no kind
		{RecipientID: "alice", Kind: notification.KindApprovalPending, Title: "t"}, // no message
	}
	for _, p := range cases {
		require.Error(t, sender.Send(ctx, p))
	}
}

func TestInboxSenderSendToMany(t *testing.T) {
	sender, q := newSender(t, "sender_many")
	ctx := context.Background()

	err := sender.SendToMany(ctx, []string{"alice", "bob"}, notification.Params{
		Kind:         notification.KindApprovalPending,
		Title:        "New change request pending approval",
		Message:      "User carol submitted a change to LOADER/SALES_DATA",
		ResourceType: "approval_request",
		ResourceID:   "req-1",
	})
	require.NoError(t, err)

	for _, recipient := range []string{"alice", "bob"} {
		list, err := q.ListNotifications(ctx, recipient)
		require.NoError(t, err)
		require.Len(t, list, 1)
	}
}

func TestTriggersSubmittedWritesToApproversInbox(t *testing.T) {
	sender, q := newSender(t, "triggers_submitted")
	ctx := context.Background()

	triggers := notification.NewTriggers(sender)
	triggers.OnRequestSubmitted(ctx, "req-1", "alice", workflow.EntityLoader, "SALES_DATA")

	list, err := q.ListNotifications(ctx, notification.InboxApprovers)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, notification.KindApprovalPending, list[0].Kind)
	require.Contains(t, list[0].Message, "LOADER/SALES_DATA")
}

func TestTriggersDecisionNotices(t *testing.T) {
	sender, q := newSender(t, "triggers_decision")
	ctx := context.Background()

	triggers := notification.NewTriggers(sender)
	require.NoError(t, triggers.OnRequestApproved(ctx, "req-1", "alice", "admin-1"))
	require.NoError(t, triggers.OnRequestRejected(ctx, "req-2", "alice", "admin-1", "schema incompatible"))

	list, err := q.ListNotifications(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)

	kinds := []string{list[0].Kind, list[1].Kind}
	require.Contains(t, kinds, notification.KindApprovalCompleted)
	require.Contains(t, kinds, notification.KindApprovalRejected)

	for _, n := range list {
		if n.Kind == notification.KindApprovalRejected {
			require.Contains(t, n.Message, "schema incompatible")
		}
	}
}
