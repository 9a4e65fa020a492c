package approval_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"changegate.io/changegate/internal/approval"
	"changegate.io/changegate/internal/notification"
	apperrors "changegate.io/changegate/internal/pkg/errors"
	"changegate.io/changegate/internal/pkg/logger"
	"changegate.io/changegate/internal/repository"
	"changegate.io/changegate/internal/testutil"
	"changegate.io/changegate/internal/workflow"
)

func init() {
	// Initialize logger for tests
	_ = logger.Init("error", "json")
}

var (
	requester = approval.Actor{ID: "alice", Role: workflow.RoleEditor}
	admin     = approval.Actor{ID: "admin-1", Role: workflow.RoleAdmin}
	viewer    = approval.Actor{ID: "bob", Role: workflow.RoleViewer}
)

func newManager(t *testing.T, prefix string) (*approval.Manager, *repository.Queries) {
	t.Helper()
	pool := testutil.OpenMigratedPool(t, prefix)
	q := repository.New(pool)
	triggers := notification.NewTriggers(notification.NewInboxSender(q))
	// No river client and no worker pools: enqueue is skipped and
	// notification fan-out runs inline.
	return approval.NewManager(pool, nil, triggers, nil), q
}

func createParams(entityID string) approval.SubmitParams {
	return approval.SubmitParams{
		EntityType:    workflow.EntityLoader,
		EntityID:      entityID,
		RequestType:   workflow.RequestCreate,
		ProposedState: json.RawMessage(`{"name":"sales_loader","schedule":"@daily"}`),
		ChangeSummary: "create sales loader",
		Source:        approval.SourceUI,
	}
}

func TestSubmitCreatesPendingRequestWithAudit(t *testing.T) {
	m, q := newManager(t, "submit")
	ctx := context.Background()

	req, err := m.Submit(ctx, requester, createParams("SALES_DATA"))
	require.NoError(t, err)
	require.NotEmpty(t, req.ID)
	require.Equal(t, workflow.StatusPending, req.Status)
	require.Equal(t, "alice", req.RequestedBy)

	actions, err := q.ListActions(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, workflow.ActionSubmit, actions[0].ActionType)
	require.Nil(t, actions[0].PreviousStatus)
	require.Equal(t, workflow.StatusPending, *actions[0].NewStatus)

	// The submission notice landed in the shared reviewer inbox.
	inbox, err := q.ListNotifications(ctx, notification.InboxApprovers)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
}

func TestSubmitInputValidation(t *testing.T) {
	m, _ := newManager(t, "submit_validation")
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*approval.SubmitParams)
	}{
		{"unknown entity type", func(p *approval.SubmitParams) { p.EntityType = "WIDGET" }},
		{"empty entity id", func(p *approval.SubmitParams) { p.EntityID = "" }},
		{"unknown request type", func(p *approval.SubmitParams) { p.RequestType = "RENAME" }},
		{"missing proposed state", func(p *approval.SubmitParams) { p.ProposedState = nil }},
		{"update without current state", func(p *approval.SubmitParams) {
			p.RequestType = workflow.RequestUpdate
		}},
		{"create with current state", func(p *approval.SubmitParams) {
			p.CurrentState = json.RawMessage(`{}`)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := createParams("SALES_DATA")
			tt.mutate(&p)
			_, err := m.Submit(ctx, requester, p)
			require.True(t, apperrors.HasCode(err, apperrors.CodeInvalidRequestField),
				"want INVALID_REQUEST_FIELD, got %v", err)
		})
	}
}

func TestSubmitUpdateCarriesCurrentState(t *testing.T) {
	m, _ := newManager(t, "submit_update")
	ctx := context.Background()

	p := createParams("SALES_DATA")
	p.RequestType = workflow.RequestUpdate
	p.CurrentState = json.RawMessage(`{"name":"sales_loader","schedule":"@weekly"}`)

	req, err := m.Submit(ctx, requester, p)
	require.NoError(t, err)
	require.JSONEq(t, string(p.CurrentState), string(req.CurrentState))
}

func TestSubmitDuplicatePendingConflict(t *testing.T) {
	m, _ := newManager(t, "submit_duplicate")
	ctx := context.Background()

	_, err := m.Submit(ctx, requester, createParams("SALES_DATA"))
	require.NoError(t, err)

	_, err = m.Submit(ctx, viewer, createParams("SALES_DATA"))
	require.True(t, apperrors.HasCode(err, apperrors.CodeDuplicateRequest),
		"want DUPLICATE_PENDING_REQUEST, got %v", err)

	// Different entity id on the same type is independent.
	_, err = m.Submit(ctx, requester, createParams("MARKETING_DATA"))
	require.NoError(t, err)
}

func TestSubmitConcurrentOnlyOneWins(t *testing.T) {
	m, _ := newManager(t, "submit_race")
	ctx := context.Background()

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = m.Submit(ctx, requester, createParams("SALES_DATA"))
		}()
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case apperrors.HasCode(err, apperrors.CodeDuplicateRequest):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, won, "exactly one concurrent submission must win")
	require.Equal(t, attempts-1, lost)
}

func TestApprove(t *testing.T) {
	m, q := newManager(t, "approve")
	ctx := context.Background()

	req, err := m.Submit(ctx, requester, createParams("SALES_DATA"))
	require.NoError(t, err)

	decided, err := m.Decide(ctx, admin, req.ID, workflow.ActionApprove, "")
	require.NoError(t, err)
	require.Equal(t, workflow.StatusApproved, decided.Status)
	require.Equal(t, "admin-1", decided.DecidedBy)
	require.NotNil(t, decided.DecidedAt)

	actions, err := q.ListActions(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	require.Equal(t, workflow.ActionApprove, actions[1].ActionType)
	require.Equal(t, workflow.StatusPending, *actions[1].PreviousStatus)
	require.Equal(t, workflow.StatusApproved, *actions[1].NewStatus)
}

func TestRejectRequiresJustification(t *testing.T) {
	m, _ := newManager(t, "reject")
	ctx := context.Background()

	req, err := m.Submit(ctx, requester, createParams("SALES_DATA"))
	require.NoError(t, err)

	_, err = m.Decide(ctx, admin, req.ID, workflow.ActionReject, "")
	require.True(t, apperrors.HasCode(err, apperrors.CodeMissingJustification),
		"want MISSING_JUSTIFICATION, got %v", err)

	decided, err := m.Decide(ctx, admin, req.ID, workflow.ActionReject, "schema incompatible")
	require.NoError(t, err)
	require.Equal(t, workflow.StatusRejected, decided.Status)
	require.Equal(t, "schema incompatible", decided.RejectionReason)
}

func TestDecideRoleGate(t *testing.T) {
	m, _ := newManager(t, "decide_role")
	ctx := context.Background()

	req, err := m.Submit(ctx, requester, createParams("SALES_DATA"))
	require.NoError(t, err)

	for _, actor := range []approval.Actor{requester, viewer} {
		_, err = m.Decide(ctx, actor, req.ID, workflow.ActionApprove, "")
		require.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorizedRole),
			"actor %s: want UNAUTHORIZED_ROLE, got %v", actor.ID, err)
	}
}

func TestDecideTerminalRequestConflicts(t *testing.T) {
	m, _ := newManager(t, "decide_terminal")
	ctx := context.Background()

	req, err := m.Submit(ctx, requester, createParams("SALES_DATA"))
	require.NoError(t, err)
	_, err = m.Decide(ctx, admin, req.ID, workflow.ActionApprove, "")
	require.NoError(t, err)

	_, err = m.Decide(ctx, admin, req.ID, workflow.ActionReject, "changed my mind")
	require.True(t, apperrors.HasCode(err, apperrors.CodeIllegalTransition),
		"want ILLEGAL_TRANSITION, got %v", err)
}

func TestDecideUnknownRequest(t *testing.T) {
	m, _ := newManager(t, "decide_unknown")
	ctx := context.Background()

	_, err := m.Decide(ctx, admin, "no-such-request", workflow.ActionApprove, "")
	require.True(t, apperrors.HasCode(err, apperrors.CodeApprovalNotFound),
		"want APPROVAL_NOT_FOUND, got %v", err)
}

func TestDecideConcurrentFirstWriterWins(t *testing.T) {
	m, _ := newManager(t, "decide_race")
	ctx := context.Background()

	req, err := m.Submit(ctx, requester, createParams("SALES_DATA"))
	require.NoError(t, err)

	const deciders = 6
	errs := make([]error, deciders)
	var wg sync.WaitGroup
	for i := 0; i < deciders; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = m.Decide(ctx, admin, req.ID, workflow.ActionApprove, "")
		}()
	}
	wg.Wait()

	var won int
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		require.True(t, apperrors.HasCode(err, apperrors.CodeIllegalTransition),
			"loser must see ILLEGAL_TRANSITION, got %v", err)

		// The winner committed first, so every loser's conflict must name
		// the terminal status that beat it, not the pending one it read.
		appErr, ok := apperrors.IsAppError(err)
		require.True(t, ok)
		require.Equal(t, workflow.StatusApproved.String(), appErr.Params["status"])
	}
	require.Equal(t, 1, won, "exactly one concurrent decision must apply")
}

func TestResubmitReopensRejectedRequest(t *testing.T) {
	m, q := newManager(t, "resubmit")
	ctx := context.Background()

	req, err := m.Submit(ctx, requester, createParams("SALES_DATA"))
	require.NoError(t, err)
	_, err = m.Decide(ctx, admin, req.ID, workflow.ActionReject, "missing owner")
	require.NoError(t, err)

	revised := json.RawMessage(`{"name":"sales_loader","schedule":"@daily","owner":"alice"}`)
	reopened, err := m.Resubmit(ctx, requester, req.ID, revised, "added owner")
	require.NoError(t, err)
	require.Equal(t, req.ID, reopened.ID, "resubmit keeps the request id stable")
	require.Equal(t, workflow.StatusPending, reopened.Status)
	require.Empty(t, reopened.DecidedBy)
	require.Empty(t, reopened.RejectionReason)
	require.JSONEq(t, string(revised), string(reopened.ProposedState))
	require.Equal(t, "added owner", reopened.ChangeSummary)

	// The full cycle is preserved in the audit timeline.
	actions, err := q.ListActions(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, actions, 3)
	require.Equal(t, workflow.ActionResubmit, actions[2].ActionType)
	require.Equal(t, workflow.StatusRejected, *actions[2].PreviousStatus)
	require.Equal(t, workflow.StatusPending, *actions[2].NewStatus)
}

func TestResubmitGuards(t *testing.T) {
	m, _ := newManager(t, "resubmit_guards")
	ctx := context.Background()

	req, err := m.Submit(ctx, requester, createParams("SALES_DATA"))
	require.NoError(t, err)

	// Pending requests cannot be resubmitted.
	_, err = m.Resubmit(ctx, requester, req.ID, nil, "")
	require.True(t, apperrors.HasCode(err, apperrors.CodeIllegalTransition))

	_, err = m.Decide(ctx, admin, req.ID, workflow.ActionReject, "not ready")
	require.NoError(t, err)

	// Strangers cannot resubmit someone else's request.
	_, err = m.Resubmit(ctx, viewer, req.ID, nil, "")
	require.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorizedRole))

	// Admins may resubmit on the requester's behalf.
	_, err = m.Resubmit(ctx, admin, req.ID, nil, "")
	require.NoError(t, err)
}

func TestRevoke(t *testing.T) {
	m, q := newManager(t, "revoke")
	ctx := context.Background()

	req, err := m.Submit(ctx, requester, createParams("SALES_DATA"))
	require.NoError(t, err)

	// Revoke requires a justification.
	_, err = m.Revoke(ctx, requester, req.ID, "")
	require.True(t, apperrors.HasCode(err, apperrors.CodeMissingJustification))

	// Only the requester may withdraw, admins included.
	_, err = m.Revoke(ctx, admin, req.ID, "cleanup")
	require.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorizedRole))

	revoked, err := m.Revoke(ctx, requester, req.ID, "no longer needed")
	require.NoError(t, err)
	require.Equal(t, workflow.StatusRejected, revoked.Status)
	require.Equal(t, "no longer needed", revoked.RejectionReason)

	actions, err := q.ListActions(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.ActionRevoke, actions[len(actions)-1].ActionType)

	// A withdrawn request can be resubmitted like any rejection.
	_, err = m.Resubmit(ctx, requester, req.ID, nil, "")
	require.NoError(t, err)
}

func TestUpdateRequestKeepsPending(t *testing.T) {
	m, q := newManager(t, "update_request")
	ctx := context.Background()

	req, err := m.Submit(ctx, requester, createParams("SALES_DATA"))
	require.NoError(t, err)

	amended, err := m.UpdateRequest(ctx, requester, req.ID,
		json.RawMessage(`{"name":"sales_loader","schedule":"@hourly"}`), "tightened schedule")
	require.NoError(t, err)
	require.Equal(t, workflow.StatusPending, amended.Status)
	require.JSONEq(t, `{"name":"sales_loader","schedule":"@hourly"}`, string(amended.ProposedState))

	// The amendment is recorded without a status pair.
	actions, err := q.ListActions(ctx, req.ID)
	require.NoError(t, err)
	last := actions[len(actions)-1]
	require.Equal(t, workflow.ActionUpdateRequest, last.ActionType)
	require.Nil(t, last.PreviousStatus)
	require.Nil(t, last.NewStatus)

	// Once decided, amendments conflict.
	_, err = m.Decide(ctx, admin, req.ID, workflow.ActionApprove, "")
	require.NoError(t, err)
	_, err = m.UpdateRequest(ctx, requester, req.ID, json.RawMessage(`{}`), "")
	require.True(t, apperrors.HasCode(err, apperrors.CodeIllegalTransition))
}

func TestPurgeIsAdminOnly(t *testing.T) {
	m, q := newManager(t, "purge")
	ctx := context.Background()

	req, err := m.Submit(ctx, requester, createParams("SALES_DATA"))
	require.NoError(t, err)

	err = m.Purge(ctx, requester, req.ID)
	require.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorizedRole))

	require.NoError(t, m.Purge(ctx, admin, req.ID))

	_, err = q.GetRequest(ctx, req.ID)
	require.Error(t, err)

	err = m.Purge(ctx, admin, req.ID)
	require.True(t, apperrors.HasCode(err, apperrors.CodeApprovalNotFound))
}

func TestListPendingAndHistoryViews(t *testing.T) {
	m, _ := newManager(t, "manager_views")
	ctx := context.Background()

	first, err := m.Submit(ctx, requester, createParams("SALES_DATA"))
	require.NoError(t, err)
	_, err = m.Decide(ctx, admin, first.ID, workflow.ActionApprove, "")
	require.NoError(t, err)

	dash := createParams("ops-dashboard")
	dash.EntityType = workflow.EntityDashboard
	second, err := m.Submit(ctx, requester, dash)
	require.NoError(t, err)

	pending, err := m.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, second.ID, pending[0].ID)
	require.Equal(t, workflow.ActionSubmit, pending[0].LastActionType)

	history, err := m.History(ctx, workflow.EntityLoader, "SALES_DATA")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, first.ID, history[0].ID)
	require.Len(t, history[0].Actions, 2)

	byType, err := m.HistoryByType(ctx, workflow.EntityDashboard)
	require.NoError(t, err)
	require.Len(t, byType, 1)

	_, err = m.History(ctx, "WIDGET", "x")
	require.True(t, apperrors.HasCode(err, apperrors.CodeInvalidRequestField))

	_, err = m.History(ctx, workflow.EntityChart, "never-filed")
	require.True(t, apperrors.HasCode(err, apperrors.CodeApprovalNotFound))
}

func TestDecisionNotificationDelivered(t *testing.T) {
	m, q := newManager(t, "decision_notice")
	ctx := context.Background()

	req, err := m.Submit(ctx, requester, createParams("SALES_DATA"))
	require.NoError(t, err)
	_, err = m.Decide(ctx, admin, req.ID, workflow.ActionReject, "not ready")
	require.NoError(t, err)

	// Without a river client the manager skips the enqueue; the worker path
	// is covered in the jobs package. Here we assert the submission notice
	// only went to the reviewer inbox, not the requester.
	inbox, err := q.ListNotifications(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, inbox)
}
