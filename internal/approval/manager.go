// Package approval implements the change request lifecycle: submission,
// decision, resubmission, withdrawal, and the audit trail behind them.
//
// Every state transition commits the request row update and the action log
// append in one pgx transaction. Decision notifications are enqueued in the
// same transaction so a committed decision cannot lose its notice.
package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"changegate.io/changegate/internal/jobs"
	"changegate.io/changegate/internal/notification"
	apperrors "changegate.io/changegate/internal/pkg/errors"
	"changegate.io/changegate/internal/pkg/logger"
	"changegate.io/changegate/internal/pkg/worker"
	"changegate.io/changegate/internal/repository"
	"changegate.io/changegate/internal/workflow"
)

// Request sources. BULK_IMPORT rows additionally carry a batch label.
const (
	SourceUI         = "UI"
	SourceAPI        = "API"
	SourceBulkImport = "BULK_IMPORT"
)

// Actor identifies who is performing an operation.
type Actor struct {
	ID   string
	Role workflow.Role
}

// Manager coordinates the approval workflow over the shared pgx pool.
// riverClient and pools may be nil in tests; enqueue and fan-out degrade to
// synchronous no-op and inline execution respectively.
type Manager struct {
	pool        *pgxpool.Pool
	queries     *repository.Queries
	riverClient *river.Client[pgx.Tx]
	triggers    *notification.Triggers
	pools       *worker.Pools
}

// NewManager creates a Manager with all dependencies.
func NewManager(
	pool *pgxpool.Pool,
	riverClient *river.Client[pgx.Tx],
	triggers *notification.Triggers,
	pools *worker.Pools,
) *Manager {
	return &Manager{
		pool:        pool,
		queries:     repository.New(pool),
		riverClient: riverClient,
		triggers:    triggers,
		pools:       pools,
	}
}

// SubmitParams describes a new change request.
type SubmitParams struct {
	EntityType    workflow.EntityType
	EntityID      string
	RequestType   workflow.RequestType
	ProposedState json.RawMessage
	CurrentState  json.RawMessage
	ChangeSummary string
	Source        string
	SourceLabel   string
}

func (p SubmitParams) validate() error {
	if !p.EntityType.IsValid() {
		return apperrors.ErrInvalidFieldf("entity_type", fmt.Sprintf("unknown entity type %q", p.EntityType))
	}
	if p.EntityID == "" {
		return apperrors.ErrInvalidFieldf("entity_id", "must not be empty")
	}
	if !p.RequestType.IsValid() {
		return apperrors.ErrInvalidFieldf("request_type", fmt.Sprintf("unknown request type %q", p.RequestType))
	}
	if len(p.ProposedState) == 0 {
		return apperrors.ErrInvalidFieldf("proposed_state", "must not be empty")
	}
	if p.RequestType.RequiresCurrentState() && len(p.CurrentState) == 0 {
		return apperrors.ErrInvalidFieldf("current_state",
			fmt.Sprintf("required for %s requests", p.RequestType))
	}
	if !p.RequestType.RequiresCurrentState() && len(p.CurrentState) != 0 {
		return apperrors.ErrInvalidFieldf("current_state",
			fmt.Sprintf("must be absent for %s requests", p.RequestType))
	}
	return nil
}

// Submit creates a new pending request plus its SUBMIT audit record in one
// transaction. At most one pending request may exist per governed entity;
// concurrent submissions lose with a duplicate-pending conflict regardless
// of interleaving, enforced by a storage constraint rather than a read check.
func (m *Manager) Submit(ctx context.Context, actor Actor, p SubmitParams) (repository.Request, error) {
	if err := p.validate(); err != nil {
		return repository.Request{}, err
	}

	source := p.Source
	if source == "" {
		source = SourceAPI
	}

	req := repository.Request{
		ID:            newID(),
		EntityType:    p.EntityType,
		EntityID:      p.EntityID,
		RequestType:   p.RequestType,
		Status:        workflow.StatusPending,
		RequestedBy:   actor.ID,
		ProposedState: p.ProposedState,
		CurrentState:  p.CurrentState,
		ChangeSummary: p.ChangeSummary,
		Source:        source,
		SourceLabel:   p.SourceLabel,
	}

	err := m.inTx(ctx, func(qtx *repository.Queries, tx pgx.Tx) error {
		if err := qtx.InsertRequest(ctx, req); err != nil {
			if errors.Is(err, repository.ErrDuplicatePending) {
				return apperrors.ErrDuplicatePendingRequestf(p.EntityType.String(), p.EntityID)
			}
			return fmt.Errorf("insert request: %w", err)
		}
		pending := workflow.StatusPending
		return qtx.InsertAction(ctx, repository.Action{
			ID:         newID(),
			RequestID:  req.ID,
			ActionType: workflow.ActionSubmit,
			ActionBy:   actor.ID,
			NewStatus:  &pending,
		})
	})
	if err != nil {
		return repository.Request{}, err
	}

	m.notifySubmitted(ctx, req.ID, actor.ID, p.EntityType, p.EntityID)

	return m.queries.GetRequest(ctx, req.ID)
}

// Decide applies an APPROVE or REJECT decision. The status update carries a
// pending-only guard, so of two racing deciders exactly one wins and the
// loser observes an illegal transition.
func (m *Manager) Decide(ctx context.Context, actor Actor, requestID string, action workflow.ActionType, justification string) (repository.Request, error) {
	if action != workflow.ActionApprove && action != workflow.ActionReject {
		return repository.Request{}, apperrors.ErrInvalidFieldf("action",
			fmt.Sprintf("%s is not a decision", action))
	}

	req, err := m.get(ctx, requestID)
	if err != nil {
		return repository.Request{}, err
	}

	next, err := workflow.Validate(req.Status, action, actor.Role, justification)
	if err != nil {
		return repository.Request{}, err
	}

	reason := ""
	if next == workflow.StatusRejected {
		reason = justification
	}

	err = m.inTx(ctx, func(qtx *repository.Queries, tx pgx.Tx) error {
		affected, err := qtx.DecideRequest(ctx, repository.DecideRequestParams{
			ID:              requestID,
			NewStatus:       next,
			DecidedBy:       actor.ID,
			RejectionReason: reason,
		})
		if err != nil {
			return fmt.Errorf("decide request %s: %w", requestID, err)
		}
		if affected == 0 {
			// Lost the race: another decision landed first. Re-read so the
			// conflict reports the status that actually won.
			return apperrors.ErrIllegalTransitionf(m.currentStatus(ctx, qtx, requestID, req), action.String())
		}

		prev := req.Status
		if err := qtx.InsertAction(ctx, repository.Action{
			ID:             newID(),
			RequestID:      requestID,
			ActionType:     action,
			ActionBy:       actor.ID,
			Justification:  justification,
			PreviousStatus: &prev,
			NewStatus:      &next,
		}); err != nil {
			return fmt.Errorf("append %s action: %w", action, err)
		}

		return m.enqueueDecisionNotify(ctx, tx, requestID)
	})
	if err != nil {
		return repository.Request{}, err
	}

	return m.queries.GetRequest(ctx, requestID)
}

// Resubmit reopens a rejected request, optionally with a revised payload.
// Only the original requester (or an admin) may resubmit.
func (m *Manager) Resubmit(ctx context.Context, actor Actor, requestID string, proposedState json.RawMessage, changeSummary string) (repository.Request, error) {
	req, err := m.get(ctx, requestID)
	if err != nil {
		return repository.Request{}, err
	}
	if err := requireOwnership(actor, req, workflow.ActionResubmit, true); err != nil {
		return repository.Request{}, err
	}

	next, err := workflow.Validate(req.Status, workflow.ActionResubmit, actor.Role, "")
	if err != nil {
		return repository.Request{}, err
	}

	var summary *string
	if changeSummary != "" {
		summary = &changeSummary
	}

	err = m.inTx(ctx, func(qtx *repository.Queries, tx pgx.Tx) error {
		affected, err := qtx.ReopenRequest(ctx, repository.ReopenRequestParams{
			ID:            requestID,
			ProposedState: proposedState,
			ChangeSummary: summary,
		})
		if err != nil {
			if errors.Is(err, repository.ErrDuplicatePending) {
				return apperrors.ErrDuplicatePendingRequestf(req.EntityType.String(), req.EntityID)
			}
			return fmt.Errorf("reopen request %s: %w", requestID, err)
		}
		if affected == 0 {
			return apperrors.ErrIllegalTransitionf(req.Status.String(), workflow.ActionResubmit.String())
		}

		prev := req.Status
		return qtx.InsertAction(ctx, repository.Action{
			ID:             newID(),
			RequestID:      requestID,
			ActionType:     workflow.ActionResubmit,
			ActionBy:       actor.ID,
			PreviousStatus: &prev,
			NewStatus:      &next,
		})
	})
	if err != nil {
		return repository.Request{}, err
	}

	m.notifySubmitted(ctx, requestID, actor.ID, req.EntityType, req.EntityID)

	return m.queries.GetRequest(ctx, requestID)
}

// Revoke withdraws the actor's own pending request, closing it as rejected
// with the given justification. Any role may revoke, but only the requester.
func (m *Manager) Revoke(ctx context.Context, actor Actor, requestID, justification string) (repository.Request, error) {
	req, err := m.get(ctx, requestID)
	if err != nil {
		return repository.Request{}, err
	}
	if err := requireOwnership(actor, req, workflow.ActionRevoke, false); err != nil {
		return repository.Request{}, err
	}

	next, err := workflow.Validate(req.Status, workflow.ActionRevoke, actor.Role, justification)
	if err != nil {
		return repository.Request{}, err
	}

	err = m.inTx(ctx, func(qtx *repository.Queries, tx pgx.Tx) error {
		affected, err := qtx.DecideRequest(ctx, repository.DecideRequestParams{
			ID:              requestID,
			NewStatus:       next,
			DecidedBy:       actor.ID,
			RejectionReason: justification,
		})
		if err != nil {
			return fmt.Errorf("revoke request %s: %w", requestID, err)
		}
		if affected == 0 {
			return apperrors.ErrIllegalTransitionf(m.currentStatus(ctx, qtx, requestID, req), workflow.ActionRevoke.String())
		}

		prev := req.Status
		return qtx.InsertAction(ctx, repository.Action{
			ID:             newID(),
			RequestID:      requestID,
			ActionType:     workflow.ActionRevoke,
			ActionBy:       actor.ID,
			Justification:  justification,
			PreviousStatus: &prev,
			NewStatus:      &next,
		})
	})
	if err != nil {
		return repository.Request{}, err
	}

	return m.queries.GetRequest(ctx, requestID)
}

// UpdateRequest swaps the proposed payload of a still-pending request.
// The request stays pending; the audit record carries no status pair.
func (m *Manager) UpdateRequest(ctx context.Context, actor Actor, requestID string, proposedState json.RawMessage, changeSummary string) (repository.Request, error) {
	if len(proposedState) == 0 {
		return repository.Request{}, apperrors.ErrInvalidFieldf("proposed_state", "must not be empty")
	}

	req, err := m.get(ctx, requestID)
	if err != nil {
		return repository.Request{}, err
	}
	if err := requireOwnership(actor, req, workflow.ActionUpdateRequest, true); err != nil {
		return repository.Request{}, err
	}
	if req.Status != workflow.StatusPending {
		return repository.Request{}, apperrors.ErrIllegalTransitionf(req.Status.String(), workflow.ActionUpdateRequest.String())
	}

	var summary *string
	if changeSummary != "" {
		summary = &changeSummary
	}

	err = m.inTx(ctx, func(qtx *repository.Queries, tx pgx.Tx) error {
		affected, err := qtx.AmendRequest(ctx, repository.AmendRequestParams{
			ID:            requestID,
			ProposedState: proposedState,
			ChangeSummary: summary,
		})
		if err != nil {
			return fmt.Errorf("amend request %s: %w", requestID, err)
		}
		if affected == 0 {
			return apperrors.ErrIllegalTransitionf(req.Status.String(), workflow.ActionUpdateRequest.String())
		}

		return qtx.InsertAction(ctx, repository.Action{
			ID:         newID(),
			RequestID:  requestID,
			ActionType: workflow.ActionUpdateRequest,
			ActionBy:   actor.ID,
		})
	})
	if err != nil {
		return repository.Request{}, err
	}

	return m.queries.GetRequest(ctx, requestID)
}

// Purge permanently removes a request and its action log. Admin only; the
// cascade is the single place where audit records may be deleted.
func (m *Manager) Purge(ctx context.Context, actor Actor, requestID string) error {
	if !actor.Role.IsPrivileged() {
		return apperrors.ErrUnauthorizedRolef(actor.Role.String(), "PURGE")
	}

	affected, err := m.queries.PurgeRequest(ctx, requestID)
	if err != nil {
		return fmt.Errorf("purge request %s: %w", requestID, err)
	}
	if affected == 0 {
		return apperrors.ErrApprovalNotFoundf(requestID)
	}

	logger.Info("approval request purged",
		zap.String("request_id", requestID),
		zap.String("actor", actor.ID),
	)
	return nil
}

// Get returns one request by id.
func (m *Manager) Get(ctx context.Context, requestID string) (repository.Request, error) {
	return m.get(ctx, requestID)
}

// ListActions returns the audit timeline of one request, oldest first.
func (m *Manager) ListActions(ctx context.Context, requestID string) ([]repository.Action, error) {
	if _, err := m.get(ctx, requestID); err != nil {
		return nil, err
	}
	return m.queries.ListActions(ctx, requestID)
}

// ListPending returns the review queue across all entity types, newest
// submission first, each row annotated with its latest action.
func (m *Manager) ListPending(ctx context.Context) ([]repository.PendingRequest, error) {
	return m.queries.ListPending(ctx)
}

// History returns every request for one governed entity with its embedded
// action timeline. An entity nobody ever filed a request for is not found.
func (m *Manager) History(ctx context.Context, entityType workflow.EntityType, entityID string) ([]repository.RequestHistory, error) {
	if !entityType.IsValid() {
		return nil, apperrors.ErrInvalidFieldf("entity_type", fmt.Sprintf("unknown entity type %q", entityType))
	}
	items, err := m.queries.EntityHistory(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, apperrors.New(apperrors.CodeApprovalNotFound,
			fmt.Sprintf("no requests recorded for %s %s", entityType, entityID), http.StatusNotFound)
	}
	return items, nil
}

// HistoryByType returns request histories for every entity of one type.
func (m *Manager) HistoryByType(ctx context.Context, entityType workflow.EntityType) ([]repository.RequestHistory, error) {
	if !entityType.IsValid() {
		return nil, apperrors.ErrInvalidFieldf("entity_type", fmt.Sprintf("unknown entity type %q", entityType))
	}
	return m.queries.HistoryByType(ctx, entityType)
}

// --- internals ---

func (m *Manager) get(ctx context.Context, requestID string) (repository.Request, error) {
	req, err := m.queries.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.Request{}, apperrors.ErrApprovalNotFoundf(requestID)
		}
		return repository.Request{}, fmt.Errorf("load request %s: %w", requestID, err)
	}
	return req, nil
}

// currentStatus re-reads a request's status after a guarded update affected
// no rows, so a race loser reports the committed status instead of the stale
// one it validated against. Falls back to the pre-transaction read.
func (m *Manager) currentStatus(ctx context.Context, qtx *repository.Queries, requestID string, stale repository.Request) string {
	cur, err := qtx.GetRequest(ctx, requestID)
	if err != nil {
		return stale.Status.String()
	}
	return cur.Status.String()
}

// inTx runs fn inside one transaction; rollback on error, commit otherwise.
func (m *Manager) inTx(ctx context.Context, fn func(qtx *repository.Queries, tx pgx.Tx) error) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(m.queries.WithTx(tx), tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// enqueueDecisionNotify inserts the notify job in the decision transaction.
func (m *Manager) enqueueDecisionNotify(ctx context.Context, tx pgx.Tx, requestID string) error {
	if m.riverClient == nil {
		return nil
	}
	if _, err := m.riverClient.InsertTx(ctx, tx, jobs.DecisionNotifyArgs{RequestID: requestID}, nil); err != nil {
		return fmt.Errorf("enqueue decision notify for %s: %w", requestID, err)
	}
	return nil
}

// notifySubmitted fires the reviewer inbox notice off the request path.
func (m *Manager) notifySubmitted(ctx context.Context, requestID, requester string, entityType workflow.EntityType, entityID string) {
	if m.triggers == nil {
		return
	}
	if m.pools == nil {
		m.triggers.OnRequestSubmitted(ctx, requestID, requester, entityType, entityID)
		return
	}
	if err := m.pools.SubmitDetached("general", func(ctx context.Context) {
		m.triggers.OnRequestSubmitted(ctx, requestID, requester, entityType, entityID)
	}); err != nil {
		logger.Warn("failed to schedule submission notice",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
	}
}

func requireOwnership(actor Actor, req repository.Request, action workflow.ActionType, adminOverride bool) error {
	if actor.ID == req.RequestedBy {
		return nil
	}
	if adminOverride && actor.Role.IsPrivileged() {
		return nil
	}
	return apperrors.ErrUnauthorizedRolef(actor.Role.String(), action.String())
}

// newID returns a time-ordered uuid, falling back to v4 if the clock source
// is unavailable.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
