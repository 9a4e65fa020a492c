// Package repository implements the Request Store and the Action Log over
// PostgreSQL.
//
// All queries run through a shared pgx interface so the approval manager can
// compose them into a single transaction via WithTx. Action Log rows are
// write-once by construction: this package exposes no update or delete for
// approval_actions (purging a request removes its actions only through the
// ON DELETE CASCADE constraint).
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"changegate.io/changegate/internal/workflow"
)

// DBTX is satisfied by *pgxpool.Pool, pgx.Tx and *pgx.Conn.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries bundles all Request Store and Action Log statements.
type Queries struct {
	db DBTX
}

// New creates a Queries instance bound to a pool, connection, or transaction.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a copy of Queries bound to tx.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// Request is one proposed change to a governed entity.
type Request struct {
	ID              string               `json:"id"`
	EntityType      workflow.EntityType  `json:"entity_type"`
	EntityID        string               `json:"entity_id"`
	RequestType     workflow.RequestType `json:"request_type"`
	Status          workflow.Status      `json:"status"`
	RequestedBy     string               `json:"requested_by"`
	RequestedAt     time.Time            `json:"requested_at"`
	ProposedState   json.RawMessage      `json:"proposed_state"`
	CurrentState    json.RawMessage      `json:"current_state,omitempty"`
	ChangeSummary   string               `json:"change_summary,omitempty"`
	Source          string               `json:"source,omitempty"`
	SourceLabel     string               `json:"source_label,omitempty"`
	DecidedBy       string               `json:"decided_by,omitempty"`
	DecidedAt       *time.Time           `json:"decided_at,omitempty"`
	RejectionReason string               `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// Action is one append-only audit record in a request's lifecycle.
type Action struct {
	ID             string              `json:"id"`
	RequestID      string              `json:"request_id"`
	ActionType     workflow.ActionType `json:"action_type"`
	ActionBy       string              `json:"action_by"`
	ActionAt       time.Time           `json:"action_at"`
	Justification  string              `json:"justification,omitempty"`
	PreviousStatus *workflow.Status    `json:"previous_status"`
	NewStatus      *workflow.Status    `json:"new_status"`
}

// ErrDuplicatePending is returned by InsertRequest when the partial unique
// index rejects a second pending request for the same entity.
var ErrDuplicatePending = errors.New("pending approval request already exists for entity")

const uniqueViolationCode = "23505"

const requestColumns = `id, entity_type, entity_id, request_type, status, requested_by, requested_at,
       proposed_state, current_state, change_summary, source, source_label,
       decided_by, decided_at, rejection_reason, created_at, updated_at`

// InsertRequest persists a new PENDING_APPROVAL row. The one-pending-per-entity
// invariant is enforced by the approval_requests_one_pending_per_entity index;
// a violation surfaces as ErrDuplicatePending so concurrent submits resolve to
// exactly one success.
func (q *Queries) InsertRequest(ctx context.Context, r Request) error {
	_, err := q.db.Exec(ctx, `
        INSERT INTO approval_requests (
            id, entity_type, entity_id, request_type, status, requested_by, requested_at,
            proposed_state, current_state, change_summary, source, source_label
        ) VALUES ($1, $2, $3, $4, $5, $6, now(), $7, $8, $9, $10, $11)`,
		r.ID,
		string(r.EntityType),
		r.EntityID,
		string(r.RequestType),
		string(r.Status),
		r.RequestedBy,
		[]byte(r.ProposedState),
		nullableJSON(r.CurrentState),
		r.ChangeSummary,
		r.Source,
		r.SourceLabel,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return fmt.Errorf("insert request for %s/%s: %w", r.EntityType, r.EntityID, ErrDuplicatePending)
		}
		return fmt.Errorf("insert request %s: %w", r.ID, err)
	}
	return nil
}

// GetRequest loads a request by id. Returns pgx.ErrNoRows when unknown.
func (q *Queries) GetRequest(ctx context.Context, id string) (Request, error) {
	row := q.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM approval_requests WHERE id = $1`, id)
	return scanRequest(row)
}

// DecideRequestParams carries a terminal decision write.
type DecideRequestParams struct {
	ID              string
	NewStatus       workflow.Status
	DecidedBy       string
	RejectionReason string
}

// DecideRequest moves a PENDING_APPROVAL row to a terminal status. The status
// guard in the WHERE clause makes the first committed writer win; a second
// concurrent decision affects zero rows.
func (q *Queries) DecideRequest(ctx context.Context, p DecideRequestParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `
        UPDATE approval_requests
        SET status = $2,
            decided_by = $3,
            decided_at = now(),
            rejection_reason = $4,
            updated_at = now()
        WHERE id = $1 AND status = 'PENDING_APPROVAL'`,
		p.ID,
		string(p.NewStatus),
		p.DecidedBy,
		p.RejectionReason,
	)
	if err != nil {
		return 0, fmt.Errorf("decide request %s: %w", p.ID, err)
	}
	return tag.RowsAffected(), nil
}

// ReopenRequestParams carries a resubmit write.
type ReopenRequestParams struct {
	ID string
	// ProposedState, when non-nil, replaces the proposed payload for the new
	// review cycle.
	ProposedState json.RawMessage
	// ChangeSummary, when non-nil, replaces the summary.
	ChangeSummary *string
}

// ReopenRequest resets a REJECTED row to PENDING_APPROVAL, clearing the prior
// decision fields. The id stays stable across the reject → resubmit cycle;
// the prior decision survives in the Action Log. The status guard plus the
// partial unique index keep the one-pending-per-entity invariant intact.
func (q *Queries) ReopenRequest(ctx context.Context, p ReopenRequestParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `
        UPDATE approval_requests
        SET status = 'PENDING_APPROVAL',
            decided_by = NULL,
            decided_at = NULL,
            rejection_reason = '',
            proposed_state = COALESCE($2, proposed_state),
            change_summary = COALESCE($3, change_summary),
            updated_at = now()
        WHERE id = $1 AND status = 'REJECTED'`,
		p.ID,
		nullableJSON(p.ProposedState),
		p.ChangeSummary,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			// A newer pending request for the same entity exists.
			return 0, ErrDuplicatePending
		}
		return 0, fmt.Errorf("reopen request %s: %w", p.ID, err)
	}
	return tag.RowsAffected(), nil
}

// AmendRequestParams carries an UPDATE_REQUEST write.
type AmendRequestParams struct {
	ID            string
	ProposedState json.RawMessage
	// ChangeSummary, when non-nil, replaces the summary.
	ChangeSummary *string
}

// AmendRequest replaces the proposed payload of a still-pending request.
func (q *Queries) AmendRequest(ctx context.Context, p AmendRequestParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `
        UPDATE approval_requests
        SET proposed_state = $2,
            change_summary = COALESCE($3, change_summary),
            updated_at = now()
        WHERE id = $1 AND status = 'PENDING_APPROVAL'`,
		p.ID,
		[]byte(p.ProposedState),
		p.ChangeSummary,
	)
	if err != nil {
		return 0, fmt.Errorf("amend request %s: %w", p.ID, err)
	}
	return tag.RowsAffected(), nil
}

// PurgeRequest hard-deletes a request; its actions go with it via the FK
// cascade, never as orphans. Only the explicit administrative purge path may
// call this.
func (q *Queries) PurgeRequest(ctx context.Context, id string) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM approval_requests WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("purge request %s: %w", id, err)
	}
	return tag.RowsAffected(), nil
}

// InsertAction appends one audit record. There is deliberately no update or
// delete counterpart.
func (q *Queries) InsertAction(ctx context.Context, a Action) error {
	_, err := q.db.Exec(ctx, `
        INSERT INTO approval_actions (
            id, request_id, action_type, action_by, action_at, justification, previous_status, new_status
        ) VALUES ($1, $2, $3, $4, now(), $5, $6, $7)`,
		a.ID,
		a.RequestID,
		string(a.ActionType),
		a.ActionBy,
		a.Justification,
		nullableStatus(a.PreviousStatus),
		nullableStatus(a.NewStatus),
	)
	if err != nil {
		return fmt.Errorf("append action %s for request %s: %w", a.ActionType, a.RequestID, err)
	}
	return nil
}

// ListActions returns a request's full history ordered by time.
func (q *Queries) ListActions(ctx context.Context, requestID string) ([]Action, error) {
	rows, err := q.db.Query(ctx, `
        SELECT id, request_id, action_type, action_by, action_at, justification, previous_status, new_status
        FROM approval_actions
        WHERE request_id = $1
        ORDER BY action_at, id`,
		requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("list actions for request %s: %w", requestID, err)
	}
	defer rows.Close()

	var actions []Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// ---- Scan helpers ----

func scanRequest(row pgx.Row) (Request, error) {
	var (
		r               Request
		entityType      string
		requestType     string
		status          string
		currentState    []byte
		decidedBy       pgtype.Text
		decidedAt       pgtype.Timestamptz
		proposedState   []byte
		rejectionReason string
	)
	err := row.Scan(
		&r.ID,
		&entityType,
		&r.EntityID,
		&requestType,
		&status,
		&r.RequestedBy,
		&r.RequestedAt,
		&proposedState,
		&currentState,
		&r.ChangeSummary,
		&r.Source,
		&r.SourceLabel,
		&decidedBy,
		&decidedAt,
		&rejectionReason,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return Request{}, err
	}
	r.EntityType = workflow.EntityType(entityType)
	r.RequestType = workflow.RequestType(requestType)
	r.Status = workflow.Status(status)
	r.ProposedState = proposedState
	r.CurrentState = currentState
	r.RejectionReason = rejectionReason
	if decidedBy.Valid {
		r.DecidedBy = decidedBy.String
	}
	if decidedAt.Valid {
		t := decidedAt.Time
		r.DecidedAt = &t
	}
	return r, nil
}

func scanAction(row pgx.Row) (Action, error) {
	var (
		a          Action
		actionType string
		prev       pgtype.Text
		next       pgtype.Text
	)
	err := row.Scan(
		&a.ID,
		&a.RequestID,
		&actionType,
		&a.ActionBy,
		&a.ActionAt,
		&a.Justification,
		&prev,
		&next,
	)
	if err != nil {
		return Action{}, err
	}
	a.ActionType = workflow.ActionType(actionType)
	if prev.Valid {
		s := workflow.Status(prev.String)
		a.PreviousStatus = &s
	}
	if next.Valid {
		s := workflow.Status(next.String)
		a.NewStatus = &s
	}
	return a, nil
}

// nullableJSON maps an absent payload to SQL NULL.
func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// nullableStatus maps an absent status to SQL NULL.
func nullableStatus(s *workflow.Status) any {
	if s == nil {
		return nil
	}
	return string(*s)
}
