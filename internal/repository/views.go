package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"changegate.io/changegate/internal/workflow"
)

// PendingRequest is a Request annotated with its most recent action, for the
// pending-across-entities view.
type PendingRequest struct {
	Request
	LastActionType workflow.ActionType `json:"last_action_type"`
	LastActionAt   time.Time           `json:"last_action_at"`
}

// RequestHistory is a Request with its full ordered action timeline embedded.
type RequestHistory struct {
	Request
	Actions []Action `json:"actions"`
}

// ListPending returns all PENDING_APPROVAL requests across entities, each
// annotated with its latest action, ordered by requested_at descending. The
// view is recomputed on every call; nothing is materialized.
func (q *Queries) ListPending(ctx context.Context) ([]PendingRequest, error) {
	rows, err := q.db.Query(ctx, `
        SELECT r.`+requestColumns+`, la.action_type, la.action_at
        FROM approval_requests r
        JOIN LATERAL (
            SELECT a.action_type, a.action_at
            FROM approval_actions a
            WHERE a.request_id = r.id
            ORDER BY a.action_at DESC, a.id DESC
            LIMIT 1
        ) la ON TRUE
        WHERE r.status = 'PENDING_APPROVAL'
        ORDER BY r.requested_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	defer rows.Close()

	var out []PendingRequest
	for rows.Next() {
		p, err := scanPendingRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// historyQuery embeds each request's ordered action sequence as a JSON array
// built in SQL, so a full audit trail renders without N+1 action lookups.
const historyQuery = `
    SELECT r.` + requestColumns + `, COALESCE(a.actions, '[]'::json)
    FROM approval_requests r
    LEFT JOIN LATERAL (
        SELECT json_agg(json_build_object(
            'id', a.id,
            'request_id', a.request_id,
            'action_type', a.action_type,
            'action_by', a.action_by,
            'action_at', a.action_at,
            'justification', a.justification,
            'previous_status', a.previous_status,
            'new_status', a.new_status
        ) ORDER BY a.action_at, a.id) AS actions
        FROM approval_actions a
        WHERE a.request_id = r.id
    ) a ON TRUE`

// HistoryByType returns all requests of one entity type with embedded action
// timelines, ordered by requested_at descending.
func (q *Queries) HistoryByType(ctx context.Context, entityType workflow.EntityType) ([]RequestHistory, error) {
	rows, err := q.db.Query(ctx, historyQuery+`
        WHERE r.entity_type = $1
        ORDER BY r.requested_at DESC`,
		string(entityType),
	)
	if err != nil {
		return nil, fmt.Errorf("history for entity type %s: %w", entityType, err)
	}
	return collectHistory(rows)
}

// EntityHistory returns the requests for one governed entity with embedded
// action timelines, newest submission first.
func (q *Queries) EntityHistory(ctx context.Context, entityType workflow.EntityType, entityID string) ([]RequestHistory, error) {
	rows, err := q.db.Query(ctx, historyQuery+`
        WHERE r.entity_type = $1 AND r.entity_id = $2
        ORDER BY r.requested_at DESC`,
		string(entityType),
		entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("history for %s/%s: %w", entityType, entityID, err)
	}
	return collectHistory(rows)
}

func collectHistory(rows pgx.Rows) ([]RequestHistory, error) {
	defer rows.Close()

	var out []RequestHistory
	for rows.Next() {
		h, err := scanRequestHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func scanPendingRequest(row pgx.Row) (PendingRequest, error) {
	var (
		p               PendingRequest
		entityType      string
		requestType     string
		status          string
		proposedState   []byte
		currentState    []byte
		decidedBy       pgtype.Text
		decidedAt       pgtype.Timestamptz
		rejectionReason string
		lastActionType  string
	)
	err := row.Scan(
		&p.ID,
		&entityType,
		&p.EntityID,
		&requestType,
		&status,
		&p.RequestedBy,
		&p.RequestedAt,
		&proposedState,
		&currentState,
		&p.ChangeSummary,
		&p.Source,
		&p.SourceLabel,
		&decidedBy,
		&decidedAt,
		&rejectionReason,
		&p.CreatedAt,
		&p.UpdatedAt,
		&lastActionType,
		&p.LastActionAt,
	)
	if err != nil {
		return PendingRequest{}, err
	}
	p.EntityType = workflow.EntityType(entityType)
	p.RequestType = workflow.RequestType(requestType)
	p.Status = workflow.Status(status)
	p.ProposedState = proposedState
	p.CurrentState = currentState
	p.RejectionReason = rejectionReason
	p.LastActionType = workflow.ActionType(lastActionType)
	if decidedBy.Valid {
		p.DecidedBy = decidedBy.String
	}
	if decidedAt.Valid {
		t := decidedAt.Time
		p.DecidedAt = &t
	}
	return p, nil
}

func scanRequestHistory(row pgx.Row) (RequestHistory, error) {
	var (
		h               RequestHistory
		entityType      string
		requestType     string
		status          string
		proposedState   []byte
		currentState    []byte
		decidedBy       pgtype.Text
		decidedAt       pgtype.Timestamptz
		rejectionReason string
		actionsJSON     []byte
	)
	err := row.Scan(
		&h.ID,
		&entityType,
		&h.EntityID,
		&requestType,
		&status,
		&h.RequestedBy,
		&h.RequestedAt,
		&proposedState,
		&currentState,
		&h.ChangeSummary,
		&h.Source,
		&h.SourceLabel,
		&decidedBy,
		&decidedAt,
		&rejectionReason,
		&h.CreatedAt,
		&h.UpdatedAt,
		&actionsJSON,
	)
	if err != nil {
		return RequestHistory{}, err
	}
	h.EntityType = workflow.EntityType(entityType)
	h.RequestType = workflow.RequestType(requestType)
	h.Status = workflow.Status(status)
	h.ProposedState = proposedState
	h.CurrentState = currentState
	h.RejectionReason = rejectionReason
	if decidedBy.Valid {
		h.DecidedBy = decidedBy.String
	}
	if decidedAt.Valid {
		t := decidedAt.Time
		h.DecidedAt = &t
	}
	if err := json.Unmarshal(actionsJSON, &h.Actions); err != nil {
		return RequestHistory{}, fmt.Errorf("decode action timeline for request %s: %w", h.ID, err)
	}
	return h, nil
}
