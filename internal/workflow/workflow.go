// Package workflow defines the approval state machine for governed entities.
//
// Simple two-outcome flow: PENDING_APPROVAL → APPROVED or REJECTED, with
// RESUBMIT reopening a rejected request. All legality checks are pure; no
// storage access happens here.
package workflow

import (
	apperrors "changegate.io/changegate/internal/pkg/errors"
)

// EntityType identifies the kind of governed entity a request targets.
// Closed set; extend only by adding a new tag.
type EntityType string

const (
	EntityLoader    EntityType = "LOADER"
	EntityDashboard EntityType = "DASHBOARD"
	EntityIncident  EntityType = "INCIDENT"
	EntityChart     EntityType = "CHART"
	EntityAlertRule EntityType = "ALERT_RULE"
)

var validEntityTypes = map[EntityType]bool{
	EntityLoader:    true,
	EntityDashboard: true,
	EntityIncident:  true,
	EntityChart:     true,
	EntityAlertRule: true,
}

// IsValid reports whether the entity type is a known tag.
func (e EntityType) IsValid() bool { return validEntityTypes[e] }

func (e EntityType) String() string { return string(e) }

// RequestType is the kind of change a request proposes.
type RequestType string

const (
	RequestCreate RequestType = "CREATE"
	RequestUpdate RequestType = "UPDATE"
	RequestDelete RequestType = "DELETE"
)

var validRequestTypes = map[RequestType]bool{
	RequestCreate: true,
	RequestUpdate: true,
	RequestDelete: true,
}

// IsValid reports whether the request type is known.
func (r RequestType) IsValid() bool { return validRequestTypes[r] }

// RequiresCurrentState reports whether a snapshot of the entity's current
// state must accompany the request (UPDATE and DELETE diff against it).
func (r RequestType) RequiresCurrentState() bool {
	return r == RequestUpdate || r == RequestDelete
}

// Status is the lifecycle status of an approval request.
type Status string

const (
	// StatusNone is the pseudo-status of a request that does not exist yet.
	// Only SUBMIT is legal from here.
	StatusNone Status = ""

	StatusPending  Status = "PENDING_APPROVAL"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// IsTerminal reports whether no further decision is possible. REJECTED is
// terminal for decisions but can still be reopened via RESUBMIT.
func (s Status) IsTerminal() bool { return s == StatusApproved || s == StatusRejected }

func (s Status) String() string { return string(s) }

// ActionType is one recorded step in a request's lifecycle.
type ActionType string

const (
	ActionSubmit        ActionType = "SUBMIT"
	ActionApprove       ActionType = "APPROVE"
	ActionReject        ActionType = "REJECT"
	ActionResubmit      ActionType = "RESUBMIT"
	ActionRevoke        ActionType = "REVOKE"
	ActionUpdateRequest ActionType = "UPDATE_REQUEST"
)

func (a ActionType) String() string { return string(a) }

// Role is the acting principal's role, resolved by an external auth component
// and consumed here as an opaque tag.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleEditor Role = "EDITOR"
	RoleViewer Role = "VIEWER"
)

// IsPrivileged reports whether the role may approve or reject requests.
func (r Role) IsPrivileged() bool { return r == RoleAdmin }

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleViewer:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// transitions maps (current status, action) to the resulting status.
// Any pair absent from this table is an illegal transition.
var transitions = map[Status]map[ActionType]Status{
	StatusNone: {
		ActionSubmit: StatusPending,
	},
	StatusPending: {
		ActionApprove:       StatusApproved,
		ActionReject:        StatusRejected,
		ActionUpdateRequest: StatusPending,
		// REVOKE is a self-initiated withdrawal, recorded as a rejection.
		ActionRevoke: StatusRejected,
	},
	StatusRejected: {
		ActionResubmit: StatusPending,
	},
	// APPROVED is fully terminal: no legal actions.
}

// privilegedActions require an ADMIN actor.
var privilegedActions = map[ActionType]bool{
	ActionApprove: true,
	ActionReject:  true,
}

// justifiedActions require a non-empty justification.
var justifiedActions = map[ActionType]bool{
	ActionReject: true,
	ActionRevoke: true,
}

// Validate checks whether action is legal given the current status, the
// actor's role, and the supplied justification. It returns the resulting
// status on success and a typed violation otherwise. Callers must invoke this
// before any mutation; a failure here means nothing may be written.
func Validate(current Status, action ActionType, role Role, justification string) (Status, error) {
	next, ok := transitions[current][action]
	if !ok {
		return StatusNone, apperrors.ErrIllegalTransitionf(current.String(), action.String())
	}
	if privilegedActions[action] && !role.IsPrivileged() {
		return StatusNone, apperrors.ErrUnauthorizedRolef(string(role), action.String())
	}
	if justifiedActions[action] && justification == "" {
		return StatusNone, apperrors.ErrMissingJustification(action.String())
	}
	return next, nil
}

// ChangesStatus reports whether the action moves the request to a different
// status. UPDATE_REQUEST keeps the request pending and records a null status
// pair in the action log.
func ChangesStatus(current Status, action ActionType) bool {
	next, ok := transitions[current][action]
	return ok && next != current
}
