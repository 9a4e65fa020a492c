package workflow

import (
	"testing"

	apperrors "changegate.io/changegate/internal/pkg/errors"
)

func TestValidateLegalTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		current       Status
		action        ActionType
		role          Role
		justification string
		want          Status
	}{
		{"submit new", StatusNone, ActionSubmit, RoleEditor, "", StatusPending},
		{"approve pending", StatusPending, ActionApprove, RoleAdmin, "", StatusApproved},
		{"reject pending", StatusPending, ActionReject, RoleAdmin, "payload incomplete", StatusRejected},
		{"update pending", StatusPending, ActionUpdateRequest, RoleEditor, "", StatusPending},
		{"revoke pending", StatusPending, ActionRevoke, RoleViewer, "no longer needed", StatusRejected},
		{"resubmit rejected", StatusRejected, ActionResubmit, RoleEditor, "", StatusPending},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Validate(tc.current, tc.action, tc.role, tc.justification)
			if err != nil {
				t.Fatalf("Validate(%s, %s): unexpected error: %v", tc.current, tc.action, err)
			}
			if got != tc.want {
				t.Fatalf("Validate(%s, %s) = %s, want %s", tc.current, tc.action, got, tc.want)
			}
		})
	}
}

func TestValidateIllegalTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		current Status
		action  ActionType
	}{
		{"approve new", StatusNone, ActionApprove},
		{"reject new", StatusNone, ActionReject},
		{"resubmit new", StatusNone, ActionResubmit},
		{"submit pending", StatusPending, ActionSubmit},
		{"resubmit pending", StatusPending, ActionResubmit},
		{"approve approved", StatusApproved, ActionApprove},
		{"reject approved", StatusApproved, ActionReject},
		{"resubmit approved", StatusApproved, ActionResubmit},
		{"revoke approved", StatusApproved, ActionRevoke},
		{"update approved", StatusApproved, ActionUpdateRequest},
		{"approve rejected", StatusRejected, ActionApprove},
		{"reject rejected", StatusRejected, ActionReject},
		{"revoke rejected", StatusRejected, ActionRevoke},
		{"update rejected", StatusRejected, ActionUpdateRequest},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			// ADMIN with a justification: only the transition itself can fail.
			_, err := Validate(tc.current, tc.action, RoleAdmin, "because")
			if !apperrors.HasCode(err, apperrors.CodeIllegalTransition) {
				t.Fatalf("Validate(%s, %s) error = %v, want ILLEGAL_TRANSITION", tc.current, tc.action, err)
			}
		})
	}
}

func TestValidateRoleGate(t *testing.T) {
	t.Parallel()

	for _, role := range []Role{RoleEditor, RoleViewer, Role("")} {
		if _, err := Validate(StatusPending, ActionApprove, role, ""); !apperrors.HasCode(err, apperrors.CodeUnauthorizedRole) {
			t.Fatalf("approve as %q error = %v, want UNAUTHORIZED_ROLE", role, err)
		}
		if _, err := Validate(StatusPending, ActionReject, role, "reason"); !apperrors.HasCode(err, apperrors.CodeUnauthorizedRole) {
			t.Fatalf("reject as %q error = %v, want UNAUTHORIZED_ROLE", role, err)
		}
	}

	// The role gate applies only when the transition itself is legal.
	if _, err := Validate(StatusApproved, ActionApprove, RoleViewer, ""); !apperrors.HasCode(err, apperrors.CodeIllegalTransition) {
		t.Fatalf("terminal state must fail ILLEGAL_TRANSITION regardless of role, got %v", err)
	}

	// Revoke and update are open to the requester regardless of privilege.
	if _, err := Validate(StatusPending, ActionRevoke, RoleViewer, "mistake"); err != nil {
		t.Fatalf("revoke must not require privilege: %v", err)
	}
}

func TestValidateJustificationGate(t *testing.T) {
	t.Parallel()

	if _, err := Validate(StatusPending, ActionReject, RoleAdmin, ""); !apperrors.HasCode(err, apperrors.CodeMissingJustification) {
		t.Fatalf("reject without reason error = %v, want MISSING_JUSTIFICATION", err)
	}
	if _, err := Validate(StatusPending, ActionRevoke, RoleEditor, ""); !apperrors.HasCode(err, apperrors.CodeMissingJustification) {
		t.Fatalf("revoke without reason error = %v, want MISSING_JUSTIFICATION", err)
	}
	if _, err := Validate(StatusPending, ActionApprove, RoleAdmin, ""); err != nil {
		t.Fatalf("approve must not require justification: %v", err)
	}
}

func TestChangesStatus(t *testing.T) {
	t.Parallel()

	if !ChangesStatus(StatusPending, ActionApprove) {
		t.Fatal("APPROVE changes status")
	}
	if ChangesStatus(StatusPending, ActionUpdateRequest) {
		t.Fatal("UPDATE_REQUEST keeps the request pending")
	}
	if ChangesStatus(StatusApproved, ActionApprove) {
		t.Fatal("illegal pairs never change status")
	}
}

func TestEnumValidity(t *testing.T) {
	t.Parallel()

	for _, e := range []EntityType{EntityLoader, EntityDashboard, EntityIncident, EntityChart, EntityAlertRule} {
		if !e.IsValid() {
			t.Fatalf("entity type %s must be valid", e)
		}
	}
	if EntityType("WIDGET").IsValid() {
		t.Fatal("unknown entity type must be invalid")
	}

	if !RequestUpdate.RequiresCurrentState() || !RequestDelete.RequiresCurrentState() {
		t.Fatal("UPDATE and DELETE require a current-state snapshot")
	}
	if RequestCreate.RequiresCurrentState() {
		t.Fatal("CREATE has no prior state to snapshot")
	}

	if !StatusApproved.IsTerminal() || !StatusRejected.IsTerminal() {
		t.Fatal("APPROVED and REJECTED are terminal")
	}
	if StatusPending.IsTerminal() {
		t.Fatal("PENDING_APPROVAL is not terminal")
	}

	if !RoleAdmin.IsPrivileged() {
		t.Fatal("ADMIN is the privileged role")
	}
	if RoleEditor.IsPrivileged() || RoleViewer.IsPrivileged() {
		t.Fatal("non-admin roles are not privileged")
	}
}
