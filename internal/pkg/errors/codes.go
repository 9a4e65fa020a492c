package errors

import "net/http"

// Error code constants.
// Errors contain code + params; callers translate codes, backend logs stay English.

// Approval workflow error codes.
const (
	CodeApprovalNotFound     = "APPROVAL_NOT_FOUND"
	CodeIllegalTransition    = "ILLEGAL_TRANSITION"
	CodeUnauthorizedRole     = "UNAUTHORIZED_ROLE"
	CodeMissingJustification = "MISSING_JUSTIFICATION"
	CodeDuplicateRequest     = "DUPLICATE_PENDING_REQUEST"
)

// Auth error codes.
const (
	CodeAuthFailed   = "AUTH_FAILED"
	CodeTokenExpired = "TOKEN_EXPIRED"
	CodeTokenInvalid = "TOKEN_INVALID"
)

// Validation error codes.
const (
	CodeInvalidRequestField = "INVALID_REQUEST_FIELD"
	CodeValidationFailed    = "VALIDATION_FAILED"
)

// Convenience constructors using predefined codes.

// ErrApprovalNotFoundf creates a request-not-found error.
func ErrApprovalNotFoundf(requestID string) *AppError {
	return &AppError{
		Code:       CodeApprovalNotFound,
		Message:    "approval request not found",
		HTTPStatus: http.StatusNotFound,
		Params:     map[string]interface{}{"request_id": requestID},
	}
}

// ErrIllegalTransitionf creates a conflict error for a disallowed status move.
func ErrIllegalTransitionf(current, action string) *AppError {
	return &AppError{
		Code:       CodeIllegalTransition,
		Message:    "action is not legal for the current request status",
		HTTPStatus: http.StatusConflict,
		Params:     map[string]interface{}{"status": current, "action": action},
	}
}

// ErrUnauthorizedRolef creates a 403 error for an insufficient actor role.
func ErrUnauthorizedRolef(role, action string) *AppError {
	return &AppError{
		Code:       CodeUnauthorizedRole,
		Message:    "actor role is not allowed to perform this action",
		HTTPStatus: http.StatusForbidden,
		Params:     map[string]interface{}{"role": role, "action": action},
	}
}

// ErrMissingJustification creates a 400 error for decisions lacking a reason.
func ErrMissingJustification(action string) *AppError {
	return &AppError{
		Code:       CodeMissingJustification,
		Message:    "a non-empty justification is required",
		HTTPStatus: http.StatusBadRequest,
		Params:     map[string]interface{}{"action": action},
	}
}

// ErrInvalidFieldf creates a 400 error for a malformed request field.
func ErrInvalidFieldf(field, reason string) *AppError {
	return &AppError{
		Code:       CodeInvalidRequestField,
		Message:    "request field is invalid",
		HTTPStatus: http.StatusBadRequest,
		Params:     map[string]interface{}{"field": field, "reason": reason},
	}
}

// ErrDuplicatePendingRequestf creates a conflict error for a second pending
// request on the same governed entity.
func ErrDuplicatePendingRequestf(entityType, entityID string) *AppError {
	return &AppError{
		Code:       CodeDuplicateRequest,
		Message:    "a pending approval request already exists for this entity",
		HTTPStatus: http.StatusConflict,
		Params:     map[string]interface{}{"entity_type": entityType, "entity_id": entityID},
	}
}
