package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"changegate.io/changegate/internal/approval"
	apperrors "changegate.io/changegate/internal/pkg/errors"
	"changegate.io/changegate/internal/workflow"
)

// submitRequestBody is the payload for POST /approvals.
type submitRequestBody struct {
	EntityType    string          `json:"entity_type" binding:"required"`
	EntityID      string          `json:"entity_id" binding:"required"`
	RequestType   string          `json:"request_type" binding:"required"`
	ProposedState json.RawMessage `json:"proposed_state" binding:"required"`
	CurrentState  json.RawMessage `json:"current_state,omitempty"`
	ChangeSummary string          `json:"change_summary,omitempty"`
}

func (b submitRequestBody) toParams() approval.SubmitParams {
	return approval.SubmitParams{
		EntityType:    workflow.EntityType(b.EntityType),
		EntityID:      b.EntityID,
		RequestType:   workflow.RequestType(b.RequestType),
		ProposedState: b.ProposedState,
		CurrentState:  b.CurrentState,
		ChangeSummary: b.ChangeSummary,
		Source:        approval.SourceAPI,
	}
}

// decisionBody carries the optional justification of a decision route.
type decisionBody struct {
	Justification string `json:"justification"`
}

// amendBody is the payload for resubmit and amend routes.
type amendBody struct {
	ProposedState json.RawMessage `json:"proposed_state,omitempty"`
	ChangeSummary string          `json:"change_summary,omitempty"`
}

// SubmitApproval handles POST /api/v1/approvals.
func (s *Server) SubmitApproval(c *gin.Context) {
	var body submitRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		_ = c.Error(apperrors.ErrInvalidFieldf("body", err.Error()))
		return
	}

	req, err := s.manager.Submit(c.Request.Context(), actorFromCtx(c), body.toParams())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

// SubmitApprovalBatch handles POST /api/v1/approvals/bulk.
func (s *Server) SubmitApprovalBatch(c *gin.Context) {
	var body struct {
		Items []submitRequestBody `json:"items" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		_ = c.Error(apperrors.ErrInvalidFieldf("body", err.Error()))
		return
	}

	items := make([]approval.SubmitParams, 0, len(body.Items))
	for _, item := range body.Items {
		items = append(items, item.toParams())
	}

	result, err := s.manager.SubmitBatch(c.Request.Context(), actorFromCtx(c), items)
	if err != nil {
		_ = c.Error(err)
		return
	}

	status := http.StatusCreated
	if len(result.Submitted) == 0 && len(result.Failed) > 0 {
		status = http.StatusConflict
	}
	c.JSON(status, result)
}

// GetApproval handles GET /api/v1/approvals/:id.
func (s *Server) GetApproval(c *gin.Context) {
	req, err := s.manager.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// ListApprovalActions handles GET /api/v1/approvals/:id/actions.
func (s *Server) ListApprovalActions(c *gin.Context) {
	actions, err := s.manager.ListActions(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": actions})
}

// ApproveRequest handles POST /api/v1/approvals/:id/approve.
func (s *Server) ApproveRequest(c *gin.Context) {
	s.decide(c, workflow.ActionApprove)
}

// RejectRequest handles POST /api/v1/approvals/:id/reject.
func (s *Server) RejectRequest(c *gin.Context) {
	s.decide(c, workflow.ActionReject)
}

func (s *Server) decide(c *gin.Context, action workflow.ActionType) {
	var body decisionBody
	if err := c.ShouldBindJSON(&body); err != nil && err.Error() != "EOF" {
		_ = c.Error(apperrors.ErrInvalidFieldf("body", err.Error()))
		return
	}

	req, err := s.manager.Decide(c.Request.Context(), actorFromCtx(c), c.Param("id"), action, body.Justification)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// ResubmitRequest handles POST /api/v1/approvals/:id/resubmit.
func (s *Server) ResubmitRequest(c *gin.Context) {
	var body amendBody
	if err := c.ShouldBindJSON(&body); err != nil && err.Error() != "EOF" {
		_ = c.Error(apperrors.ErrInvalidFieldf("body", err.Error()))
		return
	}

	req, err := s.manager.Resubmit(c.Request.Context(), actorFromCtx(c), c.Param("id"), body.ProposedState, body.ChangeSummary)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// RevokeRequest handles POST /api/v1/approvals/:id/revoke.
func (s *Server) RevokeRequest(c *gin.Context) {
	var body decisionBody
	if err := c.ShouldBindJSON(&body); err != nil && err.Error() != "EOF" {
		_ = c.Error(apperrors.ErrInvalidFieldf("body", err.Error()))
		return
	}

	req, err := s.manager.Revoke(c.Request.Context(), actorFromCtx(c), c.Param("id"), body.Justification)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// AmendRequest handles PATCH /api/v1/approvals/:id.
func (s *Server) AmendRequest(c *gin.Context) {
	var body amendBody
	if err := c.ShouldBindJSON(&body); err != nil {
		_ = c.Error(apperrors.ErrInvalidFieldf("body", err.Error()))
		return
	}

	req, err := s.manager.UpdateRequest(c.Request.Context(), actorFromCtx(c), c.Param("id"), body.ProposedState, body.ChangeSummary)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// PurgeApproval handles DELETE /api/v1/admin/approvals/:id.
func (s *Server) PurgeApproval(c *gin.Context) {
	if err := s.manager.Purge(c.Request.Context(), actorFromCtx(c), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
