package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"changegate.io/changegate/internal/api/middleware"
	"changegate.io/changegate/internal/notification"
	apperrors "changegate.io/changegate/internal/pkg/errors"
	"changegate.io/changegate/internal/workflow"
)

// ListNotifications handles GET /api/v1/notifications. Privileged users see
// the shared reviewer inbox merged into their own.
func (s *Server) ListNotifications(c *gin.Context) {
	ctx := c.Request.Context()
	recipients := []string{middleware.GetUserID(ctx)}
	if workflow.Role(middleware.GetRole(ctx)).IsPrivileged() {
		recipients = append(recipients, notification.InboxApprovers)
	}

	items, err := s.queries.ListInbox(ctx, recipients)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// MarkNotificationRead handles POST /api/v1/notifications/:id/read.
// A recipient can only flip their own rows; admins can also acknowledge
// shared reviewer inbox entries.
func (s *Server) MarkNotificationRead(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	userID := middleware.GetUserID(ctx)

	affected, err := s.queries.MarkNotificationRead(ctx, id, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if affected == 0 && workflow.Role(middleware.GetRole(ctx)).IsPrivileged() {
		affected, err = s.queries.MarkNotificationRead(ctx, id, notification.InboxApprovers)
		if err != nil {
			_ = c.Error(err)
			return
		}
	}
	if affected == 0 {
		_ = c.Error(apperrors.NotFound("NOTIFICATION_NOT_FOUND", "notification not found"))
		return
	}
	c.Status(http.StatusNoContent)
}
