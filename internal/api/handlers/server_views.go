package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "changegate.io/changegate/internal/pkg/errors"
	"changegate.io/changegate/internal/workflow"
)

// ListPendingApprovals handles GET /api/v1/approvals/pending — the review
// queue across every entity type, newest submission first.
func (s *Server) ListPendingApprovals(c *gin.Context) {
	items, err := s.manager.ListPending(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// EntityHistory handles GET /api/v1/approvals/history/:entityType.
// With ?entity_id= it narrows to one governed entity; without it, every
// entity of the type is returned. Each request embeds its action timeline.
func (s *Server) EntityHistory(c *gin.Context) {
	entityType := workflow.EntityType(c.Param("entityType"))
	if !entityType.IsValid() {
		_ = c.Error(apperrors.ErrInvalidFieldf("entity_type", "unknown entity type"))
		return
	}

	ctx := c.Request.Context()
	if entityID := c.Query("entity_id"); entityID != "" {
		items, err := s.manager.History(ctx, entityType, entityID)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
		return
	}

	items, err := s.manager.HistoryByType(ctx, entityType)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}
