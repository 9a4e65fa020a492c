package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"changegate.io/changegate/internal/workflow"
)

// RequireRole returns middleware that gates a route group on a minimum
// workflow role. Decision authorization lives in the workflow validator;
// this guard only protects administrative surfaces such as purge.
func RequireRole(required workflow.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := workflow.Role(GetRole(c.Request.Context()))
		if role == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code": "FORBIDDEN", "message": "no role in context",
			})
			return
		}

		// ADMIN passes every gate.
		if role.IsPrivileged() || role == required {
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"code": "FORBIDDEN", "message": "insufficient role",
		})
	}
}
