package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"changegate.io/changegate/internal/workflow"
)

func rbacRouter(required workflow.Role) *gin.Engine {
	router := gin.New()
	router.Use(JWTAuth(testSigningKey), RequireRole(required))
	router.DELETE("/guarded", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name     string
		role     string
		required workflow.Role
		want     int
	}{
		{"admin passes admin gate", "ADMIN", workflow.RoleAdmin, http.StatusNoContent},
		{"editor blocked from admin gate", "EDITOR", workflow.RoleAdmin, http.StatusForbidden},
		{"viewer blocked from admin gate", "VIEWER", workflow.RoleAdmin, http.StatusForbidden},
		{"exact role passes", "EDITOR", workflow.RoleEditor, http.StatusNoContent},
		{"admin passes any gate", "ADMIN", workflow.RoleEditor, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := rbacRouter(tt.required)
			token := testToken(t, "u-1", "alice", tt.role, time.Hour)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodDelete, "/guarded", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			router.ServeHTTP(w, req)

			require.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRequireRoleWithoutAuth(t *testing.T) {
	router := gin.New()
	router.Use(RequireRole(workflow.RoleAdmin))
	router.DELETE("/guarded", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/guarded", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
}
