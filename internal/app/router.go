package app

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"changegate.io/changegate/internal/api/handlers"
	"changegate.io/changegate/internal/api/middleware"
	"changegate.io/changegate/internal/config"
	"changegate.io/changegate/internal/workflow"
)

// Public routes that do NOT require JWT authentication.
var publicPrefixes = []string{
	"/api/v1/health/",
}

// adminPrefixes are routes that require the ADMIN role.
var adminPrefixes = []string{
	"/api/v1/admin/",
}

func newRouter(cfg *config.Config, server *handlers.Server, signingKey []byte) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.ErrorHandler())
	router.Use(cors.New(buildCORSConfig(cfg)))
	router.Use(jwtSkipPublic(signingKey))
	router.Use(rbacAdminRoutes())

	registerRoutes(router, server)
	return router
}

func registerRoutes(router *gin.Engine, server *handlers.Server) {
	v1 := router.Group("/api/v1")

	v1.GET("/health/live", server.GetLiveness)
	v1.GET("/health/ready", server.GetReadiness)

	approvals := v1.Group("/approvals")
	approvals.POST("", server.SubmitApproval)
	approvals.POST("/bulk", server.SubmitApprovalBatch)
	approvals.GET("/pending", server.ListPendingApprovals)
	approvals.GET("/history/:entityType", server.EntityHistory)
	approvals.GET("/:id", server.GetApproval)
	approvals.GET("/:id/actions", server.ListApprovalActions)
	approvals.PATCH("/:id", server.AmendRequest)
	approvals.POST("/:id/approve", server.ApproveRequest)
	approvals.POST("/:id/reject", server.RejectRequest)
	approvals.POST("/:id/resubmit", server.ResubmitRequest)
	approvals.POST("/:id/revoke", server.RevokeRequest)

	v1.GET("/notifications", server.ListNotifications)
	v1.POST("/notifications/:id/read", server.MarkNotificationRead)

	v1.DELETE("/admin/approvals/:id", server.PurgeApproval)
}

// buildCORSConfig derives the CORS policy from server config. Wildcard
// origins are stripped unless the unsafe flag is set, and reflecting all
// origins forces credentials off.
func buildCORSConfig(cfg *config.Config) cors.Config {
	c := cors.DefaultConfig()
	c.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	c.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	c.AllowCredentials = cfg.Server.AllowCredentials

	if cfg.Server.UnsafeAllowAllOrigins {
		c.AllowAllOrigins = true
		c.AllowCredentials = false
		return c
	}

	origins := make([]string, 0, len(cfg.Server.AllowedOrigins))
	for _, origin := range cfg.Server.AllowedOrigins {
		if origin == "*" {
			continue
		}
		origins = append(origins, origin)
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	c.AllowOrigins = origins
	return c
}

// jwtSkipPublic returns middleware that applies JWT auth only on non-public routes.
func jwtSkipPublic(signingKey []byte) gin.HandlerFunc {
	jwtMw := middleware.JWTAuth(signingKey)
	return func(c *gin.Context) {
		for _, prefix := range publicPrefixes {
			if strings.HasPrefix(c.Request.URL.Path, prefix) {
				c.Next()
				return
			}
		}
		jwtMw(c)
	}
}

// rbacAdminRoutes returns middleware enforcing the ADMIN role on admin endpoints.
func rbacAdminRoutes() gin.HandlerFunc {
	adminMw := middleware.RequireRole(workflow.RoleAdmin)
	return func(c *gin.Context) {
		for _, prefix := range adminPrefixes {
			if strings.HasPrefix(c.Request.URL.Path, prefix) {
				adminMw(c)
				return
			}
		}
		c.Next()
	}
}
