// Package handlers implements the HTTP API surface of ChangeGate.
//
// Handlers bind and validate input, call the approval manager, and push
// failures through the centralized error handler via c.Error(). Route
// registration lives in the app router, not here.
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"changegate.io/changegate/internal/api/middleware"
	"changegate.io/changegate/internal/approval"
	"changegate.io/changegate/internal/repository"
	"changegate.io/changegate/internal/workflow"
)

// Server holds all API handler dependencies.
type Server struct {
	pool    *pgxpool.Pool
	queries *repository.Queries
	manager *approval.Manager
	jwtCfg  middleware.JWTConfig
}

// ServerDeps holds all dependencies for creating a Server. Manual DI, no
// wire framework.
type ServerDeps struct {
	Pool    *pgxpool.Pool
	Manager *approval.Manager
	JWTCfg  middleware.JWTConfig
}

// NewServer creates a new Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	return &Server{
		pool:    deps.Pool,
		queries: repository.New(deps.Pool),
		manager: deps.Manager,
		jwtCfg:  deps.JWTCfg,
	}
}

// actorFromCtx builds the workflow actor from the authenticated request
// context. An empty id means the JWT middleware did not run.
func actorFromCtx(c *gin.Context) approval.Actor {
	ctx := c.Request.Context()
	return approval.Actor{
		ID:   middleware.GetUserID(ctx),
		Role: workflow.Role(middleware.GetRole(ctx)),
	}
}
