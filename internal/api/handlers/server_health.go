package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetLiveness handles GET /health/live — liveness probe.
func (s *Server) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetReadiness handles GET /health/ready — readiness probe.
func (s *Server) GetReadiness(c *gin.Context) {
	checks := make(map[string]string)
	allHealthy := true

	// Database check.
	if err := s.pool.Ping(c.Request.Context()); err != nil {
		checks["database"] = "error"
		allHealthy = false
	} else {
		checks["database"] = "ok"
	}

	status := "ok"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{"status": status, "checks": checks})
}
