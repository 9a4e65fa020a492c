// Package middleware provides HTTP middleware for ChangeGate.
package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "changegate.io/changegate/internal/pkg/errors"
	"changegate.io/changegate/internal/pkg/logger"
)

// ErrorHandler is a Gin middleware that provides centralized error handling.
// It captures errors added via c.Error() and returns a consistent JSON body.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			logger.Warn("Request error",
				zap.String("code", appErr.Code),
				zap.String("message", appErr.Message),
				zap.Int("status", appErr.HTTPStatus),
				zap.String("request_id", GetRequestID(c.Request.Context())),
				zap.Error(appErr.Err),
			)
			body := gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
			}
			if len(appErr.Params) > 0 {
				body["params"] = appErr.Params
			}
			c.JSON(appErr.HTTPStatus, body)
			return
		}

		// Fallback: generic 500 error
		logger.Error("Unhandled request error",
			zap.String("request_id", GetRequestID(c.Request.Context())),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "An internal error occurred",
		})
	}
}
