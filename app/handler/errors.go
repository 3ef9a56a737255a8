package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"slumber/internal/service/lifecycle"
	"slumber/pkg/logger"
	"slumber/pkg/status"
)

// statusFor maps orchestrator errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, lifecycle.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lifecycle.ErrTemplateNotFound):
		return http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrInsufficientCredit):
		return http.StatusPaymentRequired
	case errors.Is(err, lifecycle.ErrNoCapacity), errors.Is(err, lifecycle.ErrWakeFailed):
		return http.StatusServiceUnavailable
	case errors.Is(err, lifecycle.ErrDeploymentFailed):
		return http.StatusBadGateway
	case errors.Is(err, lifecycle.ErrBackupDisabled):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs err and answers with a redacted message
func writeError(c *gin.Context, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		logger.ErrorCtx(c.Request.Context(), "%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	} else {
		logger.InfoCtx(c.Request.Context(), "%s %s rejected: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(code, gin.H{"error": status.Redact(err.Error())})
}
