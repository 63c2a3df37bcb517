package handlers

import (
	"log/slog"
	"net/http"
	"nosleep/internal/lockctl"

	"github.com/gin-gonic/gin"
)

// GrantAdminPath is where a client starts the admin grant flow after a
// PERMISSION_NOT_ACTIVE response
const GrantAdminPath = "/v1/permissions/admin/request"

// statusForCode maps controller error codes to HTTP statuses
func statusForCode(code string) int {
	switch code {
	case "CAPABILITY_UNAVAILABLE":
		return http.StatusNotImplemented
	case "PERMISSION_NOT_ACTIVE":
		return http.StatusConflict
	case "INVALID_DURATION":
		return http.StatusBadRequest
	case "CONTROLLER_CLOSED":
		return http.StatusServiceUnavailable
	case "PLATFORM_FAILURE":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondControllerError writes the error body for a controller failure
func respondControllerError(c *gin.Context, logger *slog.Logger, op string, err error) {
	code := lockctl.ErrorCode(err)
	status := statusForCode(code)

	body := gin.H{
		"error": err.Error(),
		"code":  code,
	}
	if code == "PERMISSION_NOT_ACTIVE" {
		body["grant_url"] = GrantAdminPath
	}
	if status == http.StatusInternalServerError {
		body["error"] = "Internal server error"
	}

	logger.Warn(op+" failed",
		"code", code,
		"status", status,
		"error", err,
	)
	c.JSON(status, body)
}
