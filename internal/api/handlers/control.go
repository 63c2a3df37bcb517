package handlers

import (
	"log/slog"
	"net/http"
	"nosleep/internal/lockctl"

	"github.com/gin-gonic/gin"
)

// ControlHandler exposes the lock controller
type ControlHandler struct {
	controller lockctl.Service
	logger     *slog.Logger
}

// NewControlHandler creates a new control handler
func NewControlHandler(controller lockctl.Service, logger *slog.Logger) *ControlHandler {
	return &ControlHandler{
		controller: controller,
		logger:     logger.With("component", "control-api"),
	}
}

// ScheduleRequest selects the countdown length. Duration ("1h30m" or "1:30")
// takes precedence over Hours/Minutes when set.
type ScheduleRequest struct {
	Hours    int    `json:"hours"`
	Minutes  int    `json:"minutes"`
	Duration string `json:"duration,omitempty"`
}

// GetState returns the controller snapshot
// GET /v1/state
func (h *ControlHandler) GetState(c *gin.Context) {
	snap := h.controller.Snapshot(c.Request.Context())
	c.JSON(http.StatusOK, formatStateResponse(snap))
}

// Schedule starts (or replaces) the lock countdown
// POST /v1/schedule
func (h *ControlHandler) Schedule(c *gin.Context) {
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
			"code":  "INVALID_REQUEST",
		})
		return
	}

	selection := lockctl.SelectedDuration{Hours: req.Hours, Minutes: req.Minutes}
	if req.Duration != "" {
		parsed, err := lockctl.ParseSelectedDuration(req.Duration)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
				"code":  "INVALID_DURATION",
			})
			return
		}
		selection = parsed
	}
	if err := selection.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
			"code":  "INVALID_DURATION",
		})
		return
	}

	state, err := h.controller.Schedule(c.Request.Context(), selection)
	if err != nil {
		respondControllerError(c, h.logger, "schedule", err)
		return
	}

	c.JSON(http.StatusCreated, formatScheduleResponse(state))
}

// CancelSchedule stops the running countdown
// DELETE /v1/schedule
func (h *ControlHandler) CancelSchedule(c *gin.Context) {
	cancelled := h.controller.Cancel(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"cancelled": cancelled,
	})
}

// LockNow locks the device immediately, cancelling any countdown
// POST /v1/lock
func (h *ControlHandler) LockNow(c *gin.Context) {
	if err := h.controller.LockNow(c.Request.Context()); err != nil {
		respondControllerError(c, h.logger, "lock", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"locked": true,
	})
}

// RequestAdmin starts the admin grant flow
// POST /v1/permissions/admin/request
func (h *ControlHandler) RequestAdmin(c *gin.Context) {
	granted, err := h.controller.RequestAdmin(c.Request.Context())
	if err != nil {
		respondControllerError(c, h.logger, "admin request", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"permission": "admin",
		"granted":    granted,
		"pending":    !granted,
	})
}

// RequestOverlay starts the overlay grant flow
// POST /v1/permissions/overlay/request
func (h *ControlHandler) RequestOverlay(c *gin.Context) {
	granted, err := h.controller.RequestOverlay(c.Request.Context())
	if err != nil {
		respondControllerError(c, h.logger, "overlay request", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"permission": "overlay",
		"granted":    granted,
		"pending":    !granted,
	})
}

func formatScheduleResponse(state lockctl.ScheduleState) gin.H {
	resp := gin.H{
		"status":            state.Status,
		"remaining_seconds": int64(state.Remaining.Seconds()),
		"remaining":         lockctl.FormatRemaining(state.Remaining),
		"warned":            state.Warned,
	}
	if state.ID != "" {
		resp["id"] = state.ID
	}
	if !state.Deadline.IsZero() && state.Running() {
		resp["total_seconds"] = int64(state.TotalDuration.Seconds())
		resp["started_at"] = state.StartedAt
		resp["deadline"] = state.Deadline
	}
	return resp
}

func formatStateResponse(snap lockctl.Snapshot) gin.H {
	resp := gin.H{
		"admin":            snap.Admin,
		"overlay":          snap.Overlay,
		"schedule":         formatScheduleResponse(snap.Schedule),
		"selected":         snap.Selected,
		"selected_text":    snap.Selected.String(),
		"capabilities":     snap.Capabilities,
		"lock_available":   snap.LockAvailable,
		"background_ticks": snap.BackgroundTicks,
	}
	if snap.LastLockError != "" {
		resp["last_lock_error"] = snap.LastLockError
	}
	return resp
}
