package handlers

import (
	"log/slog"
	"net/http"
	"nosleep/internal/lockctl"
	"nosleep/internal/logging"
	"nosleep/internal/storage"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// LogsHandler serves the in-memory debug log
type LogsHandler struct {
	debugLog *logging.DebugLog
}

// NewLogsHandler creates a new logs handler
func NewLogsHandler(debugLog *logging.DebugLog) *LogsHandler {
	return &LogsHandler{debugLog: debugLog}
}

// GetLogs returns the retained debug lines, newest first
// GET /v1/logs
func (h *LogsHandler) GetLogs(c *gin.Context) {
	entries := h.debugLog.Entries()
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.String())
	}
	c.JSON(http.StatusOK, gin.H{
		"lines": lines,
		"count": len(lines),
	})
}

// ClearLogs empties the debug log
// DELETE /v1/logs
func (h *LogsHandler) ClearLogs(c *gin.Context) {
	h.debugLog.Clear()
	c.Status(http.StatusNoContent)
}

// EventsHandler serves the lock journal
type EventsHandler struct {
	journal storage.Journal
	logger  *slog.Logger
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(journal storage.Journal, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		journal: journal,
		logger:  logger.With("component", "events-api"),
	}
}

// ListEvents returns journal entries, newest first
// GET /v1/events?kind=&schedule_id=&since=&limit=
func (h *EventsHandler) ListEvents(c *gin.Context) {
	filter := storage.EventFilter{
		Kind:       lockctl.EventKind(c.Query("kind")),
		ScheduleID: c.Query("schedule_id"),
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "limit must be a positive integer",
				"code":  "INVALID_LIMIT",
			})
			return
		}
		filter.Limit = limit
	}

	if sinceStr := c.Query("since"); sinceStr != "" {
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid since format. Use RFC3339",
				"code":  "INVALID_DATE_FORMAT",
			})
			return
		}
		filter.Since = since
	}

	events, err := h.journal.ListEvents(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list events", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve events",
			"code":  "INTERNAL_ERROR",
		})
		return
	}

	response := make([]gin.H, 0, len(events))
	for _, e := range events {
		response = append(response, formatEventResponse(e))
	}
	c.JSON(http.StatusOK, response)
}

func formatEventResponse(e *lockctl.Event) gin.H {
	resp := gin.H{
		"id":         e.ID,
		"kind":       e.Kind,
		"created_at": e.CreatedAt,
	}
	if e.ScheduleID != "" {
		resp["schedule_id"] = e.ScheduleID
		resp["remaining"] = lockctl.FormatRemaining(e.Remaining)
	}
	if e.Detail != "" {
		resp["detail"] = e.Detail
	}
	return resp
}
