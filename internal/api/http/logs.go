package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/id"
)

// maxLogBatch bounds one upload from the panel
const maxLogBatch = 200

// PanelLogEntry is one client-side log record
type PanelLogEntry struct {
	Level     string         `json:"level"`
	Message   string         `json:"message" binding:"required"`
	Session   id.SessionID   `json:"session,omitempty"`
	Context   map[string]any `json:"context"`
	Timestamp string         `json:"timestamp"`
}

// PanelLogRequest is a batch of panel log records
type PanelLogRequest struct {
	Entries []PanelLogEntry `json:"entries" binding:"required,min=1,dive"`
}

// IngestLogs writes panel-side log records into the server log
func (h *Handlers) IngestLogs(c *gin.Context) {
	var req PanelLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid log request format"})
		return
	}
	if len(req.Entries) > maxLogBatch {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "too many log entries", "max": maxLogBatch})
		return
	}

	for _, entry := range req.Entries {
		h.logEntry(entry)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "entries_received": len(req.Entries)})
}

func (h *Handlers) logEntry(entry PanelLogEntry) {
	fields := make([]zap.Field, 0, len(entry.Context)+2)
	fields = append(fields, zap.String("client_timestamp", entry.Timestamp))
	if entry.Session != "" {
		fields = append(fields, zap.String("session", entry.Session.String()))
	}
	for key, value := range entry.Context {
		switch v := value.(type) {
		case string:
			fields = append(fields, zap.String(key, v))
		case float64:
			fields = append(fields, zap.Float64(key, v))
		case bool:
			fields = append(fields, zap.Bool(key, v))
		default:
			fields = append(fields, zap.Any(key, v))
		}
	}

	switch entry.Level {
	case "error":
		h.clientLog.Error(entry.Message, fields...)
	case "warn":
		h.clientLog.Warn(entry.Message, fields...)
	case "debug", "verbose":
		h.clientLog.Debug(entry.Message, fields...)
	default:
		h.clientLog.Info(entry.Message, fields...)
	}
}
