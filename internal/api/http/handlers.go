package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/loop"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/registry"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/surface"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/workspace"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/types"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/utils"
)

// Version is reported by the health endpoint
const Version = "0.3.0"

// Handlers contains all HTTP handlers
type Handlers struct {
	ws        *workspace.Workspace
	metrics   *monitoring.Metrics
	clientLog *zap.Logger
	timeout   time.Duration
}

// NewHandlers creates a new handler set. timeout bounds each trip to the
// control loop.
func NewHandlers(ws *workspace.Workspace, logger *zap.Logger, metrics *monitoring.Metrics, timeout time.Duration) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Handlers{
		ws:        ws,
		metrics:   metrics,
		clientLog: logger.With(zap.String("component", "panel-client")),
		timeout:   timeout,
	}
}

// do runs fn on the control loop with the request's deadline.
func (h *Handlers) do(c *gin.Context, fn func() error) error {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()
	return h.ws.Do(ctx, fn)
}

// fail maps domain errors onto status codes.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, registry.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, workspace.ErrUnknownProfile), errors.Is(err, workspace.ErrUnknownFormat):
		status = http.StatusBadRequest
	case errors.Is(err, workspace.ErrNotMounted), errors.Is(err, workspace.ErrNoActiveSession),
		errors.Is(err, surface.ErrNotReady), errors.Is(err, surface.ErrNoRetry), errors.Is(err, surface.ErrClosed):
		status = http.StatusConflict
	case errors.Is(err, loop.ErrStopped):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func validateNewSession(req workspace.NewSessionRequest) error {
	if err := utils.ValidateName(req.Name, "name"); err != nil {
		return err
	}
	if err := utils.ValidateDirectory(req.Directory); err != nil {
		return err
	}
	if err := utils.ValidateString(req.Shell, "shell", 0, utils.MaxPathLength, false); err != nil {
		return err
	}
	if err := utils.ValidateName(req.Profile, "profile"); err != nil {
		return err
	}
	return utils.ValidateEnv(req.Env)
}

func validatePatch(p types.SessionPatch) error {
	if p.Name != nil {
		if err := utils.ValidateName(*p.Name, "name"); err != nil {
			return err
		}
	}
	if p.Title != nil {
		if err := utils.ValidateName(*p.Title, "title"); err != nil {
			return err
		}
	}
	if p.Directory != nil {
		return utils.ValidateDirectory(*p.Directory)
	}
	return nil
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	var mounted bool
	var sessions int
	err := h.do(c, func() error {
		mounted = h.ws.Mounted()
		sessions = len(h.ws.Snapshot().Sessions)
		return nil
	})
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"version":  Version,
		"panel":    gin.H{"mounted": mounted},
		"sessions": sessions,
		"metrics":  h.metrics.GetSnapshot(),
	})
}

// ListSessions returns the tab strip
func (h *Handlers) ListSessions(c *gin.Context) {
	var snap workspace.Snapshot
	if err := h.do(c, func() error {
		snap = h.ws.Snapshot()
		return nil
	}); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// CreateSession opens a new session and makes it active
func (h *Handlers) CreateSession(c *gin.Context) {
	var req workspace.NewSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if err := validateNewSession(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var session types.Session
	err := h.do(c, func() error {
		var err error
		session, err = h.ws.NewSession(req)
		return err
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

// CloseAll closes every session
func (h *Handlers) CloseAll(c *gin.Context) {
	if err := h.do(c, func() error {
		h.ws.CloseAll()
		return nil
	}); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CloseSession closes one session. Closing an unknown session is a 404.
func (h *Handlers) CloseSession(c *gin.Context) {
	sid := id.SessionID(c.Param("id"))

	var closed bool
	if err := h.do(c, func() error {
		closed = h.ws.CloseSession(sid)
		return nil
	}); err != nil {
		fail(c, err)
		return
	}
	if !closed {
		c.JSON(http.StatusNotFound, gin.H{"error": registry.ErrSessionNotFound.Error(), "session": sid})
		return
	}
	c.Status(http.StatusNoContent)
}

// UpdateSession applies a partial update
func (h *Handlers) UpdateSession(c *gin.Context) {
	sid := id.SessionID(c.Param("id"))

	var patch types.SessionPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validatePatch(patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var session types.Session
	err := h.do(c, func() error {
		var err error
		session, err = h.ws.UpdateSession(sid, patch)
		return err
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// ActivateSession makes a session active
func (h *Handlers) ActivateSession(c *gin.Context) {
	sid := id.SessionID(c.Param("id"))
	if err := h.do(c, func() error { return h.ws.Activate(sid) }); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "session": sid})
}

// ReorderRequest moves a tab to a final position
type ReorderRequest struct {
	From *int `json:"from" binding:"required"`
	To   *int `json:"to" binding:"required"`
}

// ReorderSessions moves a tab
func (h *Handlers) ReorderSessions(c *gin.Context) {
	var req ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var moved bool
	var snap workspace.Snapshot
	if err := h.do(c, func() error {
		moved = h.ws.Reorder(*req.From, *req.To)
		snap = h.ws.Snapshot()
		return nil
	}); err != nil {
		fail(c, err)
		return
	}
	if !moved {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reorder", "from": *req.From, "to": *req.To})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// ZoomRequest sets the zoom level
type ZoomRequest struct {
	Zoom *float64 `json:"zoom" binding:"required"`
}

// GetZoom returns the zoom level
func (h *Handlers) GetZoom(c *gin.Context) {
	var zoom float64
	if err := h.do(c, func() error {
		zoom = h.ws.Snapshot().Zoom
		return nil
	}); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"zoom": zoom})
}

// SetZoom stores a zoom level and returns the clamped value
func (h *Handlers) SetZoom(c *gin.Context) {
	var req ZoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var zoom float64
	if err := h.do(c, func() error {
		zoom = h.ws.SetZoom(*req.Zoom)
		return nil
	}); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"zoom": zoom})
}

// Scrollback downloads a session's scrollback as text or sanitized HTML,
// gzip compressed when the client accepts it.
func (h *Handlers) Scrollback(c *gin.Context) {
	sid := id.SessionID(c.Param("id"))
	format := c.DefaultQuery("format", "text")

	var body string
	if err := h.do(c, func() error {
		var err error
		body, err = h.ws.Scrollback(sid, format)
		return err
	}); err != nil {
		fail(c, err)
		return
	}

	contentType := "text/plain; charset=utf-8"
	if format == "html" {
		contentType = "text/html; charset=utf-8"
	}
	c.Header("Vary", "Accept-Encoding")

	if !strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") {
		c.Data(http.StatusOK, contentType, []byte(body))
		return
	}

	c.Header("Content-Type", contentType)
	c.Header("Content-Encoding", "gzip")
	c.Status(http.StatusOK)
	gz := gzip.NewWriter(c.Writer)
	if _, err := gz.Write([]byte(body)); err != nil {
		_ = c.Error(err)
	}
	if err := gz.Close(); err != nil {
		_ = c.Error(err)
	}
}

// Links lists URLs found in a session's scrollback
func (h *Handlers) Links(c *gin.Context) {
	sid := id.SessionID(c.Param("id"))

	var links []surface.Link
	if err := h.do(c, func() error {
		var err error
		links, err = h.ws.Links(sid)
		return err
	}); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sid, "links": links})
}

// Retry reopens a session whose connection failed
func (h *Handlers) Retry(c *gin.Context) {
	sid := id.SessionID(c.Param("id"))
	if err := h.do(c, func() error { return h.ws.Retry(sid) }); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true, "session": sid})
}
