package ws

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/workspace"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/infrastructure/monitoring"
)

// Config tunes panel connections.
type Config struct {
	FramesPerSecond float64
	Burst           int
	SendBuffer      int
	ReadLimit       int64
	WriteTimeout    time.Duration
	PongTimeout     time.Duration
	PingInterval    time.Duration
	AllowedOrigins  []string
}

func (c Config) withDefaults() Config {
	if c.FramesPerSecond <= 0 {
		c.FramesPerSecond = 500
	}
	if c.Burst <= 0 {
		c.Burst = 1000
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 1024
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 512 * 1024
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 60 * time.Second
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongTimeout {
		c.PingInterval = c.PongTimeout * 9 / 10
	}
	return c
}

// Handler manages panel WebSocket connections
type Handler struct {
	ws       *workspace.Workspace
	cfg      Config
	upgrader websocket.Upgrader
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// NewHandler creates a new panel handler
func NewHandler(ws *workspace.Workspace, cfg Config, logger *zap.Logger, metrics *monitoring.Metrics) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	h := &Handler{
		ws:      ws,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "panel")),
		metrics: metrics,
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	// same-origin requests are always fine
	return u.Host == r.Host
}

// HandleConnection upgrades the request and serves the panel until the client
// goes away. A newer panel replaces an older one.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	p := newPanel(conn, h.ws, h.cfg, h.logger, h.metrics)
	h.metrics.IncPanelConnections()
	defer h.metrics.DecPanelConnections()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-p.done
		cancel()
	}()
	go p.writePump()

	if err := h.ws.Do(ctx, func() error { return h.ws.Mount(p) }); err != nil {
		h.logger.Error("mount panel", zap.Error(err))
		p.emitError("", err)
		p.close()
		return
	}
	h.logger.Info("panel attached", zap.String("remote", c.Request.RemoteAddr))

	p.readPump(ctx)

	_ = h.ws.Do(context.Background(), func() error {
		h.ws.Release(p)
		return nil
	})
	p.close()
	h.logger.Info("panel detached", zap.String("remote", c.Request.RemoteAddr))
}
