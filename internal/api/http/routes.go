package http

import (
	"github.com/gin-gonic/gin"
)

// Register mounts the REST routes on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.POST("/logs", h.IngestLogs)

	sessions := r.Group("/sessions")
	{
		sessions.GET("", h.ListSessions)
		sessions.POST("", h.CreateSession)
		sessions.DELETE("", h.CloseAll)
		sessions.POST("/reorder", h.ReorderSessions)
		sessions.PATCH("/:id", h.UpdateSession)
		sessions.DELETE("/:id", h.CloseSession)
		sessions.POST("/:id/activate", h.ActivateSession)
		sessions.POST("/:id/retry", h.Retry)
		sessions.GET("/:id/scrollback", h.Scrollback)
		sessions.GET("/:id/links", h.Links)
	}

	r.GET("/zoom", h.GetZoom)
	r.PUT("/zoom", h.SetZoom)
}
