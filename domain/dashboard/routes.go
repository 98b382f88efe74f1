package dashboard

import (
	"github.com/labstack/echo/v4"

	"github.com/tahopetis/crate/pkg/auth"
)

// RegisterRoutes registers dashboard routes
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	g := e.Group("/api/v1/dashboard")
	g.Use(authMiddleware.RequireAuth())
	g.GET("/stats", h.Stats)
}
