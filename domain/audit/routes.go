package audit

import (
	"github.com/labstack/echo/v4"

	"github.com/tahopetis/crate/pkg/auth"
)

// RegisterRoutes registers audit routes. Audit queries are admin-only.
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	g := e.Group("/api/v1/audit")
	g.Use(authMiddleware.RequireAuth())
	g.Use(authMiddleware.RequireAdmin())

	g.GET("/logs", h.ListLogs)
}
