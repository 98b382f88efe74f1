package valuation

import (
	"github.com/labstack/echo/v4"

	"github.com/tahopetis/crate/pkg/auth"
)

// RegisterRoutes registers valuation routes. Any authenticated user may
// record valuations.
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	g := e.Group("/api/v1/amortization")
	g.Use(authMiddleware.RequireAuth())
	g.GET("/records", h.List)
	g.POST("/records", h.Create)
	g.GET("/assets/:id/schedule", h.Schedule)
}
