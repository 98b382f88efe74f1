package graph

import (
	"github.com/labstack/echo/v4"

	"github.com/tahopetis/crate/pkg/auth"
)

// RegisterRoutes registers all graph routes.
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	g := e.Group("/api/v1/graph")
	g.Use(authMiddleware.RequireAuth())

	g.GET("/data", h.GetData)
	g.GET("/nodes/:id/neighbors", h.GetNeighbors)
	g.GET("/search", h.Search)
	g.POST("/rebuild", h.Rebuild, authMiddleware.RequireAdmin())
}
