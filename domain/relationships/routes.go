package relationships

import (
	"github.com/labstack/echo/v4"

	"github.com/tahopetis/crate/pkg/auth"
)

// RegisterRoutes registers relationship type and relationship routes.
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	admin := authMiddleware.RequireAdmin()

	types := e.Group("/api/v1/relationship-types")
	types.Use(authMiddleware.RequireAuth())
	types.GET("", h.ListTypes)
	types.GET("/:id", h.GetType)
	types.POST("", h.CreateType, admin)
	types.PUT("/:id", h.UpdateType, admin)
	types.DELETE("/:id", h.DeleteType, admin)

	rels := e.Group("/api/v1/relationships")
	rels.Use(authMiddleware.RequireAuth())
	rels.GET("", h.List)
	rels.GET("/:id", h.Get)
	rels.POST("", h.Create)
	rels.DELETE("/:id", h.Delete)
}
