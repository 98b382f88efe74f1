package ci

import (
	"github.com/labstack/echo/v4"

	"github.com/tahopetis/crate/pkg/auth"
)

// RegisterRoutes registers CI type and asset routes. Type definitions are
// changed by administrators only.
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	admin := authMiddleware.RequireAdmin()

	types := e.Group("/api/v1/ci-types")
	types.Use(authMiddleware.RequireAuth())
	types.GET("", h.ListTypes)
	types.GET("/:id", h.GetType)
	types.POST("", h.CreateType, admin)
	types.PUT("/:id", h.UpdateType, admin)
	types.DELETE("/:id", h.DeleteType, admin)

	assets := e.Group("/api/v1/ci-assets")
	assets.Use(authMiddleware.RequireAuth())
	assets.GET("", h.ListAssets)
	assets.GET("/search", h.SearchAssets)
	assets.GET("/:id", h.GetAsset)
	assets.POST("", h.CreateAsset)
	assets.PUT("/:id", h.UpdateAsset)
	assets.DELETE("/:id", h.DeleteAsset)
}
