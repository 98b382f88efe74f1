package lifecycle

import (
	"github.com/labstack/echo/v4"

	"github.com/tahopetis/crate/pkg/auth"
)

// RegisterRoutes registers lifecycle routes. Reads need any authenticated
// user; definitions are changed by administrators only.
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	requireAuth := authMiddleware.RequireAuth()
	admin := authMiddleware.RequireAdmin()

	types := e.Group("/api/v1/lifecycle-types", requireAuth)
	types.GET("", h.ListTypes)
	types.GET("/:id", h.GetType)
	types.POST("", h.CreateType, admin)
	types.PUT("/:id", h.UpdateType, admin)
	types.DELETE("/:id", h.DeleteType, admin)
	types.POST("/:id/states", h.CreateState, admin)
	types.POST("/:id/transitions", h.CreateTransition, admin)

	states := e.Group("/api/v1/lifecycle-states", requireAuth)
	states.GET("/:id", h.GetState)
	states.PUT("/:id", h.UpdateState, admin)
	states.DELETE("/:id", h.DeleteState, admin)

	e.DELETE("/api/v1/lifecycle-transitions/:id", h.DeleteTransition, requireAuth, admin)
	e.POST("/api/v1/ci-type-lifecycles", h.CreateMapping, requireAuth, admin)
	e.DELETE("/api/v1/ci-type-lifecycles/:id", h.DeleteMapping, requireAuth, admin)
	e.GET("/api/v1/ci-types/:id/lifecycles", h.ListForCIType, requireAuth)
	e.GET("/api/v1/lifecycle-colors", h.Colors, requireAuth)
}
