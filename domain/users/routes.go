package users

import (
	"github.com/labstack/echo/v4"

	"github.com/tahopetis/crate/pkg/auth"
)

// RegisterRoutes registers the auth and users routes
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	requireAuth := authMiddleware.RequireAuth()

	g := e.Group("/api/v1/auth")
	g.POST("/register", h.Register)
	g.POST("/login", h.Login)
	g.POST("/logout", h.Logout, requireAuth)
	g.GET("/me", h.Me, requireAuth)

	e.GET("/api/v1/users/search", h.Search, requireAuth)
}
