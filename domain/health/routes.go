package health

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tahopetis/crate/pkg/auth"
)

// RegisterRoutes registers health, Prometheus and job metrics routes. Probes
// and /metrics are public; job and scheduler details require a login.
func RegisterRoutes(e *echo.Echo, h *Handler, m *MetricsHandler, authMiddleware *auth.Middleware) {
	e.GET("/health", h.Health)
	e.GET("/healthz", h.Healthz)
	e.GET("/ready", h.Ready)
	e.GET("/debug", h.Debug)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	g := e.Group("/api/v1/metrics")
	g.Use(authMiddleware.RequireAuth())
	g.GET("/jobs", m.JobMetrics)
	g.GET("/scheduler", m.SchedulerMetrics)
}
