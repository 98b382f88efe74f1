package health

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/tahopetis/crate/internal/config"
	"github.com/tahopetis/crate/internal/graphdb"
	"github.com/tahopetis/crate/internal/version"
	"github.com/tahopetis/crate/pkg/syshealth"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	statusDegraded  = "degraded"
	statusDisabled  = "disabled"
)

// probe is one dependency check. A failing optional probe degrades health
// without making the service unhealthy.
type probe struct {
	name     string
	optional bool
	enabled  bool
	ping     func(ctx context.Context) error
}

// Handler handles health check requests
type Handler struct {
	pool    *pgxpool.Pool
	cfg     *config.Config
	probes  []probe
	system  *syshealth.Monitor
	startAt time.Time
}

// NewHandler creates a new health handler. PostgreSQL is required; Neo4j is
// optional because the graph is a projection.
func NewHandler(pool *pgxpool.Pool, graph *graphdb.Client, system *syshealth.Monitor, cfg *config.Config) *Handler {
	h := newHandler(pool, cfg,
		probe{name: "database", enabled: true, ping: pool.Ping},
		probe{name: "graph", optional: true, enabled: graph.Enabled(), ping: graph.Ping},
	)
	h.system = system
	return h
}

func newHandler(pool *pgxpool.Pool, cfg *config.Config, probes ...probe) *Handler {
	return &Handler{
		pool:    pool,
		cfg:     cfg,
		probes:  probes,
		startAt: time.Now(),
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string           `json:"status"`
	Timestamp string           `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
}

// Check represents an individual health check result
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (h *Handler) run(ctx context.Context) (string, map[string]Check) {
	overall := statusHealthy
	checks := make(map[string]Check, len(h.probes))
	for _, p := range h.probes {
		if !p.enabled {
			checks[p.name] = Check{Status: statusDisabled}
			continue
		}
		if err := p.ping(ctx); err != nil {
			checks[p.name] = Check{Status: statusUnhealthy, Message: err.Error()}
			switch {
			case !p.optional:
				overall = statusUnhealthy
			case overall == statusHealthy:
				overall = statusDegraded
			}
			continue
		}
		checks[p.name] = Check{Status: statusHealthy}
	}
	return overall, checks
}

// Health returns the overall service health
// @Summary      Get service health
// @Description  Returns the status of PostgreSQL and Neo4j. An unreachable graph only degrades the service.
// @Tags         health
// @Produce      json
// @Success      200 {object} HealthResponse "Service is healthy or degraded"
// @Success      503 {object} HealthResponse "Service is unhealthy"
// @Router       /health [get]
func (h *Handler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	overall, checks := h.run(ctx)
	response := HealthResponse{
		Status:    overall,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.startAt).String(),
		Version:   version.Version,
		Checks:    checks,
	}

	statusCode := http.StatusOK
	if overall == statusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	return c.JSON(statusCode, response)
}

// Healthz returns a simple health check (for k8s liveness probe)
// @Summary      Liveness probe
// @Tags         health
// @Produce      plain
// @Success      200 {string} string "OK"
// @Router       /healthz [get]
func (h *Handler) Healthz(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// Ready returns readiness status (for k8s readiness probe)
// @Summary      Readiness probe
// @Description  Ready when every required dependency answers.
// @Tags         health
// @Produce      json
// @Success      200 {object} map[string]any "Service is ready"
// @Success      503 {object} map[string]any "Service is not ready"
// @Router       /ready [get]
func (h *Handler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	overall, _ := h.run(ctx)
	if overall == statusUnhealthy {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status":  "not_ready",
			"message": "Database connection failed",
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// Debug returns debug information (only in development)
// @Summary      Get debug information
// @Tags         health
// @Produce      json
// @Success      200 {object} map[string]any "Debug information"
// @Failure      404 {object} map[string]any "Not found in production"
// @Router       /debug [get]
func (h *Handler) Debug(c echo.Context) error {
	if h.cfg.Environment == "production" {
		return echo.NewHTTPError(http.StatusNotFound, "Not found")
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	body := map[string]any{
		"environment": h.cfg.Environment,
		"debug":       h.cfg.Debug,
		"version":     version.Info(),
		"go_version":  runtime.Version(),
		"goroutines":  runtime.NumGoroutine(),
		"memory": map[string]any{
			"alloc_mb":       mem.Alloc / 1024 / 1024,
			"total_alloc_mb": mem.TotalAlloc / 1024 / 1024,
			"sys_mb":         mem.Sys / 1024 / 1024,
			"num_gc":         mem.NumGC,
		},
	}
	if h.system != nil {
		body["system"] = h.system.Snapshot()
	}
	if h.pool != nil {
		stat := h.pool.Stat()
		body["database"] = map[string]any{
			"host":        h.cfg.Database.Host,
			"port":        h.cfg.Database.Port,
			"database":    h.cfg.Database.Database,
			"pool_total":  stat.TotalConns(),
			"pool_idle":   stat.IdleConns(),
			"pool_in_use": stat.AcquiredConns(),
		}
	}
	return c.JSON(http.StatusOK, body)
}
