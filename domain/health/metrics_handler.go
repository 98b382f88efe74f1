package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tahopetis/crate/domain/graph"
	"github.com/tahopetis/crate/domain/scheduler"
	"github.com/tahopetis/crate/internal/jobs"
	"github.com/tahopetis/crate/pkg/logger"
)

type queueStats interface {
	GetStats(ctx context.Context) (*jobs.Stats, error)
}

type workerMetrics interface {
	Metrics() jobs.WorkerMetrics
	IsRunning() bool
}

type taskInfo interface {
	GetTaskInfo() []scheduler.TaskInfo
	IsRunning() bool
}

// MetricsHandler reports background job and scheduler state
type MetricsHandler struct {
	queue     queueStats
	worker    workerMetrics
	scheduler taskInfo
	log       *slog.Logger
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(queue *jobs.Queue, worker *graph.SyncWorker, sched *scheduler.Scheduler, log *slog.Logger) *MetricsHandler {
	return &MetricsHandler{
		queue:     queue,
		worker:    syncWorker{worker},
		scheduler: sched,
		log:       log.With(logger.Scope("health.metrics")),
	}
}

// syncWorker reports a disabled worker as stopped with zero metrics.
type syncWorker struct{ w *graph.SyncWorker }

func (s syncWorker) Metrics() jobs.WorkerMetrics { return s.w.Metrics() }

func (s syncWorker) IsRunning() bool {
	return s.w != nil && s.w.Worker != nil && s.w.Worker.IsRunning()
}

// JobQueueMetrics represents metrics for a single job queue
type JobQueueMetrics struct {
	Queue         string             `json:"queue"`
	Pending       int64              `json:"pending"`
	Processing    int64              `json:"processing"`
	Completed     int64              `json:"completed"`
	Failed        int64              `json:"failed"`
	WorkerRunning bool               `json:"worker_running"`
	Worker        jobs.WorkerMetrics `json:"worker"`
	Error         string             `json:"error,omitempty"`
}

// AllJobMetrics contains metrics for all job queues
type AllJobMetrics struct {
	Queues    []JobQueueMetrics `json:"queues"`
	Timestamp string            `json:"timestamp"`
}

// JobMetrics handles GET /api/v1/metrics/jobs
// @Summary      Background job metrics
// @Description  Graph sync queue counts by status plus the worker's processed, succeeded and failed totals.
// @Tags         health
// @Produce      json
// @Success      200 {object} AllJobMetrics
// @Router       /api/v1/metrics/jobs [get]
// @Security     bearerAuth
func (h *MetricsHandler) JobMetrics(c echo.Context) error {
	m := JobQueueMetrics{
		Queue:         graph.SyncQueueName,
		WorkerRunning: h.worker.IsRunning(),
		Worker:        h.worker.Metrics(),
	}
	stats, err := h.queue.GetStats(c.Request().Context())
	if err != nil {
		h.log.Warn("queue stats failed", logger.Error(err))
		m.Error = "stats unavailable"
	} else {
		m.Pending, m.Processing, m.Completed, m.Failed = stats.Pending, stats.Processing, stats.Completed, stats.Failed
	}

	return c.JSON(http.StatusOK, AllJobMetrics{
		Queues:    []JobQueueMetrics{m},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// SchedulerMetrics handles GET /api/v1/metrics/scheduler
// @Summary      Scheduled task state
// @Tags         health
// @Produce      json
// @Success      200 {object} map[string]any
// @Router       /api/v1/metrics/scheduler [get]
// @Security     bearerAuth
func (h *MetricsHandler) SchedulerMetrics(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"running": h.scheduler.IsRunning(),
		"tasks":   h.scheduler.GetTaskInfo(),
	})
}
