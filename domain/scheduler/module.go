package scheduler

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/tahopetis/crate/domain/audit"
	"github.com/tahopetis/crate/domain/graph"
	"github.com/tahopetis/crate/domain/valuation"
	"github.com/tahopetis/crate/internal/config"
	"github.com/tahopetis/crate/internal/jobs"
)

// Module provides scheduled task functionality
var Module = fx.Module("scheduler",
	fx.Provide(
		func(cfg *config.Config, log *slog.Logger) *Scheduler {
			return NewScheduler(log, cfg.Scheduler.TaskTimeout)
		},
		NewTasks,
	),
	fx.Invoke(
		RegisterTasks,
		RegisterSchedulerLifecycle,
	),
)

// TaskParams contains dependencies for creating scheduled tasks
type TaskParams struct {
	fx.In
	Cfg        *config.Config
	Valuations *valuation.Service
	Reconciler *graph.Reconciler
	SyncQueue  *jobs.Queue
	Audit      *audit.Service
	Log        *slog.Logger
}

// NewTasks builds the scheduled tasks from their services.
func NewTasks(p TaskParams) Tasks {
	sc := p.Cfg.Scheduler
	jobRetention := config.Days(sc.SyncJobRetentionDays)
	auditRetention := config.Days(sc.AuditRetentionDays)
	return Tasks{
		Amortization:   NewAmortizationTask(p.Valuations, p.Log),
		Cleanup:        NewCleanupTask(p.SyncQueue, p.Audit, jobRetention, auditRetention, p.Log),
		GraphReconcile: NewGraphReconcileTask(p.Reconciler, p.Log),
		StaleRecovery:  NewStaleRecoveryTask(p.SyncQueue, sc.StaleJobThreshold, p.Log),
	}
}

// RegisterTasks registers all scheduled tasks. A task with an invalid
// schedule is logged and skipped.
func RegisterTasks(s *Scheduler, tasks Tasks, cfg *config.Config, log *slog.Logger) {
	if !cfg.Scheduler.Enabled {
		log.Info("scheduler disabled, skipping task registration")
		return
	}

	for _, p := range plans(cfg.Scheduler, tasks) {
		if err := addScheduledTask(s, log, p.name, p.schedule, p.interval, p.run); err != nil {
			log.Error("failed to register scheduled task",
				slog.String("name", p.name),
				slog.String("schedule", p.schedule),
				slog.String("error", err.Error()))
		}
	}

	log.Info("registered scheduled tasks",
		slog.Any("tasks", s.ListTasks()))
}

// RegisterSchedulerLifecycle registers the scheduler with fx lifecycle
func RegisterSchedulerLifecycle(lc fx.Lifecycle, scheduler *Scheduler, cfg *config.Config) {
	if !cfg.Scheduler.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return scheduler.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return scheduler.Stop(ctx)
		},
	})
}
