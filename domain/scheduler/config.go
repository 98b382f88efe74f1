package scheduler

import (
	"log/slog"
	"time"

	"github.com/tahopetis/crate/internal/config"
)

// Task names.
const (
	TaskAmortization       = "amortization_recalculation"
	TaskStaleDataCleanup   = "stale_data_cleanup"
	TaskGraphReconcile     = "graph_reconcile"
	TaskGraphStaleRecovery = "graph_sync_stale_recovery"
)

// taskPlan is one task with its schedule. An empty schedule uses interval.
type taskPlan struct {
	name     string
	schedule string
	interval time.Duration
	run      TaskFunc
}

func plans(cfg config.SchedulerConfig, t Tasks) []taskPlan {
	return []taskPlan{
		{name: TaskAmortization, schedule: cfg.AmortizationSchedule, interval: 24 * time.Hour, run: t.Amortization.Run},
		{name: TaskStaleDataCleanup, schedule: cfg.CleanupSchedule, interval: 24 * time.Hour, run: t.Cleanup.Run},
		{name: TaskGraphReconcile, schedule: cfg.GraphReconcileSchedule, interval: 24 * time.Hour, run: t.GraphReconcile.Run},
		{name: TaskGraphStaleRecovery, schedule: cfg.StaleRecoverySchedule, interval: cfg.StaleRecoveryInterval, run: t.StaleRecovery.Run},
	}
}

// addScheduledTask registers task with its cron schedule, or at interval
// when schedule is empty.
func addScheduledTask(s *Scheduler, log *slog.Logger, name, schedule string, interval time.Duration, task TaskFunc) error {
	if schedule != "" {
		return s.AddCronTask(name, schedule, task)
	}
	if interval <= 0 {
		log.Warn("task has neither schedule nor interval, skipping", slog.String("name", name))
		return nil
	}
	return s.AddIntervalTask(name, interval, task)
}
