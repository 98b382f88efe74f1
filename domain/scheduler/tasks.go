package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tahopetis/crate/domain/graph"
	"github.com/tahopetis/crate/domain/valuation"
	"github.com/tahopetis/crate/pkg/logger"
)

// Recalculator books elapsed amortization years.
type Recalculator interface {
	Recalculate(ctx context.Context, asOf time.Time) (valuation.RecalcResult, error)
}

// Rebuilder reconciles the graph projection with PostgreSQL.
type Rebuilder interface {
	Rebuild(ctx context.Context) (*graph.RebuildResult, error)
}

// JobMaintainer is the maintenance side of the graph sync queue.
type JobMaintainer interface {
	PurgeCompleted(ctx context.Context, age time.Duration) (int, error)
	RecoverStaleJobs(ctx context.Context, threshold time.Duration) (int, error)
}

// AuditPurger removes audit entries older than a retention period.
type AuditPurger interface {
	Purge(ctx context.Context, retention time.Duration) (int, error)
}

// Tasks groups the scheduled tasks.
type Tasks struct {
	Amortization   *AmortizationTask
	Cleanup        *CleanupTask
	GraphReconcile *GraphReconcileTask
	StaleRecovery  *StaleRecoveryTask
}

// AmortizationTask recalculates every valuation as of the run time.
type AmortizationTask struct {
	svc Recalculator
	log *slog.Logger
	now func() time.Time
}

// NewAmortizationTask creates a new amortization task
func NewAmortizationTask(svc Recalculator, log *slog.Logger) *AmortizationTask {
	return &AmortizationTask{
		svc: svc,
		log: log.With(logger.Scope("scheduler.amortization")),
		now: time.Now,
	}
}

// Run executes the recalculation
func (t *AmortizationTask) Run(ctx context.Context) error {
	start := time.Now()
	res, err := t.svc.Recalculate(ctx, t.now().UTC())
	if err != nil {
		return err
	}
	t.log.Info("amortization recalculation completed",
		slog.Int("valuations", res.Valuations),
		slog.Int("entries_created", res.EntriesCreated),
		slog.Int("failed", res.Failed),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// CleanupTask purges completed sync jobs and expired audit entries. A zero
// audit retention skips the audit purge.
type CleanupTask struct {
	jobs           JobMaintainer
	audit          AuditPurger
	jobRetention   time.Duration
	auditRetention time.Duration
	log            *slog.Logger
}

// NewCleanupTask creates a new stale data cleanup task
func NewCleanupTask(jobs JobMaintainer, audit AuditPurger, jobRetention, auditRetention time.Duration, log *slog.Logger) *CleanupTask {
	return &CleanupTask{
		jobs:           jobs,
		audit:          audit,
		jobRetention:   jobRetention,
		auditRetention: auditRetention,
		log:            log.With(logger.Scope("scheduler.cleanup")),
	}
}

// Run executes both purges. A failing purge does not stop the other one.
func (t *CleanupTask) Run(ctx context.Context) error {
	start := time.Now()

	jobsPurged, jobErr := t.jobs.PurgeCompleted(ctx, t.jobRetention)
	if jobErr != nil {
		t.log.Warn("failed to purge completed sync jobs", logger.Error(jobErr))
	}
	var auditPurged int
	var auditErr error
	if t.auditRetention > 0 {
		auditPurged, auditErr = t.audit.Purge(ctx, t.auditRetention)
		if auditErr != nil {
			t.log.Warn("failed to purge audit entries", logger.Error(auditErr))
		}
	}

	if jobsPurged > 0 || auditPurged > 0 {
		t.log.Info("stale data cleaned up",
			slog.Int("sync_jobs", jobsPurged),
			slog.Int("audit_entries", auditPurged),
			slog.Duration("duration", time.Since(start)))
	} else {
		t.log.Debug("no stale data to clean up",
			slog.Duration("duration", time.Since(start)))
	}
	return errors.Join(jobErr, auditErr)
}

// GraphReconcileTask rebuilds the graph projection.
type GraphReconcileTask struct {
	rebuilder Rebuilder
	log       *slog.Logger
}

// NewGraphReconcileTask creates a new graph reconcile task
func NewGraphReconcileTask(rebuilder Rebuilder, log *slog.Logger) *GraphReconcileTask {
	return &GraphReconcileTask{
		rebuilder: rebuilder,
		log:       log.With(logger.Scope("scheduler.graph_reconcile")),
	}
}

// Run executes the rebuild
func (t *GraphReconcileTask) Run(ctx context.Context) error {
	_, err := t.rebuilder.Rebuild(ctx)
	return err
}

// StaleRecoveryTask returns sync jobs stuck in processing to the queue.
type StaleRecoveryTask struct {
	jobs      JobMaintainer
	threshold time.Duration
	log       *slog.Logger
}

// NewStaleRecoveryTask creates a new stale job recovery task
func NewStaleRecoveryTask(jobs JobMaintainer, threshold time.Duration, log *slog.Logger) *StaleRecoveryTask {
	if threshold <= 0 {
		threshold = 10 * time.Minute
	}
	return &StaleRecoveryTask{
		jobs:      jobs,
		threshold: threshold,
		log:       log.With(logger.Scope("scheduler.stale_recovery")),
	}
}

// Run executes the recovery
func (t *StaleRecoveryTask) Run(ctx context.Context) error {
	n, err := t.jobs.RecoverStaleJobs(ctx, t.threshold)
	if err != nil {
		return err
	}
	if n > 0 {
		t.log.Info("recovered stale sync jobs", slog.Int("count", n))
	}
	return nil
}
