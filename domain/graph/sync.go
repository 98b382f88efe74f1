package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/tahopetis/crate/internal/config"
	"github.com/tahopetis/crate/internal/jobs"
	"github.com/tahopetis/crate/pkg/apperror"
	"github.com/tahopetis/crate/pkg/logger"
)

// SyncJobsTable holds failed mirror writes awaiting retry.
const SyncJobsTable = "cmdb.graph_sync_jobs"

// SyncQueueName names the sync queue and its worker in logs and metrics.
const SyncQueueName = "graph_sync"

// NewSyncQueue creates the graph sync job queue.
func NewSyncQueue(db bun.IDB, cfg *config.Config, log *slog.Logger) *jobs.Queue {
	qc := jobs.DefaultQueueConfig(SyncJobsTable)
	qc.MaxAttempts = cfg.GraphSync.MaxAttempts
	qc.BatchSize = cfg.GraphSync.WorkerBatchSize
	return jobs.NewQueue(db, qc, log.With(logger.Scope("graph.queue")))
}

// Syncer re-applies relational truth for one entity to the graph. Jobs only
// carry the entity kind and id, so a retry always converges on the current
// state rather than replaying a stale write.
type Syncer struct {
	source Source
	proj   Projection
	log    *slog.Logger
}

// NewSyncer creates a new graph syncer
func NewSyncer(source Source, proj Projection, log *slog.Logger) *Syncer {
	return &Syncer{
		source: source,
		proj:   proj,
		log:    log.With(logger.Scope("graph.sync")),
	}
}

// Handle is a jobs.Handler.
func (s *Syncer) Handle(ctx context.Context, job jobs.Job) error {
	var err error
	switch job.Operation {
	case KindAsset:
		err = s.syncAsset(ctx, job)
	case KindRelationship:
		err = s.syncRelationship(ctx, job)
	case KindRelationshipType:
		err = s.syncRelationshipType(ctx, job)
	default:
		err = fmt.Errorf("unknown graph sync operation %q", job.Operation)
	}

	result := "ok"
	if err != nil {
		result = "failed"
	}
	syncJobs.WithLabelValues(job.Operation, result).Inc()
	return err
}

func (s *Syncer) syncAsset(ctx context.Context, job jobs.Job) error {
	node, live, err := s.source.Asset(ctx, job.EntityID)
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		return s.proj.DeleteAssetNode(ctx, job.EntityID)
	case err != nil:
		return err
	case live:
		return s.proj.UpsertAssetNode(ctx, node)
	default:
		return s.proj.DeleteAssetNode(ctx, job.EntityID)
	}
}

func (s *Syncer) syncRelationship(ctx context.Context, job jobs.Job) error {
	edge, live, err := s.source.Relationship(ctx, job.EntityID)
	if errors.Is(err, apperror.ErrNotFound) {
		s.log.Debug("relationship gone, leaving cleanup to reconcile", slog.String("id", job.EntityID.String()))
		return nil
	}
	if err != nil {
		return err
	}
	if !live {
		return s.proj.DeleteEdge(ctx, edge.FromID, edge.ToID, edge.TypeID)
	}

	from, _, err := s.source.Asset(ctx, edge.FromID)
	if err != nil {
		return err
	}
	to, _, err := s.source.Asset(ctx, edge.ToID)
	if err != nil {
		return err
	}
	return s.proj.MergeEdge(ctx, edge, from, to)
}

func (s *Syncer) syncRelationshipType(ctx context.Context, job jobs.Job) error {
	name, live, err := s.source.RelationshipTypeName(ctx, job.EntityID)
	if errors.Is(err, apperror.ErrNotFound) || (err == nil && !live) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.proj.RegisterRelationshipLabel(ctx, name)
}

// SyncWorker is the polling worker draining the sync queue. It is nil when
// the worker is disabled or the graph is not configured.
type SyncWorker struct {
	*jobs.Worker
}

// NewSyncWorker builds the worker and ties it to the fx lifecycle.
func NewSyncWorker(lc fx.Lifecycle, cfg *config.Config, queue *jobs.Queue, syncer *Syncer, store *Store, log *slog.Logger) *SyncWorker {
	log = log.With(logger.Scope("graph.worker"))
	if !cfg.GraphSync.WorkerEnabled || !store.Enabled() {
		log.Info("graph sync worker disabled")
		return &SyncWorker{}
	}

	wc := jobs.DefaultWorkerConfig(SyncQueueName)
	wc.PollInterval = cfg.GraphSync.WorkerInterval()
	wc.BatchSize = cfg.GraphSync.WorkerBatchSize
	wc.StaleThreshold = 10 * time.Minute
	w := jobs.NewWorker(wc, queue, syncer.Handle, log)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return w.Start(ctx) },
		OnStop:  func(ctx context.Context) error { return w.Stop(ctx) },
	})
	return &SyncWorker{Worker: w}
}

// Metrics returns zero metrics when the worker is disabled.
func (w *SyncWorker) Metrics() jobs.WorkerMetrics {
	if w == nil || w.Worker == nil {
		return jobs.WorkerMetrics{}
	}
	return w.Worker.Metrics()
}
