package graph

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/tahopetis/crate/internal/jobs"
	"github.com/tahopetis/crate/pkg/logger"
)

// Module wires the Neo4j projection, the mirror used by the managers, the
// sync queue worker, the reconciler and the read endpoints.
var Module = fx.Module("graph",
	fx.Provide(
		NewStore,
		func(s *Store) Projection { return s },
		func(s *Store) Reader { return s },
		NewSourceRepository,
		func(r *SourceRepository) Source { return r },
		NewSyncQueue,
		func(q *jobs.Queue) Enqueuer { return q },
		NewMirror,
		NewSyncer,
		NewSyncWorker,
		NewReconciler,
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
	fx.Invoke(ensureSchema),
	fx.Invoke(func(*SyncWorker) {}),
)

func ensureSchema(lc fx.Lifecycle, store *Store, log *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := store.EnsureSchema(ctx); err != nil {
				log.Warn("graph schema setup failed", logger.Scope("graph"), logger.Error(err))
			}
			return nil
		},
	})
}
