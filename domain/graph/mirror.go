package graph

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tahopetis/crate/pkg/logger"
	"github.com/tahopetis/crate/pkg/tracing"
)

// Entity kinds the sync queue knows how to reconcile. They double as the
// operation column of cmdb.graph_sync_jobs.
const (
	KindAsset            = "asset"
	KindRelationship     = "relationship"
	KindRelationshipType = "relationship_type"
)

// Op names one mirror write, e.g. {KindRelationship, "merge"}.
type Op struct {
	Kind   string
	Action string
}

func (o Op) String() string {
	return o.Kind + "." + o.Action
}

// Enqueuer hands failed mirror writes to the retry queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, operation string, entityID uuid.UUID, payload any, priority int) (bool, error)
}

// Mirror runs best-effort graph writes after the relational store has
// committed. A failure is logged, counted and enqueued for retry; it never
// reaches the caller.
type Mirror struct {
	proj  Projection
	queue Enqueuer
	log   *slog.Logger
}

// NewMirror creates a new graph mirror
func NewMirror(proj Projection, queue Enqueuer, log *slog.Logger) *Mirror {
	return &Mirror{
		proj:  proj,
		queue: queue,
		log:   log.With(logger.Scope("graph.mirror")),
	}
}

// Try applies fn to the projection. It reports whether the write succeeded;
// callers must not change their result based on it.
func (m *Mirror) Try(ctx context.Context, op Op, entityID uuid.UUID, fn func(ctx context.Context, p Projection) error) bool {
	if m == nil || m.proj == nil || !m.proj.Enabled() {
		mirrorWrites.WithLabelValues(op.String(), "skipped").Inc()
		return false
	}

	ctx, span := tracing.Start(ctx, "graph.mirror",
		attribute.String("graph.op", op.String()),
		attribute.String("entity.id", entityID.String()),
	)
	defer span.End()

	err := fn(ctx, m.proj)
	if err == nil {
		mirrorWrites.WithLabelValues(op.String(), "ok").Inc()
		return true
	}

	tracing.Fail(span, err)
	mirrorWrites.WithLabelValues(op.String(), "failed").Inc()
	mirrorFailures.WithLabelValues(op.String()).Inc()
	m.log.Warn("graph mirror write failed",
		slog.String("op", op.String()),
		slog.String("entity_id", entityID.String()),
		logger.Error(err),
	)

	if m.queue == nil {
		return false
	}
	if _, qerr := m.queue.Enqueue(context.WithoutCancel(ctx), op.Kind, entityID, map[string]string{"action": op.Action}, 0); qerr != nil {
		m.log.Error("graph sync enqueue failed",
			slog.String("op", op.String()),
			slog.String("entity_id", entityID.String()),
			logger.Error(qerr),
		)
	}
	return false
}
