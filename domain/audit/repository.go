package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/tahopetis/crate/pkg/apperror"
	"github.com/tahopetis/crate/pkg/logger"
)

// Store persists audit entries.
type Store interface {
	Insert(ctx context.Context, e *LogEntry) error
	List(ctx context.Context, q Query) ([]LogEntry, int, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Repository is the PostgreSQL Store.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new audit repository
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("audit.repo")),
	}
}

func (r *Repository) Insert(ctx context.Context, e *LogEntry) error {
	if _, err := r.db.NewInsert().Model(e).Exec(ctx); err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

func (r *Repository) List(ctx context.Context, q Query) ([]LogEntry, int, error) {
	entries := []LogEntry{}
	sel := r.db.NewSelect().Model(&entries)
	if q.EntityType != "" {
		sel = sel.Where("al.entity_type = ?", q.EntityType)
	}
	if q.EntityID != nil {
		sel = sel.Where("al.entity_id = ?", *q.EntityID)
	}
	if q.PerformedBy != nil {
		sel = sel.Where("al.performed_by = ?", *q.PerformedBy)
	}
	if q.From != nil {
		sel = sel.Where("al.created_at >= ?", *q.From)
	}
	if q.To != nil {
		sel = sel.Where("al.created_at <= ?", *q.To)
	}

	total, err := sel.
		Order("al.created_at DESC").
		Limit(q.Limit).
		Offset(q.Offset).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, apperror.ErrDatabase.WithInternal(err)
	}
	return entries, total, nil
}

// PurgeBefore removes entries created before cutoff.
func (r *Repository) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.NewDelete().
		Model((*LogEntry)(nil)).
		Where("created_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
