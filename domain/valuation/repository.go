package valuation

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/tahopetis/crate/internal/database"
	"github.com/tahopetis/crate/pkg/apperror"
	"github.com/tahopetis/crate/pkg/logger"
	"github.com/tahopetis/crate/pkg/pagination"
)

// Store persists valuation records and amortization entries. Records of
// soft-deleted assets are never returned.
type Store interface {
	AssetName(ctx context.Context, assetID uuid.UUID) (string, error)
	Create(ctx context.Context, r *Record) error
	LatestForAsset(ctx context.Context, assetID uuid.UUID) (*Record, error)
	List(ctx context.Context, page pagination.Page) ([]Record, int, error)
	ListAfter(ctx context.Context, after uuid.UUID, limit int) ([]Record, error)
	Entries(ctx context.Context, valuationID uuid.UUID) ([]Entry, error)
	ApplyAmortization(ctx context.Context, valuationID uuid.UUID, entries []Entry, currentValue float64, actor *uuid.UUID) (int, error)
	Count(ctx context.Context) (int, error)
}

// Repository is the PostgreSQL Store.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new valuation repository
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("valuation.repo")),
	}
}

func (r *Repository) selectRecords(model any) *bun.SelectQuery {
	return r.db.NewSelect().
		Model(model).
		ColumnExpr("vr.*").
		ColumnExpr("ca.name AS asset_name").
		Join("JOIN cmdb.ci_assets AS ca ON ca.id = vr.ci_asset_id").
		Where("ca.deleted_at IS NULL")
}

func (r *Repository) AssetName(ctx context.Context, assetID uuid.UUID) (string, error) {
	var name string
	err := r.db.NewRaw(
		"SELECT name FROM cmdb.ci_assets WHERE id = ? AND deleted_at IS NULL", assetID,
	).Scan(ctx, &name)
	if database.IsNoRows(err) {
		return "", apperror.NewNotFound("CI asset", assetID.String())
	}
	if err != nil {
		return "", apperror.ErrDatabase.WithInternal(err)
	}
	return name, nil
}

func (r *Repository) Create(ctx context.Context, rec *Record) error {
	if _, err := r.db.NewInsert().Model(rec).Exec(ctx); err != nil {
		if database.IsForeignKeyViolation(err) {
			return apperror.NewNotFound("CI asset", rec.CIAssetID.String())
		}
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

func (r *Repository) LatestForAsset(ctx context.Context, assetID uuid.UUID) (*Record, error) {
	rec := new(Record)
	err := r.selectRecords(rec).
		Where("vr.ci_asset_id = ?", assetID).
		Order("vr.created_at DESC").
		Limit(1).
		Scan(ctx)
	if database.IsNoRows(err) {
		return nil, apperror.NewNotFound("Valuation for CI asset", assetID.String())
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return rec, nil
}

func (r *Repository) List(ctx context.Context, page pagination.Page) ([]Record, int, error) {
	recs := []Record{}
	total, err := r.selectRecords(&recs).
		Order("vr.created_at DESC").
		Limit(page.Limit).
		Offset(page.Offset).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, apperror.ErrDatabase.WithInternal(err)
	}
	return recs, total, nil
}

// ListAfter pages all records by id. uuid.Nil starts from the beginning.
func (r *Repository) ListAfter(ctx context.Context, after uuid.UUID, limit int) ([]Record, error) {
	recs := []Record{}
	err := r.selectRecords(&recs).
		Where("vr.id > ?", after).
		Order("vr.id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return recs, nil
}

func (r *Repository) Entries(ctx context.Context, valuationID uuid.UUID) ([]Entry, error) {
	entries := []Entry{}
	err := r.db.NewSelect().
		Model(&entries).
		Where("ae.valuation_id = ?", valuationID).
		Order("ae.year ASC").
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return entries, nil
}

// ApplyAmortization inserts the entries whose year is not yet recorded and
// sets the record's current value, in one transaction. It returns how many
// entries were inserted.
func (r *Repository) ApplyAmortization(ctx context.Context, valuationID uuid.UUID, entries []Entry, currentValue float64, actor *uuid.UUID) (int, error) {
	var inserted int
	err := database.WithTx(ctx, r.db, func(tx bun.IDB) error {
		if len(entries) > 0 {
			res, err := tx.NewInsert().
				Model(&entries).
				On("CONFLICT ON CONSTRAINT amortization_entries_year_key DO NOTHING").
				Exec(ctx)
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			inserted = int(n)
		}
		_, err := tx.NewUpdate().
			Model((*Record)(nil)).
			Set("current_value = ?", currentValue).
			Set("updated_by = ?", actor).
			Set("updated_at = ?", time.Now().UTC()).
			Where("id = ?", valuationID).
			Where("current_value <> ?", currentValue).
			Exec(ctx)
		return err
	})
	if err != nil {
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	return inserted, nil
}

func (r *Repository) Count(ctx context.Context) (int, error) {
	var recs []Record
	n, err := r.selectRecords(&recs).Count(ctx)
	if err != nil {
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	return n, nil
}
