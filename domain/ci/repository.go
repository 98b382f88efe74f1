package ci

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

// Store persists CI types and assets. Reads never return soft-deleted rows.
type Store interface {
	CreateType(ctx context.Context, t *CIType) error
	GetType(ctx context.Context, id uuid.UUID) (*CIType, error)
	TypeNameExists(ctx context.Context, name string, excludeID *uuid.UUID) (bool, error)
	UpdateType(ctx context.Context, t *CIType) error
	SoftDeleteType(ctx context.Context, id uuid.UUID) error
	ListTypes(ctx context.Context, page pagination.Page) ([]CIType, int, error)
	CountLiveAssets(ctx context.Context, typeID uuid.UUID) (int, error)

	CreateAsset(ctx context.Context, a *CIAsset) error
	GetAsset(ctx context.Context, id uuid.UUID) (*CIAsset, error)
	UpdateAsset(ctx context.Context, a *CIAsset) error
	SoftDeleteAsset(ctx context.Context, id, actor uuid.UUID) error
	ListAssets(ctx context.Context, f AssetFilter, page pagination.Page) ([]CIAsset, int, error)
	SearchAssets(ctx context.Context, q string, limit int) ([]CIAsset, error)

	CountTypes(ctx context.Context) (int, error)
	CountAssets(ctx context.Context) (int, error)
	AssetsPerType(ctx context.Context, limit int) ([]TypeAssetCount, error)
}

// Repository is the PostgreSQL Store.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new CI repository
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("ci.repo")),
	}
}

// live restricts q to rows of alias that are not soft-deleted.
func live(q *bun.SelectQuery, alias string) *bun.SelectQuery {
	return q.Where("?.deleted_at IS NULL", bun.Ident(alias))
}

func (r *Repository) selectAssets(assets any) *bun.SelectQuery {
	return live(r.db.NewSelect().
		Model(assets).
		ColumnExpr("ca.*").
		ColumnExpr("ct.name AS ci_type_name").
		Join("JOIN cmdb.ci_types AS ct ON ct.id = ca.ci_type_id"), "ca")
}

func (r *Repository) CreateType(ctx context.Context, t *CIType) error {
	if _, err := r.db.NewInsert().Model(t).Exec(ctx); err != nil {
		if database.IsUniqueViolation(err, "ci_types_name_live_idx") {
			return apperror.NewConflict("CI type with this name already exists")
		}
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

func (r *Repository) GetType(ctx context.Context, id uuid.UUID) (*CIType, error) {
	t := new(CIType)
	err := live(r.db.NewSelect().Model(t), "ct").Where("ct.id = ?", id).Scan(ctx)
	if database.IsNoRows(err) {
		return nil, apperror.NewNotFound("CI type", id.String())
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return t, nil
}

func (r *Repository) TypeNameExists(ctx context.Context, name string, excludeID *uuid.UUID) (bool, error) {
	q := live(r.db.NewSelect().Model((*CIType)(nil)), "ct").Where("ct.name = ?", name)
	if excludeID != nil {
		q = q.Where("ct.id <> ?", *excludeID)
	}
	exists, err := q.Exists(ctx)
	if err != nil {
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	return exists, nil
}

func (r *Repository) UpdateType(ctx context.Context, t *CIType) error {
	res, err := r.db.NewUpdate().
		Model(t).
		Column("name", "description", "attributes", "updated_at").
		WherePK().
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		if database.IsUniqueViolation(err, "ci_types_name_live_idx") {
			return apperror.NewConflict("CI type with this name already exists")
		}
		return apperror.ErrDatabase.WithInternal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NewNotFound("CI type", t.ID.String())
	}
	return nil
}

func (r *Repository) SoftDeleteType(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NewUpdate().
		Model((*CIType)(nil)).
		Set("deleted_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NewNotFound("CI type", id.String())
	}
	return nil
}

func (r *Repository) ListTypes(ctx context.Context, page pagination.Page) ([]CIType, int, error) {
	types := []CIType{}
	total, err := live(r.db.NewSelect().Model(&types), "ct").
		Order("ct.created_at DESC").
		Limit(page.Limit).
		Offset(page.Offset).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, apperror.ErrDatabase.WithInternal(err)
	}
	return types, total, nil
}

func (r *Repository) CountLiveAssets(ctx context.Context, typeID uuid.UUID) (int, error) {
	n, err := live(r.db.NewSelect().Model((*CIAsset)(nil)), "ca").
		Where("ca.ci_type_id = ?", typeID).
		Count(ctx)
	if err != nil {
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	return n, nil
}

func (r *Repository) CreateAsset(ctx context.Context, a *CIAsset) error {
	if _, err := r.db.NewInsert().Model(a).Exec(ctx); err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

func (r *Repository) GetAsset(ctx context.Context, id uuid.UUID) (*CIAsset, error) {
	a := new(CIAsset)
	err := r.selectAssets(a).Where("ca.id = ?", id).Scan(ctx)
	if database.IsNoRows(err) {
		return nil, apperror.NewNotFound("CI asset", id.String())
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return a, nil
}

func (r *Repository) UpdateAsset(ctx context.Context, a *CIAsset) error {
	res, err := r.db.NewUpdate().
		Model(a).
		Column("name", "attributes", "updated_by", "updated_at").
		WherePK().
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NewNotFound("CI asset", a.ID.String())
	}
	return nil
}

// SoftDeleteAsset marks the asset deleted and, in the same transaction,
// soft-deletes every live relationship that has it as an endpoint.
func (r *Repository) SoftDeleteAsset(ctx context.Context, id, actor uuid.UUID) error {
	now := time.Now().UTC()
	return database.WithTx(ctx, r.db, func(tx bun.IDB) error {
		res, err := tx.NewUpdate().
			Model((*CIAsset)(nil)).
			Set("deleted_at = ?", now).
			Set("deleted_by = ?", actor).
			Where("id = ?", id).
			Where("deleted_at IS NULL").
			Exec(ctx)
		if err != nil {
			return apperror.ErrDatabase.WithInternal(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperror.NewNotFound("CI asset", id.String())
		}

		_, err = tx.NewRaw(`
UPDATE cmdb.relationships SET deleted_at = ?, updated_at = ?
WHERE deleted_at IS NULL AND (from_ci_asset_id = ? OR to_ci_asset_id = ?)`,
			now, now, id, id).Exec(ctx)
		if err != nil {
			return apperror.ErrDatabase.WithInternal(err)
		}
		return nil
	})
}

func (r *Repository) ListAssets(ctx context.Context, f AssetFilter, page pagination.Page) ([]CIAsset, int, error) {
	assets := []CIAsset{}
	q := r.selectAssets(&assets)
	if f.CITypeID != nil {
		q = q.Where("ca.ci_type_id = ?", *f.CITypeID)
	}
	if f.Search != "" {
		q = q.Where("ca.name ILIKE ?", "%"+f.Search+"%")
	}
	if f.CreatedBy != nil {
		q = q.Where("ca.created_by = ?", *f.CreatedBy)
	}
	if f.CreatedAfter != nil {
		q = q.Where("ca.created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		q = q.Where("ca.created_at <= ?", *f.CreatedBefore)
	}

	total, err := q.
		Order("ca.created_at DESC").
		Limit(page.Limit).
		Offset(page.Offset).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, apperror.ErrDatabase.WithInternal(err)
	}
	return assets, total, nil
}

// SearchAssets matches q against asset names and CI type names.
func (r *Repository) SearchAssets(ctx context.Context, q string, limit int) ([]CIAsset, error) {
	assets := []CIAsset{}
	pattern := "%" + q + "%"
	err := r.selectAssets(&assets).
		WhereGroup(" AND ", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Where("ca.name ILIKE ?", pattern).WhereOr("ct.name ILIKE ?", pattern)
		}).
		Order("ca.name ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return assets, nil
}

func (r *Repository) CountTypes(ctx context.Context) (int, error) {
	n, err := live(r.db.NewSelect().Model((*CIType)(nil)), "ct").Count(ctx)
	if err != nil {
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	return n, nil
}

func (r *Repository) CountAssets(ctx context.Context) (int, error) {
	n, err := live(r.db.NewSelect().Model((*CIAsset)(nil)), "ca").Count(ctx)
	if err != nil {
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	return n, nil
}

// AssetsPerType returns the CI types with the most live assets.
func (r *Repository) AssetsPerType(ctx context.Context, limit int) ([]TypeAssetCount, error) {
	out := []TypeAssetCount{}
	err := r.db.NewRaw(`
SELECT ct.id AS ci_type_id, ct.name AS ci_type_name, count(ca.id) AS count
FROM cmdb.ci_types ct
JOIN cmdb.ci_assets ca ON ca.ci_type_id = ct.id AND ca.deleted_at IS NULL
WHERE ct.deleted_at IS NULL
GROUP BY ct.id, ct.name
ORDER BY count DESC, ct.name
LIMIT ?`, limit).Scan(ctx, &out)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return out, nil
}
