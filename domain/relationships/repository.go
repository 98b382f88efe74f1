package relationships

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

const (
	typeNameConstraint = "relationship_types_name_live_idx"
	tripleConstraint   = "relationships_triple_live_idx"
)

// Store persists relationship types and instances. Reads never return
// soft-deleted rows, and a relationship is only visible while both of its
// endpoints are live.
type Store interface {
	CreateType(ctx context.Context, t *RelationshipType) error
	GetType(ctx context.Context, id uuid.UUID) (*RelationshipType, error)
	TypeNameExists(ctx context.Context, name string, excludeID *uuid.UUID) (bool, error)
	UpdateType(ctx context.Context, t *RelationshipType) error
	SoftDeleteType(ctx context.Context, id uuid.UUID) error
	ListTypes(ctx context.Context, f TypeFilter, page pagination.Page) ([]RelationshipType, int, error)
	CountLiveRelationships(ctx context.Context, typeID uuid.UUID) (int, error)

	CITypeName(ctx context.Context, id uuid.UUID) (string, error)
	GetAssetRef(ctx context.Context, id uuid.UUID) (*AssetRef, error)
	TripleExists(ctx context.Context, typeID, fromID, toID uuid.UUID) (bool, error)

	Create(ctx context.Context, r *Relationship) error
	Get(ctx context.Context, id uuid.UUID) (*Relationship, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter, page pagination.Page) ([]Relationship, int, error)

	CountTypes(ctx context.Context) (int, error)
	Count(ctx context.Context) (int, error)
}

// Repository is the PostgreSQL Store.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new relationship repository
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("relationships.repo")),
	}
}

func live(q *bun.SelectQuery, alias string) *bun.SelectQuery {
	return q.Where("?.deleted_at IS NULL", bun.Ident(alias))
}

func (r *Repository) selectTypes(types any) *bun.SelectQuery {
	return live(r.db.NewSelect().
		Model(types).
		ColumnExpr("rt.*").
		ColumnExpr("fct.name AS from_ci_type_name").
		ColumnExpr("tct.name AS to_ci_type_name").
		Join("LEFT JOIN cmdb.ci_types AS fct ON fct.id = rt.from_ci_type_id").
		Join("LEFT JOIN cmdb.ci_types AS tct ON tct.id = rt.to_ci_type_id"), "rt")
}

// selectRelationships builds the joined view. Rows whose type or endpoint
// assets are soft-deleted are filtered out.
func (r *Repository) selectRelationships(rels any) *bun.SelectQuery {
	q := r.db.NewSelect().
		Model(rels).
		ColumnExpr("rel.*").
		ColumnExpr("rt.name AS relationship_type_name").
		ColumnExpr("rt.is_bidirectional AS is_bidirectional").
		ColumnExpr("fa.name AS from_asset_name").
		ColumnExpr("fct.name AS from_ci_type_name").
		ColumnExpr("ta.name AS to_asset_name").
		ColumnExpr("tct.name AS to_ci_type_name").
		ColumnExpr("coalesce(btrim(u.first_name || ' ' || u.last_name), '') AS created_by_name").
		Join("JOIN cmdb.relationship_types AS rt ON rt.id = rel.relationship_type_id").
		Join("JOIN cmdb.ci_assets AS fa ON fa.id = rel.from_ci_asset_id").
		Join("JOIN cmdb.ci_types AS fct ON fct.id = fa.ci_type_id").
		Join("JOIN cmdb.ci_assets AS ta ON ta.id = rel.to_ci_asset_id").
		Join("JOIN cmdb.ci_types AS tct ON tct.id = ta.ci_type_id").
		Join("LEFT JOIN cmdb.users AS u ON u.id = rel.created_by")
	for _, alias := range []string{"rel", "rt", "fa", "ta"} {
		q = live(q, alias)
	}
	return q
}

func (r *Repository) CreateType(ctx context.Context, t *RelationshipType) error {
	if _, err := r.db.NewInsert().Model(t).Exec(ctx); err != nil {
		if database.IsUniqueViolation(err, typeNameConstraint) {
			return apperror.NewConflict("Relationship type with this name already exists")
		}
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

func (r *Repository) GetType(ctx context.Context, id uuid.UUID) (*RelationshipType, error) {
	t := new(RelationshipType)
	err := r.selectTypes(t).Where("rt.id = ?", id).Scan(ctx)
	if database.IsNoRows(err) {
		return nil, apperror.NewNotFound("Relationship type", id.String())
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return t, nil
}

func (r *Repository) TypeNameExists(ctx context.Context, name string, excludeID *uuid.UUID) (bool, error) {
	q := live(r.db.NewSelect().Model((*RelationshipType)(nil)), "rt").Where("rt.name = ?", name)
	if excludeID != nil {
		q = q.Where("rt.id <> ?", *excludeID)
	}
	exists, err := q.Exists(ctx)
	if err != nil {
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	return exists, nil
}

func (r *Repository) UpdateType(ctx context.Context, t *RelationshipType) error {
	res, err := r.db.NewUpdate().
		Model(t).
		Column("name", "description", "from_ci_type_id", "to_ci_type_id",
			"is_bidirectional", "reverse_name", "attributes_schema", "updated_at").
		WherePK().
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		if database.IsUniqueViolation(err, typeNameConstraint) {
			return apperror.NewConflict("Relationship type with this name already exists")
		}
		return apperror.ErrDatabase.WithInternal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NewNotFound("Relationship type", t.ID.String())
	}
	return nil
}

func (r *Repository) SoftDeleteType(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NewUpdate().
		Model((*RelationshipType)(nil)).
		Set("deleted_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NewNotFound("Relationship type", id.String())
	}
	return nil
}

func (r *Repository) ListTypes(ctx context.Context, f TypeFilter, page pagination.Page) ([]RelationshipType, int, error) {
	types := []RelationshipType{}
	q := r.selectTypes(&types)
	if f.Search != "" {
		pattern := "%" + f.Search + "%"
		q = q.WhereGroup(" AND ", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Where("rt.name ILIKE ?", pattern).WhereOr("rt.description ILIKE ?", pattern)
		})
	}
	if f.FromCITypeID != nil {
		q = q.Where("rt.from_ci_type_id = ?", *f.FromCITypeID)
	}
	if f.ToCITypeID != nil {
		q = q.Where("rt.to_ci_type_id = ?", *f.ToCITypeID)
	}
	if f.IsBidirectional != nil {
		q = q.Where("rt.is_bidirectional = ?", *f.IsBidirectional)
	}

	total, err := q.
		Order("rt.name ASC").
		Limit(page.Limit).
		Offset(page.Offset).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, apperror.ErrDatabase.WithInternal(err)
	}
	return types, total, nil
}

func (r *Repository) CountLiveRelationships(ctx context.Context, typeID uuid.UUID) (int, error) {
	n, err := live(r.db.NewSelect().Model((*Relationship)(nil)), "rel").
		Where("rel.relationship_type_id = ?", typeID).
		Count(ctx)
	if err != nil {
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	return n, nil
}

func (r *Repository) CITypeName(ctx context.Context, id uuid.UUID) (string, error) {
	var name string
	err := r.db.NewRaw(
		"SELECT name FROM cmdb.ci_types WHERE id = ? AND deleted_at IS NULL", id,
	).Scan(ctx, &name)
	if database.IsNoRows(err) {
		return "", apperror.NewNotFound("CI type", id.String())
	}
	if err != nil {
		return "", apperror.ErrDatabase.WithInternal(err)
	}
	return name, nil
}

func (r *Repository) GetAssetRef(ctx context.Context, id uuid.UUID) (*AssetRef, error) {
	ref := new(AssetRef)
	err := r.db.NewRaw(`
SELECT ca.id, ca.name, ca.ci_type_id, ct.name AS ci_type_name, ca.attributes
FROM cmdb.ci_assets ca
JOIN cmdb.ci_types ct ON ct.id = ca.ci_type_id
WHERE ca.id = ? AND ca.deleted_at IS NULL`, id).Scan(ctx, ref)
	if database.IsNoRows(err) {
		return nil, apperror.NewNotFound("CI asset", id.String())
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return ref, nil
}

func (r *Repository) TripleExists(ctx context.Context, typeID, fromID, toID uuid.UUID) (bool, error) {
	exists, err := live(r.db.NewSelect().Model((*Relationship)(nil)), "rel").
		Where("rel.relationship_type_id = ?", typeID).
		Where("rel.from_ci_asset_id = ?", fromID).
		Where("rel.to_ci_asset_id = ?", toID).
		Exists(ctx)
	if err != nil {
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	return exists, nil
}

func (r *Repository) Create(ctx context.Context, rel *Relationship) error {
	if _, err := r.db.NewInsert().Model(rel).Exec(ctx); err != nil {
		if database.IsUniqueViolation(err, tripleConstraint) {
			return apperror.NewConflict("Relationship already exists")
		}
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Relationship, error) {
	rel := new(Relationship)
	err := r.selectRelationships(rel).Where("rel.id = ?", id).Scan(ctx)
	if database.IsNoRows(err) {
		return nil, apperror.NewNotFound("Relationship", id.String())
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return rel, nil
}

func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	res, err := r.db.NewUpdate().
		Model((*Relationship)(nil)).
		Set("deleted_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NewNotFound("Relationship", id.String())
	}
	return nil
}

func (r *Repository) List(ctx context.Context, f Filter, page pagination.Page) ([]Relationship, int, error) {
	rels := []Relationship{}
	q := r.selectRelationships(&rels)
	if f.RelationshipTypeID != nil {
		q = q.Where("rel.relationship_type_id = ?", *f.RelationshipTypeID)
	}
	if f.CIAssetID != nil {
		id := *f.CIAssetID
		q = q.WhereGroup(" AND ", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Where("rel.from_ci_asset_id = ?", id).WhereOr("rel.to_ci_asset_id = ?", id)
		})
	}
	if f.FromCIAssetID != nil {
		q = q.Where("rel.from_ci_asset_id = ?", *f.FromCIAssetID)
	}
	if f.ToCIAssetID != nil {
		q = q.Where("rel.to_ci_asset_id = ?", *f.ToCIAssetID)
	}

	total, err := q.
		Order("rel.created_at DESC").
		Limit(page.Limit).
		Offset(page.Offset).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, apperror.ErrDatabase.WithInternal(err)
	}
	return rels, total, nil
}

func (r *Repository) CountTypes(ctx context.Context) (int, error) {
	n, err := live(r.db.NewSelect().Model((*RelationshipType)(nil)), "rt").Count(ctx)
	if err != nil {
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	return n, nil
}

func (r *Repository) Count(ctx context.Context) (int, error) {
	var rels []Relationship
	n, err := r.selectRelationships(&rels).Count(ctx)
	if err != nil {
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	return n, nil
}
