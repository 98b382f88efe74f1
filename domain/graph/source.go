package graph

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/tahopetis/crate/internal/database"
	"github.com/tahopetis/crate/pkg/apperror"
)

// Source reads relational truth for the sync worker and the reconciler.
type Source interface {
	// Asset returns the asset and whether it is live. NotFound when no row exists.
	Asset(ctx context.Context, id uuid.UUID) (AssetNode, bool, error)
	// Relationship returns the edge and whether it is live: the row and both
	// endpoint assets are not soft-deleted.
	Relationship(ctx context.Context, id uuid.UUID) (Edge, bool, error)
	RelationshipTypeName(ctx context.Context, id uuid.UUID) (string, bool, error)
	LiveAssets(ctx context.Context, after uuid.UUID, limit int) ([]AssetNode, error)
	LiveRelationships(ctx context.Context, after uuid.UUID, limit int) ([]Edge, error)
}

// SourceRepository is the PostgreSQL Source.
type SourceRepository struct {
	db bun.IDB
}

// NewSourceRepository creates a new relational source
func NewSourceRepository(db bun.IDB) *SourceRepository {
	return &SourceRepository{db: db}
}

type assetRow struct {
	ID         uuid.UUID       `bun:"id"`
	Name       string          `bun:"name"`
	CITypeID   uuid.UUID       `bun:"ci_type_id"`
	CIType     string          `bun:"ci_type"`
	Attributes json.RawMessage `bun:"attributes"`
	Deleted    bool            `bun:"deleted"`
}

func (r assetRow) node() AssetNode {
	return AssetNode{ID: r.ID, Name: r.Name, CITypeID: r.CITypeID, CIType: r.CIType, Attributes: r.Attributes}
}

type edgeRow struct {
	ID              uuid.UUID `bun:"id"`
	TypeID          uuid.UUID `bun:"type_id"`
	TypeName        string    `bun:"type_name"`
	IsBidirectional bool      `bun:"is_bidirectional"`
	FromID          uuid.UUID `bun:"from_id"`
	ToID            uuid.UUID `bun:"to_id"`
	FromCIType      string    `bun:"from_ci_type"`
	ToCIType        string    `bun:"to_ci_type"`
	CreatedAt       time.Time `bun:"created_at"`
	UpdatedAt       time.Time `bun:"updated_at"`
	Deleted         bool      `bun:"deleted"`
}

func (r edgeRow) edge() Edge {
	return Edge{
		ID:              r.ID,
		TypeID:          r.TypeID,
		TypeName:        r.TypeName,
		FromID:          r.FromID,
		ToID:            r.ToID,
		FromCIType:      r.FromCIType,
		ToCIType:        r.ToCIType,
		IsBidirectional: r.IsBidirectional,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

const assetSelect = `
SELECT a.id, a.name, a.ci_type_id, t.name AS ci_type, a.attributes,
       a.deleted_at IS NOT NULL AS deleted
FROM cmdb.ci_assets a
JOIN cmdb.ci_types t ON t.id = a.ci_type_id`

const edgeSelect = `
SELECT r.id, r.relationship_type_id AS type_id, rt.name AS type_name, rt.is_bidirectional,
       r.from_ci_asset_id AS from_id, r.to_ci_asset_id AS to_id,
       ft.name AS from_ci_type, tt.name AS to_ci_type,
       r.created_at, r.updated_at,
       (r.deleted_at IS NOT NULL OR fa.deleted_at IS NOT NULL OR ta.deleted_at IS NOT NULL) AS deleted
FROM cmdb.relationships r
JOIN cmdb.relationship_types rt ON rt.id = r.relationship_type_id
JOIN cmdb.ci_assets fa ON fa.id = r.from_ci_asset_id
JOIN cmdb.ci_types ft ON ft.id = fa.ci_type_id
JOIN cmdb.ci_assets ta ON ta.id = r.to_ci_asset_id
JOIN cmdb.ci_types tt ON tt.id = ta.ci_type_id`

func (s *SourceRepository) Asset(ctx context.Context, id uuid.UUID) (AssetNode, bool, error) {
	var row assetRow
	err := s.db.NewRaw(assetSelect+" WHERE a.id = ?", id).Scan(ctx, &row)
	if database.IsNoRows(err) {
		return AssetNode{}, false, apperror.NewNotFound("CI asset", id.String())
	}
	if err != nil {
		return AssetNode{}, false, apperror.ErrDatabase.WithInternal(err)
	}
	return row.node(), !row.Deleted, nil
}

func (s *SourceRepository) Relationship(ctx context.Context, id uuid.UUID) (Edge, bool, error) {
	var row edgeRow
	err := s.db.NewRaw(edgeSelect+" WHERE r.id = ?", id).Scan(ctx, &row)
	if database.IsNoRows(err) {
		return Edge{}, false, apperror.NewNotFound("Relationship", id.String())
	}
	if err != nil {
		return Edge{}, false, apperror.ErrDatabase.WithInternal(err)
	}
	return row.edge(), !row.Deleted, nil
}

func (s *SourceRepository) RelationshipTypeName(ctx context.Context, id uuid.UUID) (string, bool, error) {
	var row struct {
		Name    string `bun:"name"`
		Deleted bool   `bun:"deleted"`
	}
	err := s.db.NewRaw(
		"SELECT name, deleted_at IS NOT NULL AS deleted FROM cmdb.relationship_types WHERE id = ?", id,
	).Scan(ctx, &row)
	if database.IsNoRows(err) {
		return "", false, apperror.NewNotFound("Relationship type", id.String())
	}
	if err != nil {
		return "", false, apperror.ErrDatabase.WithInternal(err)
	}
	return row.Name, !row.Deleted, nil
}

// LiveAssets pages through non-deleted assets ordered by id, starting after
// the given id (uuid.Nil for the first page).
func (s *SourceRepository) LiveAssets(ctx context.Context, after uuid.UUID, limit int) ([]AssetNode, error) {
	var rows []assetRow
	err := s.db.NewRaw(assetSelect+`
WHERE a.deleted_at IS NULL AND a.id > ?
ORDER BY a.id
LIMIT ?`, after, limit).Scan(ctx, &rows)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	out := make([]AssetNode, len(rows))
	for i, r := range rows {
		out[i] = r.node()
	}
	return out, nil
}

// LiveRelationships pages through relationships whose row and endpoints are
// all non-deleted, ordered by id.
func (s *SourceRepository) LiveRelationships(ctx context.Context, after uuid.UUID, limit int) ([]Edge, error) {
	var rows []edgeRow
	err := s.db.NewRaw(edgeSelect+`
WHERE r.deleted_at IS NULL AND fa.deleted_at IS NULL AND ta.deleted_at IS NULL AND r.id > ?
ORDER BY r.id
LIMIT ?`, after, limit).Scan(ctx, &rows)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	out := make([]Edge, len(rows))
	for i, r := range rows {
		out[i] = r.edge()
	}
	return out, nil
}
