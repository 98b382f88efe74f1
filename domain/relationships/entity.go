package relationships

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Audit entity types.
const (
	EntityType         = "relationship_type"
	EntityRelationship = "relationship"
)

// RelationshipType defines a kind of link between CI assets, optionally
// constrained to a source and a target CI type.
type RelationshipType struct {
	bun.BaseModel `bun:"table:cmdb.relationship_types,alias:rt"`

	ID               uuid.UUID       `bun:"id,pk,type:uuid" json:"id"`
	Name             string          `bun:"name" json:"name"`
	Description      *string         `bun:"description" json:"description,omitempty"`
	FromCITypeID     *uuid.UUID      `bun:"from_ci_type_id,type:uuid" json:"from_ci_type_id,omitempty"`
	ToCITypeID       *uuid.UUID      `bun:"to_ci_type_id,type:uuid" json:"to_ci_type_id,omitempty"`
	IsBidirectional  bool            `bun:"is_bidirectional" json:"is_bidirectional"`
	ReverseName      *string         `bun:"reverse_name" json:"reverse_name,omitempty"`
	AttributesSchema json.RawMessage `bun:"attributes_schema,type:jsonb" json:"attributes_schema"`
	CreatedBy        uuid.UUID       `bun:"created_by,type:uuid" json:"created_by"`
	CreatedAt        time.Time       `bun:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `bun:"updated_at" json:"updated_at"`
	DeletedAt        *time.Time      `bun:"deleted_at" json:"-"`

	FromCITypeName *string `bun:"from_ci_type_name,scanonly" json:"from_ci_type_name,omitempty"`
	ToCITypeName   *string `bun:"to_ci_type_name,scanonly" json:"to_ci_type_name,omitempty"`
}

// Relationship links two CI assets through a relationship type. The
// scan-only fields make up the joined view returned by the API.
type Relationship struct {
	bun.BaseModel `bun:"table:cmdb.relationships,alias:rel"`

	ID                 uuid.UUID       `bun:"id,pk,type:uuid" json:"id"`
	RelationshipTypeID uuid.UUID       `bun:"relationship_type_id,type:uuid" json:"relationship_type_id"`
	FromCIAssetID      uuid.UUID       `bun:"from_ci_asset_id,type:uuid" json:"from_ci_asset_id"`
	ToCIAssetID        uuid.UUID       `bun:"to_ci_asset_id,type:uuid" json:"to_ci_asset_id"`
	Attributes         json.RawMessage `bun:"attributes,type:jsonb" json:"attributes"`
	CreatedBy          uuid.UUID       `bun:"created_by,type:uuid" json:"created_by"`
	CreatedAt          time.Time       `bun:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `bun:"updated_at" json:"updated_at"`
	DeletedAt          *time.Time      `bun:"deleted_at" json:"-"`

	RelationshipTypeName string `bun:"relationship_type_name,scanonly" json:"relationship_type_name"`
	IsBidirectional      bool   `bun:"is_bidirectional,scanonly" json:"is_bidirectional"`
	FromAssetName        string `bun:"from_asset_name,scanonly" json:"from_asset_name"`
	FromCITypeName       string `bun:"from_ci_type_name,scanonly" json:"from_ci_type_name"`
	ToAssetName          string `bun:"to_asset_name,scanonly" json:"to_asset_name"`
	ToCITypeName         string `bun:"to_ci_type_name,scanonly" json:"to_ci_type_name"`
	CreatedByName        string `bun:"created_by_name,scanonly" json:"created_by_name"`
}

// AssetRef is the part of a live CI asset the create protocol needs.
type AssetRef struct {
	ID         uuid.UUID       `bun:"id"`
	Name       string          `bun:"name"`
	CITypeID   uuid.UUID       `bun:"ci_type_id"`
	CITypeName string          `bun:"ci_type_name"`
	Attributes json.RawMessage `bun:"attributes"`
}

// TypeFilter narrows ListTypes. Zero values are ignored.
type TypeFilter struct {
	Search          string
	FromCITypeID    *uuid.UUID
	ToCITypeID      *uuid.UUID
	IsBidirectional *bool
}

// Filter narrows List. CIAssetID matches either endpoint.
type Filter struct {
	RelationshipTypeID *uuid.UUID
	CIAssetID          *uuid.UUID
	FromCIAssetID      *uuid.UUID
	ToCIAssetID        *uuid.UUID
}
