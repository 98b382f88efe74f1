package ci

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Audit entity types.
const (
	EntityType  = "ci_type"
	EntityAsset = "ci_asset"
)

// CIType is a category of configuration item. Attributes may embed a JSON
// Schema under the "schema" key that every asset of the type must satisfy.
type CIType struct {
	bun.BaseModel `bun:"table:cmdb.ci_types,alias:ct"`

	ID          uuid.UUID       `bun:"id,pk,type:uuid" json:"id"`
	Name        string          `bun:"name" json:"name"`
	Description *string         `bun:"description" json:"description,omitempty"`
	Attributes  json.RawMessage `bun:"attributes,type:jsonb" json:"attributes"`
	CreatedBy   uuid.UUID       `bun:"created_by,type:uuid" json:"created_by"`
	CreatedAt   time.Time       `bun:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `bun:"updated_at" json:"updated_at"`
	DeletedAt   *time.Time      `bun:"deleted_at" json:"-"`
}

// CIAsset is one configuration item. CITypeID never changes after creation.
type CIAsset struct {
	bun.BaseModel `bun:"table:cmdb.ci_assets,alias:ca"`

	ID         uuid.UUID       `bun:"id,pk,type:uuid" json:"id"`
	CITypeID   uuid.UUID       `bun:"ci_type_id,type:uuid" json:"ci_type_id"`
	Name       string          `bun:"name" json:"name"`
	Attributes json.RawMessage `bun:"attributes,type:jsonb" json:"attributes"`
	CreatedBy  uuid.UUID       `bun:"created_by,type:uuid" json:"created_by"`
	UpdatedBy  *uuid.UUID      `bun:"updated_by,type:uuid" json:"updated_by,omitempty"`
	DeletedBy  *uuid.UUID      `bun:"deleted_by,type:uuid" json:"-"`
	CreatedAt  time.Time       `bun:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `bun:"updated_at" json:"updated_at"`
	DeletedAt  *time.Time      `bun:"deleted_at" json:"-"`

	CITypeName string `bun:"ci_type_name,scanonly" json:"ci_type_name"`
}

// AssetFilter narrows ListAssets. Zero values are ignored.
type AssetFilter struct {
	CITypeID      *uuid.UUID
	Search        string
	CreatedBy     *uuid.UUID
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// TypeAssetCount is the number of live assets of one CI type.
type TypeAssetCount struct {
	CITypeID   uuid.UUID `bun:"ci_type_id" json:"ci_type_id"`
	CITypeName string    `bun:"ci_type_name" json:"ci_type_name"`
	Count      int       `bun:"count" json:"count"`
}
