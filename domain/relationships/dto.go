package relationships

import (
	"encoding/json"

	"github.com/google/uuid"
)

// CreateTypeRequest is the body of POST /api/v1/relationship-types.
type CreateTypeRequest struct {
	Name             string          `json:"name" validate:"required,notblank,max=255"`
	Description      *string         `json:"description" validate:"omitempty,max=1000"`
	FromCITypeID     *uuid.UUID      `json:"from_ci_type_id"`
	ToCITypeID       *uuid.UUID      `json:"to_ci_type_id"`
	IsBidirectional  bool            `json:"is_bidirectional"`
	ReverseName      *string         `json:"reverse_name" validate:"omitempty,max=255"`
	AttributesSchema json.RawMessage `json:"attributes_schema"`
}

// UpdateTypeRequest is the body of PUT /api/v1/relationship-types/:id.
type UpdateTypeRequest struct {
	Name             *string         `json:"name" validate:"omitempty,notblank,max=255"`
	Description      *string         `json:"description" validate:"omitempty,max=1000"`
	FromCITypeID     *uuid.UUID      `json:"from_ci_type_id" validate:"excluded_with=ClearFromCIType"`
	ToCITypeID       *uuid.UUID      `json:"to_ci_type_id" validate:"excluded_with=ClearToCIType"`
	IsBidirectional  *bool           `json:"is_bidirectional"`
	ReverseName      *string         `json:"reverse_name" validate:"omitempty,max=255"`
	AttributesSchema json.RawMessage `json:"attributes_schema"`
	// A null endpoint id means "unchanged"; these flags remove the constraint.
	ClearFromCIType bool `json:"clear_from_ci_type"`
	ClearToCIType   bool `json:"clear_to_ci_type"`
}

func (r UpdateTypeRequest) empty() bool {
	return r.Name == nil && r.Description == nil && r.FromCITypeID == nil && r.ToCITypeID == nil &&
		r.IsBidirectional == nil && r.ReverseName == nil && len(r.AttributesSchema) == 0 &&
		!r.ClearFromCIType && !r.ClearToCIType
}

// CreateRequest is the body of POST /api/v1/relationships.
type CreateRequest struct {
	RelationshipTypeID uuid.UUID       `json:"relationship_type_id" validate:"required"`
	FromCIAssetID      uuid.UUID       `json:"from_ci_asset_id" validate:"required"`
	ToCIAssetID        uuid.UUID       `json:"to_ci_asset_id" validate:"required"`
	Attributes         json.RawMessage `json:"attributes"`
}
