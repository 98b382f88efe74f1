package ci

import (
	"encoding/json"

	"github.com/google/uuid"
)

// CreateTypeRequest is the body of POST /api/v1/ci-types.
type CreateTypeRequest struct {
	Name        string          `json:"name" validate:"required,notblank,max=255"`
	Description *string         `json:"description" validate:"omitempty,max=1000"`
	Attributes  json.RawMessage `json:"attributes"`
}

// UpdateTypeRequest is the body of PUT /api/v1/ci-types/:id. Every field
// that is present overwrites the stored value.
type UpdateTypeRequest struct {
	Name        *string         `json:"name" validate:"omitempty,notblank,max=255"`
	Description *string         `json:"description" validate:"omitempty,max=1000"`
	Attributes  json.RawMessage `json:"attributes"`
}

func (r UpdateTypeRequest) empty() bool {
	return r.Name == nil && r.Description == nil && len(r.Attributes) == 0
}

// CreateAssetRequest is the body of POST /api/v1/ci-assets.
type CreateAssetRequest struct {
	CITypeID   uuid.UUID       `json:"ci_type_id" validate:"required"`
	Name       string          `json:"name" validate:"required,notblank,max=255"`
	Attributes json.RawMessage `json:"attributes"`
}

// UpdateAssetRequest is the body of PUT /api/v1/ci-assets/:id.
type UpdateAssetRequest struct {
	Name       *string         `json:"name" validate:"omitempty,notblank,max=255"`
	Attributes json.RawMessage `json:"attributes"`
}

func (r UpdateAssetRequest) empty() bool {
	return r.Name == nil && len(r.Attributes) == 0
}
