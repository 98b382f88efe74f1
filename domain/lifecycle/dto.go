package lifecycle

import (
	"github.com/google/uuid"
)

// CreateTypeRequest is the body of POST /api/v1/lifecycle-types.
type CreateTypeRequest struct {
	Name         string  `json:"name" validate:"required,notblank,max=255"`
	Description  *string `json:"description" validate:"omitempty,max=1000"`
	DefaultColor *string `json:"default_color" validate:"omitempty,hexcolor"`
	IsActive     *bool   `json:"is_active"`
}

// UpdateTypeRequest is the body of PUT /api/v1/lifecycle-types/:id.
type UpdateTypeRequest struct {
	Name         *string `json:"name" validate:"omitempty,notblank,max=255"`
	Description  *string `json:"description" validate:"omitempty,max=1000"`
	DefaultColor *string `json:"default_color" validate:"omitempty,hexcolor"`
	IsActive     *bool   `json:"is_active"`
}

func (r UpdateTypeRequest) empty() bool {
	return r.Name == nil && r.Description == nil && r.DefaultColor == nil && r.IsActive == nil
}

// CreateStateRequest is the body of POST /api/v1/lifecycle-types/:id/states.
type CreateStateRequest struct {
	Name            string  `json:"name" validate:"required,notblank,max=255"`
	Description     *string `json:"description" validate:"omitempty,max=1000"`
	Color           *string `json:"color" validate:"omitempty,hexcolor"`
	OrderIndex      *int    `json:"order_index" validate:"required,gte=0"`
	IsInitialState  bool    `json:"is_initial_state"`
	IsTerminalState bool    `json:"is_terminal_state"`
}

// UpdateStateRequest is the body of PUT /api/v1/lifecycle-states/:id.
type UpdateStateRequest struct {
	Name            *string `json:"name" validate:"omitempty,notblank,max=255"`
	Description     *string `json:"description" validate:"omitempty,max=1000"`
	Color           *string `json:"color" validate:"omitempty,hexcolor"`
	OrderIndex      *int    `json:"order_index" validate:"omitempty,gte=0"`
	IsInitialState  *bool   `json:"is_initial_state"`
	IsTerminalState *bool   `json:"is_terminal_state"`
}

func (r UpdateStateRequest) empty() bool {
	return r.Name == nil && r.Description == nil && r.Color == nil && r.OrderIndex == nil &&
		r.IsInitialState == nil && r.IsTerminalState == nil
}

// CreateTransitionRequest is the body of POST /api/v1/lifecycle-types/:id/transitions.
type CreateTransitionRequest struct {
	FromStateID      *uuid.UUID `json:"from_state_id"`
	ToStateID        uuid.UUID  `json:"to_state_id" validate:"required"`
	TransitionName   string     `json:"transition_name" validate:"required,notblank,max=255"`
	Description      *string    `json:"description" validate:"omitempty,max=1000"`
	RequiresApproval bool       `json:"requires_approval"`
}

// CreateMappingRequest is the body of POST /api/v1/ci-type-lifecycles.
type CreateMappingRequest struct {
	CITypeID        uuid.UUID `json:"ci_type_id" validate:"required"`
	LifecycleTypeID uuid.UUID `json:"lifecycle_type_id" validate:"required"`
	IsDefault       bool      `json:"is_default"`
}
