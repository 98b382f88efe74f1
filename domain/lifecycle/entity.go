package lifecycle

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Audit entity types.
const (
	EntityType       = "lifecycle_type"
	EntityState      = "lifecycle_state"
	EntityTransition = "lifecycle_transition"
	EntityMapping    = "ci_type_lifecycle"
)

// DefaultColor is used for types and states created without a color.
const DefaultColor = "#6B7280"

// Palette is the suggested set of state colors offered to clients.
var Palette = []string{
	"#10B981", "#3B82F6", "#F59E0B", "#EF4444", "#8B5CF6",
	"#EC4899", "#14B8A6", "#F97316", "#6366F1", "#84CC16",
	"#06B6D4", "#A855F7", "#FB923C", "#0EA5E9", "#22C55E",
}

// Type is a named state machine that CI types can adopt.
type Type struct {
	bun.BaseModel `bun:"table:cmdb.lifecycle_types,alias:lt"`

	ID           uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Name         string     `bun:"name" json:"name"`
	Description  *string    `bun:"description" json:"description,omitempty"`
	DefaultColor string     `bun:"default_color" json:"default_color"`
	IsActive     bool       `bun:"is_active" json:"is_active"`
	CreatedBy    uuid.UUID  `bun:"created_by,type:uuid" json:"created_by"`
	CreatedAt    time.Time  `bun:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `bun:"updated_at" json:"updated_at"`
	DeletedAt    *time.Time `bun:"deleted_at" json:"-"`

	States      []State      `bun:"-" json:"states,omitempty"`
	Transitions []Transition `bun:"-" json:"transitions,omitempty"`
}

// State is one step of a lifecycle. States are hard-deleted.
type State struct {
	bun.BaseModel `bun:"table:cmdb.lifecycle_states,alias:ls"`

	ID              uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	LifecycleTypeID uuid.UUID `bun:"lifecycle_type_id,type:uuid" json:"lifecycle_type_id"`
	Name            string    `bun:"name" json:"name"`
	Description     *string   `bun:"description" json:"description,omitempty"`
	Color           string    `bun:"color" json:"color"`
	OrderIndex      int       `bun:"order_index" json:"order_index"`
	IsInitialState  bool      `bun:"is_initial_state" json:"is_initial_state"`
	IsTerminalState bool      `bun:"is_terminal_state" json:"is_terminal_state"`
	CreatedAt       time.Time `bun:"created_at" json:"created_at"`
	UpdatedAt       time.Time `bun:"updated_at" json:"updated_at"`
}

// Transition is an allowed move between two states of the same type. A nil
// FromStateID means the move is allowed on creation.
type Transition struct {
	bun.BaseModel `bun:"table:cmdb.lifecycle_transitions,alias:ltr"`

	ID               uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	LifecycleTypeID  uuid.UUID  `bun:"lifecycle_type_id,type:uuid" json:"lifecycle_type_id"`
	FromStateID      *uuid.UUID `bun:"from_state_id,type:uuid" json:"from_state_id,omitempty"`
	ToStateID        uuid.UUID  `bun:"to_state_id,type:uuid" json:"to_state_id"`
	TransitionName   string     `bun:"transition_name" json:"transition_name"`
	Description      *string    `bun:"description" json:"description,omitempty"`
	RequiresApproval bool       `bun:"requires_approval" json:"requires_approval"`
	CreatedAt        time.Time  `bun:"created_at" json:"created_at"`

	FromStateName *string `bun:"from_state_name,scanonly" json:"from_state_name,omitempty"`
	ToStateName   string  `bun:"to_state_name,scanonly" json:"to_state_name"`
}

// Mapping assigns a lifecycle type to a CI type. At most one mapping per CI
// type is the default.
type Mapping struct {
	bun.BaseModel `bun:"table:cmdb.ci_type_lifecycles,alias:ctl"`

	ID              uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	CITypeID        uuid.UUID `bun:"ci_type_id,type:uuid" json:"ci_type_id"`
	LifecycleTypeID uuid.UUID `bun:"lifecycle_type_id,type:uuid" json:"lifecycle_type_id"`
	IsDefault       bool      `bun:"is_default" json:"is_default"`
	CreatedBy       uuid.UUID `bun:"created_by,type:uuid" json:"created_by"`
	CreatedAt       time.Time `bun:"created_at" json:"created_at"`
}

// Summary is a lifecycle type with its counts, as returned by list endpoints.
// IsDefault is only meaningful in the per-CI-type listing.
type Summary struct {
	ID           uuid.UUID `bun:"id" json:"id"`
	Name         string    `bun:"name" json:"name"`
	Description  *string   `bun:"description" json:"description,omitempty"`
	DefaultColor string    `bun:"default_color" json:"default_color"`
	IsActive     bool      `bun:"is_active" json:"is_active"`
	StateCount   int       `bun:"state_count" json:"state_count"`
	CITypeCount  int       `bun:"ci_type_count" json:"ci_type_count"`
	IsDefault    bool      `bun:"is_default" json:"is_default"`
	CreatedAt    time.Time `bun:"created_at" json:"created_at"`
}
