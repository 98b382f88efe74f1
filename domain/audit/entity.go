package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Actions recorded by the managers.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// LogEntry is one row of cmdb.audit_log. Rows are never updated.
type LogEntry struct {
	bun.BaseModel `bun:"table:cmdb.audit_log,alias:al"`

	ID          uuid.UUID       `bun:"id,pk,type:uuid" json:"id"`
	EntityType  string          `bun:"entity_type" json:"entity_type"`
	EntityID    uuid.UUID       `bun:"entity_id,type:uuid" json:"entity_id"`
	Action      string          `bun:"action" json:"action"`
	OldValues   json.RawMessage `bun:"old_values,type:jsonb" json:"old_values,omitempty"`
	NewValues   json.RawMessage `bun:"new_values,type:jsonb" json:"new_values,omitempty"`
	Changes     json.RawMessage `bun:"changes,type:jsonb" json:"changes,omitempty"`
	PerformedBy uuid.UUID       `bun:"performed_by,type:uuid" json:"performed_by"`
	IPAddress   *string         `bun:"ip_address,type:inet" json:"ip_address,omitempty"`
	UserAgent   *string         `bun:"user_agent" json:"user_agent,omitempty"`
	CreatedAt   time.Time       `bun:"created_at" json:"created_at"`
}

// Query filters audit entries. Zero values are ignored.
type Query struct {
	EntityType  string
	EntityID    *uuid.UUID
	PerformedBy *uuid.UUID
	From        *time.Time
	To          *time.Time
	Limit       int
	Offset      int
}
