package graph

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AssetNode is the projection of a live CI asset.
type AssetNode struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	CIType     string          `json:"ci_type"`
	CITypeID   uuid.UUID       `json:"ci_type_id"`
	Attributes json.RawMessage `json:"attributes,omitempty"`
}

// Edge is the projection of a live relationship.
type Edge struct {
	ID              uuid.UUID `json:"id"`
	TypeID          uuid.UUID `json:"type_id"`
	TypeName        string    `json:"type_name"`
	FromID          uuid.UUID `json:"from_id"`
	ToID            uuid.UUID `json:"to_id"`
	FromCIType      string    `json:"from_ci_type"`
	ToCIType        string    `json:"to_ci_type"`
	IsBidirectional bool      `json:"is_bidirectional"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Label returns the Neo4j relationship type of e.
func (e Edge) Label() string {
	return EdgeLabel(e.TypeName)
}

func (n AssetNode) props(now time.Time) map[string]any {
	attrs := "{}"
	if len(n.Attributes) > 0 {
		attrs = string(n.Attributes)
	}
	return map[string]any{
		"name":            n.Name,
		"ci_type":         n.CIType,
		"ci_type_id":      n.CITypeID.String(),
		"attributes_json": attrs,
		"synced_at":       now.UTC().Format(time.RFC3339),
	}
}

func (e Edge) props() map[string]any {
	return map[string]any{
		"id":               e.ID.String(),
		"type_id":          e.TypeID.String(),
		"type_name":        e.TypeName,
		"from_ci_type":     e.FromCIType,
		"to_ci_type":       e.ToCIType,
		"is_bidirectional": e.IsBidirectional,
		"created_at":       e.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":       e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// Node is a graph node as returned by the read endpoints.
type Node struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	CIType     string         `json:"ci_type"`
	CITypeID   string         `json:"ci_type_id"`
	Attributes map[string]any `json:"attributes"`
}

// Link is a graph edge as returned by the read endpoints.
type Link struct {
	ID              string `json:"id"`
	Source          string `json:"source"`
	Target          string `json:"target"`
	Type            string `json:"type"`
	TypeID          string `json:"type_id"`
	TypeName        string `json:"type_name"`
	IsBidirectional bool   `json:"is_bidirectional"`
}

// Data is a node/link set suitable for rendering.
type Data struct {
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`
}

// Neighborhood is an asset together with its directly connected assets.
type Neighborhood struct {
	Center *Node  `json:"center"`
	Nodes  []Node `json:"nodes"`
	Links  []Link `json:"links"`
}
