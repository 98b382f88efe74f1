package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/tahopetis/crate/internal/graphdb"
)

// Projection is the write side of the graph mirror.
type Projection interface {
	Enabled() bool
	UpsertAssetNode(ctx context.Context, n AssetNode) error
	DeleteAssetNode(ctx context.Context, id uuid.UUID) error
	MergeEdge(ctx context.Context, e Edge, endpoints ...AssetNode) error
	DeleteEdge(ctx context.Context, fromID, toID, typeID uuid.UUID) error
	RegisterRelationshipLabel(ctx context.Context, typeName string) error
}

const assetConstraint = "CREATE CONSTRAINT ci_asset_id IF NOT EXISTS FOR (c:CIAsset) REQUIRE c.id IS UNIQUE"

// Store is the Neo4j implementation of Projection plus the read queries.
// Every method is a no-op (or returns empty results) when the client is nil.
type Store struct {
	client *graphdb.Client
	now    func() time.Time
}

// NewStore creates a new graph store
func NewStore(client *graphdb.Client) *Store {
	return &Store{client: client, now: time.Now}
}

// Enabled reports whether a Neo4j connection is configured.
func (s *Store) Enabled() bool {
	return s.client.Enabled()
}

// EnsureSchema creates the node id constraint.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	return s.client.RunSchema(ctx, assetConstraint)
}

func (s *Store) UpsertAssetNode(ctx context.Context, n AssetNode) error {
	if !s.Enabled() {
		return nil
	}
	return s.client.Write(ctx, func(tx neo4j.ManagedTransaction) error {
		return upsertNode(ctx, tx, n, s.now())
	})
}

func upsertNode(ctx context.Context, tx neo4j.ManagedTransaction, n AssetNode, now time.Time) error {
	return graphdb.Exec(ctx, tx,
		"MERGE (c:CIAsset {id: $id}) SET c += $props",
		map[string]any{"id": n.ID.String(), "props": n.props(now)})
}

func (s *Store) DeleteAssetNode(ctx context.Context, id uuid.UUID) error {
	if !s.Enabled() {
		return nil
	}
	return s.client.Write(ctx, func(tx neo4j.ManagedTransaction) error {
		return graphdb.Exec(ctx, tx,
			"MATCH (c:CIAsset {id: $id}) DETACH DELETE c",
			map[string]any{"id": id.String()})
	})
}

// MergeEdge upserts the endpoint nodes given and then the edge, in one
// transaction. Missing endpoints are created as bare nodes keyed by id. An
// edge with the same id under another label (the type was renamed) is
// replaced.
func (s *Store) MergeEdge(ctx context.Context, e Edge, endpoints ...AssetNode) error {
	if !s.Enabled() {
		return nil
	}
	now := s.now()
	return s.client.Write(ctx, func(tx neo4j.ManagedTransaction) error {
		for _, n := range endpoints {
			if err := upsertNode(ctx, tx, n, now); err != nil {
				return err
			}
		}
		label := e.Label()
		if err := graphdb.Exec(ctx, tx,
			"MATCH (:CIAsset)-[old {id: $id}]->(:CIAsset) WHERE type(old) <> $label DELETE old",
			map[string]any{"id": e.ID.String(), "label": label}); err != nil {
			return err
		}
		return graphdb.Exec(ctx, tx, mergeEdgeCypher(label), map[string]any{
			"from":  e.FromID.String(),
			"to":    e.ToID.String(),
			"id":    e.ID.String(),
			"props": e.props(),
		})
	})
}

// mergeEdgeCypher interpolates the label; EdgeLabel only emits [A-Z0-9_].
func mergeEdgeCypher(label string) string {
	return fmt.Sprintf(`MERGE (a:CIAsset {id: $from})
MERGE (b:CIAsset {id: $to})
MERGE (a)-[r:%s {id: $id}]->(b)
SET r += $props`, label)
}

func (s *Store) DeleteEdge(ctx context.Context, fromID, toID, typeID uuid.UUID) error {
	if !s.Enabled() {
		return nil
	}
	return s.client.Write(ctx, func(tx neo4j.ManagedTransaction) error {
		return graphdb.Exec(ctx, tx,
			"MATCH (:CIAsset {id: $from})-[r {type_id: $type_id}]->(:CIAsset {id: $to}) DELETE r",
			map[string]any{"from": fromID.String(), "to": toID.String(), "type_id": typeID.String()})
	})
}

// RegisterRelationshipLabel declares a uniqueness constraint on the id of
// edges carrying the type's label.
func (s *Store) RegisterRelationshipLabel(ctx context.Context, typeName string) error {
	if !s.Enabled() {
		return nil
	}
	label := EdgeLabel(typeName)
	return s.client.RunSchema(ctx, fmt.Sprintf(
		"CREATE CONSTRAINT %s IF NOT EXISTS FOR ()-[r:%s]-() REQUIRE r.id IS UNIQUE",
		labelConstraintName(label), label))
}

// AssetNodeIDs returns the id of every projected asset node.
func (s *Store) AssetNodeIDs(ctx context.Context) ([]string, error) {
	return s.ids(ctx, "MATCH (c:CIAsset) RETURN c.id AS id")
}

// EdgeIDs returns the id of every projected relationship edge.
func (s *Store) EdgeIDs(ctx context.Context) ([]string, error) {
	return s.ids(ctx, "MATCH (:CIAsset)-[r]->(:CIAsset) WHERE r.id IS NOT NULL RETURN r.id AS id")
}

func (s *Store) ids(ctx context.Context, cypher string) ([]string, error) {
	if !s.Enabled() {
		return nil, nil
	}
	records, err := s.client.Read(ctx, cypher, nil)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(records))
	for _, rec := range records {
		if id, ok := stringValue(rec, "id"); ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// DeleteAssetNodes detaches and deletes the nodes with the given ids.
func (s *Store) DeleteAssetNodes(ctx context.Context, ids []string) error {
	if !s.Enabled() || len(ids) == 0 {
		return nil
	}
	return s.client.Write(ctx, func(tx neo4j.ManagedTransaction) error {
		return graphdb.Exec(ctx, tx,
			"UNWIND $ids AS id MATCH (c:CIAsset {id: id}) DETACH DELETE c",
			map[string]any{"ids": ids})
	})
}

// DeleteEdgesByID deletes the edges with the given ids.
func (s *Store) DeleteEdgesByID(ctx context.Context, ids []string) error {
	if !s.Enabled() || len(ids) == 0 {
		return nil
	}
	return s.client.Write(ctx, func(tx neo4j.ManagedTransaction) error {
		return graphdb.Exec(ctx, tx,
			"UNWIND $ids AS id MATCH (:CIAsset)-[r {id: id}]->(:CIAsset) DELETE r",
			map[string]any{"ids": ids})
	})
}

// FullGraph returns up to limit nodes, optionally of one CI type, and the
// edges between them.
func (s *Store) FullGraph(ctx context.Context, limit int, ciType string) (*Data, error) {
	data := &Data{Nodes: []Node{}, Links: []Link{}}
	if !s.Enabled() {
		return data, nil
	}

	records, err := s.client.Read(ctx,
		`MATCH (c:CIAsset) WHERE $ci_type = '' OR c.ci_type = $ci_type
RETURN c ORDER BY c.name LIMIT $limit`,
		map[string]any{"ci_type": ciType, "limit": int64(limit)})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		if n, ok := nodeValue(rec, "c"); ok {
			data.Nodes = append(data.Nodes, n)
			ids = append(ids, n.ID)
		}
	}
	if len(ids) == 0 {
		return data, nil
	}

	records, err = s.client.Read(ctx,
		`MATCH (a:CIAsset)-[r]->(b:CIAsset) WHERE a.id IN $ids AND b.id IN $ids
RETURN r, a.id AS source, b.id AS target, type(r) AS label`,
		map[string]any{"ids": ids})
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if l, ok := linkValue(rec); ok {
			data.Links = append(data.Links, l)
		}
	}
	return data, nil
}

// Neighbors returns the asset and every asset one hop away in either
// direction. Center is nil when the asset is not projected.
func (s *Store) Neighbors(ctx context.Context, id uuid.UUID) (*Neighborhood, error) {
	out := &Neighborhood{Nodes: []Node{}, Links: []Link{}}
	if !s.Enabled() {
		return out, nil
	}

	records, err := s.client.Read(ctx,
		`MATCH (c:CIAsset {id: $id})
OPTIONAL MATCH (c)-[r]-(n:CIAsset)
RETURN c, n, r, startNode(r).id AS source, endNode(r).id AS target, type(r) AS label`,
		map[string]any{"id": id.String()})
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	for _, rec := range records {
		if out.Center == nil {
			if c, ok := nodeValue(rec, "c"); ok {
				out.Center = &c
			}
		}
		if n, ok := nodeValue(rec, "n"); ok && !seen[n.ID] {
			seen[n.ID] = true
			out.Nodes = append(out.Nodes, n)
		}
		if l, ok := linkValue(rec); ok {
			out.Links = append(out.Links, l)
		}
	}
	return out, nil
}

// Search matches nodes whose name or CI type contains q, case-insensitively.
func (s *Store) Search(ctx context.Context, q string, limit int) ([]Node, error) {
	nodes := []Node{}
	if !s.Enabled() {
		return nodes, nil
	}
	records, err := s.client.Read(ctx,
		`MATCH (c:CIAsset)
WHERE toLower(c.name) CONTAINS toLower($q) OR toLower(c.ci_type) CONTAINS toLower($q)
RETURN c ORDER BY c.name LIMIT $limit`,
		map[string]any{"q": q, "limit": int64(limit)})
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if n, ok := nodeValue(rec, "c"); ok {
			nodes = append(nodes, n)
		}
	}
	return nodes, nil
}

func stringValue(rec *neo4j.Record, key string) (string, bool) {
	v, ok := rec.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func nodeValue(rec *neo4j.Record, key string) (Node, bool) {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return Node{}, false
	}
	n, ok := v.(neo4j.Node)
	if !ok {
		return Node{}, false
	}
	return nodeFromProps(n.Props), true
}

func nodeFromProps(props map[string]any) Node {
	n := Node{
		ID:         propString(props, "id"),
		Name:       propString(props, "name"),
		CIType:     propString(props, "ci_type"),
		CITypeID:   propString(props, "ci_type_id"),
		Attributes: map[string]any{},
	}
	if raw := propString(props, "attributes_json"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &n.Attributes)
	}
	return n
}

func linkValue(rec *neo4j.Record) (Link, bool) {
	v, ok := rec.Get("r")
	if !ok || v == nil {
		return Link{}, false
	}
	r, ok := v.(neo4j.Relationship)
	if !ok {
		return Link{}, false
	}
	source, _ := stringValue(rec, "source")
	target, _ := stringValue(rec, "target")
	label, _ := stringValue(rec, "label")
	return linkFromProps(r.Props, source, target, label), true
}

func linkFromProps(props map[string]any, source, target, label string) Link {
	bidi, _ := props["is_bidirectional"].(bool)
	return Link{
		ID:              propString(props, "id"),
		Source:          source,
		Target:          target,
		Type:            label,
		TypeID:          propString(props, "type_id"),
		TypeName:        propString(props, "type_name"),
		IsBidirectional: bidi,
	}
}

func propString(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}
