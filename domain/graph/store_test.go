package graph

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_DisabledIsNoop(t *testing.T) {
	s := NewStore(nil)
	ctx := context.Background()

	assert.False(t, s.Enabled())
	assert.NoError(t, s.EnsureSchema(ctx))
	assert.NoError(t, s.UpsertAssetNode(ctx, AssetNode{ID: uuid.New()}))
	assert.NoError(t, s.DeleteAssetNode(ctx, uuid.New()))
	assert.NoError(t, s.MergeEdge(ctx, Edge{ID: uuid.New(), TypeName: "x"}))
	assert.NoError(t, s.DeleteEdge(ctx, uuid.New(), uuid.New(), uuid.New()))
	assert.NoError(t, s.RegisterRelationshipLabel(ctx, "depends on"))

	data, err := s.FullGraph(ctx, 10, "")
	require.NoError(t, err)
	assert.Empty(t, data.Nodes)
	assert.NotNil(t, data.Links)

	nodes, err := s.Search(ctx, "x", 10)
	require.NoError(t, err)
	assert.NotNil(t, nodes)

	ids, err := s.AssetNodeIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestAssetNodeProps(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	typeID := uuid.New()
	n := AssetNode{ID: uuid.New(), Name: "web-1", CIType: "Server", CITypeID: typeID, Attributes: json.RawMessage(`{"cpu":4}`)}

	p := n.props(now)
	assert.Equal(t, "web-1", p["name"])
	assert.Equal(t, "Server", p["ci_type"])
	assert.Equal(t, typeID.String(), p["ci_type_id"])
	assert.Equal(t, `{"cpu":4}`, p["attributes_json"])
	assert.Equal(t, "2025-03-01T12:00:00Z", p["synced_at"])

	assert.Equal(t, "{}", AssetNode{}.props(now)["attributes_json"])
}

func TestEdgeProps(t *testing.T) {
	e := Edge{
		ID: uuid.New(), TypeID: uuid.New(), TypeName: "depends on",
		FromCIType: "Application", ToCIType: "Database", IsBidirectional: true,
	}
	p := e.props()
	assert.Equal(t, e.TypeID.String(), p["type_id"])
	assert.Equal(t, "Application", p["from_ci_type"])
	assert.Equal(t, "Database", p["to_ci_type"])
	assert.Equal(t, true, p["is_bidirectional"])
	assert.Contains(t, p, "created_at")
	assert.Contains(t, p, "updated_at")
	assert.Equal(t, "DEPENDS_ON", e.Label())
}

func TestMergeEdgeCypher(t *testing.T) {
	q := mergeEdgeCypher("DEPENDS_ON")
	assert.Contains(t, q, "MERGE (a)-[r:DEPENDS_ON {id: $id}]->(b)")
	assert.Contains(t, q, "SET r += $props")
}

func TestNodeFromProps(t *testing.T) {
	n := nodeFromProps(map[string]any{
		"id": "a", "name": "web", "ci_type": "Server", "attributes_json": `{"env":"prod"}`,
	})
	assert.Equal(t, "a", n.ID)
	assert.Equal(t, "prod", n.Attributes["env"])

	n = nodeFromProps(map[string]any{"id": "b", "attributes_json": "not json"})
	assert.Equal(t, "b", n.ID)
	assert.NotNil(t, n.Attributes)
}

func TestLinkFromProps(t *testing.T) {
	l := linkFromProps(map[string]any{"id": "r1", "type_id": "t1", "type_name": "hosts", "is_bidirectional": true}, "a", "b", "HOSTS")
	assert.Equal(t, Link{ID: "r1", Source: "a", Target: "b", Type: "HOSTS", TypeID: "t1", TypeName: "hosts", IsBidirectional: true}, l)
}
