package graph

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/tahopetis/crate/pkg/apperror"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProjection records calls and can be told to fail.
type fakeProjection struct {
	mu       sync.Mutex
	disabled bool
	err      error

	nodes  map[uuid.UUID]AssetNode
	edges  map[uuid.UUID]Edge
	labels []string
	calls  []string
}

func newFakeProjection() *fakeProjection {
	return &fakeProjection{nodes: map[uuid.UUID]AssetNode{}, edges: map[uuid.UUID]Edge{}}
}

func (f *fakeProjection) Enabled() bool { return !f.disabled }

func (f *fakeProjection) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeProjection) UpsertAssetNode(_ context.Context, n AssetNode) error {
	if err := f.record("upsert_node"); err != nil {
		return err
	}
	f.nodes[n.ID] = n
	return nil
}

func (f *fakeProjection) DeleteAssetNode(_ context.Context, id uuid.UUID) error {
	if err := f.record("delete_node"); err != nil {
		return err
	}
	delete(f.nodes, id)
	for eid, e := range f.edges {
		if e.FromID == id || e.ToID == id {
			delete(f.edges, eid)
		}
	}
	return nil
}

func (f *fakeProjection) MergeEdge(_ context.Context, e Edge, endpoints ...AssetNode) error {
	if err := f.record("merge_edge"); err != nil {
		return err
	}
	for _, n := range endpoints {
		f.nodes[n.ID] = n
	}
	f.edges[e.ID] = e
	return nil
}

func (f *fakeProjection) DeleteEdge(_ context.Context, from, to, typeID uuid.UUID) error {
	if err := f.record("delete_edge"); err != nil {
		return err
	}
	for id, e := range f.edges {
		if e.FromID == from && e.ToID == to && e.TypeID == typeID {
			delete(f.edges, id)
		}
	}
	return nil
}

func (f *fakeProjection) RegisterRelationshipLabel(_ context.Context, name string) error {
	if err := f.record("register_label"); err != nil {
		return err
	}
	f.labels = append(f.labels, EdgeLabel(name))
	return nil
}

func (f *fakeProjection) AssetNodeIDs(context.Context) ([]string, error) {
	var out []string
	for id := range f.nodes {
		out = append(out, id.String())
	}
	return out, nil
}

func (f *fakeProjection) EdgeIDs(context.Context) ([]string, error) {
	var out []string
	for id := range f.edges {
		out = append(out, id.String())
	}
	return out, nil
}

func (f *fakeProjection) DeleteAssetNodes(ctx context.Context, ids []string) error {
	for _, s := range ids {
		_ = f.DeleteAssetNode(ctx, uuid.MustParse(s))
	}
	return nil
}

func (f *fakeProjection) DeleteEdgesByID(_ context.Context, ids []string) error {
	for _, s := range ids {
		delete(f.edges, uuid.MustParse(s))
	}
	return nil
}

type enqueued struct {
	operation string
	entityID  uuid.UUID
}

type fakeQueue struct {
	jobs []enqueued
	err  error
}

func (q *fakeQueue) Enqueue(_ context.Context, operation string, entityID uuid.UUID, _ any, _ int) (bool, error) {
	if q.err != nil {
		return false, q.err
	}
	q.jobs = append(q.jobs, enqueued{operation, entityID})
	return true, nil
}

// fakeSource is an in-memory Source.
type fakeSource struct {
	assets      map[uuid.UUID]AssetNode
	deleted     map[uuid.UUID]bool
	edges       map[uuid.UUID]Edge
	typeNames   map[uuid.UUID]string
	orderAssets []uuid.UUID
	orderEdges  []uuid.UUID
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		assets:    map[uuid.UUID]AssetNode{},
		deleted:   map[uuid.UUID]bool{},
		edges:     map[uuid.UUID]Edge{},
		typeNames: map[uuid.UUID]string{},
	}
}

func (s *fakeSource) addAsset(n AssetNode) {
	s.assets[n.ID] = n
	s.orderAssets = append(s.orderAssets, n.ID)
}

func (s *fakeSource) addEdge(e Edge) {
	s.edges[e.ID] = e
	s.orderEdges = append(s.orderEdges, e.ID)
}

func (s *fakeSource) Asset(_ context.Context, id uuid.UUID) (AssetNode, bool, error) {
	n, ok := s.assets[id]
	if !ok {
		return AssetNode{}, false, apperror.NewNotFound("CI asset", id.String())
	}
	return n, !s.deleted[id], nil
}

func (s *fakeSource) Relationship(_ context.Context, id uuid.UUID) (Edge, bool, error) {
	e, ok := s.edges[id]
	if !ok {
		return Edge{}, false, apperror.NewNotFound("Relationship", id.String())
	}
	live := !s.deleted[id] && !s.deleted[e.FromID] && !s.deleted[e.ToID]
	return e, live, nil
}

func (s *fakeSource) RelationshipTypeName(_ context.Context, id uuid.UUID) (string, bool, error) {
	n, ok := s.typeNames[id]
	if !ok {
		return "", false, apperror.NewNotFound("Relationship type", id.String())
	}
	return n, !s.deleted[id], nil
}

// The fake pages by insertion order; after is the last id of the previous page.
func (s *fakeSource) LiveAssets(_ context.Context, after uuid.UUID, limit int) ([]AssetNode, error) {
	var out []AssetNode
	started := after == uuid.Nil
	for _, id := range s.orderAssets {
		if !started {
			started = id == after
			continue
		}
		if s.deleted[id] {
			continue
		}
		out = append(out, s.assets[id])
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeSource) LiveRelationships(ctx context.Context, after uuid.UUID, limit int) ([]Edge, error) {
	var out []Edge
	started := after == uuid.Nil
	for _, id := range s.orderEdges {
		if !started {
			started = id == after
			continue
		}
		if _, live, _ := s.Relationship(ctx, id); !live {
			continue
		}
		out = append(out, s.edges[id])
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
