package relationships

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tahopetis/crate/domain/audit"
	"github.com/tahopetis/crate/domain/graph"
	"github.com/tahopetis/crate/pkg/apperror"
	"github.com/tahopetis/crate/pkg/pagination"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memStore struct {
	mu        sync.Mutex
	ciTypes   map[uuid.UUID]string
	assets    map[uuid.UUID]*AssetRef
	types     map[uuid.UUID]*RelationshipType
	rels      map[uuid.UUID]*Relationship
	createErr error
	getErr    error
}

func newMemStore() *memStore {
	return &memStore{
		ciTypes: map[uuid.UUID]string{},
		assets:  map[uuid.UUID]*AssetRef{},
		types:   map[uuid.UUID]*RelationshipType{},
		rels:    map[uuid.UUID]*Relationship{},
	}
}

func (m *memStore) addCIType(name string) uuid.UUID {
	id := uuid.New()
	m.ciTypes[id] = name
	return id
}

func (m *memStore) addAsset(name string, ciTypeID uuid.UUID) uuid.UUID {
	id := uuid.New()
	m.assets[id] = &AssetRef{ID: id, Name: name, CITypeID: ciTypeID, CITypeName: m.ciTypes[ciTypeID]}
	return id
}

func (m *memStore) CreateType(_ context.Context, t *RelationshipType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.types[t.ID] = &cp
	return nil
}

func (m *memStore) GetType(_ context.Context, id uuid.UUID) (*RelationshipType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.types[id]
	if !ok || t.DeletedAt != nil {
		return nil, apperror.NewNotFound("Relationship type", id.String())
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) TypeNameExists(_ context.Context, name string, excludeID *uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.types {
		if t.DeletedAt != nil || t.Name != name {
			continue
		}
		if excludeID != nil && t.ID == *excludeID {
			continue
		}
		return true, nil
	}
	return false, nil
}

func (m *memStore) UpdateType(_ context.Context, t *RelationshipType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.types[t.ID] = &cp
	return nil
}

func (m *memStore) SoftDeleteType(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.types[id]
	if !ok || t.DeletedAt != nil {
		return apperror.NewNotFound("Relationship type", id.String())
	}
	now := time.Now()
	t.DeletedAt = &now
	return nil
}

func (m *memStore) ListTypes(_ context.Context, f TypeFilter, page pagination.Page) ([]RelationshipType, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []RelationshipType
	for _, t := range m.types {
		if t.DeletedAt != nil {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(t.Name), strings.ToLower(f.Search)) {
			continue
		}
		if f.IsBidirectional != nil && t.IsBidirectional != *f.IsBidirectional {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	total := len(out)
	return window(out, page), total, nil
}

func window[T any](items []T, page pagination.Page) []T {
	if page.Offset >= len(items) {
		return []T{}
	}
	end := page.Offset + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[page.Offset:end]
}

func (m *memStore) CountLiveRelationships(_ context.Context, typeID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rels {
		if r.DeletedAt == nil && r.RelationshipTypeID == typeID {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CITypeName(_ context.Context, id uuid.UUID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, ok := m.ciTypes[id]
	if !ok {
		return "", apperror.NewNotFound("CI type", id.String())
	}
	return name, nil
}

func (m *memStore) GetAssetRef(_ context.Context, id uuid.UUID) (*AssetRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[id]
	if !ok {
		return nil, apperror.NewNotFound("CI asset", id.String())
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) TripleExists(_ context.Context, typeID, fromID, toID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rels {
		if r.DeletedAt == nil && r.RelationshipTypeID == typeID && r.FromCIAssetID == fromID && r.ToCIAssetID == toID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) Create(_ context.Context, r *Relationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *r
	m.rels[r.ID] = &cp
	return nil
}

func (m *memStore) view(r *Relationship) *Relationship {
	cp := *r
	t := m.types[r.RelationshipTypeID]
	cp.RelationshipTypeName = t.Name
	cp.IsBidirectional = t.IsBidirectional
	cp.FromAssetName = m.assets[r.FromCIAssetID].Name
	cp.FromCITypeName = m.assets[r.FromCIAssetID].CITypeName
	cp.ToAssetName = m.assets[r.ToCIAssetID].Name
	cp.ToCITypeName = m.assets[r.ToCIAssetID].CITypeName
	cp.CreatedByName = "Ada Admin"
	return &cp
}

func (m *memStore) Get(_ context.Context, id uuid.UUID) (*Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	r, ok := m.rels[id]
	if !ok || r.DeletedAt != nil {
		return nil, apperror.NewNotFound("Relationship", id.String())
	}
	return m.view(r), nil
}

func (m *memStore) SoftDelete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rels[id]
	if !ok || r.DeletedAt != nil {
		return apperror.NewNotFound("Relationship", id.String())
	}
	now := time.Now()
	r.DeletedAt = &now
	return nil
}

func (m *memStore) List(_ context.Context, f Filter, page pagination.Page) ([]Relationship, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Relationship
	for _, r := range m.rels {
		if r.DeletedAt != nil {
			continue
		}
		if f.CIAssetID != nil && r.FromCIAssetID != *f.CIAssetID && r.ToCIAssetID != *f.CIAssetID {
			continue
		}
		out = append(out, *m.view(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	return window(out, page), total, nil
}

func (m *memStore) CountTypes(ctx context.Context) (int, error) {
	_, n, err := m.ListTypes(ctx, TypeFilter{}, pagination.Page{Limit: 1})
	return n, err
}

func (m *memStore) Count(ctx context.Context) (int, error) {
	_, n, err := m.List(ctx, Filter{}, pagination.Page{Limit: 1})
	return n, err
}

type recProjection struct {
	mu      sync.Mutex
	err     error
	edges   []graph.Edge
	nodes   []graph.AssetNode
	deleted [][3]uuid.UUID
	labels  []string
}

func (p *recProjection) Enabled() bool { return true }

func (p *recProjection) UpsertAssetNode(context.Context, graph.AssetNode) error { return p.err }

func (p *recProjection) DeleteAssetNode(context.Context, uuid.UUID) error { return p.err }

func (p *recProjection) MergeEdge(_ context.Context, e graph.Edge, endpoints ...graph.AssetNode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.edges = append(p.edges, e)
	p.nodes = append(p.nodes, endpoints...)
	return nil
}

func (p *recProjection) DeleteEdge(_ context.Context, from, to, typeID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.deleted = append(p.deleted, [3]uuid.UUID{from, to, typeID})
	return nil
}

func (p *recProjection) RegisterRelationshipLabel(_ context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.labels = append(p.labels, name)
	return nil
}

type enqueued struct {
	op string
	id uuid.UUID
}

type recQueue struct {
	mu   sync.Mutex
	jobs []enqueued
}

func (q *recQueue) Enqueue(_ context.Context, op string, id uuid.UUID, _ any, _ int) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, enqueued{op: op, id: id})
	return true, nil
}

type memRecorder struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *memRecorder) Record(_ context.Context, e audit.Entry) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return uuid.New(), nil
}
