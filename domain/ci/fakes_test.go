package ci

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
	mu       sync.Mutex
	types    map[uuid.UUID]*CIType
	assets   map[uuid.UUID]*CIAsset
	relDels  []uuid.UUID
	lastPage pagination.Page
}

func newMemStore() *memStore {
	return &memStore{types: map[uuid.UUID]*CIType{}, assets: map[uuid.UUID]*CIAsset{}}
}

func (m *memStore) CreateType(_ context.Context, t *CIType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.types[t.ID] = &cp
	return nil
}

func (m *memStore) GetType(_ context.Context, id uuid.UUID) (*CIType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.types[id]
	if !ok || t.DeletedAt != nil {
		return nil, apperror.NewNotFound("CI type", id.String())
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

func (m *memStore) UpdateType(_ context.Context, t *CIType) error {
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
		return apperror.NewNotFound("CI type", id.String())
	}
	now := time.Now()
	t.DeletedAt = &now
	return nil
}

func (m *memStore) ListTypes(_ context.Context, page pagination.Page) ([]CIType, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastPage = page
	var out []CIType
	for _, t := range m.types {
		if t.DeletedAt == nil {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
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

func (m *memStore) CountLiveAssets(_ context.Context, typeID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.assets {
		if a.DeletedAt == nil && a.CITypeID == typeID {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CreateAsset(_ context.Context, a *CIAsset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.assets[a.ID] = &cp
	return nil
}

func (m *memStore) GetAsset(_ context.Context, id uuid.UUID) (*CIAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[id]
	if !ok || a.DeletedAt != nil {
		return nil, apperror.NewNotFound("CI asset", id.String())
	}
	cp := *a
	cp.CITypeName = m.types[a.CITypeID].Name
	return &cp, nil
}

func (m *memStore) UpdateAsset(_ context.Context, a *CIAsset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.assets[a.ID] = &cp
	return nil
}

func (m *memStore) SoftDeleteAsset(_ context.Context, id, actor uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[id]
	if !ok || a.DeletedAt != nil {
		return apperror.NewNotFound("CI asset", id.String())
	}
	now := time.Now()
	a.DeletedAt = &now
	a.DeletedBy = &actor
	m.relDels = append(m.relDels, id)
	return nil
}

func (m *memStore) ListAssets(_ context.Context, f AssetFilter, page pagination.Page) ([]CIAsset, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []CIAsset
	for _, a := range m.assets {
		if a.DeletedAt != nil {
			continue
		}
		if f.CITypeID != nil && a.CITypeID != *f.CITypeID {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(a.Name), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	return window(out, page), total, nil
}

func (m *memStore) SearchAssets(ctx context.Context, q string, limit int) ([]CIAsset, error) {
	out, _, err := m.ListAssets(ctx, AssetFilter{Search: q}, pagination.Page{Limit: limit})
	return out, err
}

func (m *memStore) CountTypes(ctx context.Context) (int, error) {
	_, n, err := m.ListTypes(ctx, pagination.Page{Limit: 1})
	return n, err
}

func (m *memStore) CountAssets(ctx context.Context) (int, error) {
	_, n, err := m.ListAssets(ctx, AssetFilter{}, pagination.Page{Limit: 1})
	return n, err
}

func (m *memStore) AssetsPerType(context.Context, int) ([]TypeAssetCount, error) {
	return []TypeAssetCount{}, nil
}

type recProjection struct {
	mu      sync.Mutex
	err     error
	upserts []graph.AssetNode
	deletes []uuid.UUID
}

func (p *recProjection) Enabled() bool { return true }

func (p *recProjection) UpsertAssetNode(_ context.Context, n graph.AssetNode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.upserts = append(p.upserts, n)
	return nil
}

func (p *recProjection) DeleteAssetNode(_ context.Context, id uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.deletes = append(p.deletes, id)
	return nil
}

func (p *recProjection) MergeEdge(context.Context, graph.Edge, ...graph.AssetNode) error { return p.err }

func (p *recProjection) DeleteEdge(context.Context, uuid.UUID, uuid.UUID, uuid.UUID) error {
	return p.err
}

func (p *recProjection) RegisterRelationshipLabel(context.Context, string) error { return p.err }

type countingQueue struct {
	n int
}

func (q *countingQueue) Enqueue(context.Context, string, uuid.UUID, any, int) (bool, error) {
	q.n++
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

func (r *memRecorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.EntityType + ":" + e.Action
	}
	return out
}
