package valuation

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/tahopetis/crate/domain/audit"
	"github.com/tahopetis/crate/pkg/apperror"
	"github.com/tahopetis/crate/pkg/pagination"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memStore struct {
	mu       sync.Mutex
	assets   map[uuid.UUID]string
	records  map[uuid.UUID]*Record
	entries  map[uuid.UUID]map[int]Entry
	applyErr error
	applies  int
}

func newMemStore() *memStore {
	return &memStore{
		assets:  map[uuid.UUID]string{},
		records: map[uuid.UUID]*Record{},
		entries: map[uuid.UUID]map[int]Entry{},
	}
}

func (m *memStore) addAsset(name string) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.assets[id] = name
	return id
}

func (m *memStore) AssetName(_ context.Context, id uuid.UUID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, ok := m.assets[id]
	if !ok {
		return "", apperror.NewNotFound("CI asset", id.String())
	}
	return name, nil
}

func (m *memStore) Create(_ context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.records[r.ID] = &cp
	return nil
}

func (m *memStore) LatestForAsset(_ context.Context, assetID uuid.UUID) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *Record
	for _, r := range m.records {
		if r.CIAssetID == assetID && (latest == nil || r.CreatedAt.After(latest.CreatedAt)) {
			latest = r
		}
	}
	if latest == nil {
		return nil, apperror.NewNotFound("Valuation for CI asset", assetID.String())
	}
	cp := *latest
	return &cp, nil
}

func (m *memStore) sorted() []Record {
	out := []Record{}
	for _, r := range m.records {
		if _, ok := m.assets[r.CIAssetID]; ok {
			out = append(out, *r)
		}
	}
	return out
}

func (m *memStore) List(_ context.Context, page pagination.Page) ([]Record, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted()
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	end := min(page.Offset+page.Limit, len(all))
	if page.Offset >= len(all) {
		return []Record{}, len(all), nil
	}
	return all[page.Offset:end], len(all), nil
}

func (m *memStore) ListAfter(_ context.Context, after uuid.UUID, limit int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted()
	sort.Slice(all, func(i, j int) bool { return all[i].ID.String() < all[j].ID.String() })
	out := []Record{}
	for _, r := range all {
		if after == uuid.Nil || r.ID.String() > after.String() {
			out = append(out, r)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memStore) Entries(_ context.Context, valuationID uuid.UUID) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Entry{}
	for _, e := range m.entries[valuationID] {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out, nil
}

func (m *memStore) ApplyAmortization(_ context.Context, valuationID uuid.UUID, entries []Entry, currentValue float64, actor *uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applies++
	if m.applyErr != nil {
		return 0, m.applyErr
	}
	byYear, ok := m.entries[valuationID]
	if !ok {
		byYear = map[int]Entry{}
		m.entries[valuationID] = byYear
	}
	inserted := 0
	for _, e := range entries {
		if _, dup := byYear[e.Year]; dup {
			continue
		}
		byYear[e.Year] = e
		inserted++
	}
	if r, ok := m.records[valuationID]; ok {
		r.CurrentValue = currentValue
		r.UpdatedBy = actor
	}
	return inserted, nil
}

func (m *memStore) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sorted()), nil
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
