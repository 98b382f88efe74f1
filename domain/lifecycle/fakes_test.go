package lifecycle

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tahopetis/crate/domain/audit"
	"github.com/tahopetis/crate/pkg/apperror"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memStore struct {
	mu          sync.Mutex
	ciTypes     map[uuid.UUID]bool
	types       map[uuid.UUID]*Type
	states      map[uuid.UUID]*State
	transitions map[uuid.UUID]*Transition
	mappings    []*Mapping
}

func newMemStore() *memStore {
	return &memStore{
		ciTypes:     map[uuid.UUID]bool{},
		types:       map[uuid.UUID]*Type{},
		states:      map[uuid.UUID]*State{},
		transitions: map[uuid.UUID]*Transition{},
	}
}

func (m *memStore) CreateType(_ context.Context, t *Type) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.types[t.ID] = &cp
	return nil
}

func (m *memStore) GetType(_ context.Context, id uuid.UUID) (*Type, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.types[id]
	if !ok || t.DeletedAt != nil {
		return nil, apperror.NewNotFound("Lifecycle type", id.String())
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) TypeNameExists(_ context.Context, name string, excludeID *uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.types {
		if t.DeletedAt == nil && t.Name == name && (excludeID == nil || t.ID != *excludeID) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) UpdateType(_ context.Context, t *Type) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.types[t.ID] = &cp
	return nil
}

func (m *memStore) SoftDeleteType(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.types[id].DeletedAt = &now
	return nil
}

func (m *memStore) summary(t *Type) Summary {
	s := Summary{ID: t.ID, Name: t.Name, Description: t.Description, DefaultColor: t.DefaultColor, IsActive: t.IsActive, CreatedAt: t.CreatedAt}
	for _, st := range m.states {
		if st.LifecycleTypeID == t.ID {
			s.StateCount++
		}
	}
	for _, mp := range m.mappings {
		if mp.LifecycleTypeID == t.ID {
			s.CITypeCount++
		}
	}
	return s
}

func (m *memStore) ListTypes(_ context.Context, includeInactive bool) ([]Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Summary{}
	for _, t := range m.types {
		if t.DeletedAt != nil || (!includeInactive && !t.IsActive) {
			continue
		}
		out = append(out, m.summary(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) CountMappings(_ context.Context, typeID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, mp := range m.mappings {
		if mp.LifecycleTypeID == typeID {
			n++
		}
	}
	return n, nil
}

func (m *memStore) States(_ context.Context, typeID uuid.UUID) ([]State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []State{}
	for _, st := range m.states {
		if st.LifecycleTypeID == typeID {
			out = append(out, *st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

func (m *memStore) CreateState(_ context.Context, s *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.states[s.ID] = &cp
	return nil
}

func (m *memStore) GetState(_ context.Context, id uuid.UUID) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[id]
	if !ok {
		return nil, apperror.NewNotFound("Lifecycle state", id.String())
	}
	cp := *st
	return &cp, nil
}

func (m *memStore) UpdateState(ctx context.Context, s *State) error {
	return m.CreateState(ctx, s)
}

func (m *memStore) DeleteState(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[id]; !ok {
		return apperror.NewNotFound("Lifecycle state", id.String())
	}
	delete(m.states, id)
	return nil
}

func (m *memStore) anyState(typeID uuid.UUID, excludeID *uuid.UUID, match func(*State) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range m.states {
		if st.LifecycleTypeID != typeID || (excludeID != nil && st.ID == *excludeID) {
			continue
		}
		if match(st) {
			return true
		}
	}
	return false
}

func (m *memStore) StateNameExists(_ context.Context, typeID uuid.UUID, name string, excludeID *uuid.UUID) (bool, error) {
	return m.anyState(typeID, excludeID, func(s *State) bool { return s.Name == name }), nil
}

func (m *memStore) StateOrderExists(_ context.Context, typeID uuid.UUID, order int, excludeID *uuid.UUID) (bool, error) {
	return m.anyState(typeID, excludeID, func(s *State) bool { return s.OrderIndex == order }), nil
}

func (m *memStore) InitialStateExists(_ context.Context, typeID uuid.UUID, excludeID *uuid.UUID) (bool, error) {
	return m.anyState(typeID, excludeID, func(s *State) bool { return s.IsInitialState }), nil
}

func (m *memStore) StateInUse(_ context.Context, stateID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tr := range m.transitions {
		if tr.ToStateID == stateID || (tr.FromStateID != nil && *tr.FromStateID == stateID) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) Transitions(_ context.Context, typeID uuid.UUID) ([]Transition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Transition{}
	for _, tr := range m.transitions {
		if tr.LifecycleTypeID == typeID {
			out = append(out, *tr)
		}
	}
	return out, nil
}

func (m *memStore) CreateTransition(_ context.Context, t *Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.transitions[t.ID] = &cp
	return nil
}

func (m *memStore) DeleteTransition(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.transitions[id]; !ok {
		return apperror.NewNotFound("Lifecycle transition", id.String())
	}
	delete(m.transitions, id)
	return nil
}

func (m *memStore) TransitionExists(_ context.Context, typeID uuid.UUID, from *uuid.UUID, to uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tr := range m.transitions {
		if tr.LifecycleTypeID != typeID || tr.ToStateID != to {
			continue
		}
		if (from == nil && tr.FromStateID == nil) || (from != nil && tr.FromStateID != nil && *from == *tr.FromStateID) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CITypeExists(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ciTypes[id], nil
}

func (m *memStore) UpsertMapping(_ context.Context, mp *Mapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mp.IsDefault {
		for _, other := range m.mappings {
			if other.CITypeID == mp.CITypeID {
				other.IsDefault = false
			}
		}
	}
	for _, existing := range m.mappings {
		if existing.CITypeID == mp.CITypeID && existing.LifecycleTypeID == mp.LifecycleTypeID {
			existing.IsDefault = mp.IsDefault
			*mp = *existing
			return nil
		}
	}
	cp := *mp
	m.mappings = append(m.mappings, &cp)
	return nil
}

func (m *memStore) DeleteMapping(_ context.Context, id uuid.UUID) (*Mapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, mp := range m.mappings {
		if mp.ID == id {
			m.mappings = append(m.mappings[:i], m.mappings[i+1:]...)
			return mp, nil
		}
	}
	return nil, apperror.NewNotFound("Lifecycle mapping", id.String())
}

func (m *memStore) ListForCIType(_ context.Context, ciTypeID uuid.UUID) ([]Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Summary{}
	for _, mp := range m.mappings {
		t := m.types[mp.LifecycleTypeID]
		if mp.CITypeID != ciTypeID || t.DeletedAt != nil || !t.IsActive {
			continue
		}
		s := m.summary(t)
		s.IsDefault = mp.IsDefault
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDefault != out[j].IsDefault {
			return out[i].IsDefault
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *memStore) CountTypes(ctx context.Context) (int, error) {
	out, err := m.ListTypes(ctx, true)
	return len(out), err
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
