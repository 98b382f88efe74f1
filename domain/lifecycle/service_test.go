package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tahopetis/crate/domain/audit"
	"github.com/tahopetis/crate/pkg/apperror"
)

type fixture struct {
	svc   *Service
	store *memStore
	rec   *memRecorder
	actor audit.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: newMemStore(), rec: &memRecorder{}, actor: audit.Actor{UserID: uuid.New()}}
	f.svc = NewService(f.store, f.rec, discardLogger())
	return f
}

func ptr[T any](v T) *T { return &v }

func (f *fixture) lifecycle(t *testing.T, name string) *Type {
	t.Helper()
	lt, err := f.svc.CreateType(context.Background(), CreateTypeRequest{Name: name}, f.actor)
	require.NoError(t, err)
	return lt
}

func (f *fixture) state(t *testing.T, typeID uuid.UUID, name string, order int, initial bool) *State {
	t.Helper()
	st, err := f.svc.CreateState(context.Background(), typeID, CreateStateRequest{
		Name: name, OrderIndex: ptr(order), IsInitialState: initial,
	}, f.actor)
	require.NoError(t, err)
	return st
}

func assertKind(t *testing.T, err error, kind *apperror.Error) {
	t.Helper()
	assert.True(t, errors.Is(err, kind), "want %s, got %v", kind.Code, err)
}

func TestCreateType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lt := f.lifecycle(t, "Hardware")
	assert.Equal(t, DefaultColor, lt.DefaultColor)
	assert.True(t, lt.IsActive)

	_, err := f.svc.CreateType(ctx, CreateTypeRequest{Name: "Hardware"}, f.actor)
	assertKind(t, err, apperror.ErrValidation)

	_, err = f.svc.CreateType(ctx, CreateTypeRequest{Name: "Bad", DefaultColor: ptr("blue")}, f.actor)
	assertKind(t, err, apperror.ErrValidation)

	inactive, err := f.svc.CreateType(ctx, CreateTypeRequest{Name: "Legacy", IsActive: ptr(false), DefaultColor: ptr("#112233")}, f.actor)
	require.NoError(t, err)
	assert.False(t, inactive.IsActive)
	assert.Equal(t, "#112233", inactive.DefaultColor)

	active, err := f.svc.ListTypes(ctx, false)
	require.NoError(t, err)
	assert.Len(t, active, 1)
	all, err := f.svc.ListTypes(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Hardware", all[0].Name)
}

func TestUpdateType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lt := f.lifecycle(t, "Hardware")
	f.lifecycle(t, "Software")

	_, err := f.svc.UpdateType(ctx, uuid.New(), UpdateTypeRequest{Name: ptr("x")}, f.actor)
	assertKind(t, err, apperror.ErrNotFound)

	_, err = f.svc.UpdateType(ctx, lt.ID, UpdateTypeRequest{}, f.actor)
	assertKind(t, err, apperror.ErrValidation)

	_, err = f.svc.UpdateType(ctx, lt.ID, UpdateTypeRequest{Name: ptr("Software")}, f.actor)
	assertKind(t, err, apperror.ErrValidation)

	got, err := f.svc.UpdateType(ctx, lt.ID, UpdateTypeRequest{Name: ptr("Hardware"), IsActive: ptr(false)}, f.actor)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestStates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lt := f.lifecycle(t, "Hardware")
	ordered := f.state(t, lt.ID, "Ordered", 0, true)
	f.state(t, lt.ID, "In Service", 1, false)

	t.Run("unknown type", func(t *testing.T) {
		_, err := f.svc.CreateState(ctx, uuid.New(), CreateStateRequest{Name: "x", OrderIndex: ptr(9)}, f.actor)
		assertKind(t, err, apperror.ErrNotFound)
	})
	t.Run("order index required", func(t *testing.T) {
		_, err := f.svc.CreateState(ctx, lt.ID, CreateStateRequest{Name: "x"}, f.actor)
		assertKind(t, err, apperror.ErrValidation)
	})
	t.Run("duplicate name", func(t *testing.T) {
		_, err := f.svc.CreateState(ctx, lt.ID, CreateStateRequest{Name: "Ordered", OrderIndex: ptr(5)}, f.actor)
		assertKind(t, err, apperror.ErrValidation)
	})
	t.Run("duplicate order", func(t *testing.T) {
		_, err := f.svc.CreateState(ctx, lt.ID, CreateStateRequest{Name: "Retired", OrderIndex: ptr(1)}, f.actor)
		assertKind(t, err, apperror.ErrValidation)
	})
	t.Run("second initial state", func(t *testing.T) {
		_, err := f.svc.CreateState(ctx, lt.ID, CreateStateRequest{Name: "Retired", OrderIndex: ptr(2), IsInitialState: true}, f.actor)
		assertKind(t, err, apperror.ErrValidation)
	})
	t.Run("update keeps own name and order", func(t *testing.T) {
		got, err := f.svc.UpdateState(ctx, ordered.ID, UpdateStateRequest{Name: ptr("Ordered"), OrderIndex: ptr(0), IsInitialState: ptr(true), Color: ptr("#00ff00")}, f.actor)
		require.NoError(t, err)
		assert.Equal(t, "#00ff00", got.Color)
	})
	t.Run("update onto another state's order", func(t *testing.T) {
		_, err := f.svc.UpdateState(ctx, ordered.ID, UpdateStateRequest{OrderIndex: ptr(1)}, f.actor)
		assertKind(t, err, apperror.ErrValidation)
	})
	t.Run("same name in another lifecycle", func(t *testing.T) {
		other := f.lifecycle(t, "Software")
		f.state(t, other.ID, "Ordered", 0, true)
	})

	full, err := f.svc.GetType(ctx, lt.ID)
	require.NoError(t, err)
	require.Len(t, full.States, 2)
	assert.Equal(t, "Ordered", full.States[0].Name)
	assert.Equal(t, "In Service", full.States[1].Name)
}

func TestTransitionsAndStateDeletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lt := f.lifecycle(t, "Hardware")
	ordered := f.state(t, lt.ID, "Ordered", 0, true)
	live := f.state(t, lt.ID, "Live", 1, false)
	retired := f.state(t, lt.ID, "Retired", 2, false)
	foreign := f.state(t, f.lifecycle(t, "Other").ID, "Elsewhere", 0, false)

	tr, err := f.svc.CreateTransition(ctx, lt.ID, CreateTransitionRequest{
		FromStateID: &ordered.ID, ToStateID: live.ID, TransitionName: "Deploy",
	}, f.actor)
	require.NoError(t, err)
	assert.Equal(t, "Live", tr.ToStateName)
	require.NotNil(t, tr.FromStateName)
	assert.Equal(t, "Ordered", *tr.FromStateName)

	_, err = f.svc.CreateTransition(ctx, lt.ID, CreateTransitionRequest{ToStateID: ordered.ID, TransitionName: "Create"}, f.actor)
	require.NoError(t, err)

	_, err = f.svc.CreateTransition(ctx, lt.ID, CreateTransitionRequest{FromStateID: &ordered.ID, ToStateID: live.ID, TransitionName: "Again"}, f.actor)
	assertKind(t, err, apperror.ErrValidation)

	_, err = f.svc.CreateTransition(ctx, lt.ID, CreateTransitionRequest{ToStateID: foreign.ID, TransitionName: "Cross"}, f.actor)
	assertKind(t, err, apperror.ErrValidation)

	_, err = f.svc.CreateTransition(ctx, uuid.New(), CreateTransitionRequest{ToStateID: live.ID, TransitionName: "x"}, f.actor)
	assertKind(t, err, apperror.ErrNotFound)

	err = f.svc.DeleteState(ctx, live.ID, f.actor)
	assertKind(t, err, apperror.ErrValidation)

	require.NoError(t, f.svc.DeleteState(ctx, retired.ID, f.actor))
	_, err = f.svc.GetState(ctx, retired.ID)
	assertKind(t, err, apperror.ErrNotFound)

	require.NoError(t, f.svc.DeleteTransition(ctx, tr.ID, f.actor))
	assertKind(t, f.svc.DeleteTransition(ctx, tr.ID, f.actor), apperror.ErrNotFound)
	require.NoError(t, f.svc.DeleteState(ctx, live.ID, f.actor))
}

func TestMappings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	server := uuid.New()
	f.store.ciTypes[server] = true
	hw := f.lifecycle(t, "Hardware")
	fin := f.lifecycle(t, "Finance")
	f.state(t, hw.ID, "Ordered", 0, true)

	_, err := f.svc.CreateMapping(ctx, CreateMappingRequest{CITypeID: uuid.New(), LifecycleTypeID: hw.ID}, f.actor)
	assertKind(t, err, apperror.ErrNotFound)
	_, err = f.svc.CreateMapping(ctx, CreateMappingRequest{CITypeID: server, LifecycleTypeID: uuid.New()}, f.actor)
	assertKind(t, err, apperror.ErrNotFound)

	_, err = f.svc.CreateMapping(ctx, CreateMappingRequest{CITypeID: server, LifecycleTypeID: hw.ID, IsDefault: true}, f.actor)
	require.NoError(t, err)
	_, err = f.svc.CreateMapping(ctx, CreateMappingRequest{CITypeID: server, LifecycleTypeID: fin.ID}, f.actor)
	require.NoError(t, err)

	list, err := f.svc.ListForCIType(ctx, server)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Hardware", list[0].Name)
	assert.True(t, list[0].IsDefault)
	assert.Equal(t, 1, list[0].StateCount)

	// Making Finance the default clears Hardware's flag.
	_, err = f.svc.CreateMapping(ctx, CreateMappingRequest{CITypeID: server, LifecycleTypeID: fin.ID, IsDefault: true}, f.actor)
	require.NoError(t, err)
	list, err = f.svc.ListForCIType(ctx, server)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Finance", list[0].Name)
	assert.True(t, list[0].IsDefault)
	assert.False(t, list[1].IsDefault)

	defaults := 0
	for _, m := range f.store.mappings {
		if m.IsDefault {
			defaults++
		}
	}
	assert.Equal(t, 1, defaults)

	_, err = f.svc.ListForCIType(ctx, uuid.New())
	assertKind(t, err, apperror.ErrNotFound)

	err = f.svc.DeleteType(ctx, hw.ID, f.actor)
	assertKind(t, err, apperror.ErrConflict)
}

func TestDeleteType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lt := f.lifecycle(t, "Temp")

	require.NoError(t, f.svc.DeleteType(ctx, lt.ID, f.actor))
	_, err := f.svc.GetType(ctx, lt.ID)
	assertKind(t, err, apperror.ErrNotFound)
	assertKind(t, f.svc.DeleteType(ctx, lt.ID, f.actor), apperror.ErrNotFound)

	// The name is free again once the type is deleted.
	f.lifecycle(t, "Temp")
	n, err := f.svc.CountTypes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDeleteMapping_UnblocksTypeDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	server := uuid.New()
	f.store.ciTypes[server] = true
	hw := f.lifecycle(t, "Hardware")

	m, err := f.svc.CreateMapping(ctx, CreateMappingRequest{CITypeID: server, LifecycleTypeID: hw.ID, IsDefault: true}, f.actor)
	require.NoError(t, err)
	assertKind(t, f.svc.DeleteType(ctx, hw.ID, f.actor), apperror.ErrConflict)

	require.NoError(t, f.svc.DeleteMapping(ctx, m.ID, f.actor))
	assertKind(t, f.svc.DeleteMapping(ctx, m.ID, f.actor), apperror.ErrNotFound)

	list, err := f.svc.ListForCIType(ctx, server)
	require.NoError(t, err)
	assert.Empty(t, list)

	last := f.rec.entries[len(f.rec.entries)-1]
	assert.Equal(t, EntityMapping, last.EntityType)
	assert.Equal(t, m.ID, last.EntityID)

	require.NoError(t, f.svc.DeleteType(ctx, hw.ID, f.actor))
}
