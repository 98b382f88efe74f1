package ci

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tahopetis/crate/domain/audit"
	"github.com/tahopetis/crate/domain/graph"
	"github.com/tahopetis/crate/pkg/apperror"
	"github.com/tahopetis/crate/pkg/pagination"
	"github.com/tahopetis/crate/pkg/schema"
)

type fixture struct {
	svc   *Service
	store *memStore
	proj  *recProjection
	queue *countingQueue
	rec   *memRecorder
	actor audit.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: newMemStore(),
		proj:  &recProjection{},
		queue: &countingQueue{},
		rec:   &memRecorder{},
		actor: audit.Actor{UserID: uuid.New()},
	}
	mirror := graph.NewMirror(f.proj, f.queue, discardLogger())
	f.svc = NewService(f.store, schema.NewValidator(), mirror, f.rec, discardLogger())
	return f
}

const serverSchema = `{"schema":{"type":"object","properties":{"cpu":{"type":"integer","minimum":1},"hostname":{"type":"string"}},"required":["hostname"]}}`

func (f *fixture) createServerType(t *testing.T) *CIType {
	t.Helper()
	ct, err := f.svc.CreateType(context.Background(), CreateTypeRequest{
		Name:       "Server",
		Attributes: json.RawMessage(serverSchema),
	}, f.actor)
	require.NoError(t, err)
	return ct
}

func TestCreateType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ct, err := f.svc.CreateType(ctx, CreateTypeRequest{Name: "  Database "}, f.actor)
	require.NoError(t, err)
	assert.Equal(t, "Database", ct.Name)
	assert.JSONEq(t, `{}`, string(ct.Attributes))
	assert.Equal(t, f.actor.UserID, ct.CreatedBy)

	_, err = f.svc.CreateType(ctx, CreateTypeRequest{Name: "Database"}, f.actor)
	assert.True(t, errors.Is(err, apperror.ErrConflict))

	assert.Equal(t, []string{"ci_type:create"}, f.rec.actions())
}

func TestCreateType_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	long := make([]byte, 256)
	for i := range long {
		long[i] = 'a'
	}

	tests := []struct {
		name string
		req  CreateTypeRequest
	}{
		{"empty name", CreateTypeRequest{}},
		{"blank name", CreateTypeRequest{Name: "   "}},
		{"name too long", CreateTypeRequest{Name: string(long)}},
		{"attributes not an object", CreateTypeRequest{Name: "X", Attributes: json.RawMessage(`[1]`)}},
		{"invalid schema", CreateTypeRequest{Name: "X", Attributes: json.RawMessage(`{"schema":{"type":12}}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateType(ctx, tt.req, f.actor)
			assert.True(t, errors.Is(err, apperror.ErrValidation), "got %v", err)
		})
	}
}

func TestUpdateType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.svc.CreateType(ctx, CreateTypeRequest{Name: "A"}, f.actor)
	require.NoError(t, err)
	_, err = f.svc.CreateType(ctx, CreateTypeRequest{Name: "B"}, f.actor)
	require.NoError(t, err)

	same := "A"
	_, err = f.svc.UpdateType(ctx, a.ID, UpdateTypeRequest{Name: &same}, f.actor)
	require.NoError(t, err, "keeping its own name is not a conflict")

	taken := "B"
	_, err = f.svc.UpdateType(ctx, a.ID, UpdateTypeRequest{Name: &taken}, f.actor)
	assert.True(t, errors.Is(err, apperror.ErrConflict))

	desc := "application tier"
	got, err := f.svc.UpdateType(ctx, a.ID, UpdateTypeRequest{Description: &desc}, f.actor)
	require.NoError(t, err)
	require.NotNil(t, got.Description)
	assert.Equal(t, desc, *got.Description)

	_, err = f.svc.UpdateType(ctx, a.ID, UpdateTypeRequest{}, f.actor)
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	_, err = f.svc.UpdateType(ctx, uuid.New(), UpdateTypeRequest{Description: &desc}, f.actor)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestDeleteType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ct := f.createServerType(t)

	asset, err := f.svc.CreateAsset(ctx, CreateAssetRequest{
		CITypeID: ct.ID, Name: "web-1", Attributes: json.RawMessage(`{"hostname":"web-1"}`),
	}, f.actor)
	require.NoError(t, err)

	err = f.svc.DeleteType(ctx, ct.ID, f.actor)
	assert.True(t, errors.Is(err, apperror.ErrConflict))

	require.NoError(t, f.svc.DeleteAsset(ctx, asset.ID, f.actor))
	require.NoError(t, f.svc.DeleteType(ctx, ct.ID, f.actor))

	_, err = f.svc.GetType(ctx, ct.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
	err = f.svc.DeleteType(ctx, ct.ID, f.actor)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	// the name is free again once the type is soft-deleted
	_, err = f.svc.CreateType(ctx, CreateTypeRequest{Name: "Server"}, f.actor)
	assert.NoError(t, err)
}

func TestCreateAsset_SchemaValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ct := f.createServerType(t)

	_, err := f.svc.CreateAsset(ctx, CreateAssetRequest{
		CITypeID: ct.ID, Name: "web-1", Attributes: json.RawMessage(`{"cpu":0}`),
	}, f.actor)
	require.Error(t, err)
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "validation_error", appErr.Code)
	assert.NotEmpty(t, appErr.Details["errors"])

	a, err := f.svc.CreateAsset(ctx, CreateAssetRequest{
		CITypeID: ct.ID, Name: "web-1", Attributes: json.RawMessage(`{"hostname":"web-1","cpu":4}`),
	}, f.actor)
	require.NoError(t, err)
	assert.Equal(t, "Server", a.CITypeName)

	require.Len(t, f.proj.upserts, 1)
	assert.Equal(t, a.ID, f.proj.upserts[0].ID)
	assert.Equal(t, "Server", f.proj.upserts[0].CIType)
}

func TestCreateAsset_Draft07Schema(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ct, err := f.svc.CreateType(ctx, CreateTypeRequest{
		Name:       "Host",
		Attributes: json.RawMessage(`{"schema":{"$schema":"http://json-schema.org/draft-07/schema#","type":"object","properties":{"cpu":{"type":"number"}},"required":["cpu"]}}`),
	}, f.actor)
	require.NoError(t, err)

	_, err = f.svc.CreateAsset(ctx, CreateAssetRequest{
		CITypeID: ct.ID, Name: "h-1", Attributes: json.RawMessage(`{"cpu":4}`),
	}, f.actor)
	require.NoError(t, err)

	_, err = f.svc.CreateAsset(ctx, CreateAssetRequest{
		CITypeID: ct.ID, Name: "h-2", Attributes: json.RawMessage(`{"cpu":"four"}`),
	}, f.actor)
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestCreateType_UnsupportedSchemaDraft(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateType(context.Background(), CreateTypeRequest{
		Name:       "Legacy",
		Attributes: json.RawMessage(`{"schema":{"$schema":"http://json-schema.org/draft-03/schema#","type":"object"}}`),
	}, f.actor)
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestCreateAsset_TypeMissing(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateAsset(context.Background(), CreateAssetRequest{CITypeID: uuid.New(), Name: "x"}, f.actor)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	_, err = f.svc.CreateAsset(context.Background(), CreateAssetRequest{Name: "x"}, f.actor)
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestCreateAsset_MirrorFailureStillSucceeds(t *testing.T) {
	f := newFixture(t)
	ct, err := f.svc.CreateType(context.Background(), CreateTypeRequest{Name: "Switch"}, f.actor)
	require.NoError(t, err)
	f.proj.err = errors.New("neo4j down")

	a, err := f.svc.CreateAsset(context.Background(), CreateAssetRequest{CITypeID: ct.ID, Name: "sw-1"}, f.actor)
	require.NoError(t, err)
	assert.NotNil(t, a)
	assert.Equal(t, 1, f.queue.n)
}

func TestUpdateAsset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ct := f.createServerType(t)
	a, err := f.svc.CreateAsset(ctx, CreateAssetRequest{
		CITypeID: ct.ID, Name: "web-1", Attributes: json.RawMessage(`{"hostname":"web-1"}`),
	}, f.actor)
	require.NoError(t, err)

	_, err = f.svc.UpdateAsset(ctx, a.ID, UpdateAssetRequest{}, f.actor)
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	_, err = f.svc.UpdateAsset(ctx, a.ID, UpdateAssetRequest{Attributes: json.RawMessage(`{"cpu":2}`)}, f.actor)
	assert.True(t, errors.Is(err, apperror.ErrValidation), "missing required hostname")

	name := "web-01"
	editor := audit.Actor{UserID: uuid.New()}
	got, err := f.svc.UpdateAsset(ctx, a.ID, UpdateAssetRequest{Name: &name}, editor)
	require.NoError(t, err)
	assert.Equal(t, "web-01", got.Name)
	require.NotNil(t, got.UpdatedBy)
	assert.Equal(t, editor.UserID, *got.UpdatedBy)
	assert.Len(t, f.proj.upserts, 2)

	_, err = f.svc.UpdateAsset(ctx, uuid.New(), UpdateAssetRequest{Name: &name}, f.actor)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestDeleteAsset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ct, err := f.svc.CreateType(ctx, CreateTypeRequest{Name: "Router"}, f.actor)
	require.NoError(t, err)
	a, err := f.svc.CreateAsset(ctx, CreateAssetRequest{CITypeID: ct.ID, Name: "r-1"}, f.actor)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteAsset(ctx, a.ID, f.actor))
	assert.Equal(t, []uuid.UUID{a.ID}, f.proj.deletes)
	assert.Equal(t, []uuid.UUID{a.ID}, f.store.relDels)
	assert.Equal(t, f.actor.UserID, *f.store.assets[a.ID].DeletedBy)

	_, err = f.svc.GetAsset(ctx, a.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
	assert.True(t, errors.Is(f.svc.DeleteAsset(ctx, a.ID, f.actor), apperror.ErrNotFound))
}

func TestListTypes_NewestFirstExcludingDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		f.svc.now = func() time.Time { return at }
		ct, err := f.svc.CreateType(ctx, CreateTypeRequest{Name: fmt.Sprintf("T%d", i)}, f.actor)
		require.NoError(t, err)
		ids = append(ids, ct.ID)
	}
	require.NoError(t, f.svc.DeleteType(ctx, ids[1], f.actor))

	res, err := f.svc.ListTypes(ctx, pagination.Page{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "T2", res.Items[0].Name)
	assert.Equal(t, "T0", res.Items[1].Name)
}

func TestListAssets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ct, err := f.svc.CreateType(ctx, CreateTypeRequest{Name: "VM"}, f.actor)
	require.NoError(t, err)
	for _, n := range []string{"vm-a", "vm-b", "db-c"} {
		_, err := f.svc.CreateAsset(ctx, CreateAssetRequest{CITypeID: ct.ID, Name: n}, f.actor)
		require.NoError(t, err)
	}

	res, err := f.svc.ListAssets(ctx, AssetFilter{Search: " vm "}, pagination.Page{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)

	after := time.Now()
	before := after.Add(-time.Hour)
	_, err = f.svc.ListAssets(ctx, AssetFilter{CreatedAfter: &after, CreatedBefore: &before}, pagination.Page{Limit: 10})
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestSearchAssets(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SearchAssets(context.Background(), "  ", 0)
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	_, err = f.svc.SearchAssets(context.Background(), "web", 500)
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	items, err := f.svc.SearchAssets(context.Background(), "web", 0)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestNormalizeAttributes(t *testing.T) {
	got, err := normalizeAttributes(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(got))

	got, err = normalizeAttributes(json.RawMessage(" null "))
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(got))

	_, err = normalizeAttributes(json.RawMessage(`"str"`))
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}
