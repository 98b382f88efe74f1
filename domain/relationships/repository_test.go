package relationships

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/tahopetis/crate/internal/testutil"
	"github.com/tahopetis/crate/pkg/apperror"
	"github.com/tahopetis/crate/pkg/pagination"
)

type repoFixture struct {
	db     bun.IDB
	repo   *Repository
	user   uuid.UUID
	server uuid.UUID
	app    uuid.UUID
}

func newRepoFixture(t *testing.T) *repoFixture {
	t.Helper()
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db)
	return &repoFixture{
		db:     db,
		repo:   NewRepository(db, discardLogger()),
		user:   user,
		server: testutil.CreateCIType(t, db, user, "Server"),
		app:    testutil.CreateCIType(t, db, user, "Application"),
	}
}

func (f *repoFixture) relType(t *testing.T, name string, from, to *uuid.UUID) *RelationshipType {
	t.Helper()
	now := time.Now().UTC()
	rt := &RelationshipType{
		ID: uuid.New(), Name: name, FromCITypeID: from, ToCITypeID: to,
		AttributesSchema: json.RawMessage(`{}`), CreatedBy: f.user, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, f.repo.CreateType(context.Background(), rt))
	return rt
}

func (f *repoFixture) rel(typeID, from, to uuid.UUID) *Relationship {
	now := time.Now().UTC()
	return &Relationship{
		ID: uuid.New(), RelationshipTypeID: typeID, FromCIAssetID: from, ToCIAssetID: to,
		Attributes: json.RawMessage(`{}`), CreatedBy: f.user, CreatedAt: now, UpdatedAt: now,
	}
}

func TestRepository_TripleUniqueAmongLive(t *testing.T) {
	f := newRepoFixture(t)
	ctx := context.Background()
	rt := f.relType(t, "runs on", &f.app, &f.server)
	web := testutil.CreateCIAsset(t, f.db, f.user, f.app, "web")
	host := testutil.CreateCIAsset(t, f.db, f.user, f.server, "host")

	first := f.rel(rt.ID, web, host)
	require.NoError(t, f.repo.Create(ctx, first))

	exists, err := f.repo.TripleExists(ctx, rt.ID, web, host)
	require.NoError(t, err)
	assert.True(t, exists)

	err = f.repo.Create(ctx, f.rel(rt.ID, web, host))
	assert.True(t, errors.Is(err, apperror.ErrConflict), "got %v", err)

	// The reverse direction is a different triple.
	require.NoError(t, f.repo.Create(ctx, f.rel(rt.ID, host, web)))

	require.NoError(t, f.repo.SoftDelete(ctx, first.ID))
	assert.True(t, errors.Is(f.repo.SoftDelete(ctx, first.ID), apperror.ErrNotFound))
	require.NoError(t, f.repo.Create(ctx, f.rel(rt.ID, web, host)))
}

func TestRepository_JoinedViewSkipsDeletedEndpoints(t *testing.T) {
	f := newRepoFixture(t)
	ctx := context.Background()
	rt := f.relType(t, "runs on", &f.app, &f.server)
	web := testutil.CreateCIAsset(t, f.db, f.user, f.app, "web")
	api := testutil.CreateCIAsset(t, f.db, f.user, f.app, "api")
	host := testutil.CreateCIAsset(t, f.db, f.user, f.server, "host")

	kept := f.rel(rt.ID, web, host)
	require.NoError(t, f.repo.Create(ctx, kept))
	orphan := f.rel(rt.ID, api, host)
	require.NoError(t, f.repo.Create(ctx, orphan))

	got, err := f.repo.Get(ctx, kept.ID)
	require.NoError(t, err)
	assert.Equal(t, "runs on", got.RelationshipTypeName)
	assert.Equal(t, "web", got.FromAssetName)
	assert.Equal(t, "Application", got.FromCITypeName)
	assert.Equal(t, "host", got.ToAssetName)
	assert.Equal(t, "Server", got.ToCITypeName)
	assert.Equal(t, "Test User", got.CreatedByName)

	_, err = f.db.NewRaw(`UPDATE cmdb.ci_assets SET deleted_at = now() WHERE id = ?`, api).Exec(ctx)
	require.NoError(t, err)

	_, err = f.repo.Get(ctx, orphan.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	list, total, err := f.repo.List(ctx, Filter{CIAssetID: &host}, pagination.Page{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, kept.ID, list[0].ID)

	n, err := f.repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.repo.GetAssetRef(ctx, api)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestRepository_UpdateTypeClearsEndpoint(t *testing.T) {
	f := newRepoFixture(t)
	ctx := context.Background()
	rt := f.relType(t, "runs on", &f.app, &f.server)

	rt.FromCITypeID = nil
	require.NoError(t, f.repo.UpdateType(ctx, rt))

	got, err := f.repo.GetType(ctx, rt.ID)
	require.NoError(t, err)
	assert.Nil(t, got.FromCITypeID)
	assert.Nil(t, got.FromCITypeName)
	require.NotNil(t, got.ToCITypeName)
	assert.Equal(t, "Server", *got.ToCITypeName)
}

func TestRepository_TypeNameConflict(t *testing.T) {
	f := newRepoFixture(t)
	ctx := context.Background()
	old := f.relType(t, "depends on", nil, nil)

	dup := &RelationshipType{ID: uuid.New(), Name: "depends on", AttributesSchema: json.RawMessage(`{}`), CreatedBy: f.user}
	err := f.repo.CreateType(ctx, dup)
	assert.True(t, errors.Is(err, apperror.ErrConflict), "got %v", err)

	require.NoError(t, f.repo.SoftDeleteType(ctx, old.ID))
	require.NoError(t, f.repo.CreateType(ctx, dup))

	types, total, err := f.repo.ListTypes(ctx, TypeFilter{}, pagination.Page{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, types, 1)
	assert.Equal(t, dup.ID, types[0].ID)
}
