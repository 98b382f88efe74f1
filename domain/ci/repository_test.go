package ci

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
	db   bun.IDB
	repo *Repository
	user uuid.UUID
}

func newRepoFixture(t *testing.T) *repoFixture {
	t.Helper()
	db := testutil.NewDB(t)
	return &repoFixture{db: db, repo: NewRepository(db, discardLogger()), user: testutil.CreateUser(t, db)}
}

func (f *repoFixture) ciType(t *testing.T, name string) *CIType {
	t.Helper()
	now := time.Now().UTC()
	ct := &CIType{ID: uuid.New(), Name: name, Attributes: json.RawMessage(`{}`), CreatedBy: f.user, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, f.repo.CreateType(context.Background(), ct))
	return ct
}

func (f *repoFixture) asset(t *testing.T, typeID uuid.UUID, name string) *CIAsset {
	t.Helper()
	now := time.Now().UTC()
	a := &CIAsset{ID: uuid.New(), CITypeID: typeID, Name: name, Attributes: json.RawMessage(`{}`), CreatedBy: f.user, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, f.repo.CreateAsset(context.Background(), a))
	return a
}

func (f *repoFixture) relationship(t *testing.T, typeID, from, to uuid.UUID) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := f.db.NewRaw(`
INSERT INTO cmdb.relationships (id, relationship_type_id, from_ci_asset_id, to_ci_asset_id, created_by)
VALUES (?, ?, ?, ?, ?)`, id, typeID, from, to, f.user).Exec(context.Background())
	require.NoError(t, err)
	return id
}

func (f *repoFixture) relationshipType(t *testing.T, name string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := f.db.NewRaw(`
INSERT INTO cmdb.relationship_types (id, name, created_by) VALUES (?, ?, ?)`, id, name, f.user).Exec(context.Background())
	require.NoError(t, err)
	return id
}

func (f *repoFixture) liveRelationships(t *testing.T) int {
	t.Helper()
	var n int
	err := f.db.NewRaw(`SELECT count(*) FROM cmdb.relationships WHERE deleted_at IS NULL`).Scan(context.Background(), &n)
	require.NoError(t, err)
	return n
}

func TestRepository_TypeNameConflictOnlyAmongLive(t *testing.T) {
	f := newRepoFixture(t)
	ctx := context.Background()
	server := f.ciType(t, "Server")

	dup := &CIType{ID: uuid.New(), Name: "Server", Attributes: json.RawMessage(`{}`), CreatedBy: f.user}
	err := f.repo.CreateType(ctx, dup)
	assert.True(t, errors.Is(err, apperror.ErrConflict), "got %v", err)

	other := f.ciType(t, "Switch")
	other.Name = "Server"
	err = f.repo.UpdateType(ctx, other)
	assert.True(t, errors.Is(err, apperror.ErrConflict), "got %v", err)

	require.NoError(t, f.repo.SoftDeleteType(ctx, server.ID))
	require.NoError(t, f.repo.CreateType(ctx, dup))

	exists, err := f.repo.TypeNameExists(ctx, "Server", &dup.ID)
	require.NoError(t, err)
	assert.False(t, exists, "the deleted type must not count")
}

func TestRepository_LiveFilter(t *testing.T) {
	f := newRepoFixture(t)
	ctx := context.Background()
	server := f.ciType(t, "Server")
	gone := f.ciType(t, "Retired")
	web := f.asset(t, server.ID, "web-01")
	db := f.asset(t, server.ID, "db-01")

	require.NoError(t, f.repo.SoftDeleteAsset(ctx, db.ID, f.user))
	require.NoError(t, f.repo.SoftDeleteType(ctx, gone.ID))

	_, err := f.repo.GetAsset(ctx, db.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
	_, err = f.repo.GetType(ctx, gone.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
	assert.True(t, errors.Is(f.repo.SoftDeleteAsset(ctx, db.ID, f.user), apperror.ErrNotFound))

	got, err := f.repo.GetAsset(ctx, web.ID)
	require.NoError(t, err)
	assert.Equal(t, "Server", got.CITypeName)

	assets, total, err := f.repo.ListAssets(ctx, AssetFilter{}, pagination.Page{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, assets, 1)
	assert.Equal(t, web.ID, assets[0].ID)

	types, total, err := f.repo.ListTypes(ctx, pagination.Page{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, types, 1)

	n, err := f.repo.CountLiveAssets(ctx, server.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	found, err := f.repo.SearchAssets(ctx, "server", 10)
	require.NoError(t, err)
	require.Len(t, found, 1, "matches by type name, skipping deleted assets")
	assert.Equal(t, web.ID, found[0].ID)

	perType, err := f.repo.AssetsPerType(ctx, 10)
	require.NoError(t, err)
	require.Len(t, perType, 1)
	assert.Equal(t, 1, perType[0].Count)
}

func TestRepository_SoftDeleteAssetCascadesRelationships(t *testing.T) {
	f := newRepoFixture(t)
	ctx := context.Background()
	server := f.ciType(t, "Server")
	app := f.asset(t, server.ID, "app")
	host := f.asset(t, server.ID, "host")
	peer := f.asset(t, server.ID, "peer")
	runsOn := f.relationshipType(t, "runs on")

	f.relationship(t, runsOn, app.ID, host.ID)
	f.relationship(t, runsOn, peer.ID, app.ID)
	untouched := f.relationship(t, runsOn, peer.ID, host.ID)
	require.Equal(t, 3, f.liveRelationships(t))

	require.NoError(t, f.repo.SoftDeleteAsset(ctx, app.ID, f.user))
	assert.Equal(t, 1, f.liveRelationships(t))

	var liveID uuid.UUID
	err := f.db.NewRaw(`SELECT id FROM cmdb.relationships WHERE deleted_at IS NULL`).Scan(ctx, &liveID)
	require.NoError(t, err)
	assert.Equal(t, untouched, liveID)

	var deletedBy uuid.UUID
	err = f.db.NewRaw(`SELECT deleted_by FROM cmdb.ci_assets WHERE id = ?`, app.ID).Scan(ctx, &deletedBy)
	require.NoError(t, err)
	assert.Equal(t, f.user, deletedBy)
}
