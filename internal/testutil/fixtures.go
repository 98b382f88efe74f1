package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

// CreateUser inserts an active user and returns its id. Rows that carry
// created_by need one.
func CreateUser(t testing.TB, db bun.IDB) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.NewRaw(`
INSERT INTO cmdb.users (id, email, password_hash, first_name, last_name)
VALUES (?, ?, 'x', 'Test', 'User')`, id, id.String()+"@example.test").Exec(context.Background())
	require.NoError(t, err, "insert user")
	return id
}

// CreateCIType inserts a live CI type with no attribute schema.
func CreateCIType(t testing.TB, db bun.IDB, createdBy uuid.UUID, name string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.NewRaw(`
INSERT INTO cmdb.ci_types (id, name, attributes, created_by)
VALUES (?, ?, '{}'::jsonb, ?)`, id, name, createdBy).Exec(context.Background())
	require.NoError(t, err, "insert ci type")
	return id
}

// CreateCIAsset inserts a live asset of the given type.
func CreateCIAsset(t testing.TB, db bun.IDB, createdBy, ciTypeID uuid.UUID, name string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.NewRaw(`
INSERT INTO cmdb.ci_assets (id, ci_type_id, name, attributes, created_by)
VALUES (?, ?, ?, '{}'::jsonb, ?)`, id, ciTypeID, name, createdBy).Exec(context.Background())
	require.NoError(t, err, "insert ci asset")
	return id
}
