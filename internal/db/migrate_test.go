package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openBare(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLatestMigrationVersion(t *testing.T) {
	t.Parallel()

	v, err := LatestMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
}

func TestMigrateUpDown(t *testing.T) {
	t.Parallel()

	db := openBare(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)

	require.NoError(t, db.MigrateUp())
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)

	// Already current.
	require.NoError(t, db.MigrateUp())

	require.NoError(t, db.MigrateDown())
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name='idx_reco_hits_channel'`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestMigrateTo(t *testing.T) {
	t.Parallel()

	db := openBare(t)
	require.NoError(t, db.MigrateTo(1))

	status, err := db.GetMigrationStatus()
	require.NoError(t, err)
	assert.Equal(t, uint(1), status.CurrentVersion)
	assert.Equal(t, uint(2), status.LatestVersion)
	assert.Equal(t, uint(1), status.Pending())
	assert.True(t, status.SchemaMigrationsExists)

	require.NoError(t, db.MigrateTo(2))
	status, err = db.GetMigrationStatus()
	require.NoError(t, err)
	assert.Equal(t, uint(0), status.Pending())
}

func TestMigrateForce(t *testing.T) {
	t.Parallel()

	db := openBare(t)
	require.NoError(t, db.MigrateUp())
	require.NoError(t, db.MigrateForce(1))

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}

func TestGetMigrationStatus_Fresh(t *testing.T) {
	t.Parallel()

	db := openBare(t)
	status, err := db.GetMigrationStatus()
	require.NoError(t, err)
	assert.Equal(t, uint(0), status.CurrentVersion)
	assert.Equal(t, uint(2), status.Pending())
}
