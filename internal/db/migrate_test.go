package db

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestAutoMigrate_CreatesNewTables(t *testing.T) {
	conn := openMemDB(t)
	require.NoError(t, AutoMigrate(conn, SchemaSQL, ""))

	var name string
	err := conn.QueryRow(`SELECT name FROM sqlite_schema WHERE type='table' AND name='tasks'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "tasks", name)

	var version int
	require.NoError(t, conn.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, SchemaVersion, version)
}

func TestAutoMigrate_RecreatesChangedTablePreservingData(t *testing.T) {
	conn := openMemDB(t)
	_, err := conn.Exec(`CREATE TABLE projects (id TEXT PRIMARY KEY, name TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO projects (id, name) VALUES ('p1', 'demo')`)
	require.NoError(t, err)

	require.NoError(t, AutoMigrate(conn, SchemaSQL, ""))

	var id, name string
	err = conn.QueryRow(`SELECT id, name FROM projects WHERE id = 'p1'`).Scan(&id, &name)
	require.NoError(t, err)
	assert.Equal(t, "p1", id)
	assert.Equal(t, "demo", name)

	var description string
	err = conn.QueryRow(`SELECT description FROM projects WHERE id = 'p1'`).Scan(&description)
	require.NoError(t, err)
	assert.Equal(t, "", description)
}

func TestAutoMigrate_IdempotentOnSecondRun(t *testing.T) {
	conn := openMemDB(t)
	require.NoError(t, AutoMigrate(conn, SchemaSQL, ""))
	require.NoError(t, AutoMigrate(conn, SchemaSQL, ""))

	var count int
	require.NoError(t, conn.QueryRow(`SELECT count(*) FROM sqlite_schema WHERE type='table' AND name='tasks'`).Scan(&count))
	assert.Equal(t, 1, count)
}
