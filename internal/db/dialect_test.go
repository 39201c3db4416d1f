package db

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	q := "SELECT * FROM needs WHERE project_id=? AND title='a?b' AND status=?"
	assert.Equal(t, q, SQLite.Rebind(q))
	assert.Equal(t, "SELECT * FROM needs WHERE project_id=$1 AND title='a?b' AND status=$2", Postgres.Rebind(q))
}

func TestGreatest(t *testing.T) {
	assert.Equal(t, "MAX(a, b)", SQLite.Greatest("a", "b"))
	assert.Equal(t, "GREATEST(a, b)", Postgres.Greatest("a", "b"))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, IsUniqueViolation(nil))
	assert.True(t, IsUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: needs.aid (2067)")))
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
}

func TestOpenSQLiteWorkspace(t *testing.T) {
	dir := t.TempDir()
	conn, dialect, err := Open(Config{Workspace: dir})
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, DriverSQLite, dialect.Driver)
	require.NoError(t, conn.Ping())
	assert.FileExists(t, filepath.Join(dir, ".traceline", "traceline.db"))
}

func TestOpenUnknownDriver(t *testing.T) {
	_, _, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
}
