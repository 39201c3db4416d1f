package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traceline/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, Migrate(conn, dialect))
	require.NoError(t, Migrate(conn, dialect))

	v, err := Version(conn)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	for _, table := range []string{"projects", "needs", "requirements", "linkages", "comments", "events", "id_sequences", "use_case_exceptions",
		"component_relationships", "diagram_components", "diagram_edges"} {
		var n int
		require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n), table)
	}
	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM components WHERE type='Software'`).Scan(&n))
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM diagrams WHERE content IS NULL`).Scan(&n))
}

func TestBothDialectsShipMigrations(t *testing.T) {
	lite, err := loadMigrations(db.DriverSQLite)
	require.NoError(t, err)
	pg, err := loadMigrations(db.DriverPostgres)
	require.NoError(t, err)
	require.Len(t, pg, len(lite))
	for i := range lite {
		assert.Equal(t, lite[i].Version, pg[i].Version)
	}
}
