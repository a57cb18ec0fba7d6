package db

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrationURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@localhost:5432/studio?sslmode=disable",
		MigrationURL("postgres://u:p@localhost:5432/studio?sslmode=disable"))
	require.Equal(t, "pgx5://localhost/studio", MigrationURL("postgresql://localhost/studio"))
	require.Equal(t, "pgx5://localhost/studio", MigrationURL("pgx5://localhost/studio"))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.NotEmpty(t, ups)
	require.Equal(t, ups, downs)
	require.True(t, ups["0001_pricing_packages"])
	require.True(t, ups["0002_enrollment_orders"])
}
