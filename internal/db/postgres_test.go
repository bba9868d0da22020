package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFiles_SortedSQLOnly(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_wallets.sql", "0001_users.sql", "README.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "0003_dir.sql"), 0o755))

	names, err := migrationFiles(dir)

	require.NoError(t, err)
	assert.Equal(t, []string{"0001_users.sql", "0002_wallets.sql"}, names)
}

func TestMigrationFiles_MissingDir(t *testing.T) {
	_, err := migrationFiles(filepath.Join(t.TempDir(), "nope"))

	assert.ErrorContains(t, err, "каталог миграций")
}

func TestMigrationFiles_RepositoryMigrations(t *testing.T) {
	names, err := migrationFiles("../../migrations")

	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "0001_users.sql", names[0])
}
