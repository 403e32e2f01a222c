package database

import (
	"errors"
	"io"
	"io/fs"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Every embedded migration must have an up and a down file so the schema can
// be rolled back one version at a time.
func TestEmbeddedMigrations_Paired(t *testing.T) {
	src, err := iofs.New(migrationFiles, "migrations")
	require.NoError(t, err)
	defer func() { _ = src.Close() }()

	version, err := src.First()
	require.NoError(t, err)

	var versions []uint
	for {
		versions = append(versions, version)

		up, _, err := src.ReadUp(version)
		require.NoError(t, err, "version %d has no up migration", version)
		body, err := io.ReadAll(up)
		_ = up.Close()
		require.NoError(t, err)
		assert.NotEmpty(t, strings.TrimSpace(string(body)), "version %d up migration is empty", version)

		down, _, err := src.ReadDown(version)
		require.NoError(t, err, "version %d has no down migration", version)
		_ = down.Close()

		next, err := src.Next(version)
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		require.NoError(t, err)
		version = next
	}

	assert.Equal(t, []uint{1, 2}, versions)
}

func TestEmbeddedMigrations_TablePrefix(t *testing.T) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	require.NoError(t, err)

	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".up.sql") {
			continue
		}
		body, err := fs.ReadFile(migrationFiles, "migrations/"+e.Name())
		require.NoError(t, err)
		assert.Contains(t, string(body), "nlq_", "%s should only create nlq_ tables", e.Name())
	}
}
