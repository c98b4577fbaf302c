package migration

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add sync index", "add_sync_index"},
		{"Add-Sync-Index", "add_sync_index"},
		{"ADD_SYNC_INDEX", "add_sync_index"},
		{"add__sync__index", "add_sync_index"},
		{"Webhooks 2", "webhooks_2"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"trailing_", "trailing"},
		{"_leading", "leading"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestCreateMigration(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "sql")
	now := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

	mf, err := createMigrationAt(dir, "add staging index", "Speeds up staging reviews", now)
	require.NoError(t, err)

	assert.Equal(t, "20261018093000", mf.Version)
	assert.Equal(t, filepath.Join(dir, "20261018093000_add_staging_index.up.sql"), mf.UpPath)
	assert.Equal(t, filepath.Join(dir, "20261018093000_add_staging_index.down.sql"), mf.DownPath)

	up, err := os.ReadFile(mf.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(up), "-- Migration: add staging index")
	assert.Contains(t, string(up), "-- Description: Speeds up staging reviews")

	down, err := os.ReadFile(mf.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(down), "(Rollback)")

	t.Run("refuses to overwrite", func(t *testing.T) {
		_, err := createMigrationAt(dir, "add staging index", "", now)
		assert.Error(t, err)
	})

	t.Run("rejects empty names", func(t *testing.T) {
		_, err := CreateMigration(dir, "!!!", "")
		assert.Error(t, err)
	})
}

func TestListMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"20261001090200_connectors.up.sql":   {Data: []byte("--")},
		"20261001090200_connectors.down.sql": {Data: []byte("--")},
		"20261001090000_sync.up.sql":         {Data: []byte("--")},
		"20261001090000_sync.down.sql":       {Data: []byte("--")},
		"README.md":                          {Data: []byte("docs")},
		"archive.up.sql/old.sql":             {Data: []byte("--")},
	}

	got, err := ListMigrations(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"20261001090000_sync", "20261001090200_connectors"}, got)
}

func TestListMigrations_MissingDirectory(t *testing.T) {
	got, err := ListMigrations(os.DirFS(filepath.Join(t.TempDir(), "missing")))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEmbeddedMigrations(t *testing.T) {
	names, err := ListMigrations(Embedded())
	require.NoError(t, err)
	require.NotEmpty(t, names)

	var schema strings.Builder
	for _, name := range names {
		up, err := fs.ReadFile(Embedded(), name+".up.sql")
		require.NoError(t, err)
		schema.Write(up)

		down, err := fs.ReadFile(Embedded(), name+".down.sql")
		require.NoError(t, err, "every migration needs a rollback")
		assert.Contains(t, string(down), "DROP TABLE")
	}

	for _, table := range []string{
		"sync_data", "sync_entity_configs", "sync_configurations",
		"api_connectors", "api_staging_records", "api_pull_logs", "api_export_logs",
		"webhooks", "webhook_logs", "webhook_retries",
		"documents", "master_parameters",
	} {
		assert.Contains(t, schema.String(), "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
}
