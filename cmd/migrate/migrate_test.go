package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractMigrationID(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"20260101120000_create_runs.sql", "20260101120000_create_runs"},
		{"create_patterns.sql", "create_patterns"},
		{"noext", "noext"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, extractMigrationID(tt.filename))
	}
}

func TestMigratorCreate(t *testing.T) {
	dir := t.TempDir()
	m := &Migrator{dir: dir}

	err := m.Create("add_pattern_tables")
	require.NoError(t, err)

	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	base := filepath.Base(files[0])
	assert.True(t, strings.HasSuffix(base, "_add_pattern_tables.sql"), "got %s", base)

	content, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(content), "-- Migration: add_pattern_tables")
}

func TestMigratorCreateMakesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "migrations")
	m := &Migrator{dir: dir}

	require.NoError(t, m.Create("init"))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
