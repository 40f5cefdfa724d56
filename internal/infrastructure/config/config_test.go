package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopilot-home/pattern-engine/internal/domain/errors"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 0.90, cfg.Analysis.MinConfidence)
	assert.Equal(t, 5, cfg.Analysis.MinOccurrences)
	assert.Equal(t, 5, cfg.Analysis.MinEventsPerEntity)
	assert.Equal(t, 5*time.Minute, cfg.Analysis.MaxSequenceGap)
	assert.Equal(t, 60*time.Second, cfg.Analysis.ConcurrentWindow)
	assert.Equal(t, 30, cfg.Analysis.WindowDays)
	assert.Equal(t, "jsonl", cfg.Source.Mode)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
analysis:
  min_confidence: 0.85
  window_days: 14
timezone: Europe/Berlin
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.85, cfg.Analysis.MinConfidence)
	assert.Equal(t, 14, cfg.Analysis.WindowDays)
	assert.Equal(t, "Europe/Berlin", cfg.Timezone)
	// Untouched keys keep their defaults
	assert.Equal(t, 5, cfg.Analysis.MinOccurrences)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("analysis:\n  window_days: 14\n"), 0o644))

	t.Setenv("AUTOPILOT_ANALYSIS__WINDOW_DAYS", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Analysis.WindowDays)
}

func TestValidate_RejectsOutOfRangeConfidence(t *testing.T) {
	cfg := Defaults()
	cfg.Analysis.MinConfidence = 1.5

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestValidate_RejectsUnknownTimezone(t *testing.T) {
	cfg := Defaults()
	cfg.Timezone = "Mars/Olympus_Mons"

	assert.Error(t, cfg.Validate())
}

func TestValidate_DatabaseModeNeedsURL(t *testing.T) {
	cfg := Defaults()
	cfg.Source.Mode = "database"

	require.Error(t, cfg.Validate())

	cfg.Database.URL = "postgres://ha:ha@localhost:5432/homeassistant"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_RejectsBadLogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "verbose"

	assert.Error(t, cfg.Validate())
}
