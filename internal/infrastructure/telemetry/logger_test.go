package telemetry

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_EmitsJSON(t *testing.T) {
	var sb strings.Builder
	logger := NewLogger(&sb, "info")

	logger.Info("run complete", "patterns", 12)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(sb.String()), &record))
	assert.Equal(t, "run complete", record["msg"])
	assert.Equal(t, float64(12), record["patterns"])
	assert.NotContains(t, record, "trace_id")
}

func TestNewLogger_LevelFilter(t *testing.T) {
	var sb strings.Builder
	logger := NewLogger(&sb, "warn")

	logger.Info("dropped")
	logger.Warn("kept")

	assert.NotContains(t, sb.String(), "dropped")
	assert.Contains(t, sb.String(), "kept")
}

func TestWithContext_NoSpanIsPassthrough(t *testing.T) {
	var sb strings.Builder
	logger := NewLogger(&sb, "info")

	WithContext(context.Background(), logger).Info("plain")
	assert.NotContains(t, sb.String(), "trace_id")
}
