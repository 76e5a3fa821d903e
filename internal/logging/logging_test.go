package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitJSONComponent(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Config{Level: "debug", Format: "json", Output: &buf}))
	t.Cleanup(func() { _ = Init(Config{}) })

	logger := Component("render")
	logger.Debug().Str("template_id", "t1").Msg("rendered")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "render", entry["component"])
	require.Equal(t, "t1", entry["template_id"])
	require.Equal(t, "debug", entry["level"])
}

func TestInitFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Config{Level: "warn", Format: "json", Output: &buf}))
	t.Cleanup(func() { _ = Init(Config{}) })

	logger := Component("db")
	logger.Info().Msg("hidden")
	require.Zero(t, buf.Len())
}

func TestInitRejectsBadConfig(t *testing.T) {
	require.Error(t, Init(Config{Level: "loud"}))
	require.Error(t, Init(Config{Format: "xml"}))
}
