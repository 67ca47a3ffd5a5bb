package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withGlobal(t *testing.T, cfg Config) {
	t.Helper()
	prev := Logger
	Init(cfg)
	t.Cleanup(func() { Logger = prev })
}

func TestInitJSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	withGlobal(t, Config{Level: DebugLevel, JSONOutput: true, Output: &buf})

	logger := WithBrokerID(3)
	logger.Info().Str("component", "unit").Msg("changed status")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "changed status", entry["message"])
	assert.Equal(t, float64(3), entry["broker_id"])
	assert.Equal(t, "unit", entry["component"])
	assert.Equal(t, "info", entry["level"])
	assert.Contains(t, entry, "time")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	withGlobal(t, Config{Level: WarnLevel, JSONOutput: true, Output: &buf})

	logger := WithComponent("scheduler")
	logger.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
	assert.Contains(t, buf.String(), `"component":"scheduler"`)
}

func TestConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: InfoLevel, Output: &buf})

	logger.Info().Str("task_id", "broker-0__a").Msg("Launched task")

	out := buf.String()
	assert.Contains(t, out, "Launched task")
	assert.Contains(t, out, "broker-0__a")
	assert.False(t, json.Valid(buf.Bytes()))
}

func TestChildLoggers(t *testing.T) {
	var buf bytes.Buffer
	withGlobal(t, Config{Level: DebugLevel, JSONOutput: true, Output: &buf})

	decode := func() map[string]any {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		buf.Reset()
		return entry
	}

	planLogger := WithPlanID("p-1")
	planLogger.Debug().Msg("adopted")
	assert.Equal(t, "p-1", decode()["plan_id"])

	taskLogger := WithTaskID("broker-2__x")
	taskLogger.Debug().Msg("killed")
	assert.Equal(t, "broker-2__x", decode()["task_id"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("debug"))
	assert.Equal(t, ErrorLevel, ParseLevel("error"))
	assert.Equal(t, InfoLevel, ParseLevel("verbose"))
	assert.Equal(t, InfoLevel, ParseLevel(""))
}
