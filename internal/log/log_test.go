package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLines(t *testing.T, level Level, fn func()) []map[string]any {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(level)
	t.Cleanup(func() {
		SetLevel(LevelInfo)
	})

	fn()

	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestInfoWritesStructuredFields(t *testing.T) {
	lines := captureLines(t, LevelInfo, func() {
		Info("pagination hop", "hop", 2, "identity", "alice", 42)
	})
	require.Len(t, lines, 1)
	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "pagination hop", lines[0]["message"])
	assert.Equal(t, float64(2), lines[0]["hop"])
	assert.Equal(t, "alice", lines[0]["identity"])
}

func TestErrorIncludesErr(t *testing.T) {
	lines := captureLines(t, LevelInfo, func() {
		Error("detail fetch failed", errors.New("boom"), "task_id", "t1")
	})
	require.Len(t, lines, 1)
	assert.Equal(t, "boom", lines[0]["error"])
	assert.Equal(t, "t1", lines[0]["task_id"])
}

func TestLevelFiltersDebug(t *testing.T) {
	lines := captureLines(t, LevelInfo, func() {
		Debug("hidden")
		Warn("shown")
	})
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["message"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel(" ERROR "))
	assert.Equal(t, LevelInfo, ParseLevel("chatty"))
}
