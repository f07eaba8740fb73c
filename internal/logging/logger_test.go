package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: LevelDebug, Format: "json", Output: &buf})

	logger.Operation("put", "jid1", "q1")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "put", entry["op"])
	assert.Equal(t, "jid1", entry["jid"])
	assert.Equal(t, "q1", entry["queue"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: LevelWarn, Format: "json", Output: &buf})

	logger.Operation("put", "jid1", "q1")
	assert.Empty(t, buf.String())

	logger.Rejected("complete", "jid1", assert.AnError)
	assert.True(t, strings.Contains(buf.String(), "core operation rejected"))
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: LevelDebug, Format: "json", Output: &buf}).
		WithFields(map[string]interface{}{"worker": "w1"})

	logger.Info("heartbeat extended")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "w1", entry["worker"])
}
