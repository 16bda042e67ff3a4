package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewParsesLevel(t *testing.T) {
	logger := New("debug", "text")
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

func TestNewInvalidLevelFallsBackToInfo(t *testing.T) {
	logger := New("verbose", "text")
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}

func TestNewWithOutputJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOutput("info", "json", &buf)

	logger.WithField("tool", "echo").Info("call complete")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "call complete", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "echo", entry["tool"])
	assert.NotEmpty(t, entry["timestamp"])
}

func TestNewWithOutputTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOutput("warn", "text", &buf)

	logger.Info("suppressed")
	logger.Warn("emitted")

	assert.NotContains(t, buf.String(), "suppressed")
	assert.Contains(t, buf.String(), "emitted")
}
