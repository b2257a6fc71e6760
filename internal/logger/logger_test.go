package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	SetLevel("info")
	Debugf("hidden %d", 1)
	Infof("shown %d", 2)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown 2")

	SetLevel("debug")
	defer SetLevel("info")
	Debugf("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, ParseLevel(" WARNING "))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestJSONFormatWithComponent(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetFormat("json")
	defer func() {
		SetFormat("text")
		SetOutput(os.Stdout)
	}()

	Component("http", "path", "/healthz").Info("request")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "request", line["msg"])
	assert.Equal(t, "http", line["component"])
	assert.Equal(t, "/healthz", line["path"])
}

func TestSetupFileWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "arbiter.log")
	closer, err := SetupFile(FileOptions{Path: path, MaxSizeMB: 1})
	require.NoError(t, err)
	defer SetOutput(os.Stdout)

	Warnf("loop skipped for %s", "IBM")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "loop skipped for IBM")
}
