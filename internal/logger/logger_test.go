package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/goletan/servicehost/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host.log")

	log, err := New(types.LoggingConfig{Level: "INFO", Format: "json", Output: path})
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("service bound", zap.String("service", "mapleserver"))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "service bound", entry["msg"])
	assert.Equal(t, "mapleserver", entry["service"])
	assert.NotContains(t, string(data), "hidden")
}

func TestNewRejectsInvalidSettings(t *testing.T) {
	_, err := New(types.LoggingConfig{Level: "LOUD", Format: "text", Output: "stdout"})
	assert.Error(t, err)

	_, err = New(types.LoggingConfig{Level: "INFO", Format: "xml", Output: "stdout"})
	assert.Error(t, err)
}
