package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupEmitsRenamedKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithOptions("klubd", "test", Options{Output: &buf, Level: "debug"})
	logger.Debug("committed", slog.Uint64("height", 3))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "committed", line["message"])
	require.Equal(t, "DEBUG", line["severity"])
	require.Equal(t, "klubd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Contains(t, line, "timestamp")
}

func TestSetupFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithOptions("klubd", "", Options{Output: &buf, Level: "warn"})
	logger.Info("ignored")
	require.Zero(t, buf.Len())
}

func TestSetupWritesLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "klubd.log")
	var buf bytes.Buffer
	logger := SetupWithOptions("klubd", "", Options{Output: &buf, File: path})
	logger.Info("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"message":"hello"`)
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("token", "secret").Value.String())
	require.Equal(t, "klub1xyz", MaskField("caller", "klub1xyz").Value.String())
	require.Contains(t, RedactionAllowlist(), "requestid")
}
