package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLogDir_ContainsRagdLogs(t *testing.T) {
	dir := DefaultLogDir()
	assert.Contains(t, dir, ".ragd")
	assert.Contains(t, dir, "logs")
}

func TestDefaultLogPath_EndsWithServerLog(t *testing.T) {
	assert.Equal(t, "server.log", filepath.Base(DefaultLogPath()))
}

func TestParseLevel_KnownLevels(t *testing.T) {
	tests := map[string]string{
		"debug":   "DEBUG",
		"info":    "INFO",
		"warn":    "WARN",
		"warning": "WARN",
		"error":   "ERROR",
		"unknown": "INFO",
	}
	for in, want := range tests {
		lvl := parseLevel(in)
		assert.Equal(t, want, lvl.String(), "level for %q", in)
	}
}

func TestSetup_CreatesLogFileAndWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "server.log")

	cfg := Config{
		Level:         "info",
		FilePath:      path,
		MaxSizeMB:     1,
		MaxFiles:      2,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg, "test")
	require.NoError(t, err)
	defer cleanup()

	logger.Info("hello", "key", "value")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), "\"key\":\"value\"")
	assert.Contains(t, string(data), "\"component\":\"test\"")
}

func TestSetup_TagsEachLineWithComponent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.log")

	cfg := Config{Level: "info", FilePath: path, MaxSizeMB: 1, MaxFiles: 2, WriteToStderr: false}

	logger, cleanup, err := Setup(cfg, "watch")
	require.NoError(t, err)
	defer cleanup()

	logger.Info("tick")
	logger.Warn("slow pass")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := 0
	for _, line := range []string{"tick", "slow pass"} {
		assert.Contains(t, string(data), line)
		lines++
	}
	assert.Equal(t, 2, lines)
	assert.Contains(t, string(data), "\"component\":\"watch\"")
}

func TestRotatingWriter_RotatesPastMaxSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.log")

	w, err := NewRotatingWriter(path, 0, 2) // maxSize 0 forces rotation on first write
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Write([]byte("first line\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("second line\n"))
	require.NoError(t, err)

	_, statErr := os.Stat(path + ".1")
	assert.NoError(t, statErr, "expected a rotated file to exist")
}
