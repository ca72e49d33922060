package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 64, cfg.Chunking.MinTokens)
	assert.Equal(t, 512, cfg.Chunking.MaxTokens)
	assert.Equal(t, 0.15, cfg.Chunking.OverlapPercentage)
	assert.True(t, cfg.Chunking.Semantic)

	assert.Equal(t, 32, cfg.Embedding.BatchSize)
	assert.Equal(t, 20, cfg.Embedding.TopK)

	assert.Equal(t, 0.5, cfg.Generation.DefaultTemperature)
	assert.Equal(t, "[%s]", cfg.Generation.PrependLabelFormat)

	assert.Equal(t, "cosine", cfg.Database.DistanceMetric)
	assert.Contains(t, cfg.Source.GlobalExclude, "**/node_modules/**")
}

func TestLoad_NoFilePresent_ReturnsValidatedDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Chunking.MinTokens)
}

func TestLoad_DiscoversProjectFile(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, filepath.Join(dir, "ragd.json"), `{
		"chunking": {"nof_min_tokens": 100, "nof_max_tokens": 800, "overlap_percentage": 0.2},
		"database": {"distance_metric": "l2", "vector_dim": 384}
	}`)

	cfg, err := Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Chunking.MinTokens)
	assert.Equal(t, 800, cfg.Chunking.MaxTokens)
	assert.Equal(t, "l2", cfg.Database.DistanceMetric)
	assert.Equal(t, 384, cfg.Database.VectorDim)
	// untouched sections keep their defaults
	assert.Equal(t, 32, cfg.Embedding.BatchSize)
}

func TestLoad_ExplicitPathOverridesDiscovery(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, filepath.Join(dir, "ragd.json"), `{"chunking": {"nof_min_tokens": 1, "nof_max_tokens": 2}}`)
	explicit := filepath.Join(dir, "alt.json")
	writeConfigFile(t, explicit, `{"chunking": {"nof_min_tokens": 200, "nof_max_tokens": 900}}`)

	cfg, err := Load(dir, explicit)
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Chunking.MinTokens)
}

func TestLoad_ExpandsEnvVarReferences(t *testing.T) {
	t.Setenv("RAGD_TEST_API_KEY", "secret-123")
	dir := t.TempDir()
	writeConfigFile(t, filepath.Join(dir, "ragd.json"), `{
		"generation": {
			"current_api": "primary",
			"apis": [{"id": "primary", "api_url": "https://example.test", "api_key": "${RAGD_TEST_API_KEY}", "context_length": 8192}]
		}
	}`)

	cfg, err := Load(dir, "")
	require.NoError(t, err)
	require.Len(t, cfg.Generation.APIs, 1)
	assert.Equal(t, "secret-123", cfg.Generation.APIs[0].APIKey)
}

func TestLoad_UnsetEnvVarExpandsToEmpty(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, filepath.Join(dir, "ragd.json"), `{
		"generation": {"current_api": "primary", "apis": [{"id": "primary", "api_key": "${RAGD_NEVER_SET_XYZ}"}]}
	}`)

	cfg, err := Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, "", cfg.Generation.APIs[0].APIKey)
}

func TestValidate_RejectsMaxTokensBelowMinTokens(t *testing.T) {
	cfg := NewConfig()
	cfg.Chunking.MinTokens = 500
	cfg.Chunking.MaxTokens = 100

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nof_max_tokens")
}

func TestValidate_RejectsUnknownDistanceMetric(t *testing.T) {
	cfg := NewConfig()
	cfg.Database.DistanceMetric = "euclidean"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "distance_metric")
}

func TestValidate_RejectsCurrentAPIWithNoMatchingEntry(t *testing.T) {
	cfg := NewConfig()
	cfg.Generation.CurrentAPI = "missing"
	cfg.Generation.APIs = []APIConfig{{ID: "other"}}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "current_api")
}

func TestValidate_RejectsInvalidSourcePathType(t *testing.T) {
	cfg := NewConfig()
	cfg.Source.Paths = []SourcePathConfig{{Type: "ftp", Path: "/tmp"}}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source.paths")
}

func TestFindAPI(t *testing.T) {
	apis := []APIConfig{{ID: "a"}, {ID: "b"}}

	found, ok := FindAPI(apis, "b")
	require.True(t, ok)
	assert.Equal(t, "b", found.ID)

	_, ok = FindAPI(apis, "missing")
	assert.False(t, ok)
}

func TestWriteYAML_RoundTripsThroughFile(t *testing.T) {
	cfg := NewConfig()
	path := filepath.Join(t.TempDir(), "export.yaml")

	require.NoError(t, cfg.WriteYAML(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "chunking:")
}

func writeConfigFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
}
