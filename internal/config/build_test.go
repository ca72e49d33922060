package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nesall/ragd/internal/collector"
)

func TestSourceConfigs_AppliesSectionDefaults(t *testing.T) {
	cfg := NewConfig()
	cfg.Source.MaxFileSizeMB = 5
	cfg.Source.DefaultExtensions = []string{".go", ".md"}
	cfg.Source.Paths = []SourcePathConfig{
		{Type: "directory", Path: "/repo", Recursive: true},
		{Type: "file", Path: "/repo/NOTES.txt", MaxFileSizeMB: 50, IncludeExtensions: []string{".txt"}},
	}

	out := cfg.SourceConfigs()
	require.Len(t, out, 2)

	assert.Equal(t, collector.KindDirectory, out[0].Kind)
	assert.Equal(t, 5, out[0].MaxFileSizeMB)
	assert.Equal(t, []string{".go", ".md"}, out[0].IncludeExts)

	assert.Equal(t, collector.KindFile, out[1].Kind)
	assert.Equal(t, 50, out[1].MaxFileSizeMB)
	assert.Equal(t, []string{".txt"}, out[1].IncludeExts)
}

func TestEmbeddingClientConfig_ResolvesCurrentAPI(t *testing.T) {
	cfg := NewConfig()
	cfg.Database.VectorDim = 768
	cfg.Embedding.CurrentAPI = "local"
	cfg.Embedding.APIs = []APIConfig{
		{ID: "remote", APIURL: "https://remote.example"},
		{ID: "local", APIURL: "http://localhost:9100", APIKey: "k"},
	}

	ec := cfg.EmbeddingClientConfig()
	assert.Equal(t, "http://localhost:9100", ec.Endpoint)
	assert.Equal(t, "k", ec.APIKey)
	assert.Equal(t, 768, ec.VectorDim)
}

func TestEmbeddingClientConfig_FallsBackToFirstAPIWhenCurrentUnset(t *testing.T) {
	cfg := NewConfig()
	cfg.Embedding.APIs = []APIConfig{{ID: "only", APIURL: "http://x"}}

	ec := cfg.EmbeddingClientConfig()
	assert.Equal(t, "http://x", ec.Endpoint)
}

func TestCompletionClientConfigs_BuildsOneEntryPerAPI(t *testing.T) {
	cfg := NewConfig()
	cfg.Generation.CurrentAPI = "a"
	cfg.Generation.MaxContextTokens = 4096
	cfg.Generation.APIs = []APIConfig{
		{ID: "a", APIURL: "https://a", ContextLength: 8192, TemperatureSupport: true},
		{ID: "b", APIURL: "https://b"}, // no context_length: falls back to max_context_tokens
	}

	defaultID, byID := cfg.CompletionClientConfigs()
	assert.Equal(t, "a", defaultID)
	require.Len(t, byID, 2)
	assert.Equal(t, 8192, byID["a"].ContextLength)
	assert.True(t, byID["a"].TemperatureSet)
	assert.Equal(t, 4096, byID["b"].ContextLength)
}

func TestVectorStoreConfig_MapsDistanceMetric(t *testing.T) {
	cfg := NewConfig()
	cfg.Database.DistanceMetric = "l2"
	cfg.Database.VectorDim = 1536

	vsc := cfg.VectorStoreConfig()
	assert.Equal(t, "l2", vsc.Metric)
	assert.Equal(t, 1536, vsc.Dimensions)
}

func TestEcho_GetReturnsCurrentConfigAsDocument(t *testing.T) {
	cfg := NewConfig()
	echo := NewEcho(cfg, "")

	doc, err := echo.Get()
	require.NoError(t, err)
	chunking, ok := doc["chunking"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 64, chunking["nof_min_tokens"])
}

func TestEcho_SetRejectsInvalidConfig(t *testing.T) {
	echo := NewEcho(NewConfig(), "")

	err := echo.Set(map[string]any{
		"database": map[string]any{"distance_metric": "manhattan"},
	})
	require.Error(t, err)
}

func TestEcho_SetPersistsValidConfigToDisk(t *testing.T) {
	path := t.TempDir() + "/persisted.json"
	echo := NewEcho(NewConfig(), path)

	err := echo.Set(map[string]any{
		"chunking": map[string]any{"nof_min_tokens": 10, "nof_max_tokens": 20, "overlap_percentage": 0.1},
	})
	require.NoError(t, err)

	doc, err := echo.Get()
	require.NoError(t, err)
	chunking := doc["chunking"].(map[string]any)
	assert.EqualValues(t, 10, chunking["nof_min_tokens"])
}
