package config

import (
	"time"

	"github.com/nesall/ragd/internal/chunk"
	"github.com/nesall/ragd/internal/collector"
	"github.com/nesall/ragd/internal/completion"
	"github.com/nesall/ragd/internal/embed"
	"github.com/nesall/ragd/internal/logging"
	"github.com/nesall/ragd/internal/retrieval"
	"github.com/nesall/ragd/internal/store"
	"github.com/nesall/ragd/internal/update"
)

// SourceConfigs translates source.paths into collector.SourceConfig
// entries, applying the section-wide defaults (max file size, extension
// whitelist) to any entry that doesn't override them.
func (c *Config) SourceConfigs() []collector.SourceConfig {
	out := make([]collector.SourceConfig, 0, len(c.Source.Paths))
	for _, p := range c.Source.Paths {
		sc := collector.SourceConfig{
			Kind:             collector.Kind(p.Type),
			Path:             p.Path,
			URL:              p.URL,
			Headers:          p.Headers,
			Recursive:        p.Recursive,
			IncludeExts:      p.IncludeExtensions,
			ExcludeGlobs:     p.ExcludeGlobs,
			MaxFileSizeMB:    p.MaxFileSizeMB,
			RespectGitignore: p.RespectGitignore,
		}
		if sc.MaxFileSizeMB <= 0 {
			sc.MaxFileSizeMB = c.Source.MaxFileSizeMB
		}
		if len(sc.IncludeExts) == 0 {
			sc.IncludeExts = c.Source.DefaultExtensions
		}
		out = append(out, sc)
	}
	return out
}

// CollectorOptions returns the collector.Option values derived from the
// source section's global settings.
func (c *Config) CollectorOptions() []collector.Option {
	return []collector.Option{
		collector.WithGlobalExcludes(c.Source.GlobalExclude),
	}
}

// ChunkerOptions translates the chunking section into chunk.Options.
func (c *Config) ChunkerOptions() chunk.Options {
	return chunk.Options{
		MinTokens:       c.Chunking.MinTokens,
		MaxTokens:       c.Chunking.MaxTokens,
		OverlapFraction: c.Chunking.OverlapPercentage,
	}
}

// EmbeddingClientConfig resolves embedding.current_api (or the first
// configured API if current_api is empty) into an embed.Config.
func (c *Config) EmbeddingClientConfig() embed.Config {
	api, _ := c.resolveAPI(c.Embedding.CurrentAPI, c.Embedding.APIs)
	return embed.Config{
		Endpoint:       api.APIURL,
		APIKey:         api.APIKey,
		QueryFormat:    api.QueryFormat,
		DocumentFormat: api.DocumentFormat,
		VectorDim:      c.Database.VectorDim,
		BatchSize:      c.Embedding.BatchSize,
		Timeout:        time.Duration(c.Embedding.TimeoutMs) * time.Millisecond,
	}
}

// CompletionClientConfigs builds a completion.Config for every entry in
// generation.apis, keyed by id, plus reports which id is the default.
func (c *Config) CompletionClientConfigs() (defaultID string, byID map[string]completion.Config) {
	defaultID = c.Generation.CurrentAPI
	byID = make(map[string]completion.Config, len(c.Generation.APIs))
	for _, api := range c.Generation.APIs {
		byID[api.ID] = completion.Config{
			Endpoint:       api.APIURL,
			APIKey:         api.APIKey,
			Model:          api.Model,
			ContextLength:  resolveContextLength(api, c.Generation.MaxContextTokens),
			LabelFormat:    c.Generation.PrependLabelFormat,
			MaxTokensName:  api.MaxTokensName,
			MaxTokens:      c.Generation.DefaultMaxTokens,
			Temperature:    c.Generation.DefaultTemperature,
			TemperatureSet: api.TemperatureSupport,
			Timeout:        time.Duration(c.Generation.TimeoutMs) * time.Millisecond,
		}
	}
	if defaultID == "" && len(c.Generation.APIs) > 0 {
		defaultID = c.Generation.APIs[0].ID
	}
	return defaultID, byID
}

// resolveContextLength prefers the per-API context_length, falling back to
// generation.max_context_tokens when the API doesn't name one — the Open
// Question in spec.md §9 resolved in favor of the per-API value.
func resolveContextLength(api APIConfig, fallback int) int {
	if api.ContextLength > 0 {
		return api.ContextLength
	}
	return fallback
}

func (c *Config) resolveAPI(currentAPI string, apis []APIConfig) (APIConfig, bool) {
	if currentAPI != "" {
		if api, ok := FindAPI(apis, currentAPI); ok {
			return api, true
		}
	}
	if len(apis) > 0 {
		return apis[0], true
	}
	return APIConfig{}, false
}

// PlannerConfig translates the generation section into retrieval.Config.
func (c *Config) PlannerConfig() retrieval.Config {
	return retrieval.Config{
		TopK:           c.Embedding.TopK,
		MaxFullSources: c.Generation.MaxFullSources,
		MaxChunks:      c.Generation.MaxChunks,
	}
}

// UpdaterConfig translates the embedding section into update.Config.
func (c *Config) UpdaterConfig() update.Config {
	return update.Config{
		EmbeddingBatchSize: c.Embedding.BatchSize,
	}
}

// VectorStoreConfig translates the database section into
// store.VectorStoreConfig.
func (c *Config) VectorStoreConfig() store.VectorStoreConfig {
	metric := "cos"
	if c.Database.DistanceMetric == "l2" {
		metric = "l2"
	}
	cfg := store.DefaultVectorStoreConfig(c.Database.VectorDim)
	cfg.Metric = metric
	return cfg
}

// LoggingConfig translates the logging section into logging.Config.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	if c.Logging.LoggingFile != "" {
		cfg.FilePath = c.Logging.LoggingFile
	}
	return cfg
}
