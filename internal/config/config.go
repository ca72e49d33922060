// Package config loads the JSON configuration file (tokenizer, chunking,
// embedding, generation, database, source, logging sections) and builds
// the per-component Config values the rest of the service wires up at
// startup.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nesall/ragd/internal/errors"
)

// Config is the top-level shape of the JSON configuration file, per
// spec.md §6.
type Config struct {
	Tokenizer  TokenizerConfig  `json:"tokenizer" yaml:"tokenizer"`
	Chunking   ChunkingConfig   `json:"chunking" yaml:"chunking"`
	Embedding  EmbeddingConfig  `json:"embedding" yaml:"embedding"`
	Generation GenerationConfig `json:"generation" yaml:"generation"`
	Database   DatabaseConfig   `json:"database" yaml:"database"`
	Source     SourceConfig     `json:"source" yaml:"source"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
}

// TokenizerConfig configures the Tokenizer component.
type TokenizerConfig struct {
	ConfigPath string `json:"config_path" yaml:"config_path"`
}

// ChunkingConfig configures the Chunker component.
type ChunkingConfig struct {
	MinTokens         int     `json:"nof_min_tokens" yaml:"nof_min_tokens"`
	MaxTokens         int     `json:"nof_max_tokens" yaml:"nof_max_tokens"`
	OverlapPercentage float64 `json:"overlap_percentage" yaml:"overlap_percentage"`
	Semantic          bool    `json:"semantic" yaml:"semantic"`
}

// PricingConfig carries per-million-token pricing, surfaced to callers but
// not consumed by the completion/embedding clients themselves.
type PricingConfig struct {
	Input       float64 `json:"input" yaml:"input"`
	Output      float64 `json:"output" yaml:"output"`
	CachedInput float64 `json:"cached_input" yaml:"cached_input"`
}

// APIConfig describes one named remote endpoint, shared by the embedding
// and generation sections.
type APIConfig struct {
	ID                 string        `json:"id" yaml:"id"`
	Name               string        `json:"name" yaml:"name"`
	APIURL             string        `json:"api_url" yaml:"api_url"`
	APIKey             string        `json:"api_key" yaml:"api_key"`
	Model              string        `json:"model" yaml:"model"`
	QueryFormat        string        `json:"query_format" yaml:"query_format"`
	DocumentFormat     string        `json:"document_format" yaml:"document_format"`
	MaxTokensName      string        `json:"max_tokens_name" yaml:"max_tokens_name"`
	TemperatureSupport bool          `json:"temperature_support" yaml:"temperature_support"`
	Stream             bool          `json:"stream" yaml:"stream"`
	ContextLength      int           `json:"context_length" yaml:"context_length"`
	Pricing            PricingConfig `json:"pricing_tpm" yaml:"pricing_tpm"`
}

// EmbeddingConfig configures the Embedding Client component.
type EmbeddingConfig struct {
	CurrentAPI string      `json:"current_api" yaml:"current_api"`
	APIs       []APIConfig `json:"apis" yaml:"apis"`
	TimeoutMs  int         `json:"timeout_ms" yaml:"timeout_ms"`
	BatchSize  int         `json:"batch_size" yaml:"batch_size"`
	TopK       int         `json:"top_k" yaml:"top_k"`
}

// GenerationConfig configures the Completion Client and Retrieval Planner.
type GenerationConfig struct {
	CurrentAPI          string      `json:"current_api" yaml:"current_api"`
	APIs                []APIConfig `json:"apis" yaml:"apis"`
	TimeoutMs           int         `json:"timeout_ms" yaml:"timeout_ms"`
	MaxFullSources      int         `json:"max_full_sources" yaml:"max_full_sources"`
	MaxRelatedPerSource int         `json:"max_related_per_source" yaml:"max_related_per_source"`
	MaxContextTokens    int         `json:"max_context_tokens" yaml:"max_context_tokens"`
	MaxChunks           int         `json:"max_chunks" yaml:"max_chunks"`
	DefaultTemperature  float64     `json:"default_temperature" yaml:"default_temperature"`
	DefaultMaxTokens    int         `json:"default_max_tokens" yaml:"default_max_tokens"`
	PrependLabelFormat  string      `json:"prepend_label_format" yaml:"prepend_label_format"`
}

// DatabaseConfig configures the Vector Store component.
type DatabaseConfig struct {
	SQLitePath     string `json:"sqlite_path" yaml:"sqlite_path"`
	IndexPath      string `json:"index_path" yaml:"index_path"`
	VectorDim      int    `json:"vector_dim" yaml:"vector_dim"`
	MaxElements    int    `json:"max_elements" yaml:"max_elements"`
	DistanceMetric string `json:"distance_metric" yaml:"distance_metric"` // "cosine" or "l2"
}

// SourcePathConfig describes one entry of source.paths.
type SourcePathConfig struct {
	Type              string            `json:"type" yaml:"type"` // "directory", "file", "url"
	Path              string            `json:"path,omitempty" yaml:"path,omitempty"`
	URL               string            `json:"url,omitempty" yaml:"url,omitempty"`
	Recursive         bool              `json:"recursive,omitempty" yaml:"recursive,omitempty"`
	IncludeExtensions []string          `json:"include_extensions,omitempty" yaml:"include_extensions,omitempty"`
	ExcludeGlobs      []string          `json:"exclude_globs,omitempty" yaml:"exclude_globs,omitempty"`
	Headers           map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	RespectGitignore  bool              `json:"respect_gitignore,omitempty" yaml:"respect_gitignore,omitempty"`
	MaxFileSizeMB     int               `json:"max_file_size_mb,omitempty" yaml:"max_file_size_mb,omitempty"`
}

// SourceConfig configures the Source Collector component.
type SourceConfig struct {
	MaxFileSizeMB     int                `json:"max_file_size_mb" yaml:"max_file_size_mb"`
	Encoding          string             `json:"encoding" yaml:"encoding"`
	GlobalExclude     []string           `json:"global_exclude" yaml:"global_exclude"`
	DefaultExtensions []string           `json:"default_extensions" yaml:"default_extensions"`
	Paths             []SourcePathConfig `json:"paths" yaml:"paths"`
}

// LoggingConfig configures where structured logs and diagnostics land.
type LoggingConfig struct {
	LoggingFile     string `json:"logging_file" yaml:"logging_file"`
	DiagnosticsFile string `json:"diagnostics_file" yaml:"diagnostics_file"`
}

// defaultGlobalExclude mirrors common VCS/build-artifact noise, always
// excluded regardless of what the file configures.
var defaultGlobalExclude = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
	"**/*.min.js",
	"**/*.min.css",
}

// NewConfig returns a Config populated with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Tokenizer: TokenizerConfig{
			ConfigPath: "",
		},
		Chunking: ChunkingConfig{
			MinTokens:         64,
			MaxTokens:         512,
			OverlapPercentage: 0.15,
			Semantic:          true,
		},
		Embedding: EmbeddingConfig{
			TimeoutMs: 30000,
			BatchSize: 32,
			TopK:      20,
		},
		Generation: GenerationConfig{
			TimeoutMs:           120000,
			MaxFullSources:      3,
			MaxRelatedPerSource: 2,
			MaxContextTokens:    4096,
			MaxChunks:           40,
			DefaultTemperature:  0.5,
			DefaultMaxTokens:    1024,
			PrependLabelFormat:  "[%s]",
		},
		Database: DatabaseConfig{
			SQLitePath:     defaultDataPath("metadata.db"),
			IndexPath:      defaultDataPath("vectors.hnsw"),
			VectorDim:      0, // 0 => inferred from the first embedding batch
			MaxElements:    0, // 0 => unbounded
			DistanceMetric: "cosine",
		},
		Source: SourceConfig{
			MaxFileSizeMB:     10,
			Encoding:          "utf-8",
			GlobalExclude:     defaultGlobalExclude,
			DefaultExtensions: nil, // empty => every extension is eligible
			Paths:             nil,
		},
		Logging: LoggingConfig{
			LoggingFile:     defaultDataPath("logs/server.log"),
			DiagnosticsFile: "",
		},
	}
}

func defaultDataPath(rel string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".ragd", rel)
	}
	return filepath.Join(home, ".ragd", rel)
}

// envVarPattern matches ${VAR} references inside a string value.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars decodes data into a generic JSON tree, substitutes ${VAR}
// references in every string leaf with the named environment variable's
// value (recursively, through nested objects and arrays), and re-encodes
// it. Operating on the decoded tree — rather than the raw bytes — means a
// substituted value containing '"' or '\' can't corrupt the surrounding
// JSON syntax. An unset variable expands to "".
func expandEnvVars(data []byte) ([]byte, error) {
	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return json.Marshal(expandEnvVarsInValue(tree))
}

func expandEnvVarsInValue(v any) any {
	switch val := v.(type) {
	case string:
		return envVarPattern.ReplaceAllStringFunc(val, func(match string) string {
			name := envVarPattern.FindStringSubmatch(match)[1]
			return os.Getenv(name)
		})
	case map[string]any:
		for k, child := range val {
			val[k] = expandEnvVarsInValue(child)
		}
		return val
	case []any:
		for i, child := range val {
			val[i] = expandEnvVarsInValue(child)
		}
		return val
	default:
		return v
	}
}

// discoveryNames are the project-local file names Load checks for, in
// order, when no explicit path is given.
var discoveryNames = []string{"ragd.json", ".ragd.json"}

// FindConfigPath looks for a discoverable configuration file starting at
// dir, per spec.md §6. Returns "" if none is found; that's not an error,
// since a Config of defaults is still usable.
func FindConfigPath(dir string) string {
	for _, name := range discoveryNames {
		candidate := filepath.Join(dir, name)
		if fileExists(candidate) {
			return candidate
		}
	}
	return ""
}

// Load builds a Config from defaults, the discovered (or explicit) file,
// and environment overrides, then validates it. path may be empty, in
// which case Load discovers a file under dir; if neither exists, the
// defaults alone are validated and returned.
func Load(dir, path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		path = FindConfigPath(dir)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile reads, expands, and merges a JSON configuration file into c.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.ConfigError(fmt.Sprintf("failed to read configuration file %s", path), err)
	}

	expanded, err := expandEnvVars(data)
	if err != nil {
		return errors.ConfigError(fmt.Sprintf("failed to parse configuration file %s", path), err)
	}

	var parsed Config
	if err := json.Unmarshal(expanded, &parsed); err != nil {
		return errors.ConfigError(fmt.Sprintf("failed to parse configuration file %s", path), err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays non-zero fields of other onto c. Slices and the APIs
// list are replaced wholesale when present, matching how a project file is
// expected to fully restate the sections it touches.
func (c *Config) mergeWith(other *Config) {
	if other.Tokenizer.ConfigPath != "" {
		c.Tokenizer.ConfigPath = other.Tokenizer.ConfigPath
	}

	if other.Chunking.MinTokens != 0 {
		c.Chunking.MinTokens = other.Chunking.MinTokens
	}
	if other.Chunking.MaxTokens != 0 {
		c.Chunking.MaxTokens = other.Chunking.MaxTokens
	}
	if other.Chunking.OverlapPercentage != 0 {
		c.Chunking.OverlapPercentage = other.Chunking.OverlapPercentage
	}
	c.Chunking.Semantic = other.Chunking.Semantic

	if other.Embedding.CurrentAPI != "" {
		c.Embedding.CurrentAPI = other.Embedding.CurrentAPI
	}
	if len(other.Embedding.APIs) > 0 {
		c.Embedding.APIs = other.Embedding.APIs
	}
	if other.Embedding.TimeoutMs != 0 {
		c.Embedding.TimeoutMs = other.Embedding.TimeoutMs
	}
	if other.Embedding.BatchSize != 0 {
		c.Embedding.BatchSize = other.Embedding.BatchSize
	}
	if other.Embedding.TopK != 0 {
		c.Embedding.TopK = other.Embedding.TopK
	}

	if other.Generation.CurrentAPI != "" {
		c.Generation.CurrentAPI = other.Generation.CurrentAPI
	}
	if len(other.Generation.APIs) > 0 {
		c.Generation.APIs = other.Generation.APIs
	}
	if other.Generation.TimeoutMs != 0 {
		c.Generation.TimeoutMs = other.Generation.TimeoutMs
	}
	if other.Generation.MaxFullSources != 0 {
		c.Generation.MaxFullSources = other.Generation.MaxFullSources
	}
	if other.Generation.MaxRelatedPerSource != 0 {
		c.Generation.MaxRelatedPerSource = other.Generation.MaxRelatedPerSource
	}
	if other.Generation.MaxContextTokens != 0 {
		c.Generation.MaxContextTokens = other.Generation.MaxContextTokens
	}
	if other.Generation.MaxChunks != 0 {
		c.Generation.MaxChunks = other.Generation.MaxChunks
	}
	if other.Generation.DefaultTemperature != 0 {
		c.Generation.DefaultTemperature = other.Generation.DefaultTemperature
	}
	if other.Generation.DefaultMaxTokens != 0 {
		c.Generation.DefaultMaxTokens = other.Generation.DefaultMaxTokens
	}
	if other.Generation.PrependLabelFormat != "" {
		c.Generation.PrependLabelFormat = other.Generation.PrependLabelFormat
	}

	if other.Database.SQLitePath != "" {
		c.Database.SQLitePath = other.Database.SQLitePath
	}
	if other.Database.IndexPath != "" {
		c.Database.IndexPath = other.Database.IndexPath
	}
	if other.Database.VectorDim != 0 {
		c.Database.VectorDim = other.Database.VectorDim
	}
	if other.Database.MaxElements != 0 {
		c.Database.MaxElements = other.Database.MaxElements
	}
	if other.Database.DistanceMetric != "" {
		c.Database.DistanceMetric = other.Database.DistanceMetric
	}

	if other.Source.MaxFileSizeMB != 0 {
		c.Source.MaxFileSizeMB = other.Source.MaxFileSizeMB
	}
	if other.Source.Encoding != "" {
		c.Source.Encoding = other.Source.Encoding
	}
	if len(other.Source.GlobalExclude) > 0 {
		c.Source.GlobalExclude = append(append([]string{}, defaultGlobalExclude...), other.Source.GlobalExclude...)
	}
	if len(other.Source.DefaultExtensions) > 0 {
		c.Source.DefaultExtensions = other.Source.DefaultExtensions
	}
	if len(other.Source.Paths) > 0 {
		c.Source.Paths = other.Source.Paths
	}

	if other.Logging.LoggingFile != "" {
		c.Logging.LoggingFile = other.Logging.LoggingFile
	}
	if other.Logging.DiagnosticsFile != "" {
		c.Logging.DiagnosticsFile = other.Logging.DiagnosticsFile
	}
}

// applyEnvOverrides applies the handful of top-level RAGD_* overrides that
// sit above ${VAR} substitution (which already covers anything a config
// file's own string values reference).
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RAGD_DATABASE_SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("RAGD_DATABASE_INDEX_PATH"); v != "" {
		c.Database.IndexPath = v
	}
}

// Validate checks invariants that must hold for the service to start.
func (c *Config) Validate() error {
	if c.Chunking.MinTokens <= 0 {
		return errors.ConfigError(fmt.Sprintf("chunking.nof_min_tokens must be positive, got %d", c.Chunking.MinTokens), nil)
	}
	if c.Chunking.MaxTokens <= 0 || c.Chunking.MaxTokens < c.Chunking.MinTokens {
		return errors.ConfigError(fmt.Sprintf("chunking.nof_max_tokens must be >= nof_min_tokens, got min=%d max=%d", c.Chunking.MinTokens, c.Chunking.MaxTokens), nil)
	}
	if c.Chunking.OverlapPercentage < 0 || c.Chunking.OverlapPercentage > 1 {
		return errors.ConfigError(fmt.Sprintf("chunking.overlap_percentage must be in [0,1], got %f", c.Chunking.OverlapPercentage), nil)
	}

	if c.Database.VectorDim < 0 {
		return errors.ConfigError(fmt.Sprintf("database.vector_dim must be non-negative, got %d", c.Database.VectorDim), nil)
	}
	metric := strings.ToLower(c.Database.DistanceMetric)
	if metric != "cosine" && metric != "l2" {
		return errors.ConfigError(fmt.Sprintf("database.distance_metric must be 'cosine' or 'l2', got %s", c.Database.DistanceMetric), nil)
	}

	if c.Generation.DefaultTemperature < 0 || c.Generation.DefaultTemperature > 2 {
		return errors.ConfigError(fmt.Sprintf("generation.default_temperature must be in [0,2], got %f", c.Generation.DefaultTemperature), nil)
	}

	for _, p := range c.Source.Paths {
		switch p.Type {
		case "directory", "file", "url":
		default:
			return errors.ConfigError(fmt.Sprintf("source.paths entry has invalid type %q", p.Type), nil)
		}
	}

	if err := c.checkAPIs("embedding", c.Embedding.CurrentAPI, c.Embedding.APIs); err != nil {
		return err
	}
	if err := c.checkAPIs("generation", c.Generation.CurrentAPI, c.Generation.APIs); err != nil {
		return err
	}

	return nil
}

func (c *Config) checkAPIs(section, currentAPI string, apis []APIConfig) error {
	if currentAPI == "" {
		return nil
	}
	for _, a := range apis {
		if a.ID == currentAPI {
			return nil
		}
	}
	return errors.ConfigError(fmt.Sprintf("%s.current_api %q does not match any entry in %s.apis", section, currentAPI, section), nil)
}

// FindAPI returns the APIConfig with the given id from apis, and whether
// it was found.
func FindAPI(apis []APIConfig, id string) (APIConfig, bool) {
	for _, a := range apis {
		if a.ID == id {
			return a, true
		}
	}
	return APIConfig{}, false
}

// WriteYAML dumps the configuration as YAML, for debug/support-bundle use;
// no CLI verb calls it. JSON remains the load format.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.ConfigError("failed to marshal configuration to YAML", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.ConfigError(fmt.Sprintf("failed to write configuration file %s", path), err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
