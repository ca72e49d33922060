// Package cmd provides the CLI commands for ragd.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nesall/ragd/internal/auth"
	"github.com/nesall/ragd/internal/chunk"
	"github.com/nesall/ragd/internal/collector"
	"github.com/nesall/ragd/internal/completion"
	"github.com/nesall/ragd/internal/config"
	"github.com/nesall/ragd/internal/embed"
	"github.com/nesall/ragd/internal/logging"
	"github.com/nesall/ragd/internal/registry"
	"github.com/nesall/ragd/internal/retrieval"
	"github.com/nesall/ragd/internal/store"
	"github.com/nesall/ragd/internal/tokenizer"
	"github.com/nesall/ragd/internal/update"
)

// app holds every component wired up from one loaded configuration. Every
// CLI verb builds one, even stats/clear/compact which only touch the
// store directly — the wiring cost is dominated by opening the store
// itself, not by constructing the rest of the pipeline.
type app struct {
	cfg     *config.Config
	dir     string // root directory the configuration was discovered from
	cfgPath string // resolved configuration file path, "" if none was found

	store     *store.Store
	collector *collector.Collector
	chunker   *chunk.Chunker
	embedder  *embed.Client
	tok       chunk.TokenCounter

	defaultAPI string
	completion map[string]*completion.Client

	planner  *retrieval.Planner
	updaters []*update.Updater

	admin  *auth.AdminAuth
	tokens *auth.TokenIssuer

	registry *registry.Registry
}

// Close releases the store and the embedding client's connection pool.
func (a *app) Close() error {
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

// buildApp loads configuration from configPath (or discovers it under the
// current directory when empty) and wires every pipeline component.
func buildApp(configPath string) (*app, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}

	cfg, err := config.Load(dir, configPath)
	if err != nil {
		return nil, err
	}
	resolvedPath := configPath
	if resolvedPath == "" {
		resolvedPath = config.FindConfigPath(dir)
	}

	st, err := store.Open(storeDir(cfg), cfg.VectorStoreConfig())
	if err != nil {
		return nil, err
	}

	coll := collector.New(cfg.CollectorOptions()...)

	tok, err := buildTokenCounter(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	chunker := chunk.New(tok, cfg.ChunkerOptions())
	embedder := embed.New(cfg.EmbeddingClientConfig())

	defaultAPI, byID := cfg.CompletionClientConfigs()
	clients := make(map[string]*completion.Client, len(byID))
	for id, ccfg := range byID {
		clients[id] = completion.New(ccfg)
	}

	sources := cfg.SourceConfigs()
	planner := retrieval.New(coll, chunker, embedder, st, sources, cfg.PlannerConfig())

	updaters := make([]*update.Updater, 0, len(sources))
	for _, src := range sources {
		updaters = append(updaters, update.New(coll, chunker, embedder, st, src, cfg.UpdaterConfig()))
	}

	admin, err := auth.Load(adminPasswordPath(cfg))
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	reg, err := registry.Open(registry.DefaultPath())
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &app{
		cfg:        cfg,
		dir:        dir,
		cfgPath:    resolvedPath,
		store:      st,
		collector:  coll,
		chunker:    chunker,
		embedder:   embedder,
		tok:        tok,
		defaultAPI: defaultAPI,
		completion: clients,
		planner:    planner,
		updaters:   updaters,
		admin:      admin,
		tokens:     auth.NewTokenIssuer(),
		registry:   reg,
	}, nil
}

// loadConfigOnly reads and validates configuration without opening the
// store or any pipeline component, for verbs (reset-password,
// password-status) that only need to locate the admin password file.
func loadConfigOnly(configPath string) (*config.Config, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}
	return config.Load(dir, configPath)
}

// setupLogging switches the process-wide slog default from the bare
// stderr text handler cobra starts with to ragd's rotating JSON file
// logger, tagged with component ("serve", "watch", ...). Used by the
// long-running daemon verbs; short verbs (search, stats, embed) leave
// the default logger alone since there's nothing to tail.
func (a *app) setupLogging(component string) (func(), error) {
	logger, cleanup, err := logging.Setup(a.cfg.LoggingConfig(), component)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cleanup, nil
}

// completionClient returns the default completion client, or an error if
// no generation API is configured.
func (a *app) completionClient() (*completion.Client, error) {
	c, ok := a.completion[a.defaultAPI]
	if !ok {
		return nil, fmt.Errorf("no generation.apis entry configured (current_api=%q)", a.defaultAPI)
	}
	return c, nil
}

// storeDir derives the vector store's directory from database.sqlite_path,
// since store.Open expects one directory holding both the metadata
// database and the ANN index files. NewConfig always sets a default
// sqlite_path, so this is only ever empty for a hand-built Config.
func storeDir(cfg *config.Config) string {
	if cfg.Database.SQLitePath == "" {
		return "."
	}
	return filepath.Dir(cfg.Database.SQLitePath)
}

// adminPasswordPath places .admin_password alongside the store directory.
func adminPasswordPath(cfg *config.Config) string {
	return filepath.Join(storeDir(cfg), ".admin_password")
}

// buildTokenCounter constructs the tokenizer from tokenizer.config_path, or
// an empty-vocabulary tokenizer (every word counts as one [UNK] token) when
// no vocabulary is configured — degraded but functional, never fatal.
func buildTokenCounter(cfg *config.Config) (chunk.TokenCounter, error) {
	if cfg.Tokenizer.ConfigPath == "" {
		return tokenizer.NewFromVocab(nil), nil
	}
	tok, err := tokenizer.New(cfg.Tokenizer.ConfigPath)
	if err != nil {
		return nil, err
	}
	return tok, nil
}
