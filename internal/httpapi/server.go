// Package httpapi implements the HTTP facade: the embedded admin/search/
// chat API surface that fronts the retrieval pipeline, the updater, and
// the store's stats, guarded by the admin credential and JWT bearer
// tokens from internal/auth.
package httpapi

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nesall/ragd/internal/auth"
	"github.com/nesall/ragd/internal/chunk"
	"github.com/nesall/ragd/internal/collector"
	"github.com/nesall/ragd/internal/completion"
	"github.com/nesall/ragd/internal/embed"
	"github.com/nesall/ragd/internal/retrieval"
	"github.com/nesall/ragd/internal/store"
	"github.com/nesall/ragd/internal/update"
)

// DefaultMaxRequestBytes caps any single request body, mirroring the
// teacher's chimiddleware.RequestSize guard.
const DefaultMaxRequestBytes = 10 * 1024 * 1024

// ConfigEcho is whatever the /api/setup handlers read and write; the
// facade treats it as an opaque JSON document supplied by the caller
// wiring the server (usually the loaded configuration file).
type ConfigEcho interface {
	Get() (map[string]any, error)
	Set(map[string]any) error
}

// Server wires the retrieval pipeline, the incremental updater, the admin
// credential, and metrics into one chi.Mux.
type Server struct {
	mux *chi.Mux

	planner    *retrieval.Planner
	store      *store.Store
	collector  *collector.Collector
	chunker    *chunk.Chunker
	embedder   *embed.Client
	completion *completion.Client
	apis       map[string]*completion.Client // keyed by generation.apis[].id; alternates to the default completion client
	tok        completion.TokenCounter
	promptCfg  completion.Config
	updaters   []*update.Updater

	admin  *auth.AdminAuth
	tokens *auth.TokenIssuer

	metrics *Metrics
	config  ConfigEcho

	startedAt time.Time
	version   string
}

// Dependencies groups everything NewServer needs; every field is
// required except config, which may be nil if /api/setup is unused.
type Dependencies struct {
	Planner    *retrieval.Planner
	Store      *store.Store
	Collector  *collector.Collector
	Chunker    *chunk.Chunker
	Embedder   *embed.Client
	Completion *completion.Client
	APIs       map[string]*completion.Client // additional named completion APIs, selectable via chat's targetapi
	Tokenizer  completion.TokenCounter
	PromptCfg  completion.Config
	Updaters   []*update.Updater
	Admin      *auth.AdminAuth
	Tokens     *auth.TokenIssuer
	Config     ConfigEcho
	Version    string
}

// NewServer builds a Server and registers every route from spec §4.9.
func NewServer(deps Dependencies) *Server {
	s := &Server{
		planner:    deps.Planner,
		store:      deps.Store,
		collector:  deps.Collector,
		chunker:    deps.Chunker,
		embedder:   deps.Embedder,
		completion: deps.Completion,
		apis:       deps.APIs,
		tok:        deps.Tokenizer,
		promptCfg:  deps.PromptCfg,
		updaters:   deps.Updaters,
		admin:      deps.Admin,
		tokens:     deps.Tokens,
		metrics:    NewMetrics(),
		config:     deps.Config,
		startedAt:  time.Now(),
		version:    deps.Version,
	}

	s.mux = chi.NewRouter()
	s.mux.Use(chimiddleware.Recoverer)
	s.mux.Use(requestSizeLimit(DefaultMaxRequestBytes))
	s.mux.Use(chimiddleware.Timeout(60 * time.Second))

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Get("/api/health", s.withMetrics("health", s.handleHealth))
	s.mux.Get("/api", s.withMetrics("catalog", s.handleCatalog))
	s.mux.Post("/api/search", s.withMetrics("search", s.handleSearch))
	s.mux.Post("/api/embed", s.withMetrics("embed", s.handleEmbed))
	s.mux.Post("/api/documents", s.withMetrics("documents", s.handleAddDocument))
	s.mux.Get("/api/documents", s.withMetrics("documents", s.handleListDocuments))
	s.mux.Get("/api/stats", s.withMetrics("stats", s.handleStats))
	s.mux.Get("/api/metrics", s.withMetrics("metrics", s.handleMetricsJSON))
	s.mux.Get("/metrics", s.metrics.PrometheusHandler().ServeHTTP)
	s.mux.Post("/api/update", s.withMetrics("update", s.handleUpdate))
	s.mux.Post("/api/chat", s.withMetrics("chat", s.handleChat))
	s.mux.Get("/api/setup", s.withMetrics("setup", s.requireAuth(s.handleGetSetup)))
	s.mux.Post("/api/setup", s.withMetrics("setup", s.requireAuth(s.handlePostSetup)))
	s.mux.Post("/api/authenticate", s.withMetrics("authenticate", s.handleAuthenticate))
}

// Handler returns the assembled http.Handler for use with http.Server.
func (s *Server) Handler() *chi.Mux {
	return s.mux
}

// Shutdown is a no-op placeholder for symmetry with the lifecycle
// package's cooperative-shutdown contract; the facade holds no resources
// beyond what its dependencies already own.
func (s *Server) Shutdown(_ context.Context) error {
	return nil
}
