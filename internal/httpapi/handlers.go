package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/nesall/ragd/internal/auth"
	"github.com/nesall/ragd/internal/embed"
	"github.com/nesall/ragd/internal/retrieval"
)

// errorBody is the JSON shape every handler writes on failure.
type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

func decodeJSON(r *http.Request, dst any) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(r.Body).Decode(dst)
}

// handleHealth answers GET /api/health with a fixed liveness payload.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCatalog answers GET /api with the endpoint catalog and basic
// server identity, used as a discovery document by API clients.
func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":    s.version,
		"uptime_sec": int(time.Since(s.startedAt).Seconds()),
		"endpoints": []string{
			"GET /api/health",
			"GET /api",
			"POST /api/search",
			"POST /api/embed",
			"POST /api/documents",
			"GET /api/documents",
			"GET /api/stats",
			"GET /api/metrics",
			"GET /metrics",
			"POST /api/update",
			"POST /api/chat",
			"GET /api/setup",
			"POST /api/setup",
			"POST /api/authenticate",
		},
	})
}

// searchRequest is the POST /api/search body.
type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// handleSearch answers POST /api/search: embed the query, run the store's
// similarity search, and return its Search Results directly.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = retrieval.DefaultTopK
	}

	chunks := s.chunker.Chunk(req.Query, "__search_query__")
	if len(chunks) == 0 {
		writeJSON(w, http.StatusOK, []retrieval.SearchResult{})
		return
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vecs, err := s.embedder.Encode(r.Context(), texts, embed.Query)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	var results []retrieval.SearchResult
	for _, vec := range vecs {
		hits, err := s.store.Search(r.Context(), vec, topK)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		results = append(results, hits...)
	}
	if results == nil {
		results = []retrieval.SearchResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

// embedRequest is the POST /api/embed body.
type embedRequest struct {
	Text string `json:"text"`
}

type embeddingEntry struct {
	Embedding []float32 `json:"embedding"`
	Dimension int       `json:"dimension"`
}

// handleEmbed answers POST /api/embed: chunk text the same way ingestion
// does and return one embedding per chunk.
func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	var req embedRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	chunks := s.chunker.Chunk(req.Text, "__embed_request__")
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vecs, err := s.embedder.Encode(r.Context(), texts, embed.Document)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	out := make([]embeddingEntry, len(vecs))
	for i, v := range vecs {
		out[i] = embeddingEntry{Embedding: v, Dimension: len(v)}
	}
	writeJSON(w, http.StatusOK, out)
}

// addDocumentRequest is the POST /api/documents body.
type addDocumentRequest struct {
	Content  string `json:"content"`
	SourceID string `json:"source_id"`
}

// handleAddDocument answers POST /api/documents: chunk, embed, and add
// content directly to the store under the given source id, bypassing the
// Source Collector entirely (used for ad hoc ingestion, not filesystem
// sources tracked by the updater).
func (s *Server) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	var req addDocumentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Content == "" || req.SourceID == "" {
		writeError(w, http.StatusBadRequest, "content and source_id are required")
		return
	}

	chunks := s.chunker.Chunk(req.Content, req.SourceID)
	if len(chunks) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "chunks_added": 0})
		return
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := s.embedder.Encode(r.Context(), texts, embed.Document)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	if err := s.store.DeleteDocumentsBySource(r.Context(), req.SourceID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.store.AddDocuments(r.Context(), chunks, vecs); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "chunks_added": len(chunks)})
}

// handleListDocuments answers GET /api/documents with the tracked file
// list from File Metadata.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	files, err := s.store.GetTrackedFiles(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, files)
}

// handleStats answers GET /api/stats with the store's live/tombstoned
// chunk and file counts.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleMetricsJSON answers GET /api/metrics with the moving-average
// latency and counter snapshot.
func (s *Server) handleMetricsJSON(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.snapshot())
}

// handleUpdate answers POST /api/update: run DetectChanges+Apply for
// every configured source synchronously and report what changed.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	type sourceResult struct {
		New      int `json:"new"`
		Modified int `json:"modified"`
		Deleted  int `json:"deleted"`
		Applied  int `json:"applied"`
	}
	out := make([]sourceResult, 0, len(s.updaters))

	for _, u := range s.updaters {
		info, err := u.DetectChanges(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		applied, err := u.Apply(r.Context(), info)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out = append(out, sourceResult{
			New:      len(info.New),
			Modified: len(info.Modified),
			Deleted:  len(info.Deleted),
			Applied:  applied,
		})
	}

	if err := s.store.Persist(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"sources": out})
}

// handleAuthenticate answers POST /api/authenticate: verify the Basic
// credential and exchange it for a bearer token.
func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Basic ") {
		s.unauthorized(w)
		return
	}
	password, ok := decodeBasicPassword(strings.TrimPrefix(header, "Basic "))
	if !ok || !s.admin.VerifyPassword(password) {
		s.unauthorized(w)
		return
	}

	token, err := s.tokens.Issue()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_in": int(auth.TokenExpiry.Seconds()),
	})
}

// handleGetSetup answers GET /api/setup (auth-protected) by echoing the
// stored configuration.
func (s *Server) handleGetSetup(w http.ResponseWriter, r *http.Request) {
	if s.config == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	cfg, err := s.config.Get()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handlePostSetup answers POST /api/setup (auth-protected) by replacing
// the stored configuration with the request body.
func (s *Server) handlePostSetup(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if s.config == nil {
		writeError(w, http.StatusServiceUnavailable, "configuration store is not wired")
		return
	}
	if err := s.config.Set(body); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, body)
}
