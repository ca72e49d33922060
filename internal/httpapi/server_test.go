package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nesall/ragd/internal/auth"
	"github.com/nesall/ragd/internal/chunk"
	"github.com/nesall/ragd/internal/collector"
	"github.com/nesall/ragd/internal/completion"
	"github.com/nesall/ragd/internal/embed"
	"github.com/nesall/ragd/internal/retrieval"
	"github.com/nesall/ragd/internal/store"
	"github.com/nesall/ragd/internal/tokenizer"
	"github.com/nesall/ragd/internal/update"
)

const testDim = 4

func fakeEmbedServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content []string `json:"content"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		out := make([][]float32, len(body.Content))
		for i := range body.Content {
			out[i] = []float32{1, 0, 0, 0}
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(out))
	}))
}

func fakeCompletionServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Stream bool `json:"stream"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if !body.Stream {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"` + reply + `"}}]}`))
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for _, word := range strings.Fields(reply) {
			chunkJSON, _ := json.Marshal(map[string]any{
				"choices": []map[string]any{{"delta": map[string]string{"content": word + " "}}},
			})
			_, _ = w.Write([]byte("data: " + string(chunkJSON) + "\n\n"))
			flusher.Flush()
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
		flusher.Flush()
	}))
}

type testServer struct {
	*Server
	store *store.Store
}

func newTestServer(t *testing.T, dir string, completionReply string) *testServer {
	t.Helper()

	embedSrv := fakeEmbedServer(t)
	t.Cleanup(embedSrv.Close)
	completionSrv := fakeCompletionServer(t, completionReply)
	t.Cleanup(completionSrv.Close)

	st, err := store.OpenInMemory(store.DefaultVectorStoreConfig(testDim))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	tok := tokenizer.NewFromVocab([]string{"the", "quick", "brown", "fox"})
	chunker := chunk.New(tok, chunk.Options{MinTokens: 1, MaxTokens: 200, OverlapFraction: 0})
	embedder := embed.New(embed.Config{Endpoint: embedSrv.URL, VectorDim: testDim})
	t.Cleanup(func() { _ = embedder.Close() })
	completionClient := completion.New(completion.Config{Endpoint: completionSrv.URL, Model: "test-model"})

	coll := collector.New()
	sourceCfg := collector.SourceConfig{ID: "docs", Kind: collector.KindDirectory, Path: dir, Recursive: true}
	planner := retrieval.New(coll, chunker, embedder, st, []collector.SourceConfig{sourceCfg}, retrieval.Config{})
	updater := update.New(coll, chunker, embedder, st, sourceCfg, update.Config{})

	passPath := filepath.Join(dir, ".admin_password")
	admin, err := auth.Load(passPath)
	require.NoError(t, err)
	tokens := auth.NewTokenIssuer()

	srv := NewServer(Dependencies{
		Planner:    planner,
		Store:      st,
		Collector:  coll,
		Chunker:    chunker,
		Embedder:   embedder,
		Completion: completionClient,
		Tokenizer:  tok,
		PromptCfg:  completion.Config{},
		Updaters:   []*update.Updater{updater},
		Admin:      admin,
		Tokens:     tokens,
		Version:    "test",
	})

	return &testServer{Server: srv, store: st}
}

func TestHandleHealth_ReturnsOK(t *testing.T) {
	srv := newTestServer(t, t.TempDir(), "")

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandleSearch_ReturnsStoreResults(t *testing.T) {
	srv := newTestServer(t, t.TempDir(), "")
	ctx := context.Background()

	require.NoError(t, srv.store.AddDocument(ctx, chunk.Chunk{
		DocURI: "a.txt", ChunkID: "a.txt_0", Text: "alpha beta",
		TokenCount: 2, Unit: chunk.UnitChar, Type: chunk.TypeText,
	}, []float32{1, 0, 0, 0}))

	body, _ := json.Marshal(map[string]any{"query": "alpha", "top_k": 5})
	req := httptest.NewRequest(http.MethodPost, "/api/search", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var results []retrieval.SearchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.NotEmpty(t, results)
	assert.Equal(t, "a.txt", results[0].SourceID)
}

// TestHandleChat_EmptyIndexStillStreamsValidSSE covers the literal
// "Chat streaming" scenario: even against an empty index, the handler
// must produce a valid SSE stream ending in `data: [DONE]` with at least
// one context_sources event.
func TestHandleChat_EmptyIndexStillStreamsValidSSE(t *testing.T) {
	srv := newTestServer(t, t.TempDir(), "hello world")

	reqBody, _ := json.Marshal(map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hi there"}},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var sawContextSources, sawDone bool
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			sawDone = true
			continue
		}
		if strings.Contains(payload, "context_sources") {
			sawContextSources = true
		}
	}
	assert.True(t, sawContextSources, "expected at least one context_sources event")
	assert.True(t, sawDone, "expected the stream to end with [DONE]")
}

// TestSetup_RequiresAuthentication covers the literal "Authentication"
// scenario from spec §8: missing credential, wrong credential, and
// correct credential against GET/POST /api/setup.
func TestSetup_RequiresAuthentication(t *testing.T) {
	srv := newTestServer(t, t.TempDir(), "")

	req := httptest.NewRequest(http.MethodGet, "/api/setup", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic realm=")

	req = httptest.NewRequest(http.MethodGet, "/api/setup", nil)
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:wrong")))
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/setup", nil)
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:"+auth.DefaultPassword)))
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticate_ExchangesBasicForBearerToken(t *testing.T) {
	srv := newTestServer(t, t.TempDir(), "")

	req := httptest.NewRequest(http.MethodPost, "/api/authenticate", nil)
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:"+auth.DefaultPassword)))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)

	req = httptest.NewRequest(http.MethodGet, "/api/setup", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleMetricsJSON_ReflectsObservedRequests(t *testing.T) {
	srv := newTestServer(t, t.TempDir(), "")

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	srv.Handler().ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.GreaterOrEqual(t, snap.TotalRequests, uint64(1))
}

func TestHandlePrometheusMetrics_ExposesTextFormat(t *testing.T) {
	srv := newTestServer(t, t.TempDir(), "")

	// A labelled counter series only appears once a request has been
	// observed, and /metrics itself is not counted.
	srv.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/health", nil))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ragd_http_requests_total")
}
