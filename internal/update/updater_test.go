package update

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nesall/ragd/internal/chunk"
	"github.com/nesall/ragd/internal/collector"
	"github.com/nesall/ragd/internal/embed"
	"github.com/nesall/ragd/internal/store"
	"github.com/nesall/ragd/internal/tokenizer"
)

const testDim = 4

// fakeEmbedServer returns one deterministic unit vector per input text,
// varying by the text's length so distinct content yields distinct vectors.
func fakeEmbedServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content []string `json:"content"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		out := make([][]float32, len(body.Content))
		for i, text := range body.Content {
			v := make([]float32, testDim)
			v[len(text)%testDim] = 1
			out[i] = v
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(out))
	}))
}

func newTestUpdater(t *testing.T, dir string, cfg Config) *Updater {
	t.Helper()

	srv := fakeEmbedServer(t)
	t.Cleanup(srv.Close)

	st, err := store.OpenInMemory(store.DefaultVectorStoreConfig(testDim))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	tok := tokenizer.NewFromVocab([]string{"the", "quick", "brown", "fox"})
	chunker := chunk.New(tok, chunk.Options{MinTokens: 1, MaxTokens: 200, OverlapFraction: 0})

	embedder := embed.New(embed.Config{Endpoint: srv.URL, VectorDim: testDim})
	t.Cleanup(func() { _ = embedder.Close() })

	coll := collector.New()

	src := collector.SourceConfig{
		ID:        "docs",
		Kind:      collector.KindDirectory,
		Path:      dir,
		Recursive: true,
	}

	return New(coll, chunker, embedder, st, src, cfg)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestUpdater_DetectChangesReportsNewModifiedAndDeleted(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "alpha content one")
	writeFile(t, dir, "b.txt", "beta content two")

	u := newTestUpdater(t, dir, Config{})
	ctx := context.Background()

	info, err := u.DetectChanges(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "b.txt")}, info.New)
	assert.Empty(t, info.Modified)
	assert.Empty(t, info.Deleted)

	applied, err := u.Apply(ctx, info)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	// Now delete b.txt, modify a.txt, add c.txt.
	require.NoError(t, os.Remove(filepath.Join(dir, "b.txt")))
	writeFile(t, dir, "a.txt", "alpha content one\nplus another line")
	writeFile(t, dir, "c.txt", "gamma content three")

	info2, err := u.DetectChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "c.txt")}, info2.New)
	assert.Equal(t, []string{filepath.Join(dir, "a.txt")}, info2.Modified)
	assert.Equal(t, []string{filepath.Join(dir, "b.txt")}, info2.Deleted)
	assert.Equal(t, 3, info2.Total())

	applied2, err := u.Apply(ctx, info2)
	require.NoError(t, err)
	assert.Equal(t, 3, applied2)

	tracked, err := u.store.GetTrackedFiles(ctx)
	require.NoError(t, err)
	paths := make([]string, len(tracked))
	for i, fm := range tracked {
		paths[i] = fm.Path
	}
	assert.ElementsMatch(t, []string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "c.txt")}, paths)
}

func TestUpdater_SecondUpdateOnUnchangedCorpusIsNoOp(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "alpha content one")

	u := newTestUpdater(t, dir, Config{})
	ctx := context.Background()

	info, err := u.DetectChanges(ctx)
	require.NoError(t, err)
	applied, err := u.Apply(ctx, info)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	info2, err := u.DetectChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, info2.Total())

	applied2, err := u.Apply(ctx, info2)
	require.NoError(t, err)
	assert.Equal(t, 0, applied2)
}

func TestUpdater_EmptyFileIsSkippedNotCountedAsFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "empty.txt", "   \n  ")

	u := newTestUpdater(t, dir, Config{})
	ctx := context.Background()

	info, err := u.DetectChanges(ctx)
	require.NoError(t, err)
	require.Len(t, info.New, 1)

	applied, err := u.Apply(ctx, info)
	require.NoError(t, err)
	assert.Equal(t, 0, applied)
	assert.Empty(t, u.Ignored())
	assert.Equal(t, 0, u.failureCounts[filepath.Join(dir, "empty.txt")])
}

func TestUpdater_QuarantinesPathAfterMaxConsecutiveFailures(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	writeFile(t, dir, "a.txt", "alpha content one")

	u := newTestUpdater(t, dir, Config{MaxConsecutiveFailures: 3})
	ctx := context.Background()

	// Simulate repeated failures directly rather than forcing real I/O
	// errors, mirroring how failureCounts accumulates across Apply calls.
	for i := 0; i < 3; i++ {
		u.recordFailure(path)
	}

	assert.Contains(t, u.Ignored(), path)

	info, err := u.DetectChanges(ctx)
	require.NoError(t, err)
	assert.NotContains(t, info.New, path)
}

func TestUpdater_DeletionIncludingUntrackedPathSucceedsInOneCall(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "alpha content one")

	u := newTestUpdater(t, dir, Config{})
	ctx := context.Background()

	info, err := u.DetectChanges(ctx)
	require.NoError(t, err)
	_, err = u.Apply(ctx, info)
	require.NoError(t, err)

	// A delete for a tracked path plus one never tracked still succeeds
	// as a single transaction — deletion of an absent source is a no-op,
	// not a failure, so this primarily documents the all-or-nothing call
	// shape rather than forcing a real failure path.
	bogus := ChangeInfo{Deleted: []string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "never-existed.txt")}}
	applied, err := u.Apply(ctx, bogus)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	tracked, err := u.store.GetTrackedFiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, tracked)
}
