package update

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/nesall/ragd/internal/chunk"
	"github.com/nesall/ragd/internal/collector"
	"github.com/nesall/ragd/internal/embed"
	"github.com/nesall/ragd/internal/errors"
	"github.com/nesall/ragd/internal/store"
)

// Updater keeps an in-memory failure_counts and ignored set across
// invocations of the same process, and drives ingestion from the Source
// Collector through the Chunker and Embedding Client into the Store.
type Updater struct {
	mu sync.Mutex

	collector *collector.Collector
	chunker   *chunk.Chunker
	embedder  *embed.Client
	store     *store.Store
	source    collector.SourceConfig
	cfg       Config

	failureCounts map[string]int
	ignored       map[string]struct{}
}

// New creates an Updater bound to one configured Source.
func New(coll *collector.Collector, chunker *chunk.Chunker, embedder *embed.Client, st *store.Store, source collector.SourceConfig, cfg Config) *Updater {
	return &Updater{
		collector:     coll,
		chunker:       chunker,
		embedder:      embedder,
		store:         st,
		source:        source,
		cfg:           cfg.withDefaults(),
		failureCounts: make(map[string]int),
		ignored:       make(map[string]struct{}),
	}
}

// DetectChanges enumerates the corpus via the Source Collector and
// compares each path's (last_modified, file_size) against the stored File
// Metadata. Paths in the ignore set are skipped entirely.
func (u *Updater) DetectChanges(ctx context.Context) (ChangeInfo, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	sources, err := u.collector.Collect(ctx, u.source, false)
	if err != nil {
		return ChangeInfo{}, err
	}

	current := make(map[string]collector.Source, len(sources))
	for _, s := range sources {
		if _, skip := u.ignored[s.URI]; skip {
			continue
		}
		current[s.URI] = s
	}

	tracked, err := u.store.GetTrackedFiles(ctx)
	if err != nil {
		return ChangeInfo{}, err
	}
	trackedByPath := make(map[string]store.FileMetadata, len(tracked))
	for _, fm := range tracked {
		trackedByPath[fm.Path] = fm
	}

	var info ChangeInfo
	for uri, src := range current {
		fm, isTracked := trackedByPath[uri]
		switch {
		case !isTracked:
			info.New = append(info.New, uri)
		case fm.LastModified != src.ModTime.Unix() || fm.FileSize != src.Size:
			info.Modified = append(info.Modified, uri)
		default:
			info.Unchanged = append(info.Unchanged, uri)
		}
	}
	for path := range trackedByPath {
		if _, isIgnored := u.ignored[path]; isIgnored {
			continue
		}
		if _, stillPresent := current[path]; !stillPresent {
			info.Deleted = append(info.Deleted, path)
		}
	}

	sort.Strings(info.New)
	sort.Strings(info.Modified)
	sort.Strings(info.Deleted)
	sort.Strings(info.Unchanged)

	return info, nil
}

// Apply ingests info. Deletions run first as one transaction; a failure
// there rolls back and aborts the whole update, returning the count
// applied before the failure (zero, since the deletion step is
// all-or-nothing). Modifications and new files are then processed one
// file per transaction; a path with three consecutive failures is
// quarantined into the ignored set and not retried this process.
func (u *Updater) Apply(ctx context.Context, info ChangeInfo) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	applied := 0

	if len(info.Deleted) > 0 {
		if err := u.store.DeleteDocumentsBySources(ctx, info.Deleted); err != nil {
			return applied, err
		}
		applied += len(info.Deleted)
	}

	for _, path := range append(append([]string{}, info.New...), info.Modified...) {
		ok, err := u.applyOne(ctx, path)
		if err != nil {
			slog.Warn("failed to apply source update", slog.String("path", path), slog.String("error", err.Error()))
			u.recordFailure(path)
			continue
		}
		if ok {
			applied++
			delete(u.failureCounts, path)
		}
	}

	return applied, nil
}

// applyOne reads, chunks, embeds and commits one source. It returns
// (false, nil) when the source's content is empty — that is a skip, not a
// failure.
func (u *Updater) applyOne(ctx context.Context, path string) (bool, error) {
	src, err := u.collector.FetchSource(ctx, u.source, path)
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(src.Content) == "" {
		return false, nil
	}

	// Drop any existing chunks for this path before re-indexing.
	if err := u.store.DeleteDocumentsBySource(ctx, path); err != nil {
		return false, err
	}

	chunks := u.chunker.Chunk(src.Content, path)
	if len(chunks) == 0 {
		return false, nil
	}

	if err := u.embedAndAdd(ctx, chunks); err != nil {
		return false, err
	}

	fm := store.FileMetadata{
		Path:         path,
		LastModified: src.ModTime.Unix(),
		FileSize:     src.Size,
		NumLines:     strings.Count(src.Content, "\n") + 1,
	}
	if err := u.store.SaveFileMetadata(ctx, fm); err != nil {
		return false, err
	}

	return true, nil
}

// embedAndAdd embeds chunks in batches of cfg.EmbeddingBatchSize and adds
// each batch to the store.
func (u *Updater) embedAndAdd(ctx context.Context, chunks []chunk.Chunk) error {
	batchSize := u.cfg.EmbeddingBatchSize

	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		var vecs [][]float32
		err := errors.Retry(ctx, u.cfg.EmbedRetry, func() error {
			var encErr error
			vecs, encErr = u.embedder.Encode(ctx, texts, embed.Document)
			return encErr
		})
		if err != nil {
			return err
		}
		if err := u.store.AddDocuments(ctx, batch, vecs); err != nil {
			return err
		}
	}

	return nil
}

func (u *Updater) recordFailure(path string) {
	u.failureCounts[path]++
	if u.failureCounts[path] >= u.cfg.MaxConsecutiveFailures {
		u.ignored[path] = struct{}{}
		slog.Warn("quarantining source after repeated failures", slog.String("path", path),
			slog.Int("failures", u.failureCounts[path]))
	}
}

// Ignored reports the set of paths currently quarantined for this process.
func (u *Updater) Ignored() []string {
	u.mu.Lock()
	defer u.mu.Unlock()

	out := make([]string, 0, len(u.ignored))
	for path := range u.ignored {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}
