package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/nesall/ragd/internal/chunk"
	"github.com/nesall/ragd/internal/errors"
	"github.com/nesall/ragd/internal/retrieval"
)

// processLock guards one store directory against concurrent access from a
// second process instance, using an OS-level advisory file lock that
// survives process restarts.
type processLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

func newProcessLock(dir string) *processLock {
	return &processLock{path: filepath.Join(dir, ".store.lock"), flock: flock.New(filepath.Join(dir, ".store.lock"))}
}

func (l *processLock) tryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire store lock: %w", err)
	}
	l.locked = ok
	return ok, nil
}

func (l *processLock) unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	return l.flock.Unlock()
}

// Store is the hybrid vector store: an ANN index over embeddings and a
// relational store over File Metadata and Chunk Rows, kept consistent
// under a shared writer lock. Reads (search, stats, tracked files) proceed
// concurrently with each other; writes and compact are mutually exclusive.
type Store struct {
	mu sync.RWMutex

	ann *annIndex
	rel *relStore
	plk *processLock

	dir       string
	indexPath string
}

// Open opens (or creates) a store rooted at dir, with vectors of the given
// dimension. The relational database lives at dir/metadata.db, the ANN
// index at dir/vectors.hnsw(+.meta), guarded by an advisory process lock.
func Open(dir string, cfg VectorStoreConfig) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.IOError("failed to create store directory", err)
	}

	plk := newProcessLock(dir)
	acquired, err := plk.tryLock()
	if err != nil {
		return nil, errors.StoreError(errors.ErrCodeStoreBusy, "failed to acquire store lock", err)
	}
	if !acquired {
		return nil, errors.StoreError(errors.ErrCodeStoreBusy, "store is already open in another process", nil)
	}

	indexPath := filepath.Join(dir, "vectors.hnsw")
	if existing, err := readANNDimensions(indexPath); err == nil && existing > 0 && cfg.Dimensions > 0 && existing != cfg.Dimensions {
		_ = plk.unlock()
		return nil, errors.StoreError(errors.ErrCodeDimensionMismatch,
			fmt.Sprintf("store was built with dimension %d, configured dimension is %d", existing, cfg.Dimensions), nil)
	}

	ann := newANNIndex(cfg)
	if err := ann.load(indexPath); err != nil {
		_ = plk.unlock()
		return nil, err
	}

	rel, err := openRelStore(filepath.Join(dir, "metadata.db"))
	if err != nil {
		_ = plk.unlock()
		return nil, err
	}

	if mismatch := crossCheckConsistency(ann, rel); mismatch != nil {
		_ = rel.close()
		_ = plk.unlock()
		return nil, mismatch
	}

	return &Store{ann: ann, rel: rel, plk: plk, dir: dir, indexPath: indexPath}, nil
}

// OpenInMemory opens a store backed by an in-memory relational database
// and a fresh ANN index, with no process lock. Used by tests.
func OpenInMemory(cfg VectorStoreConfig) (*Store, error) {
	ann := newANNIndex(cfg)
	rel, err := openRelStore("")
	if err != nil {
		return nil, err
	}
	return &Store{ann: ann, rel: rel}, nil
}

// crossCheckConsistency verifies that every non-deleted chunk row's
// vector_id is present in the loaded ANN index; ANN ids without a row are
// not checked. A mismatch most likely indicates a crash between commit and
// persist; Open then fails with an Integrity StoreError and performs no
// rebuild.
func crossCheckConsistency(ann *annIndex, rel *relStore) error {
	ids, _, err := rel.liveChunksOrderedByVectorID(context.Background())
	if err != nil {
		return errors.StoreError(errors.ErrCodeStoreIntegrity, "failed to read chunk rows for consistency check", err)
	}

	ann.mu.RLock()
	defer ann.mu.RUnlock()

	for _, id := range ids {
		if _, ok := ann.vectors[id]; !ok {
			return errors.StoreError(errors.ErrCodeStoreIntegrity,
				"relational store references a vector_id absent from the vector index; run compact or reindex", nil)
		}
	}
	return nil
}

func readANNDimensions(path string) (int, error) {
	metaPath := path + ".meta"
	if _, err := os.Stat(metaPath); os.IsNotExist(err) {
		return 0, nil
	}
	idx := newANNIndex(VectorStoreConfig{})
	if err := idx.load(path); err != nil {
		return 0, err
	}
	return idx.config.Dimensions, nil
}

// AddDocument inserts one chunk row and pushes its vector into the ANN
// index under a fresh vector_id.
func (s *Store) AddDocument(ctx context.Context, c chunk.Chunk, vec []float32) error {
	return s.AddDocuments(ctx, []chunk.Chunk{c}, [][]float32{vec})
}

// AddDocuments is the batch variant: a single transactional step per
// §4.6. ANN inserts are staged first; relational commit is the point of
// truth, so a relational failure leaves orphaned-but-harmless ANN entries
// that a subsequent compact will reclaim.
func (s *Store) AddDocuments(ctx context.Context, chunks []chunk.Chunk, vecs [][]float32) error {
	if len(chunks) != len(vecs) {
		return errors.RequestError("chunks and vectors length mismatch")
	}
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	vectorIDs := make([]uint64, len(vecs))
	for i, v := range vecs {
		id, err := s.ann.add(v)
		if err != nil {
			s.ann.remove(vectorIDs[:i])
			return err
		}
		vectorIDs[i] = id
	}

	if err := s.rel.insertChunks(ctx, chunks, vectorIDs); err != nil {
		s.ann.remove(vectorIDs)
		return err
	}

	return nil
}

// DeleteDocumentsBySource tombstones all chunk rows and ANN entries for
// doc_uri.
func (s *Store) DeleteDocumentsBySource(ctx context.Context, docURI string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.rel.deleteChunksBySource(ctx, docURI)
	if err != nil {
		return err
	}
	s.ann.remove(ids)
	return nil
}

// DeleteDocumentsBySources tombstones chunk rows and removes file metadata
// for every uri in docURIs as one relational transaction: either all
// sources are applied or none are, satisfying the Incremental Updater's
// "deletions execute first in a single transaction" requirement.
func (s *Store) DeleteDocumentsBySources(ctx context.Context, docURIs []string) error {
	if len(docURIs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idsBySource, err := s.rel.deleteChunksBySources(ctx, docURIs)
	if err != nil {
		return err
	}
	for _, ids := range idsBySource {
		s.ann.remove(ids)
	}
	return nil
}

// RemoveFileMetadata removes the File Metadata row for uri. Callers must
// have already deleted its chunks.
func (s *Store) RemoveFileMetadata(ctx context.Context, uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rel.deleteFile(ctx, uri)
}

// SaveFileMetadata upserts the File Metadata row for a source.
func (s *Store) SaveFileMetadata(ctx context.Context, fm FileMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rel.saveFile(ctx, fm)
}

// GetFileMetadata returns the tracked File Metadata for path, or nil if
// untracked.
func (s *Store) GetFileMetadata(ctx context.Context, path string) (*FileMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rel.getFile(ctx, path)
}

// Search performs ANN top-k, filters tombstones, joins chunk rows, and
// returns Search Results sorted by descending similarity.
func (s *Store) Search(ctx context.Context, queryVec []float32, k int) ([]retrieval.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hits, err := s.ann.search(queryVec, k)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]uint64, len(hits))
	for i, h := range hits {
		ids[i] = h.VectorID
	}

	rowsByID, err := s.rel.chunksByVectorIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]retrieval.SearchResult, 0, len(hits))
	for _, h := range hits {
		c, ok := rowsByID[h.VectorID]
		if !ok {
			// Tombstoned between the ANN search and the relational join.
			continue
		}
		results = append(results, retrieval.SearchResult{
			Content:    c.Text,
			SourceID:   c.DocURI,
			ChunkUnit:  string(c.Unit),
			ChunkType:  string(c.Type),
			ChunkID:    c.ChunkID,
			Start:      c.Start,
			End:        c.End,
			Similarity: float64(h.Similarity),
		})
	}

	return results, nil
}

// Compact rewrites the ANN index with only live vectors, reassigns
// vector_ids, updates chunk rows, and purges tombstoned rows. It is
// exclusive: callers must not run it concurrently with writers or
// searchers, which the Store's write lock already enforces.
func (s *Store) Compact(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, _, err := s.rel.liveChunksOrderedByVectorID(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		// Still purge any tombstoned rows and reset the ANN index to empty.
		if err := s.rel.applyCompaction(ctx, nil); err != nil {
			return err
		}
		s.ann.rebuild(nil, nil)
		return nil
	}

	s.ann.mu.RLock()
	vecs := make([][]float32, len(ids))
	for i, id := range ids {
		vecs[i] = s.ann.vectors[id]
	}
	s.ann.mu.RUnlock()

	remap := s.ann.rebuild(ids, vecs)
	return s.rel.applyCompaction(ctx, remap)
}

// Persist flushes the relational WAL and writes the ANN index file
// atomically (write-to-temp, fsync, rename).
func (s *Store) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.rel.checkpoint(); err != nil {
		return errors.StoreError(errors.ErrCodeStoreTransaction, "failed to checkpoint metadata store", err)
	}
	if s.indexPath == "" {
		return nil // in-memory store, nothing to persist to disk
	}
	return s.ann.save(s.indexPath)
}

// GetTrackedFiles returns every File Metadata row.
func (s *Store) GetTrackedFiles(ctx context.Context) ([]FileMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rel.listFiles(ctx)
}

// GetChunkCountsBySources returns the live chunk count per doc_uri.
func (s *Store) GetChunkCountsBySources(ctx context.Context) ([]ChunkCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rel.chunkCountsBySource(ctx)
}

// GetStats reports the store's current contents.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	live, tombstoned, files, err := s.rel.stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	annLive, annNodes := s.ann.stats()
	_ = annLive // reported for diagnostics; relational `live` is the source of truth

	return Stats{
		LiveChunks:       live,
		TombstonedChunks: tombstoned,
		TrackedFiles:     files,
		ANNNodes:         annNodes,
	}, nil
}

// Clear truncates both backing stores.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.rel.clear(ctx); err != nil {
		return err
	}
	s.ann.rebuild(nil, nil)
	return nil
}

// Close releases the relational connection and the process lock.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ann.close()
	err := s.rel.close()
	if s.plk != nil {
		if unlockErr := s.plk.unlock(); unlockErr != nil && err == nil {
			err = unlockErr
		}
	}
	return err
}
