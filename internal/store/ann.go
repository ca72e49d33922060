package store

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	"github.com/nesall/ragd/internal/errors"
)

// annIndex wraps a coder/hnsw graph keyed by dense uint64 vector_ids, with
// lazy-deletion tombstoning. Deleting a node outright can corrupt the graph
// when it is the last remaining node, so deletion only removes the id
// mapping; the orphaned graph node is reclaimed by compact.
type annIndex struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	config  VectorStoreConfig
	vectors map[uint64][]float32 // live id -> stored (normalized) vector, for compact
	nextID  uint64
	closed  bool
}

// annMetadata is the gob-encoded sidecar persisted next to the index file.
type annMetadata struct {
	Vectors map[uint64][]float32
	NextID  uint64
	Config  VectorStoreConfig
}

func newANNIndex(cfg VectorStoreConfig) *annIndex {
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &annIndex{
		graph:   graph,
		config:  cfg,
		vectors: make(map[uint64][]float32),
	}
}

// add inserts a vector and returns its freshly assigned vector_id.
func (a *annIndex) add(vec []float32) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return 0, errors.StoreError(errors.ErrCodeStoreBusy, "vector index is closed", nil)
	}
	if len(vec) != a.config.Dimensions {
		return 0, errors.StoreError(errors.ErrCodeDimensionMismatch,
			fmt.Sprintf("expected vector of dimension %d, got %d", a.config.Dimensions, len(vec)), nil)
	}

	normalized := make([]float32, len(vec))
	copy(normalized, vec)
	if a.config.Metric == "cos" {
		normalizeInPlace(normalized)
	}

	id := a.nextID
	a.nextID++
	a.graph.Add(hnsw.MakeNode(id, normalized))
	a.vectors[id] = normalized

	return id, nil
}

// remove tombstones a vector_id. The graph node itself is left in place
// until compact.
func (a *annIndex) remove(ids []uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, id := range ids {
		delete(a.vectors, id)
	}
}

// search returns the k nearest live vector_ids to query, sorted by
// ascending distance. Tombstoned ids are filtered out.
func (a *annIndex) search(query []float32, k int) ([]VectorResult, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, errors.StoreError(errors.ErrCodeStoreBusy, "vector index is closed", nil)
	}
	if len(query) != a.config.Dimensions {
		return nil, errors.StoreError(errors.ErrCodeDimensionMismatch,
			fmt.Sprintf("expected query of dimension %d, got %d", a.config.Dimensions, len(query)), nil)
	}
	if a.graph.Len() == 0 {
		return nil, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	if a.config.Metric == "cos" {
		normalizeInPlace(normalized)
	}

	// Over-fetch to absorb tombstoned orphans still resident in the graph.
	fetch := k * 4
	if fetch < k+8 {
		fetch = k + 8
	}
	nodes := a.graph.Search(normalized, fetch)

	results := make([]VectorResult, 0, k)
	for _, node := range nodes {
		if _, live := a.vectors[node.Key]; !live {
			continue
		}
		distance := a.graph.Distance(normalized, node.Value)
		results = append(results, VectorResult{
			VectorID:   node.Key,
			Distance:   distance,
			Similarity: distanceToSimilarity(distance, a.config.Metric),
		})
		if len(results) == k {
			break
		}
	}

	return results, nil
}

// stats reports live vs. orphaned (tombstoned) node counts.
func (a *annIndex) stats() (live, graphNodes int) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.vectors), a.graph.Len()
}

// rebuild replaces the graph with a fresh one containing only the given
// live (vector_id -> embedding) pairs, reassigning dense ids in the order
// given by ids. Returns the old-id -> new-id remap for the caller to apply
// to its chunk rows.
func (a *annIndex) rebuild(ids []uint64, vecs [][]float32) map[uint64]uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = a.graph.Distance
	graph.M = a.config.M
	graph.EfSearch = a.config.EfSearch
	graph.Ml = 0.25

	remap := make(map[uint64]uint64, len(ids))
	newVectors := make(map[uint64][]float32, len(ids))
	var nextID uint64
	for i, oldID := range ids {
		newID := nextID
		nextID++
		graph.Add(hnsw.MakeNode(newID, vecs[i]))
		newVectors[newID] = vecs[i]
		remap[oldID] = newID
	}

	a.graph = graph
	a.vectors = newVectors
	a.nextID = nextID

	return remap
}

// save persists the graph and its sidecar metadata via temp-file, fsync,
// rename.
func (a *annIndex) save(path string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return errors.StoreError(errors.ErrCodeStoreBusy, "vector index is closed", nil)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.IOError("failed to create vector index directory", err)
		}
	}

	if err := atomicWrite(path, func(f *os.File) error {
		return a.graph.Export(f)
	}); err != nil {
		return errors.IOError("failed to export vector index", err)
	}

	return a.saveMetadata(path + ".meta")
}

func (a *annIndex) saveMetadata(path string) error {
	meta := annMetadata{Vectors: a.vectors, NextID: a.nextID, Config: a.config}
	return atomicWrite(path, func(f *os.File) error {
		return gob.NewEncoder(f).Encode(meta)
	})
}

// load restores the graph and its sidecar metadata. A missing file pair is
// not an error: it represents a fresh store.
func (a *annIndex) load(path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaFile, err := os.Open(path + ".meta")
	if err != nil {
		return errors.StoreError(errors.ErrCodeStoreIntegrity, "vector index metadata missing or unreadable", err)
	}
	defer func() { _ = metaFile.Close() }()

	var meta annMetadata
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return errors.StoreError(errors.ErrCodeStoreIntegrity, "failed to decode vector index metadata", err)
	}

	indexFile, err := os.Open(path)
	if err != nil {
		return errors.IOError("failed to open vector index", err)
	}
	defer func() { _ = indexFile.Close() }()

	graph := hnsw.NewGraph[uint64]()
	switch meta.Config.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = meta.Config.M
	graph.EfSearch = meta.Config.EfSearch
	graph.Ml = 0.25

	reader := bufio.NewReader(indexFile)
	if err := graph.Import(reader); err != nil {
		return errors.StoreError(errors.ErrCodeStoreIntegrity, "failed to import vector index", err)
	}

	a.graph = graph
	a.vectors = meta.Vectors
	a.nextID = meta.NextID
	a.config = meta.Config

	return nil
}

func (a *annIndex) close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
}

func atomicWrite(path string, write func(f *os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// distanceToSimilarity converts a distance value to a [0,1] similarity
// score. coder/hnsw's cosine distance is 1-cos_sim, so the raw cosine
// similarity is 1-distance, clamped at 0 for obtuse-angle pairs; L2
// distance is monotonically transformed into the same range.
func distanceToSimilarity(distance float32, metric string) float32 {
	if metric == "l2" {
		return 1.0 / (1.0 + distance)
	}
	if distance >= 1.0 {
		return 0.0
	}
	return 1.0 - distance
}
