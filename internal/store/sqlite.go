package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO

	"github.com/nesall/ragd/internal/chunk"
	"github.com/nesall/ragd/internal/errors"
)

// relStore is the relational half of the hybrid store: File Metadata and
// Chunk Row tables under a single-writer SQLite connection in WAL mode.
type relStore struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	closed bool
}

func validateRelIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='chunk_rows'`).Scan(&count)
	if err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("chunk_rows table missing")
	}

	return nil
}

// openRelStore opens (or creates) the relational store at path. An empty
// path opens an in-memory database, used by tests.
func openRelStore(path string) (*relStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.IOError("failed to create store directory", err)
		}

		if validErr := validateRelIntegrity(path); validErr != nil {
			slog.Warn("metadata store corrupted, clearing and reindexing",
				slog.String("path", path), slog.String("error", validErr.Error()))
			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, errors.StoreError(errors.ErrCodeStoreIntegrity,
					"metadata store corrupted and could not be cleared", removeErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
		}

		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.StoreError(errors.ErrCodeStoreIntegrity, "failed to open metadata store", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, errors.StoreError(errors.ErrCodeStoreIntegrity, "failed to set pragma", err)
		}
	}

	r := &relStore{db: db, path: path}
	if err := r.initSchema(); err != nil {
		_ = db.Close()
		return nil, errors.StoreError(errors.ErrCodeStoreIntegrity, "failed to initialize schema", err)
	}
	return r, nil
}

func (r *relStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS file_metadata (
		path          TEXT PRIMARY KEY,
		last_modified INTEGER NOT NULL,
		file_size     INTEGER NOT NULL,
		num_lines     INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunk_rows (
		chunk_id   TEXT PRIMARY KEY,
		doc_uri    TEXT NOT NULL,
		text       TEXT NOT NULL,
		token_count INTEGER NOT NULL,
		start      INTEGER NOT NULL,
		end        INTEGER NOT NULL,
		unit       TEXT NOT NULL,
		type       TEXT NOT NULL,
		vector_id  INTEGER NOT NULL,
		deleted    INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (doc_uri) REFERENCES file_metadata(path)
	);

	CREATE INDEX IF NOT EXISTS idx_chunk_rows_doc_uri ON chunk_rows(doc_uri);
	CREATE INDEX IF NOT EXISTS idx_chunk_rows_vector_id ON chunk_rows(vector_id);
	`
	_, err := r.db.Exec(schema)
	return err
}

// saveFile upserts a File Metadata row.
func (r *relStore) saveFile(ctx context.Context, fm FileMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO file_metadata(path, last_modified, file_size, num_lines)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET last_modified=excluded.last_modified,
			file_size=excluded.file_size, num_lines=excluded.num_lines`,
		fm.Path, fm.LastModified, fm.FileSize, fm.NumLines)
	return err
}

func (r *relStore) getFile(ctx context.Context, path string) (*FileMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var fm FileMetadata
	err := r.db.QueryRowContext(ctx, `SELECT path, last_modified, file_size, num_lines FROM file_metadata WHERE path = ?`, path).
		Scan(&fm.Path, &fm.LastModified, &fm.FileSize, &fm.NumLines)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &fm, nil
}

func (r *relStore) listFiles(ctx context.Context) ([]FileMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows, err := r.db.QueryContext(ctx, `SELECT path, last_modified, file_size, num_lines FROM file_metadata ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []FileMetadata
	for rows.Next() {
		var fm FileMetadata
		if err := rows.Scan(&fm.Path, &fm.LastModified, &fm.FileSize, &fm.NumLines); err != nil {
			return nil, err
		}
		out = append(out, fm)
	}
	return out, rows.Err()
}

// deleteFile removes a File Metadata row. Only valid once its chunks have
// already been deleted.
func (r *relStore) deleteFile(ctx context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.db.ExecContext(ctx, `DELETE FROM file_metadata WHERE path = ?`, path)
	return err
}

// insertChunks writes chunk rows and their assigned vector_ids inside a
// single transaction.
func (r *relStore) insertChunks(ctx context.Context, chunks []chunk.Chunk, vectorIDs []uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StoreError(errors.ErrCodeStoreTransaction, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunk_rows(chunk_id, doc_uri, text, token_count, start, end, unit, type, vector_id, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(chunk_id) DO UPDATE SET text=excluded.text, token_count=excluded.token_count,
			start=excluded.start, end=excluded.end, unit=excluded.unit, type=excluded.type,
			vector_id=excluded.vector_id, deleted=0`)
	if err != nil {
		return errors.StoreError(errors.ErrCodeStoreTransaction, "failed to prepare chunk insert", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ChunkID, c.DocURI, c.Text, c.TokenCount, c.Start, c.End,
			string(c.Unit), string(c.Type), vectorIDs[i]); err != nil {
			return errors.StoreError(errors.ErrCodeStoreTransaction, "failed to insert chunk row", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.StoreError(errors.ErrCodeStoreTransaction, "failed to commit chunk insert", err)
	}
	return nil
}

// deleteChunksBySource tombstones every chunk row for doc_uri and returns
// the vector_ids that must be tombstoned in the ANN index.
func (r *relStore) deleteChunksBySource(ctx context.Context, docURI string) ([]uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.StoreError(errors.ErrCodeStoreTransaction, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT vector_id FROM chunk_rows WHERE doc_uri = ? AND deleted = 0`, docURI)
	if err != nil {
		return nil, errors.StoreError(errors.ErrCodeStoreTransaction, "failed to query chunk rows for deletion", err)
	}
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if _, err := tx.ExecContext(ctx, `UPDATE chunk_rows SET deleted = 1 WHERE doc_uri = ? AND deleted = 0`, docURI); err != nil {
		return nil, errors.StoreError(errors.ErrCodeStoreTransaction, "failed to tombstone chunk rows", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.StoreError(errors.ErrCodeStoreTransaction, "failed to commit deletion", err)
	}

	return ids, nil
}

// deleteChunksBySources tombstones every chunk row for each doc_uri in a
// single transaction: either all sources are tombstoned or none are. It
// returns the per-source vector_ids that must be tombstoned in the ANN
// index for the sources that were actually applied before any failure.
func (r *relStore) deleteChunksBySources(ctx context.Context, docURIs []string) (map[string][]uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.StoreError(errors.ErrCodeStoreTransaction, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	ids := make(map[string][]uint64, len(docURIs))
	for _, docURI := range docURIs {
		rows, err := tx.QueryContext(ctx, `SELECT vector_id FROM chunk_rows WHERE doc_uri = ? AND deleted = 0`, docURI)
		if err != nil {
			return nil, errors.StoreError(errors.ErrCodeStoreTransaction, "failed to query chunk rows for deletion", err)
		}
		var vectorIDs []uint64
		for rows.Next() {
			var id uint64
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return nil, err
			}
			vectorIDs = append(vectorIDs, id)
		}
		rowsErr := rows.Err()
		_ = rows.Close()
		if rowsErr != nil {
			return nil, rowsErr
		}
		ids[docURI] = vectorIDs

		if _, err := tx.ExecContext(ctx, `UPDATE chunk_rows SET deleted = 1 WHERE doc_uri = ? AND deleted = 0`, docURI); err != nil {
			return nil, errors.StoreError(errors.ErrCodeStoreTransaction, "failed to tombstone chunk rows", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM file_metadata WHERE path = ?`, docURI); err != nil {
			return nil, errors.StoreError(errors.ErrCodeStoreTransaction, "failed to remove file metadata", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.StoreError(errors.ErrCodeStoreTransaction, "failed to commit batch deletion", err)
	}

	return ids, nil
}

// chunksByVectorIDs joins vector_ids back to their live chunk rows,
// preserving the caller's ordering.
func (r *relStore) chunksByVectorIDs(ctx context.Context, ids []uint64) (map[uint64]chunk.Chunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`SELECT chunk_id, doc_uri, text, token_count, start, end, unit, type, vector_id
		FROM chunk_rows WHERE vector_id IN (%s) AND deleted = 0`, strings.Join(placeholders, ","))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[uint64]chunk.Chunk, len(ids))
	for rows.Next() {
		var c chunk.Chunk
		var unit, typ string
		var vectorID uint64
		if err := rows.Scan(&c.ChunkID, &c.DocURI, &c.Text, &c.TokenCount, &c.Start, &c.End, &unit, &typ, &vectorID); err != nil {
			return nil, err
		}
		c.Unit = chunk.Unit(unit)
		c.Type = chunk.Type(typ)
		out[vectorID] = c
	}
	return out, rows.Err()
}

// liveChunksOrderedByVectorID returns every non-deleted chunk row's
// (vector_id, chunk_id) pair, ordered by vector_id ascending, for compact.
func (r *relStore) liveChunksOrderedByVectorID(ctx context.Context) ([]uint64, []string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx, `SELECT vector_id, chunk_id FROM chunk_rows WHERE deleted = 0 ORDER BY vector_id ASC`)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []uint64
	var chunkIDs []string
	for rows.Next() {
		var id uint64
		var chunkID string
		if err := rows.Scan(&id, &chunkID); err != nil {
			return nil, nil, err
		}
		ids = append(ids, id)
		chunkIDs = append(chunkIDs, chunkID)
	}
	return ids, chunkIDs, rows.Err()
}

// applyCompaction purges tombstoned rows and rewrites surviving rows'
// vector_id per remap (old vector_id -> new vector_id), in one transaction.
func (r *relStore) applyCompaction(ctx context.Context, remap map[uint64]uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StoreError(errors.ErrCodeStoreTransaction, "failed to begin compaction transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_rows WHERE deleted = 1`); err != nil {
		return errors.StoreError(errors.ErrCodeStoreTransaction, "failed to purge tombstoned rows", err)
	}

	stmt, err := tx.PrepareContext(ctx, `UPDATE chunk_rows SET vector_id = ? WHERE vector_id = ?`)
	if err != nil {
		return errors.StoreError(errors.ErrCodeStoreTransaction, "failed to prepare compaction update", err)
	}
	defer func() { _ = stmt.Close() }()

	for oldID, newID := range remap {
		if _, err := stmt.ExecContext(ctx, newID, oldID); err != nil {
			return errors.StoreError(errors.ErrCodeStoreTransaction, "failed to reassign vector_id", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.StoreError(errors.ErrCodeStoreTransaction, "failed to commit compaction", err)
	}
	return nil
}

func (r *relStore) chunkCountsBySource(ctx context.Context) ([]ChunkCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx, `SELECT doc_uri, COUNT(*) FROM chunk_rows WHERE deleted = 0 GROUP BY doc_uri ORDER BY doc_uri`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []ChunkCount
	for rows.Next() {
		var cc ChunkCount
		if err := rows.Scan(&cc.DocURI, &cc.Count); err != nil {
			return nil, err
		}
		out = append(out, cc)
	}
	return out, rows.Err()
}

func (r *relStore) stats(ctx context.Context) (live, tombstoned, files int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunk_rows WHERE deleted = 0`).Scan(&live); err != nil {
		return
	}
	if err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunk_rows WHERE deleted = 1`).Scan(&tombstoned); err != nil {
		return
	}
	err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM file_metadata`).Scan(&files)
	return
}

func (r *relStore) clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StoreError(errors.ErrCodeStoreTransaction, "failed to begin clear transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_rows`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM file_metadata`); err != nil {
		return err
	}
	return tx.Commit()
}

// checkpoint forces a WAL checkpoint, used by persist.
func (r *relStore) checkpoint() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

func (r *relStore) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	_, _ = r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return r.db.Close()
}
