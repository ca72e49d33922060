// Package registry tracks running `ragd serve` instances in a single JSON
// file (by default ~/.ragd/registry.json). `serve` registers and
// deregisters itself; no other CLI verb reads the registry.
package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"

	"github.com/nesall/ragd/internal/errors"
)

// Entry describes one running `ragd serve` instance.
type Entry struct {
	PID      int    `json:"pid"`
	Port     int    `json:"port"`
	RootPath string `json:"root_path"`
}

// DefaultPath returns the registry file's default location, ~/.ragd/registry.json.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".ragd", "registry.json")
	}
	return filepath.Join(home, ".ragd", "registry.json")
}

// Registry guards concurrent reads/writes to the registry file with an
// advisory file lock, the same discipline the store uses for its index.
type Registry struct {
	path string
	lock *flock.Flock
}

// Open prepares a Registry at path, creating its parent directory if
// needed. It does not read or write the file until Register/Deregister/
// List is called.
func Open(path string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.IOError("failed to create registry directory", err)
	}
	return &Registry{path: path, lock: flock.New(path + ".lock")}, nil
}

// Register adds or replaces the entry for this process (identified by
// RootPath), pruning any entries whose PID is no longer alive.
func (r *Registry) Register(e Entry) error {
	if err := r.lock.Lock(); err != nil {
		return errors.IOError("failed to lock registry", err)
	}
	defer r.lock.Unlock()

	entries, err := r.readLocked()
	if err != nil {
		return err
	}
	entries = pruneDead(entries)

	replaced := false
	for i, existing := range entries {
		if existing.RootPath == e.RootPath {
			entries[i] = e
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, e)
	}
	return r.writeLocked(entries)
}

// Deregister removes the entry for pid, if present.
func (r *Registry) Deregister(pid int) error {
	if err := r.lock.Lock(); err != nil {
		return errors.IOError("failed to lock registry", err)
	}
	defer r.lock.Unlock()

	entries, err := r.readLocked()
	if err != nil {
		return err
	}
	out := entries[:0]
	for _, e := range entries {
		if e.PID != pid {
			out = append(out, e)
		}
	}
	return r.writeLocked(out)
}

// List returns every live entry, pruning dead ones as a side effect.
func (r *Registry) List() ([]Entry, error) {
	if err := r.lock.Lock(); err != nil {
		return nil, errors.IOError("failed to lock registry", err)
	}
	defer r.lock.Unlock()

	entries, err := r.readLocked()
	if err != nil {
		return nil, err
	}
	live := pruneDead(entries)
	if len(live) != len(entries) {
		if err := r.writeLocked(live); err != nil {
			return nil, err
		}
	}
	return live, nil
}

// FindByRoot returns the entry for rootPath, if a live instance owns it.
func (r *Registry) FindByRoot(rootPath string) (Entry, bool) {
	entries, err := r.List()
	if err != nil {
		return Entry{}, false
	}
	for _, e := range entries {
		if e.RootPath == rootPath {
			return e, true
		}
	}
	return Entry{}, false
}

func (r *Registry) readLocked() ([]Entry, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.IOError("failed to read registry", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.IOError("failed to parse registry", err)
	}
	return entries, nil
}

func (r *Registry) writeLocked(entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return errors.IOError("failed to encode registry", err)
	}
	if err := os.WriteFile(r.path, data, 0644); err != nil {
		return errors.IOError("failed to write registry", err)
	}
	return nil
}

func pruneDead(entries []Entry) []Entry {
	out := entries[:0]
	for _, e := range entries {
		if processAlive(e.PID) {
			out = append(out, e)
		}
	}
	return out
}

// processAlive reports whether pid names a live process. On POSIX,
// signal 0 probes existence without affecting the target.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
