package config

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/nesall/ragd/internal/errors"
)

// Echo adapts a *Config to httpapi.ConfigEcho: GET/PUT /api/setup read and
// write the configuration as an opaque JSON document, guarded by a mutex
// since the HTTP facade may call Set concurrently with the watch loop
// reading individual sections.
type Echo struct {
	mu   sync.RWMutex
	path string
	cfg  *Config
}

// NewEcho wraps cfg for /api/setup use. Set persists back to path when
// path is non-empty.
func NewEcho(cfg *Config, path string) *Echo {
	return &Echo{cfg: cfg, path: path}
}

// Get returns the current configuration as a generic JSON document.
func (e *Echo) Get() (map[string]any, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	data, err := json.Marshal(e.cfg)
	if err != nil {
		return nil, errors.ConfigError("failed to marshal configuration", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.ConfigError("failed to re-decode configuration", err)
	}
	return out, nil
}

// Set replaces the configuration from a generic JSON document, validates
// it, and persists it to disk when a path was given.
func (e *Echo) Set(doc map[string]any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return errors.ConfigError("failed to encode submitted configuration", err)
	}

	updated := NewConfig()
	if err := json.Unmarshal(data, updated); err != nil {
		return errors.ConfigError("failed to parse submitted configuration", err)
	}
	if err := updated.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = updated
	if e.path != "" {
		if err := os.WriteFile(e.path, data, 0644); err != nil {
			return errors.ConfigError("failed to persist configuration", err)
		}
	}
	return nil
}
