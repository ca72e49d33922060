// Package collector implements the source collector: it enumerates files
// and URLs described by configuration, filters them by extension and
// exclusion glob, and fetches their content on demand.
package collector

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nesall/ragd/internal/gitignore"
)

// Kind distinguishes the three configurable source shapes.
type Kind string

const (
	KindDirectory Kind = "directory"
	KindFile      Kind = "file"
	KindURL       Kind = "url"
)

// DefaultMaxFileSizeMB is used when a SourceConfig omits MaxFileSizeMB.
const DefaultMaxFileSizeMB = 10

// SourceConfig describes one entry of the `sources` configuration list.
type SourceConfig struct {
	ID      string   // stable source_id, defaults to Path/URL if empty
	Kind    Kind
	Path    string // for KindDirectory, KindFile
	URL     string // for KindURL
	Headers map[string]string

	Recursive        bool          // directory walk: recurse into subdirectories
	IncludeExts      []string      // extension whitelist, e.g. [".go", ".md"]
	ExcludeGlobs     []string      // per-source exclusion globs, unioned with global
	MaxFileSizeMB    int           // 0 => DefaultMaxFileSizeMB
	RequestTimeout   time.Duration // per-source timeout for KindURL, 0 => collector default
	RespectGitignore bool          // directory walk: consult .gitignore files along the tree
}

// Source is one discovered unit of content.
type Source struct {
	SourceID string
	IsURL    bool
	URI      string // absolute path or URL
	Content  string // empty when lazily populated
	Loaded   bool   // true once Content has been populated
	Size     int64
	ModTime  time.Time
}

// gitignoreCacheSize bounds the per-directory matcher cache, mirroring the
// scanner's bounded-cache policy.
const gitignoreCacheSize = 1000

// Collector walks SourceConfig entries and fetches source content.
type Collector struct {
	globalExcludes []string
	httpTimeout    time.Duration
	gitignoreCache *lru.Cache[string, *gitignore.Matcher]
}

// Option configures a Collector.
type Option func(*Collector)

// WithGlobalExcludes sets exclusion globs applied to every source in
// addition to its own ExcludeGlobs.
func WithGlobalExcludes(globs []string) Option {
	return func(c *Collector) { c.globalExcludes = globs }
}

// WithHTTPTimeout sets the default per-request timeout for url sources
// that do not specify their own.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *Collector) { c.httpTimeout = d }
}

// New creates a Collector.
func New(opts ...Option) *Collector {
	cache, _ := lru.New[string, *gitignore.Matcher](gitignoreCacheSize)
	c := &Collector{httpTimeout: 30 * time.Second, gitignoreCache: cache}
	for _, o := range opts {
		o(c)
	}
	return c
}
