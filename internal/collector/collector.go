package collector

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nesall/ragd/internal/errors"
	"github.com/nesall/ragd/internal/gitignore"
)

// Collect walks a single SourceConfig and streams discovered Sources.
// When readContent is false, directory/file sources are enumerated with
// Content left empty (Loaded=false); url sources always fetch, since a
// URL's existence cannot otherwise be confirmed cheaply.
func (c *Collector) Collect(ctx context.Context, src SourceConfig, readContent bool) ([]Source, error) {
	switch src.Kind {
	case KindDirectory:
		return c.collectDirectory(ctx, src, readContent)
	case KindFile:
		return c.collectFile(src, readContent)
	case KindURL:
		return c.collectURL(ctx, src)
	default:
		return nil, errors.ConfigError("unknown source kind: "+string(src.Kind), nil)
	}
}

func (c *Collector) maxFileSize(src SourceConfig) int64 {
	mb := src.MaxFileSizeMB
	if mb <= 0 {
		mb = DefaultMaxFileSizeMB
	}
	return int64(mb) * 1024 * 1024
}

func (c *Collector) excludeGlobs(src SourceConfig) []string {
	globs := make([]string, 0, len(c.globalExcludes)+len(src.ExcludeGlobs))
	globs = append(globs, c.globalExcludes...)
	globs = append(globs, src.ExcludeGlobs...)
	return globs
}

func (c *Collector) collectDirectory(ctx context.Context, src SourceConfig, readContent bool) ([]Source, error) {
	root := src.Path
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.IOError("cannot stat source directory "+root, err)
	}
	if !info.IsDir() {
		return nil, errors.ConfigError(root+" is not a directory", nil)
	}

	globs := c.excludeGlobs(src)
	maxSize := c.maxFileSize(src)
	var out []Source

	walkFn := func(path string, d os.DirEntry, walkErr error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if walkErr != nil {
			return nil
		}
		if path == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		if d.IsDir() {
			if !src.Recursive && path != root {
				return filepath.SkipDir
			}
			if matchesAnyGlob(rel, globs) {
				return filepath.SkipDir
			}
			if src.RespectGitignore && c.isGitignored(root, path, rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if matchesAnyGlob(rel, globs) {
			return nil
		}
		if src.RespectGitignore && c.isGitignored(root, path, rel, false) {
			return nil
		}
		if !extensionAllowed(path, src.IncludeExts) {
			return nil
		}
		fi, statErr := d.Info()
		if statErr != nil {
			return nil
		}
		if fi.Size() > maxSize {
			return nil
		}

		s := Source{
			SourceID: sourceID(src, path),
			IsURL:    false,
			URI:      path,
			Size:     fi.Size(),
			ModTime:  fi.ModTime(),
		}
		if readContent {
			content, readErr := os.ReadFile(path)
			if readErr != nil {
				return nil
			}
			s.Content = string(content)
			s.Loaded = true
		}
		out = append(out, s)
		return nil
	}

	if err := filepath.WalkDir(root, walkFn); err != nil && err != context.Canceled {
		return out, err
	}
	return out, nil
}

func (c *Collector) collectFile(src SourceConfig, readContent bool) ([]Source, error) {
	fi, err := os.Stat(src.Path)
	if err != nil {
		return nil, errors.IOError("cannot stat source file "+src.Path, err)
	}
	if fi.Size() > c.maxFileSize(src) {
		return nil, nil
	}

	s := Source{
		SourceID: sourceID(src, src.Path),
		IsURL:    false,
		URI:      src.Path,
		Size:     fi.Size(),
		ModTime:  fi.ModTime(),
	}
	if readContent {
		content, err := os.ReadFile(src.Path)
		if err != nil {
			return nil, errors.IOError("cannot read source file "+src.Path, err)
		}
		s.Content = string(content)
		s.Loaded = true
	}
	return []Source{s}, nil
}

func (c *Collector) collectURL(ctx context.Context, src SourceConfig) ([]Source, error) {
	timeout := src.RequestTimeout
	if timeout <= 0 {
		timeout = c.httpTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, errors.IOError("invalid source url "+src.URL, err)
	}
	for k, v := range src.Headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errors.IOError("fetching source url "+src.URL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.IOError("source url returned non-200 status: "+src.URL, nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.IOError("reading source url body "+src.URL, err)
	}

	return []Source{{
		SourceID: sourceID(src, src.URL),
		IsURL:    true,
		URI:      src.URL,
		Content:  string(body),
		Loaded:   true,
		Size:     int64(len(body)),
		ModTime:  time.Now(),
	}}, nil
}

// FetchSource retrieves the content for a previously discovered source on
// demand, used when the initial Collect pass skipped content (lazy mode).
func (c *Collector) FetchSource(ctx context.Context, src SourceConfig, uri string) (Source, error) {
	switch src.Kind {
	case KindURL:
		results, err := c.collectURL(ctx, src)
		if err != nil {
			return Source{}, err
		}
		return results[0], nil
	default:
		fi, err := os.Stat(uri)
		if err != nil {
			return Source{}, errors.IOError("cannot stat "+uri, err)
		}
		content, err := os.ReadFile(uri)
		if err != nil {
			return Source{}, errors.IOError("cannot read "+uri, err)
		}
		return Source{
			SourceID: sourceID(src, uri),
			IsURL:    false,
			URI:      uri,
			Content:  string(content),
			Loaded:   true,
			Size:     fi.Size(),
			ModTime:  fi.ModTime(),
		}, nil
	}
}

// isGitignored checks a root-relative path against every .gitignore file
// from root down to its containing directory, one cached matcher per
// directory, mirroring the scanner's nested-gitignore resolution.
func (c *Collector) isGitignored(root, path, rel string, isDir bool) bool {
	if c.gitignoreCache == nil {
		return false
	}

	if m := c.gitignoreMatcher(root, ""); m != nil && m.Match(rel, isDir) {
		return true
	}

	parts := strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/")
	currentDir := root
	currentBase := ""
	for _, part := range parts {
		if part == "." || part == "" {
			continue
		}
		currentDir = filepath.Join(currentDir, part)
		if currentBase == "" {
			currentBase = part
		} else {
			currentBase = filepath.Join(currentBase, part)
		}
		if m := c.gitignoreMatcher(currentDir, currentBase); m != nil && m.Match(rel, isDir) {
			return true
		}
	}

	return false
}

// gitignoreMatcher returns the cached matcher for dir's own .gitignore
// file, loading and caching it on first use. Returns nil when the
// directory has no .gitignore.
func (c *Collector) gitignoreMatcher(dir, base string) *gitignore.Matcher {
	if m, ok := c.gitignoreCache.Get(dir); ok {
		return m
	}

	giPath := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(giPath); err != nil {
		return nil
	}

	m := gitignore.New()
	if err := m.AddFromFile(giPath, base); err != nil {
		return nil
	}
	c.gitignoreCache.Add(dir, m)
	return m
}

func sourceID(src SourceConfig, uri string) string {
	if src.ID != "" {
		return src.ID + ":" + uri
	}
	return uri
}

func extensionAllowed(path string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, a := range allowed {
		if strings.ToLower(a) == ext {
			return true
		}
	}
	return false
}

func matchesAnyGlob(relPath string, globs []string) bool {
	base := filepath.Base(relPath)
	for _, g := range globs {
		if ok, _ := filepath.Match(g, relPath); ok {
			return true
		}
		if ok, _ := filepath.Match(g, base); ok {
			return true
		}
	}
	return false
}
