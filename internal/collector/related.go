package collector

import (
	"path/filepath"
	"sort"
	"strings"
)

// FilterRelatedSources returns the sources judged related to primary: those
// sharing its directory, sharing its basename stem with a different
// extension (e.g. widget.h / widget.cpp), or whose stem textually
// co-occurs with primary's stem. The result is deterministically ordered
// and includes primary itself at most once, as its first element.
func FilterRelatedSources(all []Source, primary Source) []Source {
	primaryDir := filepath.Dir(primary.URI)
	primaryStem := stem(primary.URI)

	var related []Source
	seen := map[string]bool{primary.URI: true}
	related = append(related, primary)

	var candidates []Source
	for _, s := range all {
		if s.URI == primary.URI || seen[s.URI] {
			continue
		}
		if isRelated(s, primary, primaryDir, primaryStem) {
			candidates = append(candidates, s)
			seen[s.URI] = true
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].URI < candidates[j].URI
	})

	related = append(related, candidates...)
	return related
}

func isRelated(s, primary Source, primaryDir, primaryStem string) bool {
	if s.IsURL || primary.IsURL {
		return s.URI == primary.URI
	}
	if filepath.Dir(s.URI) == primaryDir {
		return true
	}
	sStem := stem(s.URI)
	if sStem == primaryStem {
		return true
	}
	if primaryStem != "" && (strings.Contains(sStem, primaryStem) || strings.Contains(primaryStem, sStem)) {
		return true
	}
	return false
}

// stem returns a file's basename without extension.
func stem(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext)
}
