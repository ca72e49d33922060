// Package gitignore implements gitignore pattern matching (syntax per
// https://git-scm.com/docs/gitignore) for the two ragd components that
// need to skip paths a project has opted out of: the source collector,
// which consults each directory's own .gitignore while walking a
// KindDirectory source, and the change watcher, which uses the same rules
// to avoid waking the indexing loop over ignored paths.
//
// Features:
//   - Basic pattern matching (*.log, temp/)
//   - Wildcard patterns (*, ?, **)
//   - Rooted patterns (/build)
//   - Negation patterns (!important.log)
//   - Directory-only patterns (build/)
//   - Nested gitignore file support
//   - Thread-safe matching
//
// Usage:
//
//	m := gitignore.NewWithExclusions("*.generated.go")
//	m.AddFromFile("/path/to/project/.gitignore", "")
//
//	if m.Match("error.log", false) {
//	    // path is excluded
//	}
//
// For nested gitignore files:
//
//	m.AddFromFile("/path/to/project/.gitignore", "")
//	m.AddFromFile("/path/to/project/src/.gitignore", "src")
package gitignore
