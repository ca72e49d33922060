// Package watcher emits a coarse "something changed" signal for a watched
// directory or file. It exists to let the indexing loop wake up early
// instead of waiting out its poll interval; it does not try to describe
// what changed, since Updater.DetectChanges already does that by diffing
// stored File Metadata against a fresh scan. A single coalesced pulse per
// debounce window is all a caller ever needs.
//
// fsnotify is used when available; if the platform or environment doesn't
// support it, Watcher falls back to periodically fingerprinting the tree.
//
// Example:
//
//	w, err := watcher.New(watcher.DefaultOptions())
//	if err != nil {
//		// handle error
//	}
//	if err := w.Start(ctx, "/path/to/project"); err != nil {
//		// handle error
//	}
//	defer w.Stop()
//
//	for range w.Changes() {
//		// re-run detection / apply
//	}
package watcher
