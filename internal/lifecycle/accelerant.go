package lifecycle

import (
	"context"
	"log/slog"

	"github.com/nesall/ragd/internal/collector"
	"github.com/nesall/ragd/internal/watcher"
)

// Accelerant watches configured directory/file sources and wakes a
// WatchLoop early on any filesystem change, rather than driving ingestion
// itself; it never calls Updater.Apply. URL
// sources have nothing to watch and are skipped.
type Accelerant struct {
	watchers []*watcher.Watcher
}

// StartAccelerant starts one Watcher per directory/file source and wires
// its change pulses to wake loop. It returns immediately; watchers run
// until ctx is cancelled.
func StartAccelerant(ctx context.Context, sources []collector.SourceConfig, loop *WatchLoop) *Accelerant {
	a := &Accelerant{}

	for _, src := range sources {
		if src.Kind == collector.KindURL {
			continue
		}

		w, err := watcher.New(watcher.DefaultOptions())
		if err != nil {
			slog.Warn("accelerant: failed to create watcher", slog.String("path", src.Path), slog.String("error", err.Error()))
			continue
		}
		if err := w.Start(ctx, src.Path); err != nil {
			slog.Warn("accelerant: failed to watch path", slog.String("path", src.Path), slog.String("error", err.Error()))
			continue
		}
		a.watchers = append(a.watchers, w)

		go func(w *watcher.Watcher) {
			for {
				select {
				case _, ok := <-w.Changes():
					if !ok {
						return
					}
					loop.WakeNow()
				case _, ok := <-w.Errors():
					if !ok {
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}(w)
	}

	return a
}

// Stop releases every underlying watcher.
func (a *Accelerant) Stop() {
	for _, w := range a.watchers {
		if err := w.Stop(); err != nil {
			slog.Warn("accelerant: failed to stop watcher", slog.String("error", err.Error()))
		}
	}
}
