package lifecycle

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nesall/ragd/internal/async"
	"github.com/nesall/ragd/internal/store"
	"github.com/nesall/ragd/internal/update"
)

// pollSlice bounds how long WatchLoop sleeps between checks of the
// shutdown flag and the "tick now" signal, per spec's "sleeps in <=100ms
// slices" requirement.
const pollSlice = 100 * time.Millisecond

// SourceUpdater is the subset of *update.Updater a WatchLoop drives.
// Satisfied by *update.Updater; narrowed for testability.
type SourceUpdater interface {
	DetectChanges(ctx context.Context) (update.ChangeInfo, error)
	Apply(ctx context.Context, info update.ChangeInfo) (int, error)
}

// WatchLoop runs DetectChanges+Apply for every configured updater on a
// fixed interval, persisting the store after each pass that applied a
// change. POST /api/update also calls Apply on the same updaters; each
// Updater's mutex serializes those calls.
type WatchLoop struct {
	updaters []SourceUpdater
	store    *store.Store
	interval time.Duration
	progress *async.IndexProgress

	tickNow atomic.Bool
}

// NewWatchLoop creates a loop over updaters that ticks every interval.
func NewWatchLoop(updaters []SourceUpdater, st *store.Store, interval time.Duration) *WatchLoop {
	if interval <= 0 {
		interval = time.Minute
	}
	return &WatchLoop{updaters: updaters, store: st, interval: interval, progress: async.NewIndexProgress()}
}

// Progress returns a snapshot of the most recent (or in-progress) update
// pass, for callers that want to surface watcher activity without waiting
// on the next tick.
func (w *WatchLoop) Progress() async.IndexProgressSnapshot {
	return w.progress.Snapshot()
}

// WakeNow requests an out-of-band tick as soon as the current sleep slice
// ends, without waiting for the full interval. Called by the fsnotify
// accelerant on any filesystem event.
func (w *WatchLoop) WakeNow() {
	w.tickNow.Store(true)
}

// Run sleeps in pollSlice increments until the interval elapses, a wake
// request arrives, or flag is set, then runs one update pass. It returns
// when flag is set, after finishing any in-progress pass.
func (w *WatchLoop) Run(ctx context.Context, flag *ShutdownFlag) {
	elapsed := time.Duration(0)
	for {
		if flag.Requested() {
			return
		}
		if elapsed >= w.interval || w.tickNow.Load() {
			w.tickNow.Store(false)
			elapsed = 0
			w.runOnce(ctx)
			continue
		}
		time.Sleep(pollSlice)
		elapsed += pollSlice
	}
}

// runOnce detects and applies changes for every configured updater, then
// persists the store once for the whole pass if any updater applied a
// change.
func (w *WatchLoop) runOnce(ctx context.Context) {
	w.progress.SetStage(async.StageScanning, 0)

	anyApplied := false
	filesProcessed := 0
	for _, u := range w.updaters {
		info, err := u.DetectChanges(ctx)
		if err != nil {
			slog.Error("watch loop: detect changes failed", slog.String("error", err.Error()))
			w.progress.SetError(err.Error())
			continue
		}
		if info.Total() == 0 {
			continue
		}

		w.progress.SetStage(async.StageIndexing, info.Total())
		applied, err := u.Apply(ctx, info)
		if err != nil {
			slog.Error("watch loop: apply failed", slog.String("error", err.Error()))
			w.progress.SetError(err.Error())
			continue
		}
		filesProcessed += applied
		w.progress.UpdateFiles(filesProcessed)

		if applied > 0 {
			anyApplied = true
			slog.Info("watch loop: applied changes", slog.Int("applied", applied),
				slog.Int("new", len(info.New)), slog.Int("modified", len(info.Modified)),
				slog.Int("deleted", len(info.Deleted)))
		}
	}

	if !anyApplied {
		w.progress.SetReady()
		return
	}
	if err := w.store.Persist(ctx); err != nil {
		slog.Error("watch loop: persist failed", slog.String("error", err.Error()))
		w.progress.SetError(err.Error())
		return
	}
	w.progress.SetReady()
}
