package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/nesall/ragd/internal/collector"
	"github.com/nesall/ragd/internal/store"
)

// ShutdownGrace bounds how long outstanding HTTP requests and the watch
// loop are given to finish once shutdown is requested.
const ShutdownGrace = 10 * time.Second

// Runtime wires the HTTP facade, the watch loop, and signal handling
// together for `ragd serve`. Run blocks until shutdown completes.
type Runtime struct {
	Addr    string
	Handler http.Handler
	Store   *store.Store

	// Watch, when true, starts the background interval loop (and its
	// fsnotify accelerant) alongside the HTTP facade.
	Watch        bool
	WatchLoop    *WatchLoop
	WatchSources []collector.SourceConfig
}

// Run installs signal handlers, starts the HTTP server and (if enabled)
// the watch loop, then blocks until a shutdown signal arrives. On
// shutdown it stops accepting connections, joins background work, and
// persists the store before returning.
func (r *Runtime) Run(ctx context.Context) error {
	flag := &ShutdownFlag{}
	ctx = InstallSignalHandler(ctx, flag)

	srv := &http.Server{Addr: r.Addr, Handler: r.Handler}
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("http facade listening", slog.String("addr", r.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	var accel *Accelerant
	loopDone := make(chan struct{})
	if r.Watch && r.WatchLoop != nil {
		accel = StartAccelerant(ctx, r.WatchSources, r.WatchLoop)
		go func() {
			r.WatchLoop.Run(ctx, flag)
			close(loopDone)
		}()
	} else {
		close(loopDone)
	}

	select {
	case <-ctx.Done():
		flag.Request()
	case err := <-serveErr:
		if err != nil {
			slog.Error("http facade failed", slog.String("error", err.Error()))
		}
		flag.Request()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http facade shutdown error", slog.String("error", err.Error()))
	}
	if accel != nil {
		accel.Stop()
	}
	<-loopDone

	if err := r.Store.Persist(shutdownCtx); err != nil {
		slog.Error("final persist failed", slog.String("error", err.Error()))
		return err
	}

	slog.Info("shutdown complete")
	return nil
}
