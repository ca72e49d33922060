// Package lifecycle owns process startup and shutdown: signal handling,
// the background interval watcher, and coordinating a clean exit across
// the HTTP facade and the updater.
package lifecycle

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

// ShutdownFlag is a shared, concurrency-safe "shutdown requested" signal.
// Long-running loops poll Requested instead of reacting to the OS signal
// directly, so tests can trigger shutdown without sending a real signal.
type ShutdownFlag struct {
	requested atomic.Bool
}

// Requested reports whether shutdown has been requested.
func (f *ShutdownFlag) Requested() bool {
	return f.requested.Load()
}

// Request sets the flag. Safe to call more than once.
func (f *ShutdownFlag) Request() {
	f.requested.Store(true)
}

// InstallSignalHandler registers SIGINT/SIGTERM handlers that set flag and
// cancel the returned context on the first signal. A second signal exits
// the process immediately, for operators who don't want to wait out the
// grace period.
func InstallSignalHandler(ctx context.Context, flag *ShutdownFlag) context.Context {
	ctx, cancel := context.WithCancel(ctx)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
		flag.Request()
		cancel()

		sig = <-sigCh
		slog.Warn("second shutdown signal received, exiting immediately", slog.String("signal", sig.String()))
		os.Exit(1)
	}()

	return ctx
}
