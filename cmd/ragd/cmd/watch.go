package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/nesall/ragd/internal/lifecycle"
)

// defaultWatchInterval is used when `watch` is given no interval argument.
const defaultWatchInterval = 60 * time.Second

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [seconds]",
		Short: "Watch configured sources and keep the index up to date",
		Long: `Run the watch loop in the foreground: an interval-gated
DetectChanges+Apply pass per source, accelerated by filesystem events where
supported. Blocks until interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			interval := defaultWatchInterval
			if len(args) == 1 {
				secs, err := strconv.Atoi(args[0])
				if err != nil || secs <= 0 {
					return fmt.Errorf("invalid interval %q: must be a positive number of seconds", args[0])
				}
				interval = time.Duration(secs) * time.Second
			}
			return runWatch(cmd, interval)
		},
	}
}

func runWatch(cmd *cobra.Command, interval time.Duration) error {
	a, err := buildApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	cleanupLog, err := a.setupLogging("watch")
	if err != nil {
		return err
	}
	defer cleanupLog()

	updaters := make([]lifecycle.SourceUpdater, len(a.updaters))
	for i, u := range a.updaters {
		updaters[i] = u
	}
	loop := lifecycle.NewWatchLoop(updaters, a.store, interval)

	flag := &lifecycle.ShutdownFlag{}
	ctx := lifecycle.InstallSignalHandler(cmd.Context(), flag)

	sources := a.cfg.SourceConfigs()
	accel := lifecycle.StartAccelerant(ctx, sources, loop)
	defer accel.Stop()

	fmt.Printf("watching %d source(s) every %s\n", len(sources), interval)
	loop.Run(ctx, flag)
	return nil
}
