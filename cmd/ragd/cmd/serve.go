package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nesall/ragd/internal/config"
	"github.com/nesall/ragd/internal/httpapi"
	"github.com/nesall/ragd/internal/lifecycle"
	"github.com/nesall/ragd/internal/registry"
	"github.com/nesall/ragd/pkg/version"
)

// defaultServePort is used when --port is not given.
const defaultServePort = 8080

func newServeCmd() *cobra.Command {
	var port int
	var watch bool
	var watchSeconds int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP facade",
		Long: `Start the HTTP facade (search, chat, admin, and metrics endpoints) and,
when --watch is given, the background watch loop alongside it. Blocks
until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, port, watch, watchSeconds)
		},
	}
	cmd.Flags().IntVar(&port, "port", defaultServePort, "HTTP listen port")
	cmd.Flags().BoolVar(&watch, "watch", false, "also run the background watch loop")
	cmd.Flags().IntVar(&watchSeconds, "watch-interval", 0, "watch loop interval in seconds (default: 60)")

	return cmd
}

func runServe(cmd *cobra.Command, port int, watch bool, watchSeconds int) error {
	a, err := buildApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	cleanupLog, err := a.setupLogging("serve")
	if err != nil {
		return err
	}
	defer cleanupLog()

	defaultClient, err := a.completionClient()
	if err != nil {
		return err
	}

	server := httpapi.NewServer(httpapi.Dependencies{
		Planner:    a.planner,
		Store:      a.store,
		Collector:  a.collector,
		Chunker:    a.chunker,
		Embedder:   a.embedder,
		Completion: defaultClient,
		APIs:       a.completion,
		Tokenizer:  a.tok,
		PromptCfg:  defaultClient.Config(),
		Updaters:   a.updaters,
		Admin:      a.admin,
		Tokens:     a.tokens,
		Config:     config.NewEcho(a.cfg, a.cfgPath),
		Version:    version.Version,
	})

	interval := defaultWatchInterval
	if watchSeconds > 0 {
		interval = time.Duration(watchSeconds) * time.Second
	}

	var loop *lifecycle.WatchLoop
	if watch {
		updaters := make([]lifecycle.SourceUpdater, len(a.updaters))
		for i, u := range a.updaters {
			updaters[i] = u
		}
		loop = lifecycle.NewWatchLoop(updaters, a.store, interval)
	}

	addr := fmt.Sprintf(":%d", port)
	entry := registry.Entry{PID: os.Getpid(), Port: port, RootPath: a.dir}
	if err := a.registry.Register(entry); err != nil {
		return err
	}
	defer a.registry.Deregister(entry.PID)

	rt := &lifecycle.Runtime{
		Addr:         addr,
		Handler:      server.Handler(),
		Store:        a.store,
		Watch:        watch,
		WatchLoop:    loop,
		WatchSources: a.cfg.SourceConfigs(),
	}
	return rt.Run(cmd.Context())
}
