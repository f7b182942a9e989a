package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/slighter12/maya-livelink-go/commands"
	"github.com/slighter12/maya-livelink-go/config"
	"github.com/slighter12/maya-livelink-go/logger"
	"github.com/slighter12/maya-livelink-go/metric"
	"github.com/slighter12/maya-livelink-go/runtimebridge"
	"github.com/slighter12/maya-livelink-go/scene"
	"github.com/slighter12/maya-livelink-go/subject"
	transporthttp "github.com/slighter12/maya-livelink-go/transport/http"
	"github.com/slighter12/maya-livelink-go/transport/stdio"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Debug     bool
	Port      int
	ScenePath string
	Stdio     bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the provider",
		Long: `Run the provider: load the scene, start the bridge loop and serve the
consumer stream, the JSON-RPC command endpoint and /metrics.

Example:
  livelink serve --config ./config/livelink.json
  livelink serve --scene ./config/scene.example.yaml --port 9191 --debug`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "enable debug logging and request logs")
	cmd.Flags().IntVar(&opts.Port, "port", 0, "override the configured port")
	cmd.Flags().StringVar(&opts.ScenePath, "scene", "", "override the configured scene file")
	cmd.Flags().BoolVar(&opts.Stdio, "stdio", false, "also accept JSON-RPC commands on stdin and write replies to stdout")

	return cmd
}

func (o *ServeOptions) loadConfig() (*config.Config, error) {
	path, err := o.resolveConfigPath()
	if err != nil {
		return nil, err
	}
	if err := config.EnsureDefaultConfig(path); err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if o.Debug {
		cfg.Server.Debug = true
		cfg.Logging.Level = "debug"
	}
	if o.Port != 0 {
		cfg.Server.Port = o.Port
	}
	if o.ScenePath != "" {
		cfg.Scene.Path = o.ScenePath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	if err := logger.Init(logger.GetLevelFromString(cfg.Logging.Level), logger.Format(cfg.Logging.Format), cfg.Logging.Path); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Default().Close()

	graph, err := scene.LoadFile(cfg.Scene.Path)
	if err != nil {
		return err
	}
	logger.Info("Scene loaded", "path", cfg.Scene.Path, "nodes", len(graph.Paths()))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := metric.NewMetrics(reg)
	if err != nil {
		return err
	}

	hub := transporthttp.NewHub(cfg.Provider.Name, cfg.Provider.SubscriberBuffer, metrics)
	manager := commands.NewManager()

	notify := hub.Notify
	var stdioServer *stdio.StdioServer
	if opts.Stdio {
		stdioServer = stdio.NewStdioServer(manager, os.Stdin, os.Stdout)
		notify = fanOut(hub.Notify, stdioServer.Notify)
	}

	bridgeOpts := runtimebridge.Options{
		ValidationInterval: cfg.ValidationInterval(),
		TickInterval:       cfg.TickInterval(),
		Metrics:            metrics,
		Notify:             notify,
	}
	if interval := cfg.RenderInterval(); interval > 0 {
		bridgeOpts.Viewports = runtimebridge.RenderTicker{Interval: interval}
	}
	bridge := runtimebridge.New(subject.Env{
		Scene:     graph,
		Transport: hub,
		Logger:    logger.Component("subject"),
	}, graph, bridgeOpts)

	manager.RegisterDefaults(commands.Deps{Loop: bridge, Scene: graph})

	server := transporthttp.NewServer(cfg, transporthttp.Deps{
		Hub:      hub,
		Commands: manager,
		Store:    bridge.Store(),
		Gatherer: reg,
	})

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := bridge.Run(loopCtx); err != nil {
			logger.Error("Bridge loop failed", "error", err)
		}
	}()

	if cfg.Scene.Watch {
		watcher := scene.NewWatcher(cfg.Scene.Path, func(next *scene.Graph, err error) {
			if err != nil {
				logger.Warn("Scene reload failed, keeping the current scene", "path", cfg.Scene.Path, "error", err)
				return
			}
			if !bridge.Post(runtimebridge.Event{Kind: runtimebridge.EventSceneReloaded, Graph: next}) {
				logger.Warn("Scene reload dropped, bridge queue full", "path", cfg.Scene.Path)
			}
		})
		go func() {
			if err := watcher.Run(loopCtx); err != nil {
				logger.Error("Scene watcher stopped", "error", err)
			}
		}()
	}

	if stdioServer != nil {
		go func() {
			if err := stdioServer.Serve(loopCtx); err != nil {
				logger.Error("Stdio command channel stopped", "error", err)
			}
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err = <-serverErr:
		if err != nil {
			logger.Error("Server error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("Server shutdown incomplete", "error", shutdownErr)
	}
	stopLoop()
	<-loopDone
	return err
}

// fanOut delivers a notification to every sender.
func fanOut(senders ...runtimebridge.NotificationSender) runtimebridge.NotificationSender {
	return func(method string, params map[string]any) bool {
		delivered := false
		for _, send := range senders {
			if send(method, params) {
				delivered = true
			}
		}
		return delivered
	}
}
