package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loquat-fw/loquat/internal/adapter"
	"github.com/loquat-fw/loquat/internal/channel"
	"github.com/loquat-fw/loquat/internal/config"
	"github.com/loquat-fw/loquat/internal/engine"
	"github.com/loquat-fw/loquat/internal/errutil"
	"github.com/loquat-fw/loquat/internal/health"
	"github.com/loquat-fw/loquat/internal/historystore"
	"github.com/loquat-fw/loquat/internal/hotreload"
	"github.com/loquat-fw/loquat/internal/housekeeping"
	"github.com/loquat-fw/loquat/internal/httpapi"
	"github.com/loquat-fw/loquat/internal/observability"
	"github.com/loquat-fw/loquat/internal/plugin"
	"github.com/loquat-fw/loquat/internal/router"
	"github.com/loquat-fw/loquat/internal/shutdown"
	"github.com/loquat-fw/loquat/internal/stream"
	"github.com/loquat-fw/loquat/internal/version"
)

// onDiskLayout is the set of directories the running service requires to
// exist, auto-created at startup if missing.
var onDiskLayout = []string{"config", "logs"}

func runServe(cmd *cobra.Command, args []string) error {
	env := environmentArg(args)
	if err := validateEnvironment(env); err != nil {
		return err
	}

	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.General.Environment = env

	logger := observability.NewLogger(cfg.Logging)
	observability.SetDefault(logger)
	logger = logger.With("component", "main", "environment", env, "version", version.Short())

	if err := ensureOnDiskLayout(cfg); err != nil {
		return fmt.Errorf("preparing on-disk layout: %w", err)
	}

	st, err := stream.New(logger, stream.RegisterBuiltins)
	if err != nil {
		return fmt.Errorf("constructing stream: %w", err)
	}

	r := router.New(cfg.Pipeline.AutoRoute)
	channels := channel.NewManager(cfg.Pipeline.AutoCreateChannels)
	eng := engine.New(r, channels, st, logger)

	factories := adapter.NewFactoryRegistry()
	adapters := adapter.NewManager(cfg.Adapters.Directory, cfg.Adapters.Whitelist, cfg.Adapters.Blacklist, adapter.NewCompositeLoader(), logger)
	plugins := plugin.NewManager(cfg.Plugins.Directory, cfg.Plugins.Whitelist, cfg.Plugins.Blacklist, plugin.NewCompositeLoader(),
		&plugin.StreamRegistrar{Stream: st, Factories: factories}, logger)

	ctx := context.Background()
	if err := plugins.Discover(ctx); err != nil {
		return fmt.Errorf("discovering plugins: %w", err)
	}
	if err := adapters.Discover(ctx); err != nil {
		return fmt.Errorf("discovering adapters: %w", err)
	}
	adapters.InitializeAndStartAll(ctx)

	if err := eng.Start(ctx, nil); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}

	historyPath := filepath.Join("logs", "reload_history.db")
	history, err := historystore.Open(historyPath)
	if err != nil {
		return fmt.Errorf("opening reload history store: %w", err)
	}

	pluginWatcherCtx, cancelPluginWatcher := context.WithCancel(context.Background())
	adapterWatcherCtx, cancelAdapterWatcher := context.WithCancel(context.Background())

	historyLogger := slog.Default().With("component", "historystore")
	historySink := func(e hotreload.Entry) {
		if err := history.Record(context.Background(), e); err != nil {
			errutil.LogAndContinue(historyLogger, "persisting reload history entry failed", err, "name", e.Component, "path", e.Path)
		}
	}
	pluginWatcher := hotreload.NewWatcher("plugins", reloadConfig(cfg, "plugins"), logger, plugins.Targets)
	pluginWatcher.SetSink(historySink)
	adapterWatcher := hotreload.NewWatcher("adapters", reloadConfig(cfg, "adapters"), logger, adapters.Targets)
	adapterWatcher.SetSink(historySink)

	go func() {
		if cfg.Plugins.EnableHotReload {
			_ = pluginWatcher.Run(pluginWatcherCtx)
		}
	}()
	go func() {
		if cfg.Adapters.EnableHotReload {
			_ = adapterWatcher.Run(adapterWatcherCtx)
		}
	}()

	housekeeper := housekeeping.NewRunner(channels, cfg.Housekeeping.ChannelIdleTTL.Duration(), logger)
	if err := housekeeper.ScheduleEviction(cfg.Housekeeping.ChannelEvictionCron); err != nil {
		return fmt.Errorf("scheduling channel eviction: %w", err)
	}
	statsFn := func() housekeeping.Stats {
		s := eng.StatsSnapshot()
		return housekeeping.Stats{Processed: s.Processed, Failed: s.Failed}
	}
	if err := housekeeper.ScheduleStatsLog(cfg.Housekeeping.StatsLogCron, statsFn); err != nil {
		return fmt.Errorf("scheduling stats log: %w", err)
	}
	housekeeper.Start()

	healthCollector := health.NewCollector()

	var webServer *httpapi.Server
	if cfg.Web.Enabled {
		webServer = httpapi.NewServer(cfg.Web, httpapi.Deps{
			Engine:          eng,
			Plugins:         plugins,
			Adapters:        adapters,
			PluginWatcher:   pluginWatcher,
			AdapterWatcher:  adapterWatcher,
			HealthCollector: healthCollector,
			Config:          cfg,
			Version:         version.Short(),
		}, logger)
		go func() {
			if err := webServer.Start(); err != nil {
				logger.Error("http server exited", "error", err)
			}
		}()
	}

	logger.Info("loquat started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	coordinator := shutdown.NewCoordinator(logger, shutdownStages(
		cfg, logger, webServer, adapters, plugins, housekeeper, channels, eng, history,
		cancelAdapterWatcher, cancelPluginWatcher,
	)...)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.StageTimeout.Duration()*10)
	defer cancel()
	if err := coordinator.Run(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
		return err
	}
	if coordinator.Status() != shutdown.StatusCompleted {
		return fmt.Errorf("shutdown finished with status %s", coordinator.Status())
	}
	return nil
}

// reloadConfig builds a hotreload.Config for the given artifact family,
// starting from hotreload.DefaultConfig and layering the config file's
// overrides on top.
func reloadConfig(cfg *config.Config, family string) hotreload.Config {
	c := hotreload.DefaultConfig(family)
	artifact := cfg.Plugins
	if family == "adapters" {
		artifact = cfg.Adapters
	}
	if artifact.HotReloadInterval.Duration() > 0 {
		c.Interval = artifact.HotReloadInterval.Duration()
	}
	if cfg.Pipeline.ReloadRetryAttempts > 0 {
		c.RetryAttempts = cfg.Pipeline.ReloadRetryAttempts
	}
	if cfg.Housekeeping.ReloadHistoryMax > 0 {
		c.HistoryCapacity = cfg.Housekeeping.ReloadHistoryMax
	}
	if cfg.Housekeeping.LRUTrackerCapacity > 0 {
		c.LRUCapacity = cfg.Housekeeping.LRUTrackerCapacity
	}
	return c
}

func ensureOnDiskLayout(cfg *config.Config) error {
	dirs := append([]string{}, onDiskLayout...)
	dirs = append(dirs, cfg.Plugins.Directory, cfg.Adapters.Directory)
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory %q: %w", dir, err)
		}
	}
	return nil
}

// shutdownStages assembles the Shutdown Coordinator's stage list in its
// fixed order: StopAcceptingRequests, WebService, AdapterHotReload,
// PluginHotReload, Adapters, Plugins, Workers, Channels, Engine, Logging.
// Workers has no dedicated shutdown hook of its own — the
// Stream's Pools hold no per-Worker resources to release — so it is a
// structural no-op stage, kept to preserve the fixed stage ordering for
// fault-policy and timeout bookkeeping.
func shutdownStages(
	cfg *config.Config,
	logger *slog.Logger,
	webServer *httpapi.Server,
	adapters *adapter.Manager,
	plugins *plugin.Manager,
	housekeeper *housekeeping.Runner,
	channels *channel.Manager,
	eng *engine.Engine,
	history *historystore.Store,
	cancelAdapterWatcher, cancelPluginWatcher func(),
) []shutdown.Stage {
	timeout := cfg.Shutdown.StageTimeout.Duration()
	policy := func(name string) shutdown.Policy {
		if cfg.Shutdown.StagePolicy[name] == "AbortOnError" {
			return shutdown.AbortOnError
		}
		return shutdown.ContinueOnError
	}

	return []shutdown.Stage{
		{
			Name:    "StopAcceptingRequests",
			Timeout: timeout,
			Policy:  policy("StopAcceptingRequests"),
			Func: func(_ context.Context) error {
				logger.Info("no longer accepting new work")
				return nil
			},
		},
		{
			Name:    "WebService",
			Timeout: timeout,
			Policy:  policy("WebService"),
			Func: func(ctx context.Context) error {
				if webServer == nil {
					return nil
				}
				return webServer.Shutdown(ctx)
			},
		},
		{
			Name:    "AdapterHotReload",
			Timeout: timeout,
			Policy:  policy("AdapterHotReload"),
			Func: func(_ context.Context) error {
				cancelAdapterWatcher()
				return nil
			},
		},
		{
			Name:    "PluginHotReload",
			Timeout: timeout,
			Policy:  policy("PluginHotReload"),
			Func: func(_ context.Context) error {
				cancelPluginWatcher()
				return nil
			},
		},
		{
			Name:    "Adapters",
			Timeout: timeout,
			Policy:  policy("Adapters"),
			Func: func(ctx context.Context) error {
				adapters.StopAll(ctx)
				return nil
			},
		},
		{
			Name:    "Plugins",
			Timeout: timeout,
			Policy:  policy("Plugins"),
			Func: func(ctx context.Context) error {
				plugins.ShutdownAll(ctx)
				return nil
			},
		},
		{
			Name:    "Workers",
			Timeout: timeout,
			Policy:  policy("Workers"),
			Func:    func(_ context.Context) error { return nil },
		},
		{
			Name:    "Channels",
			Timeout: timeout,
			Policy:  policy("Channels"),
			Func: func(_ context.Context) error {
				housekeeper.Stop()
				logger.Info("channel state retained for process exit", "count", channels.Count())
				return nil
			},
		},
		{
			Name:    "Engine",
			Timeout: timeout,
			Policy:  policy("Engine"),
			Func: func(ctx context.Context) error {
				return eng.Stop(ctx, nil)
			},
		},
		{
			Name:    "Logging",
			Timeout: timeout,
			Policy:  policy("Logging"),
			Func: func(_ context.Context) error {
				return history.Close()
			},
		},
	}
}
