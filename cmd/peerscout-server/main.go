package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/peerscout-go/internal/core/service"
	"github.com/yndnr/peerscout-go/internal/discovery"
	"github.com/yndnr/peerscout-go/internal/infra/buildinfo"
	"github.com/yndnr/peerscout-go/internal/infra/confloader"
	"github.com/yndnr/peerscout-go/internal/infra/netwatch"
	"github.com/yndnr/peerscout-go/internal/infra/shutdown"
	"github.com/yndnr/peerscout-go/internal/infra/tlsroots"
	"github.com/yndnr/peerscout-go/internal/server/bootstrap"
	"github.com/yndnr/peerscout-go/internal/server/config"
	"github.com/yndnr/peerscout-go/internal/server/httpserver"
	"github.com/yndnr/peerscout-go/internal/server/httpserver/handler"
	"github.com/yndnr/peerscout-go/internal/telemetry/logger"
	"github.com/yndnr/peerscout-go/internal/telemetry/metric"
)

func main() {
	app := &cli.App{
		Name:    "peerscout-server",
		Usage:   "Announce this instance and track local-network peers",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				EnvVars: []string{"PEERSCOUT_CONFIG"},
			},
		},
		Action: func(c *cli.Context) error {
			return run(c.String("config"))
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, loader, err := bootstrap.LoadConfig(configFile, nil)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.Verify(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	info := buildinfo.Get()
	log.Info("starting peerscout-server",
		"version", info.Version,
		"commit", info.Commit,
		"config", configFile,
		"effective", config.Sanitize(cfg))

	// Capture signals before anything is announced.
	shutdownHandler := shutdown.NewHandler(cfg.Server.HTTP.ShutdownTimeout, log)

	metrics := metric.NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	engine, store, err := bootstrap.OpenStorage(cfg, log, metrics)
	if err != nil {
		return err
	}
	defer engine.Close()

	instanceID, err := bootstrap.InstanceID(ctx, cfg, store)
	if err != nil {
		return fmt.Errorf("instance id: %w", err)
	}

	prober, enricher, err := bootstrap.ProbeClients(cfg, metrics)
	if err != nil {
		return fmt.Errorf("probe client: %w", err)
	}
	locations := bootstrap.LocationService(cfg, store, prober, log, metrics)

	// Discovery
	var manager *discovery.Manager
	if cfg.Discovery.Enabled {
		tr, err := bootstrap.Transport(cfg, instanceID, log)
		if err != nil {
			return fmt.Errorf("discovery transport: %w", err)
		}
		manager = bootstrap.DiscoveryManager(cfg, tr, enricher, log, metrics)
		defer manager.Close()
	}

	// HTTP
	srv, err := initHTTP(ctx, cfg, instanceID, manager, locations, metrics, log)
	if err != nil {
		return err
	}
	if err := srv.Listen(); err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.HTTP.Addr, err)
	}

	shutdownHandler.OnShutdown("storage", func(context.Context) error {
		return engine.Close()
	})
	if manager != nil {
		shutdownHandler.OnShutdown("discovery", func(context.Context) error {
			return manager.Close()
		})
	}
	shutdownHandler.OnShutdown("http", srv.Shutdown)
	shutdownHandler.OnShutdown("background", func(context.Context) error {
		cancel()
		return nil
	})

	go func() {
		if err := srv.Serve(); err != nil {
			log.Error("HTTP server error", "error", err)
			shutdownHandler.Trigger("http server failed")
		}
	}()

	if manager != nil {
		port := cfg.Discovery.AdvertisePort
		if port == 0 {
			port = srv.Port()
		}
		props := map[string]any{
			"application":      info.Application,
			"software_version": info.Version,
		}
		id, err := manager.Start(ctx, instanceID, port, props)
		if err != nil {
			shutdownHandler.Run()
			if errors.Is(err, discovery.ErrTooManyAttempts) {
				return fmt.Errorf("register %s: %w", instanceID, err)
			}
			return fmt.Errorf("start discovery: %w", err)
		}
		log.Info("announced", "id", id, "port", port, "transport", cfg.Discovery.Transport)
	}

	if cfg.Discovery.WatchNetwork {
		watcher := netwatch.New(netwatch.Config{Logger: log}, func(ch netwatch.Change) {
			log.Info("network addresses changed", "old", ch.Old, "new", ch.New)
			if _, err := locations.PurgeDynamic(ctx); err != nil {
				log.Warn("purge dynamic locations failed", "error", err)
			}
			if manager != nil {
				manager.Invalidate()
			}
		})
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("network watcher stopped", "error", err)
			}
		}()
	}

	if loader.FilePath() != "" {
		if err := watchConfig(ctx, loader, log); err != nil {
			log.Warn("config hot reload disabled", "error", err)
		}
	}

	log.Info("server started, press Ctrl+C to stop", "addr", srv.Addr().String(), "instance_id", instanceID)
	if err := shutdownHandler.Wait(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// initLogger initializes the structured logger and installs it as the
// process default.
func initLogger(cfg *config.ServerConfig) (*slog.Logger, error) {
	return logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
}

// initHTTP builds the router and the server. With a certificate pair the
// server speaks TLS and picks up rotated certificates.
func initHTTP(ctx context.Context, cfg *config.ServerConfig, instanceID string, manager *discovery.Manager,
	locations *service.LocationService, metrics *metric.Registry, log *slog.Logger) (*httpserver.Server, error) {
	hcfg := handler.Config{
		Info:      bootstrap.DeviceInfo(cfg, instanceID),
		Channels:  bootstrap.Channels(cfg),
		Locations: locations,
		Logger:    log,
	}
	if manager != nil {
		hcfg.Peers = manager
		hcfg.Ready = func() error {
			if manager.SelfID() == "" {
				return errors.New("not announced yet")
			}
			return nil
		}
	}

	router := httpserver.NewRouter(httpserver.RouterConfig{
		Handler:   hcfg,
		Metrics:   metrics,
		Logger:    log,
		RateLimit: cfg.Server.HTTP.RateLimit,
		RateBurst: cfg.Server.HTTP.RateBurst,
	})

	httpCfg := cfg.Server.HTTP
	if httpCfg.TLSCertFile == "" {
		return httpserver.New(httpCfg.Addr, router, nil, log), nil
	}

	reloader, err := tlsroots.NewCertReloader(httpCfg.TLSCertFile, httpCfg.TLSKeyFile, log)
	if err != nil {
		return nil, fmt.Errorf("load tls certificate: %w", err)
	}
	go func() {
		if err := reloader.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("certificate watcher stopped", "error", err)
		}
	}()
	return httpserver.New(httpCfg.Addr, router, reloader.ServerConfig(), log), nil
}

// watchConfig reloads the config file on change and applies the new log
// level. Other settings need a restart. The watch ends with ctx.
func watchConfig(ctx context.Context, loader *confloader.Loader, log *slog.Logger) error {
	w, err := confloader.NewWatcher(loader.FilePath(), confloader.WithWatcherLogger(log))
	if err != nil {
		return err
	}

	w.OnChange(func(path string) {
		next := config.Default()
		if err := loader.Load(next); err != nil {
			log.Warn("config reload failed", "file", path, "error", err)
			return
		}
		if next.Log.Level == logger.GetLevel() {
			return
		}
		if err := logger.SetLevel(next.Log.Level); err != nil {
			log.Warn("ignoring log level from reloaded config", "error", err)
			return
		}
		log.Info("log level changed", "level", logger.GetLevel())
	})
	go w.Run(ctx)
	return nil
}
