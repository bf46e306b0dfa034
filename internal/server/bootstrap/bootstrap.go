package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/yndnr/peerscout-go/internal/core/domain"
	"github.com/yndnr/peerscout-go/internal/core/service"
	"github.com/yndnr/peerscout-go/internal/discovery"
	"github.com/yndnr/peerscout-go/internal/discovery/transport"
	"github.com/yndnr/peerscout-go/internal/discovery/transport/gossip"
	"github.com/yndnr/peerscout-go/internal/discovery/transport/mdns"
	"github.com/yndnr/peerscout-go/internal/discovery/transport/memnet"
	"github.com/yndnr/peerscout-go/internal/infra/buildinfo"
	"github.com/yndnr/peerscout-go/internal/infra/confloader"
	"github.com/yndnr/peerscout-go/internal/infra/tlsroots"
	"github.com/yndnr/peerscout-go/internal/probe"
	"github.com/yndnr/peerscout-go/internal/server/config"
	"github.com/yndnr/peerscout-go/internal/storage"
	"github.com/yndnr/peerscout-go/internal/telemetry/metric"
)

// LoadConfig loads defaults, then the optional file, then PEERSCOUT_*
// environment variables, then overrides keyed by dotted path. The
// returned loader is the one to reload from when the file changes.
// Callers that open storage run config.Verify.
func LoadConfig(file string, overrides map[string]any) (*config.ServerConfig, *confloader.Loader, error) {
	cfg := config.Default()

	opts := []confloader.Option{confloader.WithOverrides(overrides)}
	if file != "" {
		opts = append(opts, confloader.WithConfigFile(file))
	}
	loader := confloader.NewLoader(opts...)
	if err := loader.Load(cfg); err != nil {
		return nil, nil, err
	}
	return cfg, loader, nil
}

// OpenStorage opens the badger data directory and the location store on
// top of it. The caller closes the engine.
func OpenStorage(cfg *config.ServerConfig, logger *slog.Logger, metrics *metric.Registry) (*storage.BadgerEngine, *storage.LocationStore, error) {
	kvCfg := storage.DefaultKVConfig(cfg.Storage.DataDir)
	kvCfg.GCInterval = cfg.Storage.GCInterval
	kvCfg.SyncWrites = cfg.Storage.SyncWrites

	engine, err := storage.NewBadgerEngine(kvCfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage %s: %w", cfg.Storage.DataDir, err)
	}
	if metrics != nil {
		if err := engine.RegisterMetrics(metrics.Prometheus()); err != nil {
			engine.Close()
			return nil, nil, fmt.Errorf("register storage metrics: %w", err)
		}
	}
	return engine, storage.NewLocationStore(engine, logger), nil
}

// ProbeClients returns the availability prober and the snapshot
// enrichment client. They differ only in their timeout.
func ProbeClients(cfg *config.ServerConfig, metrics *metric.Registry) (prober, enricher *probe.Client, err error) {
	hc := &http.Client{}
	if cfg.Probe.CAFile != "" {
		tlsCfg, err := tlsroots.ClientConfig(cfg.Probe.CAFile)
		if err != nil {
			return nil, nil, err
		}
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = tlsCfg
		hc.Transport = tr
	}

	prober = probe.NewClient(probe.Config{
		Timeout:    cfg.Probe.Timeout,
		UserAgent:  buildinfo.UserAgent(),
		HTTPClient: hc,
		Metrics:    metrics,
	})
	enricher = probe.NewClient(probe.Config{
		Timeout:    cfg.Probe.EnrichTimeout,
		UserAgent:  buildinfo.UserAgent(),
		HTTPClient: hc,
		Metrics:    metrics,
	})
	return prober, enricher, nil
}

// LocationService wires the location registry.
func LocationService(cfg *config.ServerConfig, store *storage.LocationStore, prober service.Prober, logger *slog.Logger, metrics *metric.Registry) *service.LocationService {
	return service.NewLocationService(service.LocationServiceConfig{
		Repo:      store,
		Static:    store.Static(),
		Dynamic:   store.Dynamic(),
		Prober:    prober,
		Window:    cfg.Location.ExpirationWindow,
		SweepRate: cfg.Location.SweepRate,
		Logger:    logger,
		Metrics:   metrics,
	})
}

// Transport opens the configured discovery transport. nodeName names
// this process among gossip members.
func Transport(cfg *config.ServerConfig, nodeName string, logger *slog.Logger) (transport.Transport, error) {
	switch cfg.Discovery.Transport {
	case config.TransportMDNS:
		mc, err := config.ToMDNSConfig(cfg, logger)
		if err != nil {
			return nil, err
		}
		return mdns.New(mc), nil
	case config.TransportGossip:
		gc, err := config.ToGossipConfig(cfg, nodeName, logger)
		if err != nil {
			return nil, err
		}
		t, err := gossip.New(gc)
		if err != nil {
			return nil, err
		}
		return t, nil
	case config.TransportMemory:
		return memnet.NewNetwork().Join(nil), nil
	default:
		return nil, fmt.Errorf("unknown discovery transport %q", cfg.Discovery.Transport)
	}
}

// DiscoveryManager wires advertiser, listener and snapshot cache onto tr.
func DiscoveryManager(cfg *config.ServerConfig, tr transport.Transport, enricher discovery.ChannelFetcher, logger *slog.Logger, metrics *metric.Registry) *discovery.Manager {
	return discovery.NewManager(discovery.ManagerConfig{
		Transport:   tr,
		Fetcher:     enricher,
		AnnounceTTL: cfg.Discovery.AnnounceTTL,
		SnapshotTTL: cfg.Discovery.SnapshotTTL,
		Warmup:      cfg.Discovery.Warmup,
		Logger:      logger,
		Metrics:     metrics,
	})
}

// InstanceID returns the configured id, or the persistent one kept in
// storage. Ids are lowercased since they become DNS labels.
func InstanceID(ctx context.Context, cfg *config.ServerConfig, store *storage.LocationStore) (string, error) {
	if id := strings.TrimSpace(cfg.Discovery.InstanceID); id != "" {
		return strings.ToLower(id), nil
	}
	return store.InstanceID(ctx)
}

// DeviceInfo is what this instance reports on its info endpoint.
func DeviceInfo(cfg *config.ServerConfig, instanceID string) domain.DeviceInfo {
	name := cfg.Discovery.DeviceName
	if name == "" {
		name, _ = os.Hostname()
	}
	info := buildinfo.Get()
	return domain.DeviceInfo{
		Application:     info.Application,
		SoftwareVersion: info.Version,
		InstanceID:      instanceID,
		DeviceName:      name,
		OperatingSystem: strings.SplitN(info.Platform, "/", 2)[0],
	}
}

// Channels converts the configured content channels.
func Channels(cfg *config.ServerConfig) []domain.Channel {
	out := make([]domain.Channel, 0, len(cfg.Content.Channels))
	for _, c := range cfg.Content.Channels {
		out = append(out, domain.Channel{ID: c.ID, Name: c.Name, Version: c.Version})
	}
	return out
}
