package config

import "time"

// Default configuration values.
const (
	DefaultHTTPAddr        = "0.0.0.0:8080"
	DefaultRateLimit       = 20.0
	DefaultRateBurst       = 40
	DefaultShutdownTimeout = 10 * time.Second

	DefaultTransport      = TransportMDNS
	DefaultAnnounceTTL    = 60 * time.Second
	DefaultSnapshotTTL    = 20 * time.Second
	DefaultWarmup         = 3 * time.Second
	DefaultBrowseInterval = 10 * time.Second
	DefaultGossipPort     = 7946

	DefaultProbeTimeout  = 5 * time.Second
	DefaultEnrichTimeout = 2 * time.Second

	DefaultExpirationWindow = 10 * time.Second
	DefaultSweepRate        = 10.0

	DefaultDataDir    = "/var/lib/peerscout/data"
	DefaultGCInterval = 10 * time.Minute

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr:            DefaultHTTPAddr,
				RateLimit:       DefaultRateLimit,
				RateBurst:       DefaultRateBurst,
				ShutdownTimeout: DefaultShutdownTimeout,
			},
		},
		Discovery: DiscoverySection{
			Enabled:        true,
			Transport:      DefaultTransport,
			AnnounceTTL:    DefaultAnnounceTTL,
			SnapshotTTL:    DefaultSnapshotTTL,
			Warmup:         DefaultWarmup,
			BrowseInterval: DefaultBrowseInterval,
			WatchNetwork:   true,
			Gossip: GossipConfig{
				BindAddr: "0.0.0.0",
				BindPort: DefaultGossipPort,
			},
		},
		Probe: ProbeSection{
			Timeout:       DefaultProbeTimeout,
			EnrichTimeout: DefaultEnrichTimeout,
		},
		Location: LocationSection{
			ExpirationWindow: DefaultExpirationWindow,
			SweepRate:        DefaultSweepRate,
		},
		Storage: StorageSection{
			DataDir:    DefaultDataDir,
			GCInterval: DefaultGCInterval,
			SyncWrites: true,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
