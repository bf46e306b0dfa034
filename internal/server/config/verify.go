package config

import (
	"errors"
	"fmt"
	"net"
	"os"

	"go.uber.org/multierr"

	"github.com/yndnr/peerscout-go/internal/telemetry/logger"
)

// Verify validates the configuration. All problems are reported at once.
func Verify(cfg *ServerConfig) error {
	return multierr.Combine(
		verifyServer(&cfg.Server),
		verifyDiscovery(&cfg.Discovery),
		verifyProbe(&cfg.Probe),
		verifyLocation(&cfg.Location),
		verifyStorage(&cfg.Storage),
		verifyLog(&cfg.Log),
	)
}

func verifyServer(cfg *ServerSection) error {
	var err error
	if _, _, splitErr := net.SplitHostPort(cfg.HTTP.Addr); splitErr != nil {
		err = multierr.Append(err, fmt.Errorf("server.http.addr %q: %w", cfg.HTTP.Addr, splitErr))
	}
	if (cfg.HTTP.TLSCertFile == "") != (cfg.HTTP.TLSKeyFile == "") {
		err = multierr.Append(err, errors.New("server.http.tls_cert_file and tls_key_file must be set together"))
	}
	for _, f := range []string{cfg.HTTP.TLSCertFile, cfg.HTTP.TLSKeyFile} {
		if f == "" {
			continue
		}
		if _, statErr := os.Stat(f); statErr != nil {
			err = multierr.Append(err, fmt.Errorf("server.http tls file: %w", statErr))
		}
	}
	if cfg.HTTP.RateLimit < 0 {
		err = multierr.Append(err, errors.New("server.http.rate_limit must not be negative"))
	}
	return err
}

func verifyDiscovery(cfg *DiscoverySection) error {
	var err error
	switch cfg.Transport {
	case TransportMDNS, TransportGossip, TransportMemory:
	default:
		err = multierr.Append(err, fmt.Errorf("discovery.transport %q: want mdns, gossip or memory", cfg.Transport))
	}
	if cfg.AdvertisePort < 0 || cfg.AdvertisePort > 65535 {
		err = multierr.Append(err, fmt.Errorf("discovery.advertise_port %d out of range", cfg.AdvertisePort))
	}
	if cfg.AnnounceTTL <= 0 {
		err = multierr.Append(err, errors.New("discovery.announce_ttl must be positive"))
	}
	if cfg.SnapshotTTL <= 0 {
		err = multierr.Append(err, errors.New("discovery.snapshot_ttl must be positive"))
	}
	if cfg.Warmup < 0 {
		err = multierr.Append(err, errors.New("discovery.warmup must not be negative"))
	}
	if cfg.Transport == TransportGossip && (cfg.Gossip.BindPort < 0 || cfg.Gossip.BindPort > 65535) {
		err = multierr.Append(err, fmt.Errorf("discovery.gossip.bind_port %d out of range", cfg.Gossip.BindPort))
	}
	return err
}

func verifyProbe(cfg *ProbeSection) error {
	var err error
	if cfg.Timeout <= 0 {
		err = multierr.Append(err, errors.New("probe.timeout must be positive"))
	}
	if cfg.EnrichTimeout <= 0 {
		err = multierr.Append(err, errors.New("probe.enrich_timeout must be positive"))
	}
	if cfg.CAFile != "" {
		if _, statErr := os.Stat(cfg.CAFile); statErr != nil {
			err = multierr.Append(err, fmt.Errorf("probe.ca_file: %w", statErr))
		}
	}
	return err
}

func verifyLocation(cfg *LocationSection) error {
	var err error
	if cfg.ExpirationWindow <= 0 {
		err = multierr.Append(err, errors.New("location.expiration_window must be positive"))
	}
	if cfg.SweepRate < 0 {
		err = multierr.Append(err, errors.New("location.sweep_rate must not be negative"))
	}
	return err
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}

	// Check if data directory exists or can be created
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return errors.New("cannot create data directory: " + err.Error())
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	var err error
	if _, levelErr := logger.ParseLevel(cfg.Level); levelErr != nil {
		err = multierr.Append(err, fmt.Errorf("log.level: %w", levelErr))
	}
	switch cfg.Format {
	case "", "json", "text", "console":
	default:
		err = multierr.Append(err, fmt.Errorf("log.format %q: want json or text", cfg.Format))
	}
	return err
}
