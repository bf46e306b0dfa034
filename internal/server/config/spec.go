package config

import "time"

// ServerConfig is the root configuration for peerscout-server.
type ServerConfig struct {
	Server    ServerSection    `koanf:"server" yaml:"server"`
	Discovery DiscoverySection `koanf:"discovery" yaml:"discovery"`
	Probe     ProbeSection     `koanf:"probe" yaml:"probe"`
	Location  LocationSection  `koanf:"location" yaml:"location"`
	Storage   StorageSection   `koanf:"storage" yaml:"storage"`
	Content   ContentSection   `koanf:"content" yaml:"content"`
	Log       LogSection       `koanf:"log" yaml:"log"`
}

// ServerSection configures server endpoints.
type ServerSection struct {
	HTTP HTTPConfig `koanf:"http" yaml:"http"`
}

// HTTPConfig configures the HTTP server peers probe.
type HTTPConfig struct {
	Addr        string `koanf:"addr" yaml:"addr"`
	TLSCertFile string `koanf:"tls_cert_file" yaml:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file" yaml:"tls_key_file"`

	// RateLimit is the per-client request rate (requests/second). Zero disables.
	RateLimit float64 `koanf:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `koanf:"rate_burst" yaml:"rate_burst"`

	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Transport names.
const (
	TransportMDNS   = "mdns"
	TransportGossip = "gossip"
	TransportMemory = "memory"
)

// DiscoverySection configures announcement and peer discovery.
type DiscoverySection struct {
	Enabled bool `koanf:"enabled" yaml:"enabled"`

	// Transport is one of mdns, gossip or memory.
	Transport string `koanf:"transport" yaml:"transport"`

	// InstanceID is the id announced to peers. Empty means the persistent
	// id kept in the data directory.
	InstanceID string `koanf:"instance_id" yaml:"instance_id"`

	// DeviceName is reported by the info endpoint. Empty means the hostname.
	DeviceName string `koanf:"device_name" yaml:"device_name"`

	// AdvertisePort is the port peers should probe. Zero means the HTTP port.
	AdvertisePort int `koanf:"advertise_port" yaml:"advertise_port"`

	AnnounceTTL    time.Duration `koanf:"announce_ttl" yaml:"announce_ttl"`
	SnapshotTTL    time.Duration `koanf:"snapshot_ttl" yaml:"snapshot_ttl"`
	Warmup         time.Duration `koanf:"warmup" yaml:"warmup"`
	BrowseInterval time.Duration `koanf:"browse_interval" yaml:"browse_interval"`

	// Interfaces restricts mDNS to the named interfaces. Empty means all.
	Interfaces []string `koanf:"interfaces" yaml:"interfaces"`

	// WatchNetwork purges dynamic locations and drops cached snapshots when
	// the host's addresses change.
	WatchNetwork bool `koanf:"watch_network" yaml:"watch_network"`

	Gossip GossipConfig `koanf:"gossip" yaml:"gossip"`
}

// GossipConfig configures the memberlist transport.
type GossipConfig struct {
	// BindAddr is the Gossip TCP/UDP bind address.
	BindAddr string `koanf:"bind_addr" yaml:"bind_addr"`

	// BindPort is the Gossip bind port.
	BindPort int `koanf:"bind_port" yaml:"bind_port"`

	// Seeds are existing members to join.
	// Format: ["192.168.1.10:7946", "192.168.1.11:7946"]
	Seeds []string `koanf:"seeds" yaml:"seeds"`
}

// ProbeSection configures outgoing peer checks.
type ProbeSection struct {
	// Timeout bounds availability probes.
	Timeout time.Duration `koanf:"timeout" yaml:"timeout"`

	// EnrichTimeout bounds channel listing calls made for snapshots.
	EnrichTimeout time.Duration `koanf:"enrich_timeout" yaml:"enrich_timeout"`

	// CAFile adds trusted roots for https peers.
	CAFile string `koanf:"ca_file" yaml:"ca_file"`
}

// LocationSection configures the location registry.
type LocationSection struct {
	ExpirationWindow time.Duration `koanf:"expiration_window" yaml:"expiration_window"`

	// SweepRate is the number of probes per second during a sweep.
	SweepRate float64 `koanf:"sweep_rate" yaml:"sweep_rate"`
}

// StorageSection configures storage behavior.
type StorageSection struct {
	DataDir    string        `koanf:"data_dir" yaml:"data_dir"`
	GCInterval time.Duration `koanf:"gc_interval" yaml:"gc_interval"`
	SyncWrites bool          `koanf:"sync_writes" yaml:"sync_writes"`
}

// ContentSection lists what this instance serves to peers.
type ContentSection struct {
	Channels []ChannelConfig `koanf:"channels" yaml:"channels"`
}

// ChannelConfig is one advertised content channel.
type ChannelConfig struct {
	ID      string `koanf:"id" yaml:"id"`
	Name    string `koanf:"name" yaml:"name"`
	Version int    `koanf:"version" yaml:"version"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}
