package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/yndnr/peerscout-go/internal/discovery/transport/gossip"
	"github.com/yndnr/peerscout-go/internal/discovery/transport/mdns"
)

// ToGossipConfig converts the discovery section to gossip.Config.
//
// Seeds may be given as host:port or as URLs; only host:port is kept.
func ToGossipConfig(cfg *ServerConfig, nodeName string, logger *slog.Logger) (gossip.Config, error) {
	if cfg == nil {
		return gossip.Config{}, fmt.Errorf("server config is nil")
	}
	g := cfg.Discovery.Gossip

	seeds := make([]string, 0, len(g.Seeds))
	for _, s := range g.Seeds {
		addr, err := seedAddress(s, g.BindPort)
		if err != nil {
			return gossip.Config{}, err
		}
		seeds = append(seeds, addr)
	}

	return gossip.Config{
		NodeName: nodeName,
		BindAddr: g.BindAddr,
		BindPort: g.BindPort,
		Seeds:    seeds,
		Logger:   logger,
	}, nil
}

// ToMDNSConfig converts the discovery section to mdns.Config, resolving
// interface names.
func ToMDNSConfig(cfg *ServerConfig, logger *slog.Logger) (mdns.Config, error) {
	if cfg == nil {
		return mdns.Config{}, fmt.Errorf("server config is nil")
	}
	var ifaces []net.Interface
	for _, name := range cfg.Discovery.Interfaces {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			return mdns.Config{}, fmt.Errorf("discovery.interfaces %q: %w", name, err)
		}
		ifaces = append(ifaces, *iface)
	}
	return mdns.Config{
		Interfaces:     ifaces,
		BrowseInterval: cfg.Discovery.BrowseInterval,
		Logger:         logger,
	}, nil
}

// seedAddress reduces a seed to host:port, adding defaultPort when absent.
func seedAddress(seed string, defaultPort int) (string, error) {
	s := strings.TrimSpace(seed)
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return "", fmt.Errorf("discovery.gossip.seeds: %w", err)
		}
		s = u.Host
	}
	if s == "" {
		return "", fmt.Errorf("discovery.gossip.seeds: empty seed")
	}
	if _, _, err := net.SplitHostPort(s); err != nil {
		if defaultPort <= 0 {
			defaultPort = DefaultGossipPort
		}
		s = net.JoinHostPort(strings.Trim(s, "[]"), strconv.Itoa(defaultPort))
	}
	return s, nil
}
