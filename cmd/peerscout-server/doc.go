// Package main provides the entry point for peerscout-server.
//
// The server is the long-running peerscout instance. It:
//
//   - Serves its identity and content channels so peers can probe it
//   - Announces itself on the configured discovery transport
//   - Keeps the live table of announced peers and a cached snapshot
//   - Exposes the location registry, health, readiness and metrics
//
// Usage:
//
//	peerscout-server [flags]
//	peerscout-server --config /etc/peerscout/config.yaml
//
// Changes to log.level in the config file apply without a restart.
package main
