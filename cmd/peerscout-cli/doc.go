// Package main provides the entry point for peerscout-cli.
//
// The CLI tool gives operators access to:
//
//   - One-off probes of a peer address
//   - The peers announced on the local network
//   - The location registry (add, list, check, log, purge, sweep)
//   - The status of a running peerscout-server
//
// Usage:
//
//	peerscout-cli [global flags] command [flags]
//	peerscout-cli probe 192.168.1.20:8080 --channels
//	peerscout-cli --data-dir /tmp/ps location list -o yaml
//	peerscout-cli --server localhost:8080 peers --exclude-local
package main
