// Package command provides CLI command definitions for peerscout-cli.
//
// This package defines all CLI commands using urfave/cli/v2:
//
//   - root.go: Root command, global flags, shared helpers
//   - probe.go: One-off probe of a peer address
//   - peers.go: Announced peers, in-process or from a running server
//   - location.go: Location registry subcommand group
//   - status.go: Health of a running server
//   - config.go: Configuration subcommand group
//
// Location commands open the badger data directory directly, so they
// must not run while a server holds the same directory.
package command
